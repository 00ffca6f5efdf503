package sync

// SyncDataVersion is bumped whenever the persisted layout changes
const SyncDataVersion = 1

// SyncData is the last synced snapshot of both sides. Each tree carries only
// its own side's metadata and the shared syncedAt stamps.
type SyncData struct {
	Version    int       `yaml:"version"`
	RootDir    string    `yaml:"root_dir"`
	RemoteRoot string    `yaml:"remote_root"`
	LocalTree  *SyncNode `yaml:"local_tree"`
	RemoteTree *SyncNode `yaml:"remote_tree"`
}

// NewSyncData returns the empty state used on the first run
func NewSyncData(rootDir, remoteRoot string) *SyncData {
	return &SyncData{
		Version:    SyncDataVersion,
		RootDir:    rootDir,
		RemoteRoot: remoteRoot,
		LocalTree:  NewLocalRoot(),
		RemoteTree: NewRemoteRoot(remoteRoot),
	}
}

// Relink restores parent links after decoding
func (d *SyncData) Relink() {
	RelinkParents(d.LocalTree)
	RelinkParents(d.RemoteTree)
}

// Apply replaces both snapshots with projections of the post-sync merged tree.
func (d *SyncData) Apply(merged *SyncNode) {
	if merged == nil {
		return
	}
	d.LocalTree = project(merged, TargetLocal)
	d.RemoteTree = project(merged, TargetRemote)
}

// project copies the nodes that still exist on side into a new tree. Nodes that
// are not kept pass their children up to the nearest kept ancestor.
func project(merged *SyncNode, side Target) *SyncNode {
	root := projectNode(merged, side)

	var walk func(src, dst *SyncNode)
	walk = func(src, dst *SyncNode) {
		for _, child := range src.Children {
			if !keepOnSide(child, side) {
				walk(child, dst)
				continue
			}
			cp := projectNode(child, side)
			dst.AddChild(cp)
			walk(child, cp)
		}
	}
	walk(merged, root)

	return root
}

func projectNode(n *SyncNode, side Target) *SyncNode {
	c := n.cloneShallow()
	if side == TargetLocal {
		c.RemoteMeta = nil
	} else {
		c.LocalMeta = nil
	}
	return c
}

// keepOnSide drops nodes the side never had and nodes whose deletion has
// reached both sides. A deletion still pending on the other side is kept.
func keepOnSide(n *SyncNode, side Target) bool {
	ownPresent, ownDeleted := sideState(n, side)
	if !ownPresent {
		return false
	}
	if !ownDeleted {
		return true
	}
	otherPresent, otherDeleted := sideState(n, side.Other())
	return otherPresent && !otherDeleted
}

func sideState(n *SyncNode, side Target) (present, deleted bool) {
	if side == TargetLocal {
		if n.LocalMeta == nil {
			return false, false
		}
		return true, n.LocalMeta.Deleted
	}
	if n.RemoteMeta == nil {
		return false, false
	}
	return true, n.RemoteMeta.Deleted
}

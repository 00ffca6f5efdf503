package sync

import (
	"log/slog"
	"time"
)

// SyncPlanner turns a merged tree into the actions needed to reconcile it.
type SyncPlanner struct {
	now func() time.Time
}

// PlannerOption configures a SyncPlanner
type PlannerOption func(*SyncPlanner)

// WithClock overrides the clock used to timestamp deletions
func WithClock(now func() time.Time) PlannerOption {
	return func(p *SyncPlanner) {
		p.now = now
	}
}

func NewSyncPlanner(opts ...PlannerOption) *SyncPlanner {
	p := &SyncPlanner{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan walks the tree in pre-order and returns the actions for every
// role-bearing node. Each action carries its own node, so the list has no
// ordering requirements between parents and children.
func (p *SyncPlanner) Plan(root *SyncNode) []*SyncAction {
	var actions []*SyncAction
	Walk(root, func(n *SyncNode) bool {
		actions = append(actions, p.PlanNode(n)...)
		return true
	})
	return actions
}

// PlanNode returns the actions for a single node
func (p *SyncPlanner) PlanNode(node *SyncNode) []*SyncAction {
	// nodes without a role are only structural containers
	if node.Role == "" {
		return nil
	}

	changedLocal, changedRemote := node.ChangedLocal(), node.ChangedRemote()
	if !changedLocal && !changedRemote {
		return nil
	}

	var localChange, remoteChange *SyncAction
	if changedLocal {
		localChange = p.fromLocal(node)
	}
	if changedRemote {
		remoteChange = p.fromRemote(node)
	}

	if localChange != nil && remoteChange != nil &&
		localChange.Type == ActionFetch && remoteChange.Type == ActionFetch {
		// a local edit newer than the remote stamp supersedes it
		if localChange.ChangedAt.After(remoteChange.ChangedAt) {
			slog.Debug("remote stamp superseded by local edit", "node", node, "local", localChange.ChangedAt, "remote", remoteChange.ChangedAt)
			return []*SyncAction{localChange}
		}
		return []*SyncAction{NewConflictAction(node, localChange, remoteChange)}
	}

	var actions []*SyncAction
	if localChange != nil {
		actions = append(actions, localChange)
	}
	if remoteChange != nil {
		actions = append(actions, remoteChange)
	}
	// a fetch must export its content before the other side deletes it
	if len(actions) == 2 && actions[0].Type == ActionDelete {
		actions[0], actions[1] = actions[1], actions[0]
	}
	return actions
}

// fromLocal propagates a local change to the remote side
func (p *SyncPlanner) fromLocal(node *SyncNode) *SyncAction {
	if node.LocalMeta.Deleted {
		return NewDeleteAction(TargetRemote, node, p.now())
	}
	return NewFetchAction(TargetRemote, node, node.LocalMeta.UpdatedAt)
}

// fromRemote propagates a remote change to the local side
func (p *SyncPlanner) fromRemote(node *SyncNode) *SyncAction {
	if node.RemoteMeta.Deleted {
		return NewDeleteAction(TargetLocal, node, p.now())
	}
	return NewFetchAction(TargetLocal, node, node.RemoteMeta.UpdatedAt)
}

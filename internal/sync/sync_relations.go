package sync

import (
	"log/slog"
	"slices"
)

// LinkRelations moves every node that references another role node through
// its remote relations below that node. The first resolvable relation wins.
// Relations pointing at unknown nodes are logged and left alone.
func LinkRelations(root *SyncNode) {
	if root == nil {
		return
	}

	byRole := make(map[string]map[string]*SyncNode)
	nodes := Flatten(root)
	for _, n := range nodes {
		if n.Role == "" || n.RemoteMeta == nil || n.RemoteMeta.ID == "" {
			continue
		}
		if byRole[n.Role] == nil {
			byRole[n.Role] = make(map[string]*SyncNode)
		}
		byRole[n.Role][n.RemoteMeta.ID] = n
	}

	for _, n := range nodes {
		if n.IsRoot() || n.RemoteMeta == nil || len(n.RemoteMeta.Relations) == 0 {
			continue
		}

		roles := make([]string, 0, len(n.RemoteMeta.Relations))
		for role := range n.RemoteMeta.Relations {
			roles = append(roles, role)
		}
		slices.Sort(roles)

	relations:
		for _, role := range roles {
			candidates, ok := byRole[role]
			if !ok {
				continue
			}
			for _, id := range n.RemoteMeta.Relations[role] {
				parent, ok := candidates[id]
				if !ok {
					slog.Warn("relation target missing", "node", n, "role", role, "remoteId", id)
					continue
				}
				if parent == n || isAncestor(n, parent) {
					slog.Warn("relation cycle ignored", "node", n, "parent", parent)
					continue
				}
				if n.Parent != parent {
					if n.Parent != nil {
						n.Parent.RemoveChild(n)
					}
					parent.AddChild(n)
				}
				break relations
			}
		}
	}
}

// isAncestor reports whether a is an ancestor of n
func isAncestor(a, n *SyncNode) bool {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur == a {
			return true
		}
	}
	return false
}

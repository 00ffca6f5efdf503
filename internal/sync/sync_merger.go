package sync

import (
	"log/slog"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MatchRule is the rule that identified two nodes as the same entity.
// Rules are listed in the order they are tried.
type MatchRule int

const (
	NoMatch MatchRule = iota
	MatchByID
	MatchByPath
	MatchByRemoteID
	MatchFuzzy
)

var matchRuleNames = map[MatchRule]string{
	NoMatch:         "none",
	MatchByID:       "id",
	MatchByPath:     "path",
	MatchByRemoteID: "remote-id",
	MatchFuzzy:      "fuzzy",
}

func (r MatchRule) String() string {
	return matchRuleNames[r]
}

// matchOrder is the precedence used when several candidates match
var matchOrder = []MatchRule{MatchByID, MatchByPath, MatchByRemoteID, MatchFuzzy}

// MatchRuleFor returns the first rule under which a and b are the same entity
func MatchRuleFor(a, b *SyncNode) MatchRule {
	if a.ID != "" && a.ID == b.ID {
		return MatchByID
	}

	if a.LocalMeta != nil && b.LocalMeta != nil && a.LocalMeta.Path != "" &&
		a.LocalMeta.Path == b.LocalMeta.Path {
		return MatchByPath
	}

	if a.RemoteMeta != nil && b.RemoteMeta != nil && a.RemoteMeta.ID != "" &&
		a.RemoteMeta.ID == b.RemoteMeta.ID {
		return MatchByRemoteID
	}

	aLocalOnly := a.LocalMeta != nil && a.RemoteMeta == nil
	aRemoteOnly := a.RemoteMeta != nil && a.LocalMeta == nil
	bLocalOnly := b.LocalMeta != nil && b.RemoteMeta == nil
	bRemoteOnly := b.RemoteMeta != nil && b.LocalMeta == nil

	if aLocalOnly && bRemoteOnly && fuzzyMatch(a.LocalMeta, b.RemoteMeta) {
		return MatchFuzzy
	}
	if aRemoteOnly && bLocalOnly && fuzzyMatch(b.LocalMeta, a.RemoteMeta) {
		return MatchFuzzy
	}

	return NoMatch
}

// MatchNodes reports whether a and b represent the same logical entity
func MatchNodes(a, b *SyncNode) bool {
	return MatchRuleFor(a, b) != NoMatch
}

func fuzzyMatch(local *LocalMeta, remote *RemoteMeta) bool {
	name := local.Name()
	name = strings.TrimSuffix(name, path.Ext(name))
	return normalizeTitle(name) == normalizeTitle(remote.Title)
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// SyncMerger unifies a local and a remote tree over a role hierarchy.
type SyncMerger struct{}

func NewSyncMerger() *SyncMerger {
	return &SyncMerger{}
}

// Merge returns a new tree that is the structural union of left (local) and
// right (remote). Both input trees are relinked by relations first, and every
// matched input node is updated to reference the merged identity and metadata.
func (m *SyncMerger) Merge(hierarchy []string, left, right *SyncNode) *SyncNode {
	LinkRelations(left)
	LinkRelations(right)
	return m.mergeNodes(hierarchy, left, right)
}

func (m *SyncMerger) mergeNodes(hierarchy []string, left, right *SyncNode) *SyncNode {
	merged := combineNodes(left, right)
	if len(hierarchy) == 0 {
		return merged
	}

	role, rest := hierarchy[0], hierarchy[1:]

	var lnodes, rnodes []*SyncNode
	if left != nil {
		lnodes = collectRole(left, role)
	}
	if right != nil {
		rnodes = collectRole(right, role)
	}

	pairs := pairNodes(lnodes, rnodes)
	for i, l := range lnodes {
		if j := pairs[i]; j >= 0 {
			merged.AddChild(m.mergeNodes(rest, l, rnodes[j]))
		} else {
			merged.AddChild(m.mergeNodes(rest, l, nil))
		}
	}

	matchedRight := make(map[int]struct{}, len(pairs))
	for _, j := range pairs {
		if j >= 0 {
			matchedRight[j] = struct{}{}
		}
	}
	for j, r := range rnodes {
		if _, ok := matchedRight[j]; !ok {
			merged.AddChild(m.mergeNodes(rest, nil, r))
		}
	}

	return merged
}

// pairNodes matches left nodes to right nodes. Stronger rules claim their
// candidates first so a fuzzy match never steals an identity match.
// The result maps each left index to a right index or -1.
func pairNodes(lnodes, rnodes []*SyncNode) []int {
	pairs := make([]int, len(lnodes))
	for i := range pairs {
		pairs[i] = -1
	}
	taken := make([]bool, len(rnodes))

	for _, rule := range matchOrder {
		for i, l := range lnodes {
			if pairs[i] >= 0 {
				continue
			}
			for j, r := range rnodes {
				if taken[j] {
					continue
				}
				if MatchRuleFor(l, r) == rule {
					pairs[i] = j
					taken[j] = true
					slog.Debug("merge match", "rule", rule, "left", l, "right", r)
					break
				}
			}
		}
	}

	return pairs
}

// collectRole returns the descendants of node with the given role. A node
// carrying any role is a unit: recursion does not continue below it.
func collectRole(node *SyncNode, role string) []*SyncNode {
	return FlattenWhere(node,
		func(n *SyncNode) bool { return n.Role == role },
		func(n *SyncNode) bool {
			if n.Role != "" {
				slog.Debug("merge skip foreign role", "node", n, "want", role)
				return true
			}
			return false
		},
	)
}

func combineNodes(left, right *SyncNode) *SyncNode {
	merged := &SyncNode{}

	switch {
	case left != nil && right != nil:
		merged.ID = left.ID
		merged.Type = pickType(left.Type, right.Type)
		merged.Role = left.Role
		if merged.Role == "" {
			merged.Role = right.Role
		}
		merged.LocalMeta = pickLocalMeta(left.LocalMeta, right.LocalMeta)
		merged.RemoteMeta = pickRemoteMeta(left.RemoteMeta, right.RemoteMeta)
		merged.SyncedAt = maxTime(left.SyncedAt, right.SyncedAt)
	case left != nil:
		merged.ID, merged.Type, merged.Role = left.ID, left.Type, left.Role
		merged.LocalMeta, merged.RemoteMeta = left.LocalMeta, left.RemoteMeta
		merged.SyncedAt = maxTime(left.SyncedAt, nil)
	case right != nil:
		merged.ID, merged.Type, merged.Role = right.ID, right.Type, right.Role
		merged.LocalMeta, merged.RemoteMeta = right.LocalMeta, right.RemoteMeta
		merged.SyncedAt = maxTime(right.SyncedAt, nil)
	}

	// originals are still held by the providers, point them at the merged state
	for _, orig := range []*SyncNode{left, right} {
		if orig == nil {
			continue
		}
		orig.ID = merged.ID
		orig.Type = merged.Type
		orig.Role = merged.Role
		orig.LocalMeta = merged.LocalMeta
		orig.RemoteMeta = merged.RemoteMeta
		orig.SyncedAt = maxTime(merged.SyncedAt, nil)
	}

	return merged
}

func pickType(l, r NodeType) NodeType {
	if l == "" || l == NodeTypeUnknown {
		if r != "" {
			return r
		}
	}
	return l
}

// pickLocalMeta prefers the fresher metadata, left on a tie
func pickLocalMeta(l, r *LocalMeta) *LocalMeta {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	case r.UpdatedAt.After(l.UpdatedAt):
		return r
	default:
		return l
	}
}

// pickRemoteMeta prefers the fresher metadata, left on a tie
func pickRemoteMeta(l, r *RemoteMeta) *RemoteMeta {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	case r.UpdatedAt.After(l.UpdatedAt):
		return r
	default:
		return l
	}
}

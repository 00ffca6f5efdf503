package sync

import (
	"fmt"
	"strings"
	"time"
)

// ActionType is what an action does to its target side.
type ActionType string

const (
	ActionFetch    ActionType = "FETCH"
	ActionDelete   ActionType = "DELETE"
	ActionConflict ActionType = "CONFLICT"
)

// Target is the side of the sync that receives the effect of an action.
type Target string

const (
	TargetLocal  Target = "LOCAL"
	TargetRemote Target = "REMOTE"
)

// Other returns the opposite side
func (t Target) Other() Target {
	if t == TargetLocal {
		return TargetRemote
	}
	return TargetLocal
}

// SyncAction is a single planned operation. Actions are created by the
// planner, rewritten by the resolver and consumed by the syncer.
type SyncAction struct {
	Type      ActionType
	Target    Target
	Node      *SyncNode
	ChangedAt time.Time
	Content   string
	Conflicts []*SyncAction
}

// NewFetchAction transfers the node to target
func NewFetchAction(target Target, node *SyncNode, changedAt time.Time) *SyncAction {
	return &SyncAction{Type: ActionFetch, Target: target, Node: node, ChangedAt: changedAt}
}

// NewDeleteAction removes the node from target
func NewDeleteAction(target Target, node *SyncNode, changedAt time.Time) *SyncAction {
	return &SyncAction{Type: ActionDelete, Target: target, Node: node, ChangedAt: changedAt}
}

// NewConflictAction wraps competing actions on the same node
func NewConflictAction(node *SyncNode, actions ...*SyncAction) *SyncAction {
	var changedAt time.Time
	for _, a := range actions {
		if a.ChangedAt.After(changedAt) {
			changedAt = a.ChangedAt
		}
	}
	return &SyncAction{
		Type:      ActionConflict,
		Target:    TargetLocal,
		Node:      node,
		ChangedAt: changedAt,
		Conflicts: actions,
	}
}

// Source is the side the change originates from
func (a *SyncAction) Source() Target {
	return a.Target.Other()
}

// ShouldCreate reports whether the target side has no entity for the node yet
func (a *SyncAction) ShouldCreate() bool {
	if a.Type != ActionFetch {
		return false
	}
	switch a.Target {
	case TargetLocal:
		return a.Node.LocalMeta == nil || a.Node.LocalMeta.Deleted
	default:
		return a.Node.RemoteMeta == nil || a.Node.RemoteMeta.Deleted
	}
}

// ConflictFor returns the wrapped action with the given target, or nil
func (a *SyncAction) ConflictFor(target Target) *SyncAction {
	for _, c := range a.Conflicts {
		if c.Target == target {
			return c
		}
	}
	return nil
}

func (a *SyncAction) label() string {
	if a.Target == TargetLocal && a.Node.RemoteMeta != nil {
		return a.Node.RemoteMeta.Title
	}
	if a.Node.LocalMeta != nil {
		return a.Node.LocalMeta.Path
	}
	return a.Node.Title()
}

func (a *SyncAction) String() string {
	if a.Type != ActionConflict {
		return fmt.Sprintf("%s TO %s FOR %s|%s SINCE %s",
			a.Type, a.Target, a.Node.ID, a.label(), a.ChangedAt.Format("2006-01-02 15:04"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s AT %s|%s:", a.Type, a.Node.ID, a.Node.Title())
	for _, c := range a.Conflicts {
		sb.WriteString("\n\t")
		sb.WriteString(c.String())
	}
	return sb.String()
}

package sync

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeType is the structural kind of a node. It drives how providers materialize it.
type NodeType string

const (
	NodeTypeRoot    NodeType = "ROOT"
	NodeTypeGroup   NodeType = "GROUP"
	NodeTypeNote    NodeType = "NOTE"
	NodeTypeUnknown NodeType = "UNKNOWN"
)

// ParseNodeType converts a configured type name into a NodeType
func ParseNodeType(s string) (NodeType, error) {
	switch NodeType(strings.ToUpper(strings.TrimSpace(s))) {
	case NodeTypeRoot:
		return NodeTypeRoot, nil
	case NodeTypeGroup:
		return NodeTypeGroup, nil
	case NodeTypeNote:
		return NodeTypeNote, nil
	case NodeTypeUnknown:
		return NodeTypeUnknown, nil
	}
	return NodeTypeUnknown, fmt.Errorf("unknown node type %q", s)
}

// LocalMeta is the local file-tree side of a node.
// Path is relative to the sync root and uses forward slashes.
type LocalMeta struct {
	Path      string    `yaml:"path" json:"path"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
	Deleted   bool      `yaml:"deleted,omitempty" json:"deleted,omitempty"`
}

// Name returns the last path element without a trailing slash.
func (m *LocalMeta) Name() string {
	return path.Base(strings.TrimSuffix(m.Path, "/"))
}

func (m *LocalMeta) clone() *LocalMeta {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// RemoteMeta is the document-service side of a node.
type RemoteMeta struct {
	ID        string              `yaml:"id" json:"id"`
	Title     string              `yaml:"title" json:"title"`
	UpdatedAt time.Time           `yaml:"updated_at" json:"updated_at"`
	Deleted   bool                `yaml:"deleted,omitempty" json:"deleted,omitempty"`
	Relations map[string][]string `yaml:"relations,omitempty" json:"relations,omitempty"`
}

func (m *RemoteMeta) clone() *RemoteMeta {
	if m == nil {
		return nil
	}
	c := *m
	if m.Relations != nil {
		c.Relations = make(map[string][]string, len(m.Relations))
		for role, ids := range m.Relations {
			c.Relations[role] = append([]string(nil), ids...)
		}
	}
	return &c
}

// SyncNode is one logical unit (group or document) in a sync tree.
// The tree owns nodes through Children; Parent is a derived back-reference.
type SyncNode struct {
	ID         string      `yaml:"id"`
	Type       NodeType    `yaml:"type"`
	Role       string      `yaml:"role,omitempty"`
	LocalMeta  *LocalMeta  `yaml:"local,omitempty"`
	RemoteMeta *RemoteMeta `yaml:"remote,omitempty"`
	SyncedAt   *time.Time  `yaml:"synced_at,omitempty"`
	Children   []*SyncNode `yaml:"children,omitempty"`

	Parent *SyncNode `yaml:"-"`
}

// NewNodeID returns a fresh engine identifier
func NewNodeID() string {
	return uuid.NewString()
}

// NewNode creates a node with a fresh identity
func NewNode(nodeType NodeType, role string) *SyncNode {
	return &SyncNode{
		ID:   NewNodeID(),
		Type: nodeType,
		Role: role,
	}
}

// NewLocalRoot creates the root of a local snapshot tree
func NewLocalRoot() *SyncNode {
	root := NewNode(NodeTypeRoot, "")
	root.LocalMeta = &LocalMeta{Path: ""}
	return root
}

// NewRemoteRoot creates the root of a remote snapshot tree
func NewRemoteRoot(rootID string) *SyncNode {
	root := NewNode(NodeTypeRoot, "")
	root.RemoteMeta = &RemoteMeta{ID: rootID}
	return root
}

// IsRoot reports whether the node is the synthetic tree root
func (n *SyncNode) IsRoot() bool {
	return n.Type == NodeTypeRoot
}

// IsLeaf reports whether the node is a leaf content node
func (n *SyncNode) IsLeaf() bool {
	return n.Type == NodeTypeNote
}

// Valid checks the node-level invariant: only the root may lack both metadata slots.
func (n *SyncNode) Valid() bool {
	return n.IsRoot() || n.LocalMeta != nil || n.RemoteMeta != nil
}

// AddChild appends child and sets its parent link
func (n *SyncNode) AddChild(child *SyncNode) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// RemoveChild detaches child. It reports whether the child was found.
func (n *SyncNode) RemoveChild(child *SyncNode) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			return true
		}
	}
	return false
}

// ChangedLocal reports whether the local side changed since the last sync
func (n *SyncNode) ChangedLocal() bool {
	if n.LocalMeta == nil {
		return false
	}
	return n.SyncedAt == nil || n.LocalMeta.UpdatedAt.After(*n.SyncedAt)
}

// ChangedRemote reports whether the remote side changed since the last sync
func (n *SyncNode) ChangedRemote() bool {
	if n.RemoteMeta == nil {
		return false
	}
	return n.SyncedAt == nil || n.RemoteMeta.UpdatedAt.After(*n.SyncedAt)
}

// MarkSynced moves SyncedAt forward to t. It never moves the stamp backwards.
func (n *SyncNode) MarkSynced(t time.Time) {
	if n.SyncedAt != nil && !t.After(*n.SyncedAt) {
		return
	}
	n.SyncedAt = &t
}

// Title is a human readable label, preferring the remote title
func (n *SyncNode) Title() string {
	if n.RemoteMeta != nil && n.RemoteMeta.Title != "" {
		return n.RemoteMeta.Title
	}
	if n.LocalMeta != nil {
		name := n.LocalMeta.Name()
		return strings.TrimSuffix(name, path.Ext(name))
	}
	return n.ID
}

func (n *SyncNode) String() string {
	return fmt.Sprintf("%s|%s(%s)", n.ID, n.Title(), n.Role)
}

// cloneShallow copies identity and metadata, but not the tree links
func (n *SyncNode) cloneShallow() *SyncNode {
	c := &SyncNode{
		ID:         n.ID,
		Type:       n.Type,
		Role:       n.Role,
		LocalMeta:  n.LocalMeta.clone(),
		RemoteMeta: n.RemoteMeta.clone(),
	}
	if n.SyncedAt != nil {
		t := *n.SyncedAt
		c.SyncedAt = &t
	}
	return c
}

func maxTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		t := *b
		return &t
	case b == nil || !b.After(*a):
		t := *a
		return &t
	default:
		t := *b
		return &t
	}
}

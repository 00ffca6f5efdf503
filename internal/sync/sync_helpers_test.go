package sync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func ptime(t time.Time) *time.Time {
	return &t
}

func localNode(nodeType NodeType, role, p string, updated time.Time) *SyncNode {
	n := NewNode(nodeType, role)
	n.LocalMeta = &LocalMeta{Path: p, UpdatedAt: updated}
	return n
}

func remoteNode(nodeType NodeType, role, id, title string, updated time.Time) *SyncNode {
	n := NewNode(nodeType, role)
	n.RemoteMeta = &RemoteMeta{ID: id, Title: title, UpdatedAt: updated}
	return n
}

func withChildren(parent *SyncNode, children ...*SyncNode) *SyncNode {
	for _, c := range children {
		parent.AddChild(c)
	}
	return parent
}

var testHierarchy = []string{"course", "lecture"}

// fakeProvider is an in-memory side of the sync
type fakeProvider struct {
	side    Target
	now     time.Time
	content map[string]string
	failOn  map[string]error
	tree    func(prev *SyncNode) *SyncNode

	// afterUpstream runs after every successful upstream write
	afterUpstream func(*SyncAction)

	mu         sync.Mutex
	downstream []*SyncAction
	upstream   []*SyncAction
	inflight   map[string]int
	maxInflt   int
}

func newFakeProvider(side Target, now time.Time) *fakeProvider {
	return &fakeProvider{
		side:     side,
		now:      now,
		content:  make(map[string]string),
		failOn:   make(map[string]error),
		inflight: make(map[string]int),
	}
}

func (f *fakeProvider) FetchTree(_ context.Context, prev *SyncNode) (*SyncNode, error) {
	if f.tree != nil {
		return f.tree(prev), nil
	}
	return prev, nil
}

func (f *fakeProvider) ActionDownstream(_ context.Context, action *SyncAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downstream = append(f.downstream, action)
	if action.Type == ActionFetch {
		action.Content = f.content[action.Node.ID]
	}
	return nil
}

func (f *fakeProvider) ActionUpstream(_ context.Context, action *SyncAction) error {
	f.mu.Lock()
	if err := f.failOn[action.Node.ID]; err != nil {
		f.mu.Unlock()
		return err
	}
	top := TopAncestor(action.Node).ID
	f.inflight[top]++
	if f.inflight[top] > f.maxInflt {
		f.maxInflt = f.inflight[top]
	}
	f.upstream = append(f.upstream, action)
	f.content[action.Node.ID] = action.Content
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[top]--

	if f.afterUpstream != nil {
		defer f.afterUpstream(action)
	}

	node := action.Node
	switch f.side {
	case TargetLocal:
		if action.Type == ActionDelete {
			node.LocalMeta.Deleted = true
			node.LocalMeta.UpdatedAt = f.now
			return nil
		}
		if node.LocalMeta == nil || node.LocalMeta.Deleted {
			node.LocalMeta = &LocalMeta{Path: node.Title() + ".md"}
		}
		node.LocalMeta.UpdatedAt = f.now
	case TargetRemote:
		if action.Type == ActionDelete {
			node.RemoteMeta.Deleted = true
			node.RemoteMeta.UpdatedAt = f.now
			return nil
		}
		if node.RemoteMeta == nil || node.RemoteMeta.Deleted {
			node.RemoteMeta = &RemoteMeta{ID: fmt.Sprintf("page-%s", node.ID[:8]), Title: node.Title()}
		}
		node.RemoteMeta.UpdatedAt = f.now
	}
	return nil
}

func (f *fakeProvider) upstreamFor(id string) []*SyncAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*SyncAction
	for _, a := range f.upstream {
		if a.Node.ID == id {
			out = append(out, a)
		}
	}
	return out
}

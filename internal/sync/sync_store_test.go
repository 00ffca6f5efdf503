package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nodeTuple struct {
	id       string
	parentID string
	local    *LocalMeta
	remote   *RemoteMeta
	syncedAt string
}

func tuples(root *SyncNode) []nodeTuple {
	var out []nodeTuple
	Walk(root, func(n *SyncNode) bool {
		tp := nodeTuple{id: n.ID, local: n.LocalMeta, remote: n.RemoteMeta}
		if n.Parent != nil {
			tp.parentID = n.Parent.ID
		}
		if n.SyncedAt != nil {
			tp.syncedAt = n.SyncedAt.UTC().String()
		}
		out = append(out, tp)
		return true
	})
	return out
}

func sampleState() *SyncData {
	data := NewSyncData("/tmp/notes", "root-page")

	course := localNode(NodeTypeGroup, "course", "Math/", at(1))
	course.SyncedAt = ptime(at(2))
	lecture := localNode(NodeTypeNote, "lecture", "Math/Intro.md", at(3))
	lecture.LocalMeta.Deleted = true
	withChildren(data.LocalTree, withChildren(course, lecture))

	rcourse := remoteNode(NodeTypeGroup, "course", "p-math", "Math", at(1))
	rcourse.ID = course.ID
	rcourse.SyncedAt = ptime(at(2))
	rlecture := remoteNode(NodeTypeNote, "lecture", "p-intro", "Intro", at(4))
	rlecture.ID = lecture.ID
	rlecture.RemoteMeta.Relations = map[string][]string{"course": {"p-math"}}
	withChildren(data.RemoteTree, withChildren(rcourse, rlecture))

	return data
}

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoState)

	data := sampleState()
	require.NoError(t, store.Save(ctx, data))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, SyncDataVersion, loaded.Version)
	assert.Equal(t, data.RootDir, loaded.RootDir)
	assert.Equal(t, data.RemoteRoot, loaded.RemoteRoot)
	assert.Equal(t, tuples(data.LocalTree), tuples(loaded.LocalTree))
	assert.Equal(t, tuples(data.RemoteTree), tuples(loaded.RemoteTree))

	// saving again replaces the previous state
	loaded.LocalTree.Children = nil
	require.NoError(t, store.Save(ctx, loaded))
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.LocalTree.Children)
	assert.Len(t, Flatten(again.RemoteTree), 3)
}

func TestYAMLStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".notesync", "state.yml")
	testStoreRoundTrip(t, NewYAMLStore(path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestYAMLStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yml")
	require.NoError(t, os.WriteFile(path, []byte("local_tree: [oops"), 0o644))

	_, err := NewYAMLStore(path).Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoState)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), ".notesync", "state.db"))
	require.NoError(t, err)
	defer store.Close()

	testStoreRoundTrip(t, store)
}

func TestSyncData_Apply(t *testing.T) {
	merged := NewLocalRoot()
	merged.RemoteMeta = &RemoteMeta{ID: "root-page"}

	// remote only course never materialized locally, with a lecture that was
	course := remoteNode(NodeTypeGroup, "course", "p-bio", "Biology", at(1))
	pulled := remoteNode(NodeTypeNote, "lecture", "p-cells", "Cells", at(1))
	pulled.LocalMeta = &LocalMeta{Path: "Cells.md", UpdatedAt: at(2)}

	// deleted on both sides
	gone := bothSides(NodeTypeNote, "lecture", 1, 1, 2)
	gone.LocalMeta.Deleted = true
	gone.RemoteMeta.Deleted = true

	// local deletion that has not reached the remote yet
	pending := bothSides(NodeTypeNote, "lecture", 3, 1, 2)
	pending.LocalMeta.Deleted = true

	withChildren(merged, withChildren(course, pulled), gone, pending)

	data := NewSyncData("/tmp/notes", "root-page")
	data.Apply(merged)

	localIDs := ids(data.LocalTree)
	assert.Equal(t, []string{merged.ID, pulled.ID, pending.ID}, localIDs)
	assert.Same(t, data.LocalTree, data.LocalTree.Children[0].Parent, "orphan hoisted to root")
	assert.Nil(t, data.LocalTree.Children[0].RemoteMeta)

	remoteIDs := ids(data.RemoteTree)
	assert.Equal(t, []string{merged.ID, course.ID, pulled.ID, pending.ID}, remoteIDs)
	assert.Nil(t, data.RemoteTree.Children[0].LocalMeta)

	// projections are copies
	data.LocalTree.Children[0].LocalMeta.Path = "changed"
	assert.Equal(t, "Cells.md", pulled.LocalMeta.Path)
}

func ids(root *SyncNode) []string {
	var out []string
	for _, n := range Flatten(root) {
		out = append(out, n.ID)
	}
	return out
}

package remote

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openmined/notesync/internal/docsdk"
	"github.com/openmined/notesync/internal/docserver"
	"github.com/openmined/notesync/internal/profile"
	"github.com/openmined/notesync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	provider *Provider
	store    *docserver.PageStore
	rootID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &docserver.Config{
		Auth:      docserver.AuthConfig{Secret: "0123456789abcdef0123"},
		DBPath:    ":memory:",
		RateLimit: "1000-S",
	}
	require.NoError(t, cfg.Validate())

	store, err := docserver.NewPageStore(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler, err := docserver.SetupRoutes(cfg, store)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, err := docserver.NewToken("tester", &cfg.Auth)
	require.NoError(t, err)
	client, err := docsdk.New(srv.URL, docsdk.WithToken(token))
	require.NoError(t, err)

	root, err := store.CreateRoot(context.Background(), "Workspace")
	require.NoError(t, err)

	prof, err := profile.Builtin("university")
	require.NoError(t, err)
	p, err := FromProfile(client.Pages, root.ID, prof)
	require.NoError(t, err)

	return &fixture{provider: p, store: store, rootID: root.ID}
}

func (f *fixture) create(t *testing.T, parent, title string, kind docsdk.PageKind, relations map[string][]string) *docsdk.Page {
	t.Helper()
	page, err := f.store.Create(context.Background(), &docsdk.CreatePageParams{
		ParentID: parent, Title: title, Kind: kind, Relations: relations, Content: "# " + title,
	})
	require.NoError(t, err)
	return page
}

// seed builds a course with one lecture
func (f *fixture) seed(t *testing.T) (course, lecture *docsdk.Page) {
	t.Helper()
	courses := f.create(t, f.rootID, "Spring Courses", docsdk.KindCollection, nil)
	lectures := f.create(t, f.rootID, "Lectures", docsdk.KindCollection, nil)
	course = f.create(t, courses.ID, "Math", docsdk.KindPage, nil)
	lecture = f.create(t, lectures.ID, "Intro", docsdk.KindPage, map[string][]string{"course": {course.ID}})
	f.create(t, lectures.ID, "Untitled draft", docsdk.KindPage, nil)
	return course, lecture
}

func byRemoteID(root *sync.SyncNode) map[string]*sync.SyncNode {
	out := make(map[string]*sync.SyncNode)
	for _, n := range sync.Flatten(root) {
		if n.RemoteMeta != nil {
			out[n.RemoteMeta.ID] = n
		}
	}
	return out
}

func TestFetchTree_RolesAndMapping(t *testing.T) {
	f := newFixture(t)
	course, lecture := f.seed(t)

	tree, err := f.provider.FetchTree(context.Background(), nil)
	require.NoError(t, err)
	nodes := byRemoteID(tree)

	assert.Equal(t, f.rootID, tree.RemoteMeta.ID)
	assert.True(t, tree.IsRoot())

	c := nodes[course.ID]
	require.NotNil(t, c)
	assert.Equal(t, "course", c.Role)
	assert.Equal(t, sync.NodeTypeGroup, c.Type)
	assert.Equal(t, "Spring Courses", c.Parent.RemoteMeta.Title)
	assert.Empty(t, c.Parent.Role, "collections are scaffolding")

	l := nodes[lecture.ID]
	require.NotNil(t, l)
	assert.Equal(t, "lecture", l.Role)
	assert.Equal(t, sync.NodeTypeNote, l.Type)
	assert.Equal(t, []string{course.ID}, l.RemoteMeta.Relations["course"])

	// "Lectures/Untitled draft" matches the lecture rule too
	assert.Len(t, nodes, 6)

	mapping := f.provider.Mapping()
	container, err := mapping.Container("lecture")
	require.NoError(t, err)
	assert.Equal(t, "Lectures", container.RemoteMeta.Title)
	_, err = mapping.Container("course")
	assert.NoError(t, err)
}

func TestFetchTree_KeepsIdentityAndTracksDeletion(t *testing.T) {
	f := newFixture(t)
	_, lecture := f.seed(t)
	ctx := context.Background()

	first, err := f.provider.FetchTree(ctx, nil)
	require.NoError(t, err)
	before := byRemoteID(first)

	_, err = f.store.Archive(ctx, lecture.ID)
	require.NoError(t, err)

	second, err := f.provider.FetchTree(ctx, first)
	require.NoError(t, err)
	after := byRemoteID(second)

	assert.Equal(t, first.ID, second.ID)
	for id, n := range before {
		require.Contains(t, after, id)
		assert.Equal(t, n.ID, after[id].ID)
	}
	assert.True(t, after[lecture.ID].RemoteMeta.Deleted)
}

func TestFetchTree_VanishedPage(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	first, err := f.provider.FetchTree(ctx, nil)
	require.NoError(t, err)

	// a page the service no longer lists at all
	ghost := sync.NewNode(sync.NodeTypeNote, "lecture")
	ghost.RemoteMeta = &sync.RemoteMeta{ID: "gone", Title: "Ghost", UpdatedAt: time.Now().Add(-time.Hour)}
	first.AddChild(ghost)

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f.provider.cfg.Clock = func() time.Time { return now }

	second, err := f.provider.FetchTree(ctx, first)
	require.NoError(t, err)

	got := byRemoteID(second)["gone"]
	require.NotNil(t, got)
	assert.Equal(t, ghost.ID, got.ID)
	assert.True(t, got.RemoteMeta.Deleted)
	assert.Equal(t, now, got.RemoteMeta.UpdatedAt)
}

func TestUpstream_CreatesCourseAndLecture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.provider.EnsureContainers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lectures", "Spring Courses"}, created)

	_, err = f.provider.FetchTree(ctx, nil)
	require.NoError(t, err)

	root := sync.NewLocalRoot()
	course := sync.NewNode(sync.NodeTypeGroup, "course")
	course.LocalMeta = &sync.LocalMeta{Path: "Math/"}
	lecture := sync.NewNode(sync.NodeTypeNote, "lecture")
	lecture.LocalMeta = &sync.LocalMeta{Path: "Math/Intro.md"}
	root.AddChild(course)
	course.AddChild(lecture)

	// the lecture needs its course on the remote side first
	early := sync.NewFetchAction(sync.TargetRemote, lecture, time.Now())
	err = f.provider.ActionUpstream(ctx, early)
	assert.ErrorIs(t, err, sync.ErrStructural)

	require.NoError(t, f.provider.ActionUpstream(ctx, sync.NewFetchAction(sync.TargetRemote, course, time.Now())))
	require.NotNil(t, course.RemoteMeta)
	assert.Equal(t, "Math", course.RemoteMeta.Title)

	action := sync.NewFetchAction(sync.TargetRemote, lecture, time.Now())
	action.Content = "# Intro"
	require.NoError(t, f.provider.ActionUpstream(ctx, action))
	require.NotNil(t, lecture.RemoteMeta)
	assert.Equal(t, "Intro", lecture.RemoteMeta.Title)
	assert.Equal(t, []string{course.RemoteMeta.ID}, lecture.RemoteMeta.Relations["course"])

	content, err := f.store.Content(ctx, lecture.RemoteMeta.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Intro", content)

	// update keeps the page and bumps its time
	firstUpdate := lecture.RemoteMeta.UpdatedAt
	action = sync.NewFetchAction(sync.TargetRemote, lecture, time.Now())
	action.Content = "# Intro v2"
	require.NoError(t, f.provider.ActionUpstream(ctx, action))
	assert.False(t, lecture.RemoteMeta.UpdatedAt.Before(firstUpdate))

	down := sync.NewFetchAction(sync.TargetLocal, lecture, time.Now())
	require.NoError(t, f.provider.ActionDownstream(ctx, down))
	assert.Equal(t, "# Intro v2", down.Content)
}

func TestUpstream_Archive(t *testing.T) {
	f := newFixture(t)
	_, lecture := f.seed(t)
	ctx := context.Background()

	tree, err := f.provider.FetchTree(ctx, nil)
	require.NoError(t, err)
	node := byRemoteID(tree)[lecture.ID]

	require.NoError(t, f.provider.ActionUpstream(ctx, sync.NewDeleteAction(sync.TargetRemote, node, time.Now())))
	assert.True(t, node.RemoteMeta.Deleted)

	page, err := f.store.Get(ctx, lecture.ID)
	require.NoError(t, err)
	assert.True(t, page.Archived)
	assert.Equal(t, page.UpdatedAt, node.RemoteMeta.UpdatedAt)

	// a page that is gone entirely counts as deleted
	missing := sync.NewNode(sync.NodeTypeNote, "lecture")
	missing.RemoteMeta = &sync.RemoteMeta{ID: "missing"}
	require.NoError(t, f.provider.ActionUpstream(ctx, sync.NewDeleteAction(sync.TargetRemote, missing, time.Now())))
	assert.True(t, missing.RemoteMeta.Deleted)
}

func TestEnsureContainers_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.provider.EnsureContainers(ctx)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	created, err = f.provider.EnsureContainers(ctx)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorContains(t, err, "root id")

	_, err = New(nil, Config{RootID: "r"})
	assert.ErrorContains(t, err, "strategies")
}

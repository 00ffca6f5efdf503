package docserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/notesync/internal/docsdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Auth:      AuthConfig{Secret: testSecret},
		DBPath:    ":memory:",
		RateLimit: "1000-S",
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestStore(t *testing.T) *PageStore {
	t.Helper()
	store, err := NewPageStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "auth secret")
	assert.ErrorContains(t, err, "db path")
	assert.Equal(t, DefaultAddr, cfg.HTTP.Addr)

	cfg = &Config{Auth: AuthConfig{Secret: "short"}, DBPath: "x.db", RateLimit: "lots"}
	err = cfg.Validate()
	assert.ErrorContains(t, err, "16 bytes")
	assert.ErrorContains(t, err, "rate limit")

	cfg = &Config{Auth: AuthConfig{Secret: testSecret}, DBPath: "x.db", HTTP: HTTPConfig{CertFile: "c.pem"}}
	assert.ErrorContains(t, cfg.Validate(), "cert and key")
}

func TestToken_RoundTrip(t *testing.T) {
	cfg := &testConfig(t).Auth

	token, err := NewToken("alice", cfg)
	require.NoError(t, err)

	claims, err := ParseToken(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, DefaultIssuer, claims.Issuer)

	other := *cfg
	other.Secret = "another-secret-of-enough-length"
	_, err = ParseToken(token, &other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := *cfg
	expired.TokenExpiry = -time.Minute
	old, err := NewToken("alice", &expired)
	require.NoError(t, err)
	_, err = ParseToken(old, cfg)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPageStore_CreateUpdateArchive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tick := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	root, err := store.CreateRoot(ctx, "Workspace")
	require.NoError(t, err)
	assert.Equal(t, docsdk.KindCollection, root.Kind)
	assert.Empty(t, root.ParentID)

	coll, err := store.Create(ctx, &docsdk.CreatePageParams{ParentID: root.ID, Title: "Lectures", Kind: docsdk.KindCollection})
	require.NoError(t, err)

	page, err := store.Create(ctx, &docsdk.CreatePageParams{
		ParentID:  coll.ID,
		Title:     " Intro ",
		Kind:      docsdk.KindPage,
		Relations: map[string][]string{"course": {"c1"}},
		Content:   "# Intro",
	})
	require.NoError(t, err)
	assert.Equal(t, "Intro", page.Title)
	assert.Equal(t, []string{"c1"}, page.Relations["course"])

	_, err = store.Create(ctx, &docsdk.CreatePageParams{ParentID: page.ID, Title: "nested", Kind: docsdk.KindPage})
	assert.ErrorIs(t, err, ErrInvalidParent, "pages only live in collections")

	_, err = store.Create(ctx, &docsdk.CreatePageParams{ParentID: "nope", Title: "x", Kind: docsdk.KindPage})
	assert.ErrorIs(t, err, ErrInvalidParent)

	content := "# Intro v2"
	updated, err := store.Update(ctx, page.ID, &docsdk.UpdatePageParams{Content: &content})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(page.UpdatedAt))
	assert.Equal(t, "Intro", updated.Title)
	got, err := store.Content(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	archived, err := store.Archive(ctx, coll.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	children, err := store.Children(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.True(t, children[0].Archived, "archive cascades")
	assert.Equal(t, archived.UpdatedAt, children[0].UpdatedAt)

	again, err := store.Archive(ctx, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, archived.UpdatedAt, again.UpdatedAt)

	_, err = store.Update(ctx, page.ID, &docsdk.UpdatePageParams{Content: &content})
	assert.ErrorIs(t, err, ErrArchived)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func newAPIClient(t *testing.T) (*apiClient, *PageStore) {
	t.Helper()
	cfg := testConfig(t)
	store := newTestStore(t)
	handler, err := SetupRoutes(cfg, store)
	require.NoError(t, err)
	token, err := NewToken("tester", &cfg.Auth)
	require.NoError(t, err)
	return &apiClient{t: t, handler: handler, token: token}, store
}

func (c *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRoutes_RequireToken(t *testing.T) {
	c, store := newAPIClient(t)
	root, err := store.CreateRoot(context.Background(), "Workspace")
	require.NoError(t, err)

	c.token = ""
	w := c.do(http.MethodGet, "/api/v1/pages/"+root.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, docsdk.CodeUnauthorized, decode[docsdk.APIError](t, w).Code)

	c.token = "garbage"
	w = c.do(http.MethodGet, "/api/v1/pages/"+root.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRoutes_PageLifecycle(t *testing.T) {
	c, store := newAPIClient(t)
	root, err := store.CreateRoot(context.Background(), "Workspace")
	require.NoError(t, err)

	w := c.do(http.MethodPost, "/api/v1/pages", docsdk.CreatePageParams{ParentID: root.ID, Title: "Lectures", Kind: docsdk.KindCollection})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	coll := decode[docsdk.Page](t, w)

	w = c.do(http.MethodPost, "/api/v1/pages", docsdk.CreatePageParams{ParentID: coll.ID, Title: "Intro", Content: "# Intro"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	page := decode[docsdk.Page](t, w)
	assert.Equal(t, docsdk.KindPage, page.Kind)

	w = c.do(http.MethodGet, "/api/v1/pages/"+coll.ID+"/children", nil)
	require.Equal(t, http.StatusOK, w.Code)
	children := decode[docsdk.ChildrenResponse](t, w)
	require.Len(t, children.Pages, 1)
	assert.Equal(t, page.ID, children.Pages[0].ID)

	title := "Introduction"
	w = c.do(http.MethodPatch, "/api/v1/pages/"+page.ID, docsdk.UpdatePageParams{Title: &title})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, title, decode[docsdk.Page](t, w).Title)

	w = c.do(http.MethodGet, "/api/v1/pages/"+page.ID+"/content", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# Intro", decode[docsdk.ContentResponse](t, w).Content)

	w = c.do(http.MethodDelete, "/api/v1/pages/"+page.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[docsdk.Page](t, w).Archived)

	w = c.do(http.MethodPatch, "/api/v1/pages/"+page.ID, docsdk.UpdatePageParams{Title: &title})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, docsdk.CodePageArchived, decode[docsdk.APIError](t, w).Code)
}

func TestRoutes_Errors(t *testing.T) {
	c, _ := newAPIClient(t)

	w := c.do(http.MethodGet, "/api/v1/pages/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, docsdk.CodePageNotFound, decode[docsdk.APIError](t, w).Code)

	w = c.do(http.MethodPost, "/api/v1/pages", docsdk.CreatePageParams{ParentID: "x", Title: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/api/v1/pages", docsdk.CreatePageParams{ParentID: "x", Title: "t", Kind: "folder"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, docsdk.CodeInvalidRequest, decode[docsdk.APIError](t, w).Code)
}

func TestRoutes_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = "2-M"
	handler, err := SetupRoutes(cfg, newTestStore(t))
	require.NoError(t, err)
	c := &apiClient{t: t, handler: handler}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, c.do(http.MethodGet, "/api/v1/pages/x", nil).Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

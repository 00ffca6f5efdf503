package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/notesync/internal/docserver"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("NOTESYNC_DOCSERVER_HTTP_ADDR", ":9090")
	t.Setenv("NOTESYNC_DOCSERVER_HTTP_CERT_FILE", "test-cert.pem")
	t.Setenv("NOTESYNC_DOCSERVER_HTTP_KEY_FILE", "test-key.pem")
	t.Setenv("NOTESYNC_DOCSERVER_AUTH_SECRET", testSecret)
	t.Setenv("NOTESYNC_DOCSERVER_AUTH_ISSUER", "test-issuer")
	t.Setenv("NOTESYNC_DOCSERVER_AUTH_TOKEN_EXPIRY", "1h")
	t.Setenv("NOTESYNC_DOCSERVER_DB_PATH", "test.db")
	t.Setenv("NOTESYNC_DOCSERVER_RATE_LIMIT", "100-M")
	t.Setenv("NOTESYNC_DOCSERVER_LOG_LEVEL", "warn")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "test-cert.pem", cfg.HTTP.CertFile)
	assert.Equal(t, "test-key.pem", cfg.HTTP.KeyFile)
	assert.Equal(t, testSecret, cfg.Auth.Secret)
	assert.Equal(t, "test-issuer", cfg.Auth.Issuer)
	assert.Equal(t, time.Hour, cfg.Auth.TokenExpiry)
	assert.Equal(t, "test.db", cfg.DBPath)
	assert.Equal(t, "100-M", cfg.RateLimit)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NOTESYNC_DOCSERVER_AUTH_SECRET", testSecret)

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, docserver.DefaultAddr, cfg.HTTP.Addr)
	assert.Equal(t, docserver.DefaultIssuer, cfg.Auth.Issuer)
	assert.Equal(t, docserver.DefaultRateLimit, cfg.RateLimit)
	assert.Equal(t, "docserver.db", cfg.DBPath)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	_, err := loadConfig(rootCmd)
	assert.ErrorContains(t, err, "auth secret")
}

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	root := &cobra.Command{Use: "docserver"}
	addFlags(root.PersistentFlags())
	root.AddCommand(cmd)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()))
	return strings.TrimSpace(out.String())
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("NOTESYNC_DOCSERVER_AUTH_SECRET", testSecret)

	token := run(t, newTokenCmd(), "token", "--subject", "alice")

	claims, err := docserver.ParseToken(token, &docserver.AuthConfig{Secret: testSecret, Issuer: docserver.DefaultIssuer})
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestSeedRootCommand(t *testing.T) {
	t.Setenv("NOTESYNC_DOCSERVER_AUTH_SECRET", testSecret)
	dbPath := filepath.Join(t.TempDir(), "pages.db")

	id := run(t, newSeedRootCmd(), "seed-root", "--db", dbPath, "--title", "Semester")
	require.NotEmpty(t, id)

	store, err := docserver.NewPageStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	page, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Semester", page.Title)
}

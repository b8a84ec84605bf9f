package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "RAG_API_BASE_URL", "RAG_TOP_K", "RAG_REQUEST_TIMEOUT_SEC", "GO_ENV", "DB_AUTO_MIGRATE", "DEFAULT_ROLES", "SESSION_TTL_MIN"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "http://localhost:8100", cfg.BackendBaseURL)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.JobPollEvery)
	assert.Equal(t, 30*time.Second, cfg.HealthPollEvery)
	assert.Equal(t, []string{"viewer"}, cfg.DefaultRoles)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.Production)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RAG_API_BASE_URL", "https://rag.internal/")
	t.Setenv("RAG_TOP_K", "25")
	t.Setenv("RAG_REQUEST_TIMEOUT_SEC", "nope")
	t.Setenv("GO_ENV", "production")
	t.Setenv("DB_AUTO_MIGRATE", "off")
	t.Setenv("DEFAULT_ROLES", "admin, debug ,")
	t.Setenv("BACKEND_OAUTH_SCOPES", "rag.read,rag.ingest")

	cfg := Load()

	assert.Equal(t, "https://rag.internal", cfg.BackendBaseURL)
	assert.Equal(t, 25, cfg.TopK)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Production)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, []string{"admin", "debug"}, cfg.DefaultRoles)
	assert.Equal(t, []string{"rag.read", "rag.ingest"}, cfg.OAuthScopes)
}

func TestLoadProfileMissingFile(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), p)
}

func TestLoadProfilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clarification:\n  markers: [or, или]\n  depth_bound: 1\n"), 0o600))

	p, err := LoadProfile(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"or", "или"}, p.Clarification.Markers)
	assert.Equal(t, 1, p.Clarification.DepthBound)
	assert.Equal(t, 3, p.Clarification.MaxOptions)
	assert.Len(t, p.Ingestion.SourceTypes, 3)
}

func TestLoadProfileRejects(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("clarification: [unclosed"), 0o600))
	negative := filepath.Join(dir, "neg.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("clarification:\n  depth_bound: -1\n"), 0o600))

	_, err := LoadProfile(bad)
	assert.Error(t, err)
	_, err = LoadProfile(negative)
	assert.ErrorContains(t, err, "depth_bound")

	multi := filepath.Join(dir, "multi.yaml")
	require.NoError(t, os.WriteFile(multi, []byte("clarification:\n  markers: [\"or else\"]\n"), 0o600))
	_, err = LoadProfile(multi)
	assert.ErrorContains(t, err, `marker "or else" must be a single word`)
}

func TestProfileWithDefaults(t *testing.T) {
	assert.Equal(t, DefaultProfile(), Profile{}.WithDefaults())

	var p Profile
	p.Clarification.Markers = []string{"or"}
	p.Ingestion.SourceTypes = []string{"CONFLUENCE_PAGE"}
	got := p.WithDefaults()

	assert.Equal(t, []string{"or"}, got.Clarification.Markers)
	assert.Equal(t, 3, got.Clarification.MaxOptions)
	assert.Equal(t, 0, got.Clarification.DepthBound)
	assert.Equal(t, []string{"CONFLUENCE_PAGE"}, got.Ingestion.SourceTypes)
}

func TestShippedProfileParses(t *testing.T) {
	p, err := LoadProfile(filepath.Join("..", "..", "console.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), p)
}

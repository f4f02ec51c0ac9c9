package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_TOKEN", "tok123")
	t.Setenv("GITHUB_HMAC_TOKEN", "hmac456")
	t.Setenv("GITHUB_PAGES_STUB", "inful/pages")
	t.Setenv("GITHUB_PAGES_PR_STUB", "inful/pages-pr")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "tok123", cfg.GitHub.Token)
	assert.Equal(t, "hmac456", cfg.GitHub.HMACToken)
	assert.Equal(t, "inful/pages", cfg.GitHub.PagesStub)
	assert.Equal(t, "inful/pages-pr", cfg.GitHub.PagesPRStub)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIBaseURL)
	assert.Equal(t, "/usr/bin/dawbrn_dockerbuild", cfg.Build.Builder)
	assert.Equal(t, "/tmp/dawbrn", cfg.Build.WorkspaceRoot)
	assert.Equal(t, []string{"refs/heads/master", "refs/heads/asciidoctor-mvn"}, cfg.Build.AllowedRefs)
	assert.Equal(t, "gh-pages", cfg.Publish.Branch)
	assert.Equal(t, 6, cfg.Publish.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Janitor.Interval)
}

func TestLoadMissingEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_HMAC_TOKEN", "")
	t.Setenv("GITHUB_PAGES_STUB", "")
	t.Setenv("GITHUB_PAGES_PR_STUB", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	assert.Contains(t, err.Error(), "GITHUB_HMAC_TOKEN")
	assert.Contains(t, err.Error(), "GITHUB_PAGES_STUB")
	assert.Contains(t, err.Error(), "GITHUB_PAGES_PR_STUB")
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "dawbrn.yaml")
	content := `
server:
  address: 127.0.0.1
  port: 9000
github:
  pages_stub: filed/pages
build:
  allowed_refs:
    - refs/heads/main
publish:
  branch: pages
  max_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 9000, cfg.Server.Port)
	// environment wins over the file
	assert.Equal(t, "inful/pages", cfg.GitHub.PagesStub)
	assert.Equal(t, []string{"refs/heads/main"}, cfg.Build.AllowedRefs)
	assert.Equal(t, "pages", cfg.Publish.Branch)
	assert.Equal(t, 3, cfg.Publish.MaxAttempts)
}

func TestLoadMissingFileIsOptional(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidateStubShape(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GITHUB_PAGES_STUB", "not-a-stub")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner/repo")
}

func TestRefAllowed(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.RefAllowed("refs/heads/master"))
	assert.True(t, cfg.RefAllowed("refs/heads/asciidoctor-mvn"))
	assert.False(t, cfg.RefAllowed("refs/heads/feature"))
	assert.False(t, cfg.RefAllowed("refs/tags/v1"))
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "dawbrn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	var reloads atomic.Int32
	gotPort := make(chan int, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloads.Add(1)
		select {
		case gotPort <- cfg.Server.Port:
		default:
		}
	})
	require.NoError(t, err)
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o644))

	select {
	case port := <-gotPort:
		assert.Equal(t, 9100, port)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

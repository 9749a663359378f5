package config

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

const versionID = "65f1c0ffee0ddba11c0ffee0"

func setGatewayEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://portal@localhost/portal")
	t.Setenv("UPDATESERVICE_GAME_ADDRESS", "game-updates:9000")
	t.Setenv("UPDATESERVICE_LAUNCHER_ADDRESS", "launcher-updates:9000")
}

func TestLoadDefaults(t *testing.T) {
	setGatewayEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "__session", cfg.SessionCookie)
	assert.Equal(t, "/login", cfg.LoginURL)
	assert.Equal(t, "update:edit", cfg.RequiredRole)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, "game-updates:9000", cfg.UpdateServices[domain.ModeGame])
	assert.False(t, cfg.OIDCEnabled())
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	setGatewayEnv(t)
	t.Setenv("PORTAL_PORT", "9090")
	t.Setenv("PORTAL_ALLOWED_ORIGINS", "https://portal.example, https://admin.example ,")
	t.Setenv("REDIS_SESSION_TTL", "90s")
	t.Setenv("UPDATESERVICE_CALL_TIMEOUT", "not-a-duration")
	t.Setenv("UPDATESERVICE_TLS", "true")
	t.Setenv("OIDC_CLIENT_ID", "portal")
	t.Setenv("OIDC_TOKEN_URL", "https://id.example/token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://portal.example", "https://admin.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.True(t, cfg.UpdateTLS)
	assert.True(t, cfg.OIDCEnabled())
}

func TestLoadRequiredVariables(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "UPDATESERVICE_GAME_ADDRESS", "UPDATESERVICE_LAUNCHER_ADDRESS"} {
		t.Run(key, func(t *testing.T) {
			setGatewayEnv(t)
			t.Setenv(key, "")
			_, err := Load()
			require.ErrorContains(t, err, key)
		})
	}

	t.Run("partial oidc", func(t *testing.T) {
		setGatewayEnv(t)
		t.Setenv("OIDC_CLIENT_ID", "portal")
		_, err := Load()
		require.Error(t, err)
	})
}

func parseUploader(t *testing.T, args ...string) (*UploaderConfig, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return loadUploaderWithFlagSet(fs, args)
}

func TestUploaderEnvFallback(t *testing.T) {
	t.Setenv("PORTAL_URL", "https://portal.example")
	t.Setenv("PORTAL_SESSION", "2f9e3f40-5c8e-4c1f-9a53-1f6d0f5d7a11")

	cfg, err := parseUploader(t, "-version", versionID, "-file", "game.zip")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example", cfg.GatewayURL)
	assert.Equal(t, domain.ModeGame, cfg.Mode)
	assert.Equal(t, domain.ChunkSize, cfg.ChunkSize)
	assert.Equal(t, domain.MaxParallelChunks, cfg.Parallel)
	assert.Zero(t, cfg.Retries)
}

func TestUploaderFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORTAL_URL", "https://portal.example")
	t.Setenv("PORTAL_SESSION", "env-session")

	cfg, err := parseUploader(t,
		"-gateway", "http://localhost:8080",
		"-session", "flag-session",
		"-mode", "launcher",
		"-version", versionID,
		"-github", "nextmu/launcher@v1.2.0:launcher.zip",
		"-chunk-size", "65536",
		"-parallel", "12",
		"-retries", "3",
	)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.GatewayURL)
	assert.Equal(t, "flag-session", cfg.Session)
	assert.Equal(t, domain.ModeLauncher, cfg.Mode)
	assert.Equal(t, int64(65536), cfg.ChunkSize)
	assert.Equal(t, domain.MaxParallelChunks, cfg.Parallel)
	assert.Equal(t, 3, cfg.Retries)
}

func TestUploaderDirect(t *testing.T) {
	cfg, err := parseUploader(t, "-direct", "localhost:9000", "-access-token", "tok", "-version", versionID, "-file", "a.zip")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.DirectAddr)
}

func TestUploaderValidation(t *testing.T) {
	cases := map[string][]string{
		"bad mode":        {"-gateway", "g", "-session", "s", "-mode", "server", "-version", versionID, "-file", "a.zip"},
		"bad version":     {"-gateway", "g", "-session", "s", "-version", "123", "-file", "a.zip"},
		"no source":       {"-gateway", "g", "-session", "s", "-version", versionID},
		"two sources":     {"-gateway", "g", "-session", "s", "-version", versionID, "-file", "a.zip", "-github", "o/r@t:a"},
		"no target":       {"-version", versionID, "-file", "a.zip"},
		"no session":      {"-gateway", "g", "-version", versionID, "-file", "a.zip"},
		"direct no token": {"-direct", "localhost:9000", "-version", versionID, "-file", "a.zip"},
		"odd chunk size":  {"-gateway", "g", "-session", "s", "-version", versionID, "-file", "a.zip", "-chunk-size", "16385"},
		"huge chunk size": {"-gateway", "g", "-session", "s", "-version", versionID, "-file", "a.zip", "-chunk-size", "1048576"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("PORTAL_URL", "")
			t.Setenv("PORTAL_SESSION", "")
			t.Setenv("UPDATESERVICE_ADDRESS", "")
			t.Setenv("UPDATESERVICE_ACCESS_TOKEN", "")
			_, err := parseUploader(t, args...)
			require.Error(t, err)
		})
	}
}

func TestUploaderSpoolDir(t *testing.T) {
	t.Setenv("UPLOADER_SPOOL_DIR", "/var/tmp/nextmu")

	cfg, err := parseUploader(t, "-direct", "localhost:9000", "-access-token", "tok",
		"-version", versionID, "-github", "nextmu/client@v1.2.0:game.zip")
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/nextmu", cfg.SpoolDir)
	assert.Equal(t, "nextmu/client@v1.2.0:game.zip", cfg.GitHubAsset)

	cfg, err = parseUploader(t, "-direct", "localhost:9000", "-access-token", "tok",
		"-version", versionID, "-github", "nextmu/client@v1.2.0:game.zip", "-spool-dir", "/tmp/spool")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/spool", cfg.SpoolDir)
}

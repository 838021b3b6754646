package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/generate"
	"github.com/dusk-indust/briefing/internal/store"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Store, cfg.Store)
	assert.Equal(t, generate.ProviderMock, cfg.Generation.Provider)
	assert.Equal(t, generate.DefaultModel, cfg.Generation.DefaultModel)
	assert.Equal(t, "/tmp/reports", cfg.Output.Dir)
	assert.Equal(t, delivery.EmailLog, cfg.Delivery.EmailProvider)
	assert.Equal(t, 30*time.Minute, cfg.Status.StuckAfter)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "briefing.yaml", `
store:
  driver: kuzu
  path: /var/lib/briefing
generation:
  provider: openai
  api_key: sk-file
delivery:
  email_provider: smtp
  smtp:
    host: mail.example.com
    port: 2525
  settings:
    sender_name: Desk
status:
  stuck_after: 2h
`)
	t.Setenv("BRIEFING_GENERATION_DEFAULT_MODEL", "gpt-4o-mini")
	t.Setenv("BRIEFING_DELIVERY_SMTP_HOST", "relay.example.com")
	t.Setenv("BRIEFING_SERVER_ADDR", ":9000")
	t.Setenv("BRIEFING_LOGGING_FILE_PATH", "/var/log/briefing.log")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, store.Config{Driver: store.DriverKuzu, Path: "/var/lib/briefing"}, cfg.Store)
	assert.Equal(t, "sk-file", cfg.Generation.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Generation.DefaultModel)
	assert.Equal(t, "relay.example.com", cfg.Delivery.SMTP.Host)
	assert.Equal(t, 2525, cfg.Delivery.SMTP.Port)
	assert.Equal(t, "Desk", cfg.Delivery.Settings["sender_name"])
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/mcp", cfg.Server.MCPPath)
	assert.Equal(t, "/var/log/briefing.log", cfg.Logging.File.Path)
	assert.Equal(t, 2*time.Hour, cfg.Status.StuckAfter)
}

func TestLoad_PrefersYml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "briefing.yml", "output:\n  dir: /from/yml\n")
	writeFile(t, dir, "briefing.yaml", "output:\n  dir: /from/yaml\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/from/yml", cfg.Output.Dir)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver":   "store:\n  driver: postgres\n",
		"kuzu needs path":  "store:\n  driver: kuzu\n",
		"unknown provider": "generation:\n  provider: carrier-pigeon\n",
		"smtp needs host":  "delivery:\n  email_provider: smtp\n",
		"bad log level":    "logging:\n  level: loud\n",
		"broken yaml":      "store: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "briefing.yml", body)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"BRIEFING_SERVER_ADDR":               "server.addr",
		"BRIEFING_GENERATION_DEFAULT_MODEL":  "generation.default_model",
		"BRIEFING_DELIVERY_EMAIL_PROVIDER":   "delivery.email_provider",
		"BRIEFING_DELIVERY_RESEND_API_KEY":   "delivery.resend.api_key",
		"BRIEFING_DELIVERY_TELEGRAM_TOKEN":   "delivery.telegram.token",
		"BRIEFING_LOGGING_FILE_MAX_SIZE_MB":  "logging.file.max_size_mb",
		"BRIEFING_STATUS_STUCK_AFTER":        "status.stuck_after",
		"BRIEFING_VERBOSE":                   "verbose",
	}
	for in, want := range cases {
		assert.Equal(t, want, EnvKey(in), in)
	}
}

func TestWriteStarter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "briefing.yml")
	require.NoError(t, WriteStarter(path, false))
	assert.Error(t, WriteStarter(path, false))
	require.NoError(t, WriteStarter(path, true))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, Default().Status, cfg.Status)
}

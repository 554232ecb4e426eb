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
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 300*time.Second, cfg.RowDeadline())
	assert.Equal(t, 48*time.Hour, cfg.CacheTTL())
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, "website_scanner.log", cfg.LogFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvFileAndEnvironment(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("WORKERS=8\nMAX_PAGES=3\nREDIS_ADDR=localhost:6379\n"), 0o644))
	t.Setenv("MAX_PAGES", "7")

	cfg, err := Load(envFile, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
}

func TestLoadFlagsOverride(t *testing.T) {
	t.Setenv("WORKERS", "9")
	fs := Flags("test")
	require.NoError(t, fs.Parse([]string{"-w", "2", "--pages=4", "-o", "out.xlsx", "leads.csv"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 4, cfg.MaxPages)
	assert.Equal(t, 30, cfg.RequestTimeout)
	assert.Equal(t, "leads.csv", cfg.InputPath)
	assert.Equal(t, "out.xlsx", cfg.ResolvedOutputPath())
}

func TestUnsetFlagsDoNotMaskEnvironment(t *testing.T) {
	t.Setenv("WORKERS", "9")
	fs := Flags("test")
	require.NoError(t, fs.Parse([]string{"leads.csv"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Workers)
}

func TestResolvedOutputPath(t *testing.T) {
	cfg := &Config{InputPath: filepath.Join("data", "leads.csv")}
	assert.Equal(t, "processed_leads.csv", cfg.ResolvedOutputPath())
}

func TestValidate(t *testing.T) {
	cfg := &Config{Workers: 0, MaxPages: 0, RequestTimeout: 0, RowTimeout: -1}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"workers", "max pages", "request timeout", "row timeout"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestProxyList(t *testing.T) {
	cfg := &Config{Proxies: " http://a:1, ,http://b:2 "}
	assert.Equal(t, []string{"http://a:1", "http://b:2"}, cfg.ProxyList())
	assert.Empty(t, (&Config{}).ProxyList())
}

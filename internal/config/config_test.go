package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(write(t, "app:\n  env: dev\n"))
	require.NoError(t, err)

	require.Equal(t, "dev", c.App.Env)
	require.Equal(t, ":8080", c.HTTP.Addr)
	require.Equal(t, "postgres", c.Storage.Driver)
	require.Equal(t, 2*time.Second, c.Admission.Timeout)
	require.Equal(t, 3, c.Admission.Attempts)
	require.Equal(t, 50*time.Millisecond, c.Admission.Backoff)
	require.Equal(t, 5*time.Second, c.Telegram.SendTimeout)
	require.Equal(t, 40, c.Quota.CategoryLimits["diverse"])
	require.Equal(t, 30, c.Quota.CategoryLimits["default"])
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("APP_HTTP_ADDR", ":9090")
	t.Setenv("APP_ADMIN_TOKEN", "secret")

	c, err := Load(write(t, `
storage:
  driver: memory
admission:
  timeout: 500ms
  attempts: 5
quota:
  category_limits:
    diverse: 12
    default: 3
`))
	require.NoError(t, err)

	require.Equal(t, ":9090", c.HTTP.Addr)
	require.Equal(t, "secret", c.Admin.Token)
	require.Equal(t, "memory", c.Storage.Driver)
	require.Equal(t, 500*time.Millisecond, c.Admission.Timeout)
	require.Equal(t, 5, c.Admission.Attempts)
	require.Equal(t, 12, c.Quota.CategoryLimits["diverse"])
	require.Equal(t, 3, c.Quota.CategoryLimits["default"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

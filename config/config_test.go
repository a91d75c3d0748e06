package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsDefaults(t *testing.T) {
	c := NewConfig()
	require.NoError(t, c.ParseArgs("chproxy", nil))

	assert.Equal(t, 8000, c.Port)
	assert.Equal(t, 8001, c.APIPort)
	assert.Equal(t, "memory", c.StorageBackend)
	assert.Equal(t, "info", c.LogLevel)
	assert.False(t, c.NoPrependPath)
	assert.NotEmpty(t, c.AuthToken)
}

func TestParseArgsFlags(t *testing.T) {
	c := NewConfig()
	require.NoError(t, c.ParseArgs("chproxy", []string{
		"-port", "9000",
		"-api-port", "9001",
		"-no-prepend-path",
		"-no-include-prefix",
		"-timeout", "5s",
		"-proxy-timeout", "30s",
		"-custom-header", "X-Env:prod",
		"-custom-header", "X-Team:infra",
		"-storage-backend", "sql",
	}))

	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, 9001, c.APIPort)
	assert.True(t, c.NoPrependPath)
	assert.True(t, c.NoIncludePrefix)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 30*time.Second, c.ProxyTimeout)
	assert.Equal(t, "prod", c.CustomHeaders["X-Env"])
	assert.Equal(t, "infra", c.CustomHeaders["X-Team"])
	assert.Equal(t, "sql", c.StorageBackend)
}

func TestParseArgsRejectsTrailingArguments(t *testing.T) {
	c := NewConfig()
	err := c.ParseArgs("chproxy", []string{"garbage"})
	assert.Error(t, err)
}

func TestParseArgsUsesEnvAuthToken(t *testing.T) {
	t.Setenv("CONFIGPROXY_AUTH_TOKEN", "s3cr3t")
	c := NewConfig()
	require.NoError(t, c.ParseArgs("chproxy", nil))
	assert.Equal(t, "s3cr3t", c.AuthToken)
}

func TestParseArgsReadsDatabaseEnv(t *testing.T) {
	t.Setenv("CHP_DATABASE_URL", "chproxy.db")
	t.Setenv("CHP_DATABASE_TABLE", "chp_routes")
	c := NewConfig()
	require.NoError(t, c.ParseArgs("chproxy", nil))
	assert.Equal(t, "chproxy.db", c.DatabaseURL)
	assert.Equal(t, "chp_routes", c.DatabaseTable)
}

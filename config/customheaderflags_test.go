package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomHeaderFlagsSetAccumulates(t *testing.T) {
	var h customHeaderFlags
	require.NoError(t, h.Set("X-Env:prod"))
	require.NoError(t, h.Set("X-Team: infra"))

	assert.Equal(t, "prod", h["X-Env"])
	assert.Equal(t, "infra", h["X-Team"])
}

func TestCustomHeaderFlagsSetRejectsMissingColon(t *testing.T) {
	var h customHeaderFlags
	assert.Error(t, h.Set("X-Env"))
}

func TestCustomHeaderFlagsSetRejectsEmptyName(t *testing.T) {
	var h customHeaderFlags
	assert.Error(t, h.Set(":value"))
}

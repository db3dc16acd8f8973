package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTokenTTL)
	assert.False(t, cfg.Gateway.FailOpen, "fail-closed is the default policy")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_ACCESS_TTL_MINUTES", "5")
	t.Setenv("JWT_REFRESH_TTL_DAYS", "30")
	t.Setenv("GATEWAY_FAIL_OPEN", "true")
	t.Setenv("GATEWAY_VALIDATE_TIMEOUT", "2")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.Token.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Token.RefreshTokenTTL)
	assert.True(t, cfg.Gateway.FailOpen)
	assert.Equal(t, 2*time.Second, cfg.Gateway.ValidateTimeout)
}

func TestParseRoutes(t *testing.T) {
	routes := parseRoutes("/api/service=http://svc:8081, /api/other=http://other:8082,bad-pair,=x,/trail/=http://t:1")
	require.Len(t, routes, 3)

	assert.Equal(t, Route{Prefix: "/api/service", Target: "http://svc:8081"}, routes[0])
	assert.Equal(t, Route{Prefix: "/api/other", Target: "http://other:8082"}, routes[1])
	assert.Equal(t, Route{Prefix: "/trail", Target: "http://t:1"}, routes[2])

	assert.Empty(t, parseRoutes(""))
}

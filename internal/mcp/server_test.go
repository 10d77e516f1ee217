package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

func TestHTTPHandlerHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Auth.APIKey = "secret-key"

	server := NewServer(cfg, Services{}, testLogger())

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.HTTPHandler().ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "healthy")
}

func TestNewServerRegistersAuthGate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Auth.APIKey = "secret-key"

	server := NewServer(cfg, Services{}, testLogger())
	assert.True(t, server.auth.Required())
	assert.False(t, server.auth.Authorized())
}

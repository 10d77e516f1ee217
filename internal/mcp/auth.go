// Package mcp exposes the vSphere services as Model Context Protocol
// tools over stdio or streamable HTTP transports.
package mcp

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// authenticateToolName is the only tool callable before the gate opens
const authenticateToolName = "authenticate"

// Authenticator gates tool calls behind an API key. When no key is
// configured every call passes. The authenticated flag is process-wide
// and never expires: one successful authenticate call opens the gate
// for the lifetime of the server.
type Authenticator struct {
	apiKey        string
	mutex         sync.RWMutex
	authenticated bool
}

// NewAuthenticator creates an authenticator for the configured key.
// An empty key disables the gate.
func NewAuthenticator(apiKey string) *Authenticator {
	return &Authenticator{apiKey: apiKey}
}

// Required reports whether an API key is configured
func (a *Authenticator) Required() bool {
	return a.apiKey != ""
}

// Authorized reports whether tool calls may proceed
func (a *Authenticator) Authorized() bool {
	if !a.Required() {
		return true
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.authenticated
}

// Authenticate validates the supplied key and opens the gate on match.
// The comparison is constant-time.
func (a *Authenticator) Authenticate(key string) bool {
	if !a.Required() {
		return true
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) != 1 {
		return false
	}
	a.mutex.Lock()
	a.authenticated = true
	a.mutex.Unlock()
	return true
}

// middleware rejects every tool call except authenticate until the
// gate is open.
func (a *Authenticator) middleware(logger *logrus.Logger) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if request.Params.Name != authenticateToolName && !a.Authorized() {
				logger.WithField("tool", request.Params.Name).Warn("Rejected unauthenticated tool call")
				return mcp.NewToolResultError("Authentication required: call 'authenticate' with a valid API key first"), nil
			}
			return next(ctx, request)
		}
	}
}

// handleAuthenticate implements the authenticate tool
func (s *Server) handleAuthenticate(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		APIKey string `json:"api_key"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError("Failed to parse arguments: " + err.Error()), nil
	}

	if !s.auth.Required() {
		return mcp.NewToolResultText("No API key is configured; authentication is not required"), nil
	}
	if !s.auth.Authenticate(args.APIKey) {
		s.logger.Warn("Authentication attempt with invalid API key")
		return mcp.NewToolResultError("Invalid API key"), nil
	}

	s.logger.Info("Client authenticated")
	return mcp.NewToolResultText("Authentication successful"), nil
}

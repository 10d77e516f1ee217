package mcp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/virtops/esxi-mcp-server/internal/config"
	"github.com/virtops/esxi-mcp-server/internal/vmware"
)

const (
	serverName    = "esxi-mcp-server"
	serverVersion = "1.0.0"
)

// Services bundles the vSphere services the tool handlers dispatch to
type Services struct {
	VMs       *vmware.VMService
	Snapshots *vmware.SnapshotService
	Inventory *vmware.InventoryService
	Guest     *vmware.GuestService
	Deploy    *vmware.DeployService
	Updates   *vmware.UpdateService
}

// Server is the MCP tool dispatch gateway: it owns the tool registry,
// the authentication gate and the transport.
type Server struct {
	config   *config.Config
	services Services
	auth     *Authenticator
	logger   *logrus.Logger
	mcp      *server.MCPServer
	tools    []mcp.Tool
}

// NewServer creates the gateway and registers every tool and resource
func NewServer(cfg *config.Config, services Services, logger *logrus.Logger) *Server {
	s := &Server{
		config:   cfg,
		services: services,
		auth:     NewAuthenticator(cfg.Auth.APIKey),
		logger:   logger,
	}

	s.mcp = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, true),
		server.WithLogging(),
		server.WithToolHandlerMiddleware(s.auth.middleware(logger)),
	)

	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio runs the server over stdin/stdout until the stream closes
func (s *Server) ServeStdio() error {
	s.logger.Info("Serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

// HTTPHandler returns a gin engine serving the MCP streamable HTTP
// endpoint at /mcp plus a health check.
func (s *Server) HTTPHandler() http.Handler {
	streamable := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithEndpointPath("/mcp"),
	)

	router := gin.New()
	router.Use(gin.Recovery())

	if s.config.Server.EnableCORS {
		router.Use(corsMiddleware())
	}
	router.Use(requestLoggerMiddleware(s.logger))

	router.GET("/health", s.healthCheck)
	router.Any("/mcp", gin.WrapH(streamable))
	router.Any("/mcp/*any", gin.WrapH(streamable))

	return router
}

// healthCheck reports service liveness
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   serverName,
		"version":   serverVersion,
	})
}

// corsMiddleware returns a CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// requestLoggerMiddleware logs HTTP requests
func requestLoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		entry := log.WithFields(logrus.Fields{
			"status":    c.Writer.Status(),
			"latency":   time.Since(start),
			"client_ip": c.ClientIP(),
			"method":    c.Request.Method,
			"path":      path,
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
		} else {
			entry.Debug("Request processed")
		}
	}
}

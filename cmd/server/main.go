package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/virtops/esxi-mcp-server/internal/config"
	"github.com/virtops/esxi-mcp-server/internal/mcp"
	"github.com/virtops/esxi-mcp-server/internal/vmware"
)

func main() {
	// Parse command line flags
	var configFile string
	var transport string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.StringVar(&transport, "transport", "", "MCP transport: stdio or http (overrides config)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if transport != "" {
		cfg.Server.Transport = transport
	}

	// Setup logger based on configuration
	log := setupLogger(cfg.Logging)
	log.Info("Starting ESXi MCP server...")
	log.WithField("config_file", configFile).Debug("Configuration loaded")

	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to vCenter. Unlike a lazy REST backend, an MCP server
	// that cannot reach the platform must not advertise tools at all.
	vmwareClient := vmware.NewClient(cfg.VMware, log)
	ctx := context.Background()
	if err := vmwareClient.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to vCenter: %v", err)
	}
	log.Info("Successfully connected to vCenter")

	// Resolve the resource scope once; every operation reads it
	scope, err := vmware.ResolveScope(ctx, vmwareClient, cfg.VMware, log)
	if err != nil {
		log.Fatalf("Failed to resolve resource scope: %v", err)
	}

	// Build services
	executor := vmware.NewExecutor(vmwareClient, cfg.Tasks, log)
	services := mcp.Services{
		VMs:       vmware.NewVMService(vmwareClient, scope, executor, log),
		Snapshots: vmware.NewSnapshotService(vmwareClient, scope, executor, log),
		Inventory: vmware.NewInventoryService(vmwareClient, scope, log),
		Guest:     vmware.NewGuestService(vmwareClient, scope, log),
		Deploy:    vmware.NewDeployService(vmwareClient, scope, log),
		Updates:   vmware.NewUpdateService(vmwareClient, log),
	}

	gateway := mcp.NewServer(cfg, services, log)

	switch cfg.Server.Transport {
	case "stdio":
		runStdio(gateway, vmwareClient, log)
	default:
		runHTTP(cfg, gateway, vmwareClient, log)
	}
}

// runStdio serves MCP over stdin/stdout until the stream closes
func runStdio(gateway *mcp.Server, vmwareClient *vmware.Client, log *logrus.Logger) {
	err := gateway.ServeStdio()

	disconnect(vmwareClient, log)
	if err != nil {
		log.Fatalf("Stdio transport failed: %v", err)
	}
	log.Info("Server exited")
}

// runHTTP serves MCP over streamable HTTP with graceful shutdown
func runHTTP(cfg *config.Config, gateway *mcp.Server, vmwareClient *vmware.Client, log *logrus.Logger) {
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      gateway.HTTPHandler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"address": cfg.Server.GetAddress(),
			"tls":     cfg.Server.IsTLSEnabled(),
		}).Info("Server starting, MCP endpoint at /mcp")

		var err error
		if cfg.Server.IsTLSEnabled() {
			err = server.ListenAndServeTLS(cfg.Server.TLSConfig.CertFile, cfg.Server.TLSConfig.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	disconnect(vmwareClient, log)
	log.Info("Server exited")
}

func disconnect(vmwareClient *vmware.Client, log *logrus.Logger) {
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := vmwareClient.Disconnect(disconnectCtx); err != nil {
		log.WithError(err).Warn("Error disconnecting from vCenter")
	}
}

func setupLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// Set log format
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Set output. The stdio transport owns stdout, so logs go to
	// stderr unless a file is configured.
	switch cfg.Output {
	case "stdout":
		log.SetOutput(os.Stdout)
	case "file":
		if cfg.FilePath != "" {
			file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", cfg.FilePath, err)
				log.SetOutput(os.Stderr)
			} else {
				log.SetOutput(file)
			}
		}
	default:
		log.SetOutput(os.Stderr)
	}

	return log
}

package vmware

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/soap"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

// Client wraps a govmomi session to vCenter/ESXi with connection management
type Client struct {
	config     config.VMwareConfig
	logger     *logrus.Logger
	client     *govmomi.Client
	mutex      sync.RWMutex
	isLoggedIn bool
}

// NewClient creates a new vSphere client instance
func NewClient(cfg config.VMwareConfig, logger *logrus.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
	}
}

// Connect establishes an authenticated session with vCenter/ESXi
func (c *Client) Connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	vcenterURL, err := url.Parse(c.config.VCenterURL)
	if err != nil {
		return fmt.Errorf("%w: invalid vCenter URL: %v", ErrConnection, err)
	}
	vcenterURL.User = url.UserPassword(c.config.Username, c.config.Password)

	c.logger.WithFields(logrus.Fields{
		"vcenter_url": c.config.VCenterURL,
		"insecure":    c.config.InsecureSkipVerify,
	}).Info("Connecting to vCenter/ESXi")

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	// Certificate and hostname validation stay on unless insecure mode
	// was explicitly configured.
	soapClient := soap.NewClient(vcenterURL, c.config.InsecureSkipVerify)
	if c.config.InsecureSkipVerify {
		soapClient.DefaultTransport().TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}
	soapClient.Timeout = c.config.RequestTimeout

	vimClient, err := vim25.NewClient(connectCtx, soapClient)
	if err != nil {
		return fmt.Errorf("%w: failed to create vim25 client: %v", ErrConnection, err)
	}

	c.client = &govmomi.Client{
		Client:         vimClient,
		SessionManager: session.NewManager(vimClient),
	}

	if err := c.loginWithRetry(connectCtx, vcenterURL.User); err != nil {
		c.logger.WithFields(logrus.Fields{
			"vcenter_url": c.config.VCenterURL,
			"error":       err,
		}).Error("Failed to login to vCenter after retries")
		return fmt.Errorf("%w: login failed: %v", ErrConnection, err)
	}

	userSession, err := c.client.SessionManager.UserSession(connectCtx)
	if err != nil || userSession == nil {
		return fmt.Errorf("%w: failed to verify session: %v", ErrConnection, err)
	}

	c.isLoggedIn = true
	c.logger.WithFields(logrus.Fields{
		"user":     userSession.UserName,
		"login_at": userSession.LoginTime,
	}).Info("Successfully connected and authenticated to vCenter/ESXi")
	return nil
}

// loginWithRetry attempts to login with retry logic
func (c *Client) loginWithRetry(ctx context.Context, user *url.Userinfo) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   c.config.RetryDelay,
			}).Warn("Retrying vCenter login")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		err := c.client.SessionManager.Login(ctx, user)
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err,
		}).Warn("Login attempt failed")
	}

	return fmt.Errorf("login failed after %d attempts: %w", c.config.RetryAttempts+1, lastErr)
}

// Disconnect closes the session. Derived object references are stale
// afterwards and must not be used.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.client == nil || !c.isLoggedIn {
		return nil
	}

	c.logger.Info("Disconnecting from vCenter/ESXi")

	logoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.client.SessionManager.Logout(logoutCtx); err != nil {
		c.logger.WithError(err).Warn("Error during logout")
		// Keep going, the session times out server-side anyway
	}

	c.isLoggedIn = false
	c.client = nil
	c.logger.Info("Disconnected from vCenter/ESXi")
	return nil
}

// IsConnected returns true if the client is connected and logged in
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.client != nil && c.isLoggedIn
}

// Vim25 returns the underlying vim25 client for SDK calls
func (c *Client) Vim25(ctx context.Context) (*vim25.Client, error) {
	client, err := c.GetClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Client, nil
}

// GetClient returns the underlying govmomi client, connecting first if
// the session is missing or no longer valid.
func (c *Client) GetClient(ctx context.Context) (*govmomi.Client, error) {
	c.mutex.RLock()
	if c.client != nil && c.isLoggedIn {
		client := c.client
		c.mutex.RUnlock()

		if _, err := client.SessionManager.UserSession(ctx); err != nil {
			c.logger.WithError(err).Warn("Session validation failed, reconnecting")

			if err := c.Reconnect(ctx); err != nil {
				return nil, fmt.Errorf("failed to reconnect after session validation failure: %w", err)
			}

			c.mutex.RLock()
			defer c.mutex.RUnlock()
			return c.client, nil
		}

		return client, nil
	}
	c.mutex.RUnlock()

	c.logger.Info("Client not connected, attempting to connect")
	if err := c.Connect(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to establish connection")
		return nil, err
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.client, nil
}

// Reconnect forces a fresh session
func (c *Client) Reconnect(ctx context.Context) error {
	c.logger.Info("Forcing reconnection to vCenter")

	_ = c.Disconnect(ctx)

	return c.Connect(ctx)
}

// VCenterHost returns the host part of the configured vCenter URL,
// used to build datastore and guest file transfer URLs.
func (c *Client) VCenterHost() string {
	u, err := url.Parse(c.config.VCenterURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// GetConfig returns the VMware configuration
func (c *Client) GetConfig() config.VMwareConfig {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.config
}

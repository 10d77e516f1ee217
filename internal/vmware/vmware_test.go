package vmware

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25"
)

// testLogger returns a silenced logger for tests
func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// testClient wraps a simulator-backed vim25 client in a Client so the
// services under test can use it like a real session.
func testClient(c *vim25.Client) *Client {
	return &Client{
		logger: testLogger(),
		client: &govmomi.Client{
			Client:         c,
			SessionManager: session.NewManager(c),
		},
		isLoggedIn: true,
	}
}

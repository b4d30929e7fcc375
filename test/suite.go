package test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/celestiaorg/testbed/internal/compute"
	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/db/repos"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/internal/ssh"
	"github.com/celestiaorg/testbed/internal/testbed"
	"github.com/celestiaorg/testbed/pkg/api/v1/client"
)

// DefaultTestTimeout is the default timeout for test suites.
const DefaultTestTimeout = 30 * time.Second

// DefaultRegions are the regions every suite deploys to
var DefaultRegions = []string{"A", "B"}

// Suite encapsulates all components needed for integration testing
type Suite struct {
	t *testing.T

	// Engine components
	Settings *config.Settings
	Provider *compute.FakeProvider
	Checker  *ssh.MockChecker
	Engine   *testbed.Testbed

	// Service and server components
	Service *services.Testbed
	Metrics *metrics.Metrics
	App     *fiber.App
	Server  *httptest.Server

	// Client components
	APIClient client.Client

	// Database components
	DB            *gorm.DB
	OperationRepo *repos.OperationRepository

	ctx        context.Context
	cancelFunc context.CancelFunc
	cleanup    []func()
}

// NewSuite creates a new test suite. It must be cleaned up after use by calling Cleanup.
func NewSuite(t *testing.T) *Suite {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	suite := &Suite{
		t:          t,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	gdb, tmpDir, err := NewFileBasedTestDB()
	suite.Require().NoError(err, "Failed to create test database")
	suite.DB = gdb
	suite.OperationRepo = repos.NewOperationRepository(gdb)
	suite.cleanup = append(suite.cleanup, func() { CleanupTestDB(gdb, tmpDir) })

	SetupEngine(suite)
	SetupServer(suite)
	suite.cleanup = append(suite.cleanup, suite.Server.Close)

	return suite
}

// SetupEngine creates the engine over the in-memory provider
func SetupEngine(suite *Suite) {
	pair, err := ssh.EnsureKeyPair(suite.t.TempDir())
	suite.Require().NoError(err, "Failed to create SSH key pair")

	suite.Settings = &config.Settings{
		TestbedID:         "integration",
		CloudProvider:     compute.ProviderFake,
		SSHPrivateKeyFile: pair.PrivateKeyPath,
		SSHPublicKeyFile:  pair.PublicKeyPath,
		Regions:           DefaultRegions,
		Repository:        config.Repository{URL: "https://example.com/node.git", Branch: "main"},
	}
	suite.Provider = compute.NewFakeProvider()
	suite.Checker = &ssh.MockChecker{}

	suite.Engine, err = testbed.New(suite.ctx, suite.Settings, suite.Provider,
		testbed.WithSSHChecker(suite.Checker),
		testbed.WithPollInterval(time.Millisecond),
		testbed.WithStopPollInterval(time.Millisecond),
		testbed.WithMaxWait(DefaultTestTimeout/2),
	)
	suite.Require().NoError(err, "Failed to create testbed")
}

// Cleanup tears down the test suite, releasing all resources in reverse order
func (s *Suite) Cleanup() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
}

// Context returns the suite's context, which is automatically
// canceled when the suite is cleaned up.
func (s *Suite) Context() context.Context {
	return s.ctx
}

// Require returns a require.Assertions instance for this suite.
func (s *Suite) Require() *require.Assertions {
	return require.New(s.t)
}

package test

import (
	"net/http/httptest"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/celestiaorg/testbed/internal/api"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/pkg/api/v1/client"
)

// testClientTimeout is the timeout for test API client requests
const testClientTimeout = 10 * time.Second

// SetupServer serves the suite's service over a real HTTP server and connects a client to it
func SetupServer(suite *Suite) {
	suite.Metrics = metrics.New()
	suite.Service = services.NewTestbedService(suite.Engine, suite.OperationRepo, suite.Metrics)
	suite.App = api.NewApp(suite.Service, suite.Metrics)

	// Create test server using adaptor to convert Fiber app to http.Handler
	suite.Server = httptest.NewServer(adaptor.FiberApp(suite.App))

	apiClient, err := client.NewClient(&client.Options{
		BaseURL: suite.Server.URL,
		Timeout: testClientTimeout,
	})
	suite.Require().NoError(err, "Failed to create API client")
	suite.APIClient = apiClient
}

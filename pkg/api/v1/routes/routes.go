// Package routes defines the API routes and URL structure
package routes

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/celestiaorg/testbed/pkg/api/v1/handlers"
)

/*

To keep this file organized, routes should be organized in the following way:

1. Smallest scope first (i.e. testbed routes before operation routes)
2. For similar scopes, put the endpoints in alphabetical order
3. Order routes in GET, POST, PUT, DELETE order.
4. For clarity, naming should match the action (i.e. GetStatus, DestroyTestbed)

*/

// API base configuration
const (
	// DefaultPort is the default port for the API
	DefaultPort = "8080"
	// APIv1Prefix is the prefix for all API endpoints
	APIv1Prefix = "/api/v1"
)

// DefaultBaseURL is the default base URL for the API
var DefaultBaseURL = fmt.Sprintf("http://localhost:%s", DefaultPort)

// Route names for lookup
const (
	// Health check
	HealthCheck = "HealthCheck"
	// Prometheus scrape endpoint
	Metrics = "Metrics"

	// Testbed routes
	GetStatus      = "GetStatus"
	GetInstances   = "GetInstances"
	DeployTestbed  = "DeployTestbed"
	RefreshTestbed = "RefreshTestbed"
	StartTestbed   = "StartTestbed"
	StopTestbed    = "StopTestbed"
	DestroyTestbed = "DestroyTestbed"

	// Operation routes
	GetOperations = "GetOperations"
)

// routeCache stores extracted routes for use prior to compilation
var (
	routeCache     map[string]string
	routeCacheMu   sync.RWMutex
	routeCacheInit sync.Once
)

// RegisterRoutes configures all the v1 routes. gatherer may be nil, in which case /metrics
// serves the default prometheus registry.
func RegisterRoutes(
	app *fiber.App,
	testbedHandler *handlers.TestbedHandler,
	operationHandler *handlers.OperationHandler,
	gatherer prometheus.Gatherer,
) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Health check
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	}).Name(HealthCheck)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))).Name(Metrics)

	// API v1 routes
	v1 := app.Group(APIv1Prefix)

	// Testbed endpoints
	tb := v1.Group("/testbed")
	tb.Get("/", testbedHandler.GetStatus).Name(GetStatus)
	tb.Get("/instances", testbedHandler.ListInstances).Name(GetInstances)
	tb.Post("/deploy", testbedHandler.Deploy).Name(DeployTestbed)
	tb.Post("/refresh", testbedHandler.Refresh).Name(RefreshTestbed)
	tb.Post("/start", testbedHandler.Start).Name(StartTestbed)
	tb.Post("/stop", testbedHandler.Stop).Name(StopTestbed)
	tb.Delete("/", testbedHandler.Destroy).Name(DestroyTestbed)

	// Operation endpoints
	operations := v1.Group("/operations")
	operations.Get("/", operationHandler.ListOperations).Name(GetOperations)
}

// initRouteCache initializes the route cache by creating a mock app and extracting routes
func initRouteCache() {
	routeCacheInit.Do(func() {
		routeCache = make(map[string]string)

		app := fiber.New()
		RegisterRoutes(app, &handlers.TestbedHandler{}, &handlers.OperationHandler{}, prometheus.NewRegistry())

		for _, route := range app.GetRoutes() {
			if route.Name != "" {
				routeCache[route.Name] = route.Path
			}
		}
	})
}

// GetRoute returns the route pattern for the given route name
func GetRoute(name string) string {
	initRouteCache()

	routeCacheMu.RLock()
	defer routeCacheMu.RUnlock()
	return routeCache[name]
}

// BuildURL builds a URL for the given route name and parameters
func BuildURL(routeName string, params map[string]string, queryParams url.Values) string {
	route := GetRoute(routeName)
	if route == "" {
		return ""
	}

	// Replace parameters in the route
	for param, value := range params {
		route = strings.ReplaceAll(route, ":"+param, value)
	}

	// Remove trailing slash if it's a base endpoint with no parameters
	if strings.HasSuffix(route, "/") && !strings.Contains(route, ":") && route != "/" {
		route = strings.TrimSuffix(route, "/")
	}

	// Add query parameters if any
	if len(queryParams) > 0 {
		route = fmt.Sprintf("%s?%s", route, queryParams.Encode())
	}

	return route
}

// HealthCheckURL returns the URL for the health check endpoint
func HealthCheckURL() string {
	return BuildURL(HealthCheck, nil, nil)
}

// MetricsURL returns the URL for the prometheus endpoint
func MetricsURL() string {
	return BuildURL(Metrics, nil, nil)
}

// StatusURL returns the URL for the testbed status
func StatusURL() string {
	return BuildURL(GetStatus, nil, nil)
}

// InstancesURL returns the URL for the testbed snapshot
func InstancesURL() string {
	return BuildURL(GetInstances, nil, nil)
}

// DeployURL returns the URL for deploying instances
func DeployURL() string {
	return BuildURL(DeployTestbed, nil, nil)
}

// RefreshURL returns the URL for refreshing the snapshot
func RefreshURL() string {
	return BuildURL(RefreshTestbed, nil, nil)
}

// StartURL returns the URL for starting instances
func StartURL() string {
	return BuildURL(StartTestbed, nil, nil)
}

// StopURL returns the URL for stopping the fleet
func StopURL() string {
	return BuildURL(StopTestbed, nil, nil)
}

// DestroyURL returns the URL for destroying the fleet
func DestroyURL() string {
	return BuildURL(DestroyTestbed, nil, nil)
}

// OperationsURL returns the URL for the operation history
func OperationsURL(queryParams url.Values) string {
	return BuildURL(GetOperations, nil, queryParams)
}

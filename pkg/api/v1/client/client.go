// Package client provides the API client for interacting with a testbed server
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/testbed"
	"github.com/celestiaorg/testbed/internal/types"
	"github.com/celestiaorg/testbed/pkg/api/v1/routes"
)

// DefaultTimeout is the default timeout for API requests. Lifecycle calls wait for the
// fleet to converge, so it is generous.
const DefaultTimeout = 30 * time.Minute

// Client is the interface for API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (map[string]string, error)

	// Testbed Endpoints
	GetStatus(ctx context.Context) (testbed.Status, error)
	GetInstances(ctx context.Context) ([]types.Instance, error)
	Deploy(ctx context.Context, quantity int) (models.Operation, error)
	Start(ctx context.Context, quantity int) (models.Operation, error)
	Stop(ctx context.Context) (models.Operation, error)
	Refresh(ctx context.Context) (models.Operation, error)
	Destroy(ctx context.Context) (models.Operation, error)

	// Operation Endpoints
	ListOperations(ctx context.Context, opts *models.ListOptions) ([]models.Operation, error)
}

var _ Client = &APIClient{}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Validate the base URL
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &APIClient{
		baseURL: opts.BaseURL,
		timeout: timeout,
	}, nil
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	case http.MethodDelete:
		agent = fiber.Delete(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	// Set timeout from context or client default
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set("Accept", "application/json")
	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the HTTP request and decodes the response body into v
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		return decodeError(statusCode, body)
	}

	if v != nil && len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}
	return nil
}

// decodeError turns an error response back into the error the server mapped it from
func decodeError(statusCode int, body []byte) error {
	var resp struct {
		Slug  types.Slug      `json:"slug"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Slug == "" {
		// If we can't decode the error response, return an error with the raw body as the message
		return &fiber.Error{Code: statusCode, Message: string(body)}
	}

	if resp.Slug == types.InsufficientCapacitySlug {
		var deficits []testbed.Deficit
		if err := json.Unmarshal(resp.Data, &deficits); err == nil {
			return &testbed.InsufficientCapacityError{Deficits: deficits}
		}
	}
	return &fiber.Error{Code: statusCode, Message: resp.Error}
}

// executeRequest creates an agent, sends the request, and processes the response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	agent, err := c.createAgent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	return c.doRequest(agent, response)
}

// executeSlugRequest sends the request and decodes the data of the slug response into data
func (c *APIClient) executeSlugRequest(ctx context.Context, method, endpoint string, body, data interface{}) error {
	response := types.SlugResponse{Data: data}
	return c.executeRequest(ctx, method, endpoint, body, &response)
}

// HealthCheck checks the health of the API
func (c *APIClient) HealthCheck(ctx context.Context) (map[string]string, error) {
	var response map[string]string
	if err := c.executeRequest(ctx, http.MethodGet, routes.HealthCheckURL(), nil, &response); err != nil {
		return map[string]string{}, err
	}
	return response, nil
}

// GetStatus retrieves the status view of the fleet
func (c *APIClient) GetStatus(ctx context.Context) (testbed.Status, error) {
	var status testbed.Status
	err := c.executeSlugRequest(ctx, http.MethodGet, routes.StatusURL(), nil, &status)
	return status, err
}

// GetInstances retrieves the current snapshot
func (c *APIClient) GetInstances(ctx context.Context) ([]types.Instance, error) {
	var response types.ListResponse[types.Instance]
	if err := c.executeRequest(ctx, http.MethodGet, routes.InstancesURL(), nil, &response); err != nil {
		return []types.Instance{}, err
	}
	return response.Rows, nil
}

// Deploy creates quantity instances in every region
func (c *APIClient) Deploy(ctx context.Context, quantity int) (models.Operation, error) {
	return c.operation(ctx, http.MethodPost, routes.DeployURL(), types.QuantityRequest{Quantity: quantity})
}

// Start activates quantity inactive instances in every region
func (c *APIClient) Start(ctx context.Context, quantity int) (models.Operation, error) {
	return c.operation(ctx, http.MethodPost, routes.StartURL(), types.QuantityRequest{Quantity: quantity})
}

// Stop powers off the whole fleet
func (c *APIClient) Stop(ctx context.Context) (models.Operation, error) {
	return c.operation(ctx, http.MethodPost, routes.StopURL(), nil)
}

// Refresh resyncs the server's snapshot from the provider
func (c *APIClient) Refresh(ctx context.Context) (models.Operation, error) {
	return c.operation(ctx, http.MethodPost, routes.RefreshURL(), nil)
}

// Destroy deletes the whole fleet
func (c *APIClient) Destroy(ctx context.Context) (models.Operation, error) {
	return c.operation(ctx, http.MethodDelete, routes.DestroyURL(), nil)
}

func (c *APIClient) operation(ctx context.Context, method, endpoint string, body interface{}) (models.Operation, error) {
	var op models.Operation
	err := c.executeSlugRequest(ctx, method, endpoint, body, &op)
	return op, err
}

// ListOperations retrieves the recorded operations, most recent first
func (c *APIClient) ListOperations(ctx context.Context, opts *models.ListOptions) ([]models.Operation, error) {
	var response types.ListResponse[models.Operation]
	if err := c.executeRequest(ctx, http.MethodGet, routes.OperationsURL(getQueryParams(opts)), nil, &response); err != nil {
		return []models.Operation{}, err
	}
	return response.Rows, nil
}

// getQueryParams creates url.Values from ListOptions
func getQueryParams(opts *models.ListOptions) url.Values {
	q := url.Values{}
	if opts == nil {
		return q
	}

	// Pagination params
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	// Filtering params
	if opts.Action != models.ActionUnknown {
		q.Set("action", opts.Action.String())
	}
	if opts.Status != models.OperationStatusUnknown {
		q.Set("status", opts.Status.String())
	}
	return q
}

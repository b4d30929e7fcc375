package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/testbed"
)

// TestNewClient tests the NewClient function with various configurations
func TestNewClient(t *testing.T) {
	tests := []struct {
		name       string
		opts       *Options
		wantErr    bool
		validateFn func(t *testing.T, client Client)
	}{
		{
			name: "nil options",
			opts: nil,
			validateFn: func(t *testing.T, client Client) {
				apiClient, ok := client.(*APIClient)
				assert.True(t, ok, "client should be an *APIClient")

				expectedDefaults := DefaultOptions()
				assert.Equal(t, expectedDefaults.BaseURL, apiClient.baseURL)
				assert.Equal(t, expectedDefaults.Timeout, apiClient.timeout)
			},
		},
		{
			name: "valid options",
			opts: &Options{
				BaseURL: "http://example.com",
				Timeout: 10 * time.Second,
			},
			validateFn: func(t *testing.T, client Client) {
				apiClient, ok := client.(*APIClient)
				assert.True(t, ok, "client should be an *APIClient")

				assert.Equal(t, "http://example.com", apiClient.baseURL)
				assert.Equal(t, 10*time.Second, apiClient.timeout)
			},
		},
		{
			name: "zero timeout uses default",
			opts: &Options{BaseURL: "http://example.com"},
			validateFn: func(t *testing.T, client Client) {
				assert.Equal(t, DefaultTimeout, client.(*APIClient).timeout)
			},
		},
		{
			name:    "invalid base URL",
			opts:    &Options{BaseURL: "://invalid-url"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)
			if tt.validateFn != nil {
				tt.validateFn(t, client)
			}
		})
	}
}

// setupTestServer creates a mock HTTP server that simulates raw API responses
func setupTestServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/success":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id": 1, "status": "success"}`))
		case "/error":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Invalid request"))
		case "/slug-error":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"slug":"server-error","error":"provider list failed: boom"}`))
		case "/capacity":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"slug":"insufficient-capacity","error":"insufficient capacity: A missing 1","data":[{"region":"A","missing":1}]}`))
		case "/invalid-json":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{invalid json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestAPIClient_doRequest(t *testing.T) {
	server := setupTestServer()
	defer server.Close()

	client, err := NewClient(&Options{BaseURL: server.URL})
	require.NoError(t, err)
	apiClient := client.(*APIClient)

	type testResponse struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}

	request := func(path string, v interface{}) error {
		agent, err := apiClient.createAgent(context.Background(), http.MethodGet, path, nil)
		require.NoError(t, err)
		return apiClient.doRequest(agent, v)
	}

	t.Run("success", func(t *testing.T) {
		var response testResponse
		assert.NoError(t, request("/success", &response))
		assert.Equal(t, uint(1), response.ID)
		assert.Equal(t, "success", response.Status)
	})

	t.Run("raw error response", func(t *testing.T) {
		err := request("/error", nil)
		var fiberErr *fiber.Error
		require.True(t, errors.As(err, &fiberErr))
		assert.Equal(t, http.StatusBadRequest, fiberErr.Code)
		assert.Equal(t, "Invalid request", fiberErr.Message)
	})

	t.Run("slug error response", func(t *testing.T) {
		err := request("/slug-error", nil)
		var fiberErr *fiber.Error
		require.True(t, errors.As(err, &fiberErr))
		assert.Equal(t, http.StatusInternalServerError, fiberErr.Code)
		assert.Equal(t, "provider list failed: boom", fiberErr.Message)
	})

	t.Run("capacity error response", func(t *testing.T) {
		err := request("/capacity", nil)
		assert.True(t, errors.Is(err, testbed.ErrInsufficientCapacity))

		var capacityErr *testbed.InsufficientCapacityError
		require.True(t, errors.As(err, &capacityErr))
		assert.Equal(t, []testbed.Deficit{{Region: "A", Missing: 1}}, capacityErr.Deficits)
	})

	t.Run("invalid json", func(t *testing.T) {
		var response testResponse
		err := request("/invalid-json", &response)
		var fiberErr *fiber.Error
		assert.False(t, errors.As(err, &fiberErr))
		assert.Contains(t, err.Error(), "error decoding response")
	})

	t.Run("not found", func(t *testing.T) {
		err := request("/not-found", nil)
		var fiberErr *fiber.Error
		require.True(t, errors.As(err, &fiberErr))
		assert.Equal(t, http.StatusNotFound, fiberErr.Code)
	})
}

func TestAPIClient_createAgent(t *testing.T) {
	client, err := NewClient(&Options{BaseURL: "http://example.com"})
	require.NoError(t, err)
	apiClient := client.(*APIClient)

	t.Run("valid request", func(t *testing.T) {
		agent, err := apiClient.createAgent(context.Background(), http.MethodGet, "/test", nil)
		assert.NoError(t, err)
		assert.NotNil(t, agent)
	})

	t.Run("unsupported method", func(t *testing.T) {
		agent, err := apiClient.createAgent(context.Background(), http.MethodPatch, "/test", nil)
		assert.Error(t, err)
		assert.Nil(t, agent)
		assert.Contains(t, err.Error(), "unsupported HTTP method")
	})

	t.Run("with context deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		agent, err := apiClient.createAgent(ctx, http.MethodPost, "/test", map[string]int{"quantity": 1})
		assert.NoError(t, err)
		assert.NotNil(t, agent)
	})
}

func TestGetQueryParams(t *testing.T) {
	tests := []struct {
		name string
		opts *models.ListOptions
		want url.Values
	}{
		{name: "nil options", want: url.Values{}},
		{name: "empty options", opts: &models.ListOptions{}, want: url.Values{}},
		{
			name: "pagination only",
			opts: &models.ListOptions{Limit: 10, Offset: 20},
			want: url.Values{"limit": {"10"}, "offset": {"20"}},
		},
		{
			name: "filters",
			opts: &models.ListOptions{Action: models.ActionStart, Status: models.OperationStatusFailed},
			want: url.Values{"action": {"start"}, "status": {"failed"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getQueryParams(tt.opts))
		})
	}
}

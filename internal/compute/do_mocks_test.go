package compute

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"strings"
	"testing"

	"github.com/digitalocean/godo"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// mockDOClient implements DOClient for testing
type mockDOClient struct {
	droplets *mockDropletService
	actions  *mockDropletActionService
	keys     *mockKeyService
}

// newMockDOClient creates a new mockDOClient
func newMockDOClient() *mockDOClient {
	return &mockDOClient{
		droplets: &mockDropletService{},
		actions:  &mockDropletActionService{},
		keys:     &mockKeyService{},
	}
}

// Droplets returns the mock droplet service
func (c *mockDOClient) Droplets() DropletService {
	return c.droplets
}

// DropletActions returns the mock droplet action service
func (c *mockDOClient) DropletActions() DropletActionService {
	return c.actions
}

// Keys returns the mock key service
func (c *mockDOClient) Keys() KeyService {
	return c.keys
}

// mockDropletService implements DropletService for testing
type mockDropletService struct {
	CreateFunc    func(ctx context.Context, createRequest *godo.DropletCreateRequest) (*godo.Droplet, *godo.Response, error)
	DeleteFunc    func(ctx context.Context, id int) (*godo.Response, error)
	ListByTagFunc func(ctx context.Context, tag string, opt *godo.ListOptions) ([]godo.Droplet, *godo.Response, error)
}

// Create calls the mocked Create function
func (s *mockDropletService) Create(ctx context.Context, createRequest *godo.DropletCreateRequest) (*godo.Droplet, *godo.Response, error) {
	if s.CreateFunc != nil {
		return s.CreateFunc(ctx, createRequest)
	}
	droplet := testDroplet(1, createRequest.Region, "new", "")
	return &droplet, nil, nil
}

// Delete calls the mocked Delete function
func (s *mockDropletService) Delete(ctx context.Context, id int) (*godo.Response, error) {
	if s.DeleteFunc != nil {
		return s.DeleteFunc(ctx, id)
	}
	return nil, nil
}

// ListByTag calls the mocked ListByTag function
func (s *mockDropletService) ListByTag(ctx context.Context, tag string, opt *godo.ListOptions) ([]godo.Droplet, *godo.Response, error) {
	if s.ListByTagFunc != nil {
		return s.ListByTagFunc(ctx, tag, opt)
	}
	return nil, &godo.Response{}, nil
}

// mockDropletActionService implements DropletActionService for testing
type mockDropletActionService struct {
	PowerOnFunc  func(ctx context.Context, id int) (*godo.Action, *godo.Response, error)
	PowerOffFunc func(ctx context.Context, id int) (*godo.Action, *godo.Response, error)
}

// PowerOn calls the mocked PowerOn function
func (s *mockDropletActionService) PowerOn(ctx context.Context, id int) (*godo.Action, *godo.Response, error) {
	if s.PowerOnFunc != nil {
		return s.PowerOnFunc(ctx, id)
	}
	return &godo.Action{}, nil, nil
}

// PowerOff calls the mocked PowerOff function
func (s *mockDropletActionService) PowerOff(ctx context.Context, id int) (*godo.Action, *godo.Response, error) {
	if s.PowerOffFunc != nil {
		return s.PowerOffFunc(ctx, id)
	}
	return &godo.Action{}, nil, nil
}

// mockKeyService implements KeyService for testing. Keys are found by default.
type mockKeyService struct {
	GetByFingerprintFunc func(ctx context.Context, fingerprint string) (*godo.Key, *godo.Response, error)
	CreateFunc           func(ctx context.Context, createRequest *godo.KeyCreateRequest) (*godo.Key, *godo.Response, error)
}

// GetByFingerprint calls the mocked GetByFingerprint function
func (s *mockKeyService) GetByFingerprint(ctx context.Context, fingerprint string) (*godo.Key, *godo.Response, error) {
	if s.GetByFingerprintFunc != nil {
		return s.GetByFingerprintFunc(ctx, fingerprint)
	}
	return &godo.Key{ID: 1, Fingerprint: fingerprint}, nil, nil
}

// Create calls the mocked Create function
func (s *mockKeyService) Create(ctx context.Context, createRequest *godo.KeyCreateRequest) (*godo.Key, *godo.Response, error) {
	if s.CreateFunc != nil {
		return s.CreateFunc(ctx, createRequest)
	}
	return &godo.Key{ID: 1, Name: createRequest.Name, PublicKey: createRequest.PublicKey}, nil, nil
}

// testDroplet builds a droplet as returned by the API; an empty ip means no network yet
func testDroplet(id int, region, status, ip string) godo.Droplet {
	droplet := godo.Droplet{
		ID:       id,
		Name:     "testbed-droplet",
		Status:   status,
		Region:   &godo.Region{Slug: region},
		Networks: &godo.Networks{},
	}
	if ip != "" {
		droplet.Networks.V4 = []godo.NetworkV4{{IPAddress: ip, Type: "public"}}
	}
	return droplet
}

// doErrorResponse mimics a failed API call with the given HTTP status
func doErrorResponse(status int, message string) (*godo.Response, error) {
	httpResp := &http.Response{StatusCode: status, Request: &http.Request{Method: http.MethodGet}}
	return &godo.Response{Response: httpResp}, &godo.ErrorResponse{Response: httpResp, Message: message}
}

// testPublicKey returns a fresh authorized_keys line
func testPublicKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
}

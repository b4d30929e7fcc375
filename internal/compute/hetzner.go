package compute

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/hetznercloud/hcloud-go/hcloud"
	"golang.org/x/crypto/ssh"

	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/types"
)

const (
	// DefaultHetznerImage is used when the settings do not name an image
	DefaultHetznerImage = "ubuntu-22.04"
	hetznerUsername     = "root"
	hetznerLabel        = "testbed"
)

// HetznerServerClient defines the server operations used by the testbed
type HetznerServerClient interface {
	AllWithOpts(ctx context.Context, opts hcloud.ServerListOpts) ([]*hcloud.Server, error)
	Create(ctx context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, *hcloud.Response, error)
	DeleteWithResult(ctx context.Context, server *hcloud.Server) (*hcloud.ServerDeleteResult, *hcloud.Response, error)
	Poweron(ctx context.Context, server *hcloud.Server) (*hcloud.Action, *hcloud.Response, error)
	Poweroff(ctx context.Context, server *hcloud.Server) (*hcloud.Action, *hcloud.Response, error)
}

// HetznerSSHKeyClient defines the SSH key operations used by the testbed
type HetznerSSHKeyClient interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*hcloud.SSHKey, *hcloud.Response, error)
	Create(ctx context.Context, opts hcloud.SSHKeyCreateOpts) (*hcloud.SSHKey, *hcloud.Response, error)
}

// HetznerProvider implements Provider on top of the Hetzner Cloud API
type HetznerProvider struct {
	servers  HetznerServerClient
	sshKeys  HetznerSSHKeyClient
	settings *config.Settings

	mu     sync.RWMutex
	sshKey *hcloud.SSHKey
}

// NewHetznerProvider creates a provider authenticated with the given API token
func NewHetznerProvider(token string, settings *config.Settings) *HetznerProvider {
	client := hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("testbed", ""))
	return NewHetznerProviderWithClients(&client.Server, &client.SSHKey, settings)
}

// NewHetznerProviderWithClients creates a provider around existing API clients
func NewHetznerProviderWithClients(servers HetznerServerClient, sshKeys HetznerSSHKeyClient, settings *config.Settings) *HetznerProvider {
	return &HetznerProvider{servers: servers, sshKeys: sshKeys, settings: settings}
}

// Name implements Provider.Name
func (p *HetznerProvider) Name() string {
	return ProviderHetzner
}

// Username implements Provider.Username
func (p *HetznerProvider) Username() string {
	return hetznerUsername
}

// RegisterSSHPublicKey implements Provider.RegisterSSHPublicKey
func (p *HetznerProvider) RegisterSSHPublicKey(ctx context.Context, publicKey string) error {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}
	fingerprint := ssh.FingerprintLegacyMD5(parsed)

	key, _, err := p.sshKeys.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return translateHetznerError("failed to look up ssh key", err)
	}
	if key == nil {
		logger.Infof("Registering SSH key %s", fingerprint)
		key, _, err = p.sshKeys.Create(ctx, hcloud.SSHKeyCreateOpts{
			Name:      fmt.Sprintf("%s-%s", p.settings.TestbedID, uuid.New().String()[:8]),
			PublicKey: publicKey,
			Labels:    p.labels(),
		})
		if err != nil {
			return translateHetznerError("failed to create ssh key", err)
		}
	}

	p.mu.Lock()
	p.sshKey = key
	p.mu.Unlock()
	return nil
}

// ListInstances implements Provider.ListInstances
func (p *HetznerProvider) ListInstances(ctx context.Context) ([]types.Instance, error) {
	servers, err := p.servers.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: fmt.Sprintf("%s=%s", hetznerLabel, p.settings.TestbedID)},
	})
	if err != nil {
		return nil, translateHetznerError("failed to list servers", err)
	}

	instances := make([]types.Instance, 0, len(servers))
	for _, server := range servers {
		instances = append(instances, serverToInstance(server))
	}
	return instances, nil
}

// CreateInstance implements Provider.CreateInstance
func (p *HetznerProvider) CreateInstance(ctx context.Context, region string) (types.Instance, error) {
	image := p.settings.Image
	if image == "" {
		image = DefaultHetznerImage
	}

	opts := hcloud.ServerCreateOpts{
		Name:       fmt.Sprintf("%s-%s", p.settings.TestbedID, uuid.New().String()[:8]),
		ServerType: &hcloud.ServerType{Name: p.settings.Specs},
		Image:      &hcloud.Image{Name: image},
		Location:   &hcloud.Location{Name: region},
		Labels:     p.labels(),
	}

	p.mu.RLock()
	if p.sshKey != nil {
		opts.SSHKeys = []*hcloud.SSHKey{p.sshKey}
	}
	p.mu.RUnlock()

	logger.Debugf("Creating server %s in %s", opts.Name, region)
	result, _, err := p.servers.Create(ctx, opts)
	if err != nil {
		return types.Instance{}, translateHetznerError(fmt.Sprintf("failed to create server in %s", region), err)
	}
	if result.Server == nil {
		return types.Instance{}, fmt.Errorf("failed to create server in %s: empty response", region)
	}

	instance := serverToInstance(result.Server)
	if instance.Region == "" {
		instance.Region = region
	}
	return instance, nil
}

// DeleteInstance implements Provider.DeleteInstance
func (p *HetznerProvider) DeleteInstance(ctx context.Context, instance types.Instance) error {
	server, err := hetznerServer(instance)
	if err != nil {
		return err
	}

	logger.Debugf("Deleting server %d", server.ID)
	if _, _, err := p.servers.DeleteWithResult(ctx, server); err != nil {
		return translateHetznerError(fmt.Sprintf("failed to delete server %d", server.ID), err)
	}
	return nil
}

// StartInstances implements Provider.StartInstances
func (p *HetznerProvider) StartInstances(ctx context.Context, instances []types.Instance) error {
	return forEachInstance(ctx, instances, func(ctx context.Context, instance types.Instance) error {
		server, err := hetznerServer(instance)
		if err != nil {
			return err
		}
		if _, _, err := p.servers.Poweron(ctx, server); err != nil {
			return translateHetznerError(fmt.Sprintf("failed to power on server %d", server.ID), err)
		}
		return nil
	})
}

// StopInstances implements Provider.StopInstances
func (p *HetznerProvider) StopInstances(ctx context.Context, instances []types.Instance) error {
	return forEachInstance(ctx, instances, func(ctx context.Context, instance types.Instance) error {
		server, err := hetznerServer(instance)
		if err != nil {
			return err
		}
		if _, _, err := p.servers.Poweroff(ctx, server); err != nil {
			return translateHetznerError(fmt.Sprintf("failed to power off server %d", server.ID), err)
		}
		return nil
	})
}

func (p *HetznerProvider) labels() map[string]string {
	return map[string]string{hetznerLabel: p.settings.TestbedID}
}

func hetznerServer(instance types.Instance) (*hcloud.Server, error) {
	id, err := strconv.Atoi(instance.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: server id %q", ErrInvalidInstance, instance.ID)
	}
	return &hcloud.Server{ID: id}, nil
}

func serverToInstance(server *hcloud.Server) types.Instance {
	instance := types.Instance{
		ID:          strconv.Itoa(server.ID),
		Name:        server.Name,
		PowerStatus: serverPowerStatus(server.Status),
	}
	if server.PublicNet.IPv4.IP != nil {
		instance.MainIP = server.PublicNet.IPv4.IP.String()
	}
	if server.Datacenter != nil && server.Datacenter.Location != nil {
		instance.Region = server.Datacenter.Location.Name
	}
	return instance
}

func serverPowerStatus(status hcloud.ServerStatus) types.PowerStatus {
	switch status {
	case hcloud.ServerStatusRunning:
		return types.PowerStatusActive
	case hcloud.ServerStatusOff:
		return types.PowerStatusInactive
	case hcloud.ServerStatusDeleting:
		return types.PowerStatusTerminated
	default:
		return types.PowerStatusBooting
	}
}

func translateHetznerError(msg string, err error) error {
	if hcloud.IsError(err, hcloud.ErrorCodeUnauthorized) || hcloud.IsError(err, hcloud.ErrorCodeForbidden) {
		return fmt.Errorf("%s: %w", msg, unauthorized(err))
	}
	return fmt.Errorf("%s: %w", msg, err)
}

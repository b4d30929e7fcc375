package compute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/digitalocean/godo"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/oauth2"

	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/types"
)

const (
	// DefaultDigitalOceanImage is used when the settings do not name an image
	DefaultDigitalOceanImage = "ubuntu-22-04-x64"
	doUsername               = "root"
	doPageSize               = 200
)

// DOClient defines the interface for Digital Ocean client operations
type DOClient interface {
	Droplets() DropletService
	DropletActions() DropletActionService
	Keys() KeyService
}

// DropletService defines the droplet operations used by the testbed
type DropletService interface {
	Create(ctx context.Context, createRequest *godo.DropletCreateRequest) (*godo.Droplet, *godo.Response, error)
	Delete(ctx context.Context, id int) (*godo.Response, error)
	ListByTag(ctx context.Context, tag string, opt *godo.ListOptions) ([]godo.Droplet, *godo.Response, error)
}

// DropletActionService defines the droplet power operations
type DropletActionService interface {
	PowerOn(ctx context.Context, id int) (*godo.Action, *godo.Response, error)
	PowerOff(ctx context.Context, id int) (*godo.Action, *godo.Response, error)
}

// KeyService defines the interface for SSH key operations
type KeyService interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*godo.Key, *godo.Response, error)
	Create(ctx context.Context, createRequest *godo.KeyCreateRequest) (*godo.Key, *godo.Response, error)
}

// godoClient adapts *godo.Client to DOClient
type godoClient struct {
	client *godo.Client
}

func (c *godoClient) Droplets() DropletService             { return c.client.Droplets }
func (c *godoClient) DropletActions() DropletActionService { return c.client.DropletActions }
func (c *godoClient) Keys() KeyService                     { return c.client.Keys }

// DigitalOceanProvider implements Provider on top of the DigitalOcean API
type DigitalOceanProvider struct {
	doClient DOClient
	settings *config.Settings

	mu          sync.RWMutex
	fingerprint string
}

// NewDigitalOceanProvider creates a provider authenticated with the given API token
func NewDigitalOceanProvider(ctx context.Context, token string, settings *config.Settings) *DigitalOceanProvider {
	static := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := godo.NewClient(oauth2.NewClient(ctx, static))
	return NewDigitalOceanProviderWithClient(&godoClient{client: client}, settings)
}

// NewDigitalOceanProviderWithClient creates a provider around an existing client
func NewDigitalOceanProviderWithClient(client DOClient, settings *config.Settings) *DigitalOceanProvider {
	return &DigitalOceanProvider{doClient: client, settings: settings}
}

// Name implements Provider.Name
func (p *DigitalOceanProvider) Name() string {
	return ProviderDigitalOcean
}

// Username implements Provider.Username
func (p *DigitalOceanProvider) Username() string {
	return doUsername
}

// RegisterSSHPublicKey implements Provider.RegisterSSHPublicKey
func (p *DigitalOceanProvider) RegisterSSHPublicKey(ctx context.Context, publicKey string) error {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}
	fingerprint := ssh.FingerprintLegacyMD5(parsed)

	_, resp, err := p.doClient.Keys().GetByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		logger.Debugf("SSH key %s already registered", fingerprint)
	case resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound:
		logger.Infof("Registering SSH key %s", fingerprint)
		_, _, err = p.doClient.Keys().Create(ctx, &godo.KeyCreateRequest{
			Name:      p.settings.TestbedID,
			PublicKey: publicKey,
		})
		if err != nil {
			return translateDOError("failed to create ssh key", err)
		}
	default:
		return translateDOError("failed to look up ssh key", err)
	}

	p.mu.Lock()
	p.fingerprint = fingerprint
	p.mu.Unlock()
	return nil
}

// ListInstances implements Provider.ListInstances
func (p *DigitalOceanProvider) ListInstances(ctx context.Context) ([]types.Instance, error) {
	var instances []types.Instance
	opt := &godo.ListOptions{Page: 1, PerPage: doPageSize}
	for {
		droplets, resp, err := p.doClient.Droplets().ListByTag(ctx, p.settings.TestbedID, opt)
		if err != nil {
			return nil, translateDOError("failed to list droplets", err)
		}
		for i := range droplets {
			instances = append(instances, dropletToInstance(&droplets[i]))
		}

		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, fmt.Errorf("failed to read droplet page: %w", err)
		}
		opt.Page = page + 1
	}
	return instances, nil
}

// CreateInstance implements Provider.CreateInstance
func (p *DigitalOceanProvider) CreateInstance(ctx context.Context, region string) (types.Instance, error) {
	image := p.settings.Image
	if image == "" {
		image = DefaultDigitalOceanImage
	}

	request := &godo.DropletCreateRequest{
		Name:   fmt.Sprintf("%s-%s", p.settings.TestbedID, uuid.New().String()[:8]),
		Region: region,
		Size:   p.settings.Specs,
		Image:  godo.DropletCreateImage{Slug: image},
		Tags:   []string{p.settings.TestbedID},
	}

	p.mu.RLock()
	if p.fingerprint != "" {
		request.SSHKeys = []godo.DropletCreateSSHKey{{Fingerprint: p.fingerprint}}
	}
	p.mu.RUnlock()

	logger.Debugf("Creating droplet %s in %s", request.Name, region)
	droplet, _, err := p.doClient.Droplets().Create(ctx, request)
	if err != nil {
		return types.Instance{}, translateDOError(fmt.Sprintf("failed to create droplet in %s", region), err)
	}
	return dropletToInstance(droplet), nil
}

// DeleteInstance implements Provider.DeleteInstance
func (p *DigitalOceanProvider) DeleteInstance(ctx context.Context, instance types.Instance) error {
	id, err := dropletID(instance)
	if err != nil {
		return err
	}

	logger.Debugf("Deleting droplet %d", id)
	if _, err := p.doClient.Droplets().Delete(ctx, id); err != nil {
		return translateDOError(fmt.Sprintf("failed to delete droplet %d", id), err)
	}
	return nil
}

// StartInstances implements Provider.StartInstances
func (p *DigitalOceanProvider) StartInstances(ctx context.Context, instances []types.Instance) error {
	return forEachInstance(ctx, instances, func(ctx context.Context, instance types.Instance) error {
		id, err := dropletID(instance)
		if err != nil {
			return err
		}
		if _, _, err := p.doClient.DropletActions().PowerOn(ctx, id); err != nil {
			return translateDOError(fmt.Sprintf("failed to power on droplet %d", id), err)
		}
		return nil
	})
}

// StopInstances implements Provider.StopInstances
func (p *DigitalOceanProvider) StopInstances(ctx context.Context, instances []types.Instance) error {
	return forEachInstance(ctx, instances, func(ctx context.Context, instance types.Instance) error {
		id, err := dropletID(instance)
		if err != nil {
			return err
		}
		if _, _, err := p.doClient.DropletActions().PowerOff(ctx, id); err != nil {
			return translateDOError(fmt.Sprintf("failed to power off droplet %d", id), err)
		}
		return nil
	})
}

func dropletID(instance types.Instance) (int, error) {
	id, err := strconv.Atoi(instance.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: droplet id %q", ErrInvalidInstance, instance.ID)
	}
	return id, nil
}

func dropletToInstance(droplet *godo.Droplet) types.Instance {
	ip, err := droplet.PublicIPv4()
	if err != nil {
		logger.Debugf("Droplet %d has no public IPv4 yet: %v", droplet.ID, err)
	}

	region := ""
	if droplet.Region != nil {
		region = droplet.Region.Slug
	}

	return types.Instance{
		ID:          strconv.Itoa(droplet.ID),
		Name:        droplet.Name,
		Region:      region,
		MainIP:      ip,
		PowerStatus: dropletPowerStatus(droplet.Status),
	}
}

// dropletPowerStatus maps droplet statuses: new, active, off and archive
func dropletPowerStatus(status string) types.PowerStatus {
	switch status {
	case "active":
		return types.PowerStatusActive
	case "off":
		return types.PowerStatusInactive
	case "archive":
		return types.PowerStatusTerminated
	default:
		return types.PowerStatusBooting
	}
}

func translateDOError(msg string, err error) error {
	var errResp *godo.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w", msg, unauthorized(err))
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

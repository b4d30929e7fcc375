package compute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/types"
)

const (
	// DefaultGCPImage is used when the settings do not name an image
	DefaultGCPImage = "projects/ubuntu-os-cloud/global/images/family/ubuntu-2204-lts"
	gcpUsername     = "testbed"
	gcpLabel        = "testbed"
	gcpSSHKeysItem  = "ssh-keys"
)

// GCPProvider implements Provider on top of the Compute Engine API. Regions are zones.
type GCPProvider struct {
	computeService *compute.Service
	project        string
	settings       *config.Settings
}

// NewGCPProvider creates a provider using the application default credentials
func NewGCPProvider(ctx context.Context, settings *config.Settings) (*GCPProvider, error) {
	if settings.Project == "" {
		return nil, &config.ConfigurationError{Path: "project", Err: errors.New("project is required for the gcp provider")}
	}

	httpClient, err := google.DefaultClient(ctx, compute.ComputeScope)
	if err != nil {
		return nil, fmt.Errorf("gcp http client: %w", err)
	}

	computeService, err := compute.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gcp compute service: %w", err)
	}
	return NewGCPProviderWithService(computeService, settings), nil
}

// NewGCPProviderWithService creates a provider around an existing compute service
func NewGCPProviderWithService(computeService *compute.Service, settings *config.Settings) *GCPProvider {
	return &GCPProvider{computeService: computeService, project: settings.Project, settings: settings}
}

// Name implements Provider.Name
func (g *GCPProvider) Name() string {
	return ProviderGCP
}

// Username implements Provider.Username
func (g *GCPProvider) Username() string {
	return gcpUsername
}

// RegisterSSHPublicKey adds the key to the project-wide ssh-keys metadata
func (g *GCPProvider) RegisterSSHPublicKey(ctx context.Context, publicKey string) error {
	project, err := g.computeService.Projects.Get(g.project).Context(ctx).Do()
	if err != nil {
		return translateGCPError("gcp get project", err)
	}

	entry := gcpUsername + ":" + strings.TrimSpace(publicKey)
	metadata := project.CommonInstanceMetadata
	if metadata == nil {
		metadata = &compute.Metadata{}
	}

	var item *compute.MetadataItems
	for _, existing := range metadata.Items {
		if existing.Key == gcpSSHKeysItem {
			item = existing
			break
		}
	}
	if item == nil {
		item = &compute.MetadataItems{Key: gcpSSHKeysItem, Value: googleapi.String("")}
		metadata.Items = append(metadata.Items, item)
	}

	current := ""
	if item.Value != nil {
		current = *item.Value
	}
	for _, line := range strings.Split(current, "\n") {
		if strings.TrimSpace(line) == entry {
			logger.Debug("SSH key already present in project metadata")
			return nil
		}
	}

	if current != "" && !strings.HasSuffix(current, "\n") {
		current += "\n"
	}
	item.Value = googleapi.String(current + entry)

	logger.Infof("Registering SSH key in project %s metadata", g.project)
	if _, err := g.computeService.Projects.SetCommonInstanceMetadata(g.project, metadata).Context(ctx).Do(); err != nil {
		return translateGCPError("gcp set project metadata", err)
	}
	return nil
}

// ListInstances implements Provider.ListInstances
func (g *GCPProvider) ListInstances(ctx context.Context) ([]types.Instance, error) {
	var instances []types.Instance
	call := g.computeService.Instances.AggregatedList(g.project).
		Filter(fmt.Sprintf("labels.%s = %s", gcpLabel, g.settings.TestbedID))

	err := call.Pages(ctx, func(page *compute.InstanceAggregatedList) error {
		for _, scoped := range page.Items {
			for _, instance := range scoped.Instances {
				instances = append(instances, gcpToInstance(instance))
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateGCPError("gcp list instances", err)
	}

	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances, nil
}

// CreateInstance implements Provider.CreateInstance
func (g *GCPProvider) CreateInstance(ctx context.Context, zone string) (types.Instance, error) {
	image := g.settings.Image
	if image == "" {
		image = DefaultGCPImage
	}

	name := fmt.Sprintf("%s-%s", g.settings.TestbedID, uuid.New().String()[:8])
	instance := &compute.Instance{
		Name:        name,
		MachineType: "zones/" + zone + "/machineTypes/" + g.settings.Specs,
		Labels:      map[string]string{gcpLabel: g.settings.TestbedID},
		Disks: []*compute.AttachedDisk{
			{
				AutoDelete: true,
				Boot:       true,
				Type:       "PERSISTENT",
				InitializeParams: &compute.AttachedDiskInitializeParams{
					SourceImage: image,
				},
			},
		},
		NetworkInterfaces: []*compute.NetworkInterface{
			{
				Network: "global/networks/default",
				AccessConfigs: []*compute.AccessConfig{
					{Name: "External NAT", Type: "ONE_TO_ONE_NAT"},
				},
			},
		},
	}

	logger.Debugf("Creating gcp instance %s in %s", name, zone)
	op, err := g.computeService.Instances.Insert(g.project, zone, instance).Context(ctx).Do()
	if err != nil {
		return types.Instance{}, translateGCPError(fmt.Sprintf("gcp add instance in %s", zone), err)
	}

	return types.Instance{
		ID:          strconv.FormatUint(op.TargetId, 10),
		Name:        name,
		Region:      zone,
		PowerStatus: types.PowerStatusBooting,
	}, nil
}

// DeleteInstance implements Provider.DeleteInstance
func (g *GCPProvider) DeleteInstance(ctx context.Context, instance types.Instance) error {
	if err := gcpAddressable(instance); err != nil {
		return err
	}

	logger.Debugf("Deleting gcp instance %s", instance.Name)
	if _, err := g.computeService.Instances.Delete(g.project, instance.Region, instance.Name).Context(ctx).Do(); err != nil {
		return translateGCPError(fmt.Sprintf("gcp delete instance %s", instance.Name), err)
	}
	return nil
}

// StartInstances implements Provider.StartInstances
func (g *GCPProvider) StartInstances(ctx context.Context, instances []types.Instance) error {
	return forEachInstance(ctx, instances, func(ctx context.Context, instance types.Instance) error {
		if err := gcpAddressable(instance); err != nil {
			return err
		}
		if _, err := g.computeService.Instances.Start(g.project, instance.Region, instance.Name).Context(ctx).Do(); err != nil {
			return translateGCPError(fmt.Sprintf("gcp start instance %s", instance.Name), err)
		}
		return nil
	})
}

// StopInstances implements Provider.StopInstances
func (g *GCPProvider) StopInstances(ctx context.Context, instances []types.Instance) error {
	return forEachInstance(ctx, instances, func(ctx context.Context, instance types.Instance) error {
		if err := gcpAddressable(instance); err != nil {
			return err
		}
		if _, err := g.computeService.Instances.Stop(g.project, instance.Region, instance.Name).Context(ctx).Do(); err != nil {
			return translateGCPError(fmt.Sprintf("gcp stop instance %s", instance.Name), err)
		}
		return nil
	})
}

// gcpAddressable checks that the instance carries the name and zone the API addresses it by
func gcpAddressable(instance types.Instance) error {
	if instance.Name == "" || instance.Region == "" {
		return fmt.Errorf("%w: gcp instance %q needs a name and a zone", ErrInvalidInstance, instance.ID)
	}
	return nil
}

func gcpToInstance(instance *compute.Instance) types.Instance {
	result := types.Instance{
		ID:          strconv.FormatUint(instance.Id, 10),
		Name:        instance.Name,
		PowerStatus: gcpPowerStatus(instance.Status),
	}
	if instance.Zone != "" {
		result.Region = path.Base(instance.Zone)
	}
	for _, nic := range instance.NetworkInterfaces {
		for _, access := range nic.AccessConfigs {
			if access.NatIP != "" {
				result.MainIP = access.NatIP
				return result
			}
		}
	}
	return result
}

// gcpPowerStatus maps instance statuses. TERMINATED is a stopped instance, not a deleted one.
func gcpPowerStatus(status string) types.PowerStatus {
	switch status {
	case "RUNNING":
		return types.PowerStatusActive
	case "TERMINATED", "STOPPED", "SUSPENDED":
		return types.PowerStatusInactive
	default:
		// PROVISIONING, STAGING, STOPPING, SUSPENDING, REPAIRING
		return types.PowerStatusBooting
	}
}

func translateGCPError(msg string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w", msg, unauthorized(err))
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

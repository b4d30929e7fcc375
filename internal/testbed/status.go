package testbed

import (
	"fmt"

	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/types"
)

// StatusRow is one displayed instance
type StatusRow struct {
	Index       int               `json:"index"`
	ID          string            `json:"id"`
	MainIP      string            `json:"main_ip"`
	PowerStatus types.PowerStatus `json:"power_status"`
	SSHCommand  string            `json:"ssh_command"`
}

// RegionStatus groups the displayed instances of one region
type RegionStatus struct {
	Region string      `json:"region"`
	Rows   []StatusRow `json:"rows"`
}

// Status is a display-ready view of the snapshot
type Status struct {
	Provider   string            `json:"provider"`
	Repository config.Repository `json:"repository"`
	Username   string            `json:"username"`
	Total      int               `json:"total"`
	Active     int               `json:"active"`
	Inactive   int               `json:"inactive"`
	Booting    int               `json:"booting"`
	Regions    []RegionStatus    `json:"regions"`
}

// Status builds the view of the current snapshot. Regions follow the configured order and
// terminated instances are hidden.
func (t *Testbed) Status() Status {
	return BuildStatus(t.client.Name(), t.client.Username(), t.settings, t.instances)
}

// BuildStatus groups instances by the configured regions
func BuildStatus(provider, username string, settings *config.Settings, instances []types.Instance) Status {
	status := Status{
		Provider:   provider,
		Repository: settings.Repository,
		Username:   username,
		Total:      len(instances),
		Regions:    make([]RegionStatus, 0, len(settings.Regions)),
	}

	for _, instance := range instances {
		switch {
		case instance.IsActive():
			status.Active++
		case instance.IsInactive():
			status.Inactive++
		case instance.IsBooting():
			status.Booting++
		}
	}

	for _, region := range settings.Regions {
		rs := RegionStatus{Region: region, Rows: []StatusRow{}}
		for _, instance := range types.FilterByRegion(instances, region) {
			if instance.IsTerminated() {
				continue
			}
			rs.Rows = append(rs.Rows, StatusRow{
				Index:       len(rs.Rows),
				ID:          instance.ID,
				MainIP:      instance.MainIP,
				PowerStatus: instance.PowerStatus,
				SSHCommand:  fmt.Sprintf("ssh -i %s %s@%s", settings.SSHPrivateKeyFile, username, instance.MainIP),
			})
		}
		status.Regions = append(status.Regions, rs)
	}
	return status
}

// Package types holds the domain values shared across the testbed packages
package types

import (
	"encoding/json"
	"fmt"
	"net"
)

// SSHPort is the port every testbed instance accepts SSH connections on
const SSHPort = "22"

// PowerStatus represents the power state of an instance as reported by its provider
type PowerStatus string

// Power status constants
const (
	// PowerStatusActive indicates the instance is running
	PowerStatusActive PowerStatus = "active"
	// PowerStatusInactive indicates the instance is powered off
	PowerStatusInactive PowerStatus = "inactive"
	// PowerStatusBooting indicates the instance is between power states (provisioning, starting, stopping)
	PowerStatusBooting PowerStatus = "booting"
	// PowerStatusTerminated indicates the instance is being or has been removed
	PowerStatusTerminated PowerStatus = "terminated"
)

// String returns the string representation of the power status
func (s PowerStatus) String() string {
	return string(s)
}

// ParsePowerStatus converts a string to a PowerStatus
func ParsePowerStatus(str string) (PowerStatus, error) {
	switch str {
	case string(PowerStatusActive):
		return PowerStatusActive, nil
	case string(PowerStatusInactive):
		return PowerStatusInactive, nil
	case string(PowerStatusBooting):
		return PowerStatusBooting, nil
	case string(PowerStatusTerminated):
		return PowerStatusTerminated, nil
	default:
		return "", fmt.Errorf("invalid power status: %s", str)
	}
}

// UnmarshalJSON implements json.Unmarshaler and rejects unknown statuses
func (s *PowerStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParsePowerStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// Instance describes one remote machine of the testbed
type Instance struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Region      string      `json:"region"`
	MainIP      string      `json:"main_ip"`
	PowerStatus PowerStatus `json:"power_status"`
}

// IsActive reports whether the instance is running
func (i Instance) IsActive() bool {
	return i.PowerStatus == PowerStatusActive
}

// IsInactive reports whether the instance is powered off
func (i Instance) IsInactive() bool {
	return i.PowerStatus == PowerStatusInactive
}

// IsBooting reports whether the instance is still changing power state.
// A booting instance is neither startable nor stopped.
func (i Instance) IsBooting() bool {
	return i.PowerStatus == PowerStatusBooting
}

// IsTerminated reports whether the instance is gone or going away
func (i Instance) IsTerminated() bool {
	return i.PowerStatus == PowerStatusTerminated
}

// SSHAddress returns the host:port used to reach the instance over SSH
func (i Instance) SSHAddress() string {
	return net.JoinHostPort(i.MainIP, SSHPort)
}

// FilterByRegion returns the instances located in region, preserving their order
func FilterByRegion(instances []Instance, region string) []Instance {
	filtered := make([]Instance, 0, len(instances))
	for _, instance := range instances {
		if instance.Region == region {
			filtered = append(filtered, instance)
		}
	}
	return filtered
}

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	// OperationStartedAtField is the database field name for the operation start timestamp
	OperationStartedAtField = "started_at"
)

// Action is the lifecycle transition an operation performed
type Action int

// Action constants
const (
	// ActionUnknown represents an unknown or invalid action
	ActionUnknown Action = iota
	// ActionDeploy creates instances in every region
	ActionDeploy
	// ActionDestroy deletes the whole fleet
	ActionDestroy
	// ActionStart activates inactive instances
	ActionStart
	// ActionStop powers off the whole fleet
	ActionStop
	// ActionRefresh resyncs the snapshot from the provider
	ActionRefresh
)

var actionNames = []string{"unknown", "deploy", "destroy", "start", "stop", "refresh"}

// ParseAction converts a string representation of an action to Action
func ParseAction(str string) (Action, error) {
	for i, name := range actionNames {
		if name == str {
			return Action(i), nil
		}
	}
	return ActionUnknown, fmt.Errorf("invalid action: %s", str)
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return actionNames[ActionUnknown]
	}
	return actionNames[a]
}

// MarshalJSON implements the json.Marshaler interface for Action
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Action
func (a *Action) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	action, err := ParseAction(str)
	if err != nil {
		return err
	}

	*a = action
	return nil
}

// OperationStatus represents the current state of an operation
type OperationStatus int

// Operation status constants
const (
	// OperationStatusUnknown represents an unknown or invalid status
	OperationStatusUnknown OperationStatus = iota
	// OperationStatusRunning indicates the operation is in progress
	OperationStatusRunning
	// OperationStatusCompleted indicates the operation has finished successfully
	OperationStatusCompleted
	// OperationStatusFailed indicates the operation returned an error
	OperationStatusFailed
)

var operationStatusNames = []string{"unknown", "running", "completed", "failed"}

// ParseOperationStatus converts a string representation of a status to OperationStatus
func ParseOperationStatus(str string) (OperationStatus, error) {
	for i, name := range operationStatusNames {
		if name == str {
			return OperationStatus(i), nil
		}
	}
	return OperationStatusUnknown, fmt.Errorf("invalid operation status: %s", str)
}

func (s OperationStatus) String() string {
	if s < 0 || int(s) >= len(operationStatusNames) {
		return operationStatusNames[OperationStatusUnknown]
	}
	return operationStatusNames[s]
}

// MarshalJSON implements the json.Marshaler interface for OperationStatus
func (s OperationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for OperationStatus
func (s *OperationStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseOperationStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// Operation records one lifecycle call made against the testbed
type Operation struct {
	gorm.Model
	Name      string          `json:"name" gorm:"not null;uniqueIndex"`
	TestbedID string          `json:"testbed_id" gorm:"not null;index"`
	Provider  string          `json:"provider" gorm:"not null"`
	Action    Action          `json:"action" gorm:"not null;index"`
	Quantity  int             `json:"quantity"`
	Status    OperationStatus `json:"status" gorm:"index"`
	Error     string          `json:"error,omitempty" gorm:"type:text"`
	// Instances is the snapshot size once the operation finished
	Instances  int        `json:"instances"`
	StartedAt  time.Time  `json:"started_at" gorm:"index"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the operation ran, or zero while it is running
func (o *Operation) Duration() time.Duration {
	if o.FinishedAt == nil {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Package models holds the persisted records of the testbed
package models

const (
	// DefaultLimit is the max number of rows that are retrieved from the DB per listing call
	DefaultLimit = 50
)

// ListOptions represents pagination and filtering options for list operations
type ListOptions struct {
	Limit  int             `json:"limit"`  // Number of items to return
	Offset int             `json:"offset"` // Number of items to skip
	Action Action          `json:"action"` // ActionUnknown lists every action
	Status OperationStatus `json:"status"` // OperationStatusUnknown lists every status
}

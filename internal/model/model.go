package model

import "time"

// ProvisionResult is what a successful run reports back to its host.
type ProvisionResult struct {
	ContainerID string `json:"folderId"`
	DocumentID  string `json:"templateId"`
	DocumentURL string `json:"templateUrl"`
}

// Run statuses stored in the ledger.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ProvisionRun is a ledger entry describing one invocation.
// It is an audit record only; provisioning decisions always come from the store.
type ProvisionRun struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	ContainerID string    `json:"folder_id,omitempty"`
	DocumentID  string    `json:"template_id,omitempty"`
	DocumentURL string    `json:"template_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

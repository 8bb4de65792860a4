package model

import "time"

// Run is the persisted record of one permutation run: the plan it was
// created with, its lifecycle status, and on completion the full result.
type Run struct {
	ID             string       `json:"id"`
	Project        string       `json:"project"` // caller-facing label for the document set
	DocFingerprint string       `json:"doc_fingerprint"`
	Status         RunStatus    `json:"status"`
	Passes         []PassConfig `json:"passes"`

	Result *PermutationResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

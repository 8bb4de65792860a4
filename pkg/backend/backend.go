// Package backend defines the uniform model-backend contract the extraction
// pipeline calls through, plus the Anthropic-backed implementation. Callers
// only ever see this package's request/response types, never SDK types.
package backend

import (
	"context"

	"github.com/sells-group/precon-cli/internal/model"
)

// Client is the model backend adapter. Given documents, context, and a
// purpose it returns a typed response plus token usage. Implementations must
// fail distinguishably on auth errors, rate limits, malformed responses, and
// timeouts (see errors.go).
type Client interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Request describes one model invocation. The purpose selects the request
// shape: initial extraction takes only documents; review, deep-dive, and
// cross-validation additionally take the merged result so far; final
// validation additionally takes the concatenated observations text.
type Request struct {
	Purpose model.PassPurpose `json:"purpose"`
	Backend string            `json:"backend"` // model identifier

	Documents []model.Page `json:"documents"`

	// Merged is the cumulative work-package state from all prior passes.
	// Ignored for initial extraction.
	Merged []model.WorkPackage `json:"merged,omitempty"`

	// ObservationsText is the concatenated text of every observation raised
	// so far. Only final validation consumes it.
	ObservationsText string `json:"observations_text,omitempty"`

	// Trade optionally scopes a deep-dive request to one trade.
	Trade string `json:"trade,omitempty"`
}

// Addition is a line item a later pass wants appended to an existing
// work package.
type Addition struct {
	PackageID string         `json:"package_id"`
	Item      model.LineItem `json:"item"`
}

// ExtractionPayload is the response shape for initial extraction.
type ExtractionPayload struct {
	Packages     []model.WorkPackage   `json:"packages"`
	Observations []model.AIObservation `json:"observations,omitempty"`
	Confidence   string                `json:"confidence,omitempty"` // high / medium / low
}

// ReviewPayload is the response shape for self-review, trade deep-dive, and
// cross-validation passes: deltas against the merged state.
type ReviewPayload struct {
	Additions    []Addition            `json:"additions,omitempty"`
	NewPackages  []model.WorkPackage   `json:"new_packages,omitempty"`
	Observations []model.AIObservation `json:"observations,omitempty"`
}

// ValidationPayload is the response shape for final validation.
type ValidationPayload struct {
	Additions    []Addition            `json:"additions,omitempty"`
	Observations []model.AIObservation `json:"observations,omitempty"`
}

// Response is the purpose-tagged result union. Exactly one payload pointer
// is set, matching the purpose; consumers switch on Purpose exhaustively
// rather than probing field presence.
type Response struct {
	Purpose model.PassPurpose `json:"purpose"`

	Extraction *ExtractionPayload `json:"extraction,omitempty"`
	Review     *ReviewPayload     `json:"review,omitempty"`
	Validation *ValidationPayload `json:"validation,omitempty"`

	Usage model.TokenUsage `json:"usage"`
}

// Payload returns the set payload for the response's purpose, or nil when
// the union is inconsistent.
func (r *Response) Payload() any {
	switch r.Purpose {
	case model.PurposeInitialExtraction:
		if r.Extraction != nil {
			return r.Extraction
		}
	case model.PurposeSelfReview, model.PurposeTradeDeepDive, model.PurposeCrossValidation:
		if r.Review != nil {
			return r.Review
		}
	case model.PurposeFinalValidation:
		if r.Validation != nil {
			return r.Validation
		}
	}
	return nil
}

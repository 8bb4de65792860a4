package model

// WorkPackage is a logical scope-of-work group, usually one CSI division or
// trade. Created by the initial extraction pass; later passes may append
// line items or sibling packages but never remove or rename one mid-run.
type WorkPackage struct {
	ID          string     `json:"id"` // stable short code, e.g. "MEC"
	Name        string     `json:"name"`
	Trade       string     `json:"trade,omitempty"`
	CSIDivision string     `json:"csi_division,omitempty"`
	Items       []LineItem `json:"items"`
}

// LineItem is one extracted bid-form row. Identity for merging and consensus
// is the derived key packageID + normalized description, not a database id.
type LineItem struct {
	ItemNumber    string   `json:"item_number,omitempty"`
	Description   string   `json:"description"`
	Action        string   `json:"action,omitempty"` // install, replace, demo, ...
	Quantity      *float64 `json:"quantity,omitempty"`
	Unit          string   `json:"unit,omitempty"` // LF, SF, EA, CY, ...
	UnitPrice     *float64 `json:"unit_price,omitempty"`
	TotalPrice    *float64 `json:"total_price,omitempty"`
	Specification string   `json:"specification,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	SheetRef      string   `json:"sheet_ref,omitempty"` // sheet/page the item was found on

	// Provenance: which backend and pass produced this item.
	FoundBy   string `json:"found_by,omitempty"`
	FoundPass int    `json:"found_pass,omitempty"`
}

// ObservationSeverity grades a flagged insight.
type ObservationSeverity string

const (
	SeverityCritical ObservationSeverity = "critical"
	SeverityWarning  ObservationSeverity = "warning"
	SeverityInfo     ObservationSeverity = "info"
)

// ObservationCategory is the fixed taxonomy for flagged insights.
type ObservationCategory string

const (
	CategoryMissingScope  ObservationCategory = "missing_scope"
	CategoryConflict      ObservationCategory = "conflict"
	CategoryAmbiguity     ObservationCategory = "ambiguity"
	CategoryCoordination  ObservationCategory = "coordination"
	CategorySpecMismatch  ObservationCategory = "spec_mismatch"
	CategoryQuantityCheck ObservationCategory = "quantity_check"
)

// AIObservation is a flagged insight tied to zero or more work packages or
// line items. Append-only within a run.
type AIObservation struct {
	Severity        ObservationSeverity `json:"severity"`
	Category        ObservationCategory `json:"category"`
	Description     string              `json:"description"`
	PackageIDs      []string            `json:"package_ids,omitempty"`
	References      []string            `json:"references,omitempty"` // sheet numbers, spec sections
	SuggestedAction string              `json:"suggested_action,omitempty"`
	FoundBy         string              `json:"found_by,omitempty"`
	FoundPass       int                 `json:"found_pass,omitempty"`
}

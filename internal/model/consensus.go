package model

// LineItemConsensus is the cross-run aggregate for one derived item key.
type LineItemConsensus struct {
	Key         string `json:"key"` // packageID:normalizedDescription
	PackageID   string `json:"package_id"`
	Description string `json:"description"` // first-encountered raw description

	FoundByFamilies []string `json:"found_by_families"`
	Score           float64  `json:"score"` // distinct finder families / total families, in [0,1]

	ConsensusQuantity *float64 `json:"consensus_quantity,omitempty"` // median of non-null quantities
	ConsensusUnit     string   `json:"consensus_unit,omitempty"`     // mode of non-null units

	LikelyTruePositive bool   `json:"likely_true_positive"` // score >= 0.5
	Analysis           string `json:"analysis"`
}

// WorkPackageComparison scores cross-run agreement for one package id.
type WorkPackageComparison struct {
	PackageID string `json:"package_id"`
	RunCount  int    `json:"run_count"`

	NameAgreement     float64 `json:"name_agreement"`
	DivisionAgreement float64 `json:"division_agreement"`
	TradeAgreement    float64 `json:"trade_agreement"`

	Analysis string `json:"analysis"`
}

// PassValueRecommendation buckets what a pass was worth.
type PassValueRecommendation string

const (
	PassValueHigh     PassValueRecommendation = "high_value"
	PassValueModerate PassValueRecommendation = "moderate_value"
	PassValueLow      PassValueRecommendation = "low_value"
	PassValueNoise    PassValueRecommendation = "likely_noise"
)

// PassValueAnalysis records, per (run, pass), how many newly introduced
// items were later corroborated versus unique and unconfirmed.
type PassValueAnalysis struct {
	RunID   string      `json:"run_id"`
	Pass    int         `json:"pass"`
	Backend string      `json:"backend"`
	Purpose PassPurpose `json:"purpose"`

	NewItems     int `json:"new_items"`
	Corroborated int `json:"corroborated"` // consensus score >= 0.5
	HalfValue    int `json:"half_value"`   // 0.33 <= score < 0.5
	Noise        int `json:"noise"`        // score < 0.33

	Cost           float64                 `json:"cost"`
	ValuePerCost   float64                 `json:"value_per_cost"`
	Recommendation PassValueRecommendation `json:"recommendation"`
}

// PurposeSummary aggregates pass value across runs for one purpose.
type PurposeSummary struct {
	Purpose         PassPurpose `json:"purpose"`
	Passes          int         `json:"passes"`
	AvgValuePerCost float64     `json:"avg_value_per_cost"`
	TotalNoise      int         `json:"total_noise"`
	Keep            bool        `json:"keep"`
	Rationale       string      `json:"rationale"`
}

// Recommendations is the synthesized guidance across the whole comparison.
type Recommendations struct {
	Purposes          []PurposeSummary `json:"purposes"`
	EstimatedAccuracy float64          `json:"estimated_accuracy"` // weighted blend, in [0,1]
	Notes             []string         `json:"notes,omitempty"`
}

// ConsensusReport is everything the reconciliation produces for N runs over
// the same source documents.
type ConsensusReport struct {
	Runs            []string                `json:"runs"`     // run ids, sorted
	Families        []string                `json:"families"` // distinct backend families, sorted
	Items           []LineItemConsensus     `json:"items"`
	Packages        []WorkPackageComparison `json:"packages"`
	Passes          []PassValueAnalysis     `json:"passes"`
	Recommendations Recommendations         `json:"recommendations"`
}

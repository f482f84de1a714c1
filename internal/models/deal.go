package models

import "time"

// DealStage is a discrete position in the sales pipeline.
type DealStage string

const (
	StageLead        DealStage = "Lead"
	StageQualified   DealStage = "Qualified"
	StageProposal    DealStage = "Proposal"
	StageNegotiation DealStage = "Negotiation"
	StageClosedWon   DealStage = "Closed Won"
	StageClosedLost  DealStage = "Closed Lost"
)

// PipelineStages lists the stages in pipeline order. The two closed stages
// are terminal alternatives after Negotiation.
var PipelineStages = []DealStage{
	StageLead, StageQualified, StageProposal, StageNegotiation,
	StageClosedWon, StageClosedLost,
}

// Valid reports whether the stage is known.
func (s DealStage) Valid() bool {
	for _, stage := range PipelineStages {
		if s == stage {
			return true
		}
	}
	return false
}

// Closed reports whether the stage is terminal.
func (s DealStage) Closed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// DefaultProbability returns the per-stage default win probability.
func DefaultProbability(s DealStage) float64 {
	switch s {
	case StageLead:
		return 0.10
	case StageQualified:
		return 0.25
	case StageProposal:
		return 0.50
	case StageNegotiation:
		return 0.75
	case StageClosedWon:
		return 1.00
	default:
		return 0.00
	}
}

// DealStatus marks a deal as live or archived.
type DealStatus string

const (
	DealActive   DealStatus = "active"
	DealArchived DealStatus = "archived"
)

// Deal is a pipeline opportunity.
type Deal struct {
	ID                int        `json:"id" db:"id"`
	ClientID          int        `json:"client_id" db:"client_id"`
	Name              string     `json:"name" db:"name"`
	ProductName       string     `json:"product_name" db:"product_name"`
	Stage             DealStage  `json:"stage" db:"stage"`
	Value             float64    `json:"value" db:"value"`
	Currency          string     `json:"currency" db:"currency"`
	Probability       float64    `json:"probability" db:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty" db:"expected_close_date"`
	ActualCloseDate   *time.Time `json:"actual_close_date,omitempty" db:"actual_close_date"`
	Status            DealStatus `json:"status" db:"status"`
	Notes             string     `json:"notes" db:"notes"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// WeightedValue is the probability-weighted deal value.
func (d *Deal) WeightedValue() float64 {
	return d.Value * d.Probability
}

// StageHistory records every stage transition for a deal, append-only.
type StageHistory struct {
	ID        int       `json:"id" db:"id"`
	DealID    int       `json:"deal_id" db:"deal_id"`
	FromStage DealStage `json:"from_stage" db:"from_stage"`
	ToStage   DealStage `json:"to_stage" db:"to_stage"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
	Notes     string    `json:"notes" db:"notes"`
}

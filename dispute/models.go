package dispute

import (
	"time"

	"github.com/Twhite2/Retail-Chain/agreement"
)

// Outcome encodes the verifier's ruling on a dispute.
type Outcome uint8

const (
	// OutcomeResume returns the agreement to active.
	OutcomeResume Outcome = 0
	// OutcomeComplete closes the agreement as fulfilled.
	OutcomeComplete Outcome = 1
	// OutcomeCancel terminates the agreement.
	OutcomeCancel Outcome = 2
)

// AgreementStatus maps the ruling to the agreement status it produces.
func (o Outcome) AgreementStatus() (agreement.Status, bool) {
	switch o {
	case OutcomeResume:
		return agreement.StatusActive, true
	case OutcomeComplete:
		return agreement.StatusCompleted, true
	case OutcomeCancel:
		return agreement.StatusCanceled, true
	default:
		return "", false
	}
}

// Record is a dispute raised against an agreement. At most one unresolved
// dispute may exist per agreement at any time.
type Record struct {
	ID              string     `json:"id"`
	AgreementID     string     `json:"agreement_id"`
	RaisedBy        string     `json:"raised_by"`
	Reason          string     `json:"reason"`
	Resolved        bool       `json:"resolved"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Package allocation implements the engine that moves vault funds into and
// out of yield strategies: proportional deployment, harvesting, and the
// emergency exit path.
package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deployment modes.
const (
	ModeEqual    = "equal"    // split evenly across active strategies
	ModeWeighted = "weighted" // split by weight_bps across active strategies
)

// Outcome statuses for a single strategy within an engine run.
const (
	OutcomeDeployed     = "deployed"
	OutcomeHarvested    = "harvested"
	OutcomeNoYield      = "no_yield"
	OutcomeExited       = "exited"
	OutcomeSkippedPause = "skipped_paused"
	OutcomeSkippedZero  = "skipped_zero" // unpaused but allocated nothing

	OutcomeFailed       = "failed"
)

// StrategyOutcome records what happened to one strategy during a run.
// A failed outcome never moves the ledger.
type StrategyOutcome struct {
	Handle string          `json:"handle"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
	Error  string          `json:"error,omitempty"`
}

// Report is the result of one engine run over an asset's strategy set.
type Report struct {
	ID          string            `json:"id"`
	Operation   string            `json:"operation"`
	Asset       string            `json:"asset"`
	Mode        string            `json:"mode,omitempty"`
	Requested   decimal.Decimal   `json:"requested"`
	Moved       decimal.Decimal   `json:"moved"`
	Outcomes    []StrategyOutcome `json:"outcomes"`
	Complete    bool              `json:"complete"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

func newReport(operation, asset, mode string, requested decimal.Decimal) *Report {
	return &Report{
		ID:        uuid.New().String(),
		Operation: operation,
		Asset:     asset,
		Mode:      mode,
		Requested: requested,
		Moved:     decimal.Zero,
		StartedAt: time.Now().UTC(),
	}
}

func (r *Report) finish() *Report {
	r.CompletedAt = time.Now().UTC()
	r.Complete = true
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			r.Complete = false
			break
		}
	}
	return r
}

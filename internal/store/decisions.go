package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/boa/internal/boaerr"
)

// AcceptedCandidates names the candidates accepted from one proposal: the
// proposal's ID plus the indices, into that proposal's candidate list, that
// were accepted. Mirrors ledger.py's DecisionInfo.accepted entries
// (`{proposal_id, candidate_indices}`).
type AcceptedCandidates struct {
	ProposalID       string
	CandidateIndices []int
}

// Decision records which candidates from one iteration's proposals were
// accepted. Exactly zero or one decision may exist per iteration, enforced
// by the schema's UNIQUE(iteration_id) constraint.
type Decision struct {
	ID          string
	IterationID string
	Accepted    []AcceptedCandidates
	Note        string
	CreatedAt   time.Time
}

// CreateDecision records a decision for an iteration. Returns
// boaerr.DecisionAlreadyExists if one is already recorded, matching
// record_decision's "raises if decision already exists for iteration" rule.
func CreateDecision(q Querier, d *Decision) error {
	var existing string
	err := q.QueryRow(`SELECT id FROM decisions WHERE iteration_id = ?`, d.IterationID).Scan(&existing)
	if err == nil {
		return boaerr.New(boaerr.KindDecisionAlreadyExists, "iteration %q already has a recorded decision", d.IterationID)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check existing decision: %w", err)
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	acceptedJSON, err := marshalJSON(d.Accepted)
	if err != nil {
		return fmt.Errorf("marshal accepted candidates: %w", err)
	}

	_, err = q.Exec(`
		INSERT INTO decisions (id, iteration_id, accepted, note, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.IterationID, acceptedJSON, d.Note, d.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// GetDecisionForIteration fetches the decision recorded for an iteration, if any.
func GetDecisionForIteration(q Querier, iterationID string) (*Decision, error) {
	row := q.QueryRow(`SELECT id, iteration_id, accepted, note, created_at FROM decisions WHERE iteration_id = ?`, iterationID)
	var d Decision
	var acceptedJSON, createdAt string
	if err := row.Scan(&d.ID, &d.IterationID, &acceptedJSON, &d.Note, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan decision: %w", err)
	}
	if err := unmarshalJSON(acceptedJSON, &d.Accepted); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Proposal is the ordered batch of candidate points produced by one
// strategy run within an iteration: the raw (decoded) and encoded
// representations of every candidate, plus the surrogate model's predicted
// mean/std at each, one slice entry per candidate. This mirrors
// ledger.py's ProposalInfo, which stores candidates_raw/candidates_encoded
// as lists on a single row rather than one row per candidate.
type Proposal struct {
	ID                string
	IterationID       string
	StrategyName      string
	CandidatesRaw     []map[string]any
	CandidatesEncoded [][]float64
	PredictedMean     [][]float64 // one entry per candidate, len(objectives) each
	PredictedStd      [][]float64
	CreatedAt         time.Time
}

// NumCandidates reports how many candidates this proposal carries.
func (p *Proposal) NumCandidates() int {
	return len(p.CandidatesRaw)
}

// CreateProposal inserts a new proposal row.
func CreateProposal(q Querier, p *Proposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	rawJSON, err := marshalJSON(p.CandidatesRaw)
	if err != nil {
		return fmt.Errorf("marshal proposal candidates_raw: %w", err)
	}
	encJSON, err := marshalJSON(p.CandidatesEncoded)
	if err != nil {
		return fmt.Errorf("marshal proposal candidates_encoded: %w", err)
	}
	meanJSON, err := marshalJSON(p.PredictedMean)
	if err != nil {
		return fmt.Errorf("marshal proposal predicted_mean: %w", err)
	}
	stdJSON, err := marshalJSON(p.PredictedStd)
	if err != nil {
		return fmt.Errorf("marshal proposal predicted_std: %w", err)
	}

	_, err = q.Exec(`
		INSERT INTO proposals (id, iteration_id, strategy_name, candidates_raw, candidates_encoded, predicted_mean, predicted_std, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.IterationID, p.StrategyName, rawJSON, encJSON, meanJSON, stdJSON, p.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

// ListProposals returns every proposal (one per strategy run) for one
// iteration, in insertion order.
func ListProposals(q Querier, iterationID string) ([]Proposal, error) {
	rows, err := q.Query(`
		SELECT id, iteration_id, strategy_name, candidates_raw, candidates_encoded, predicted_mean, predicted_std, created_at
		FROM proposals WHERE iteration_id = ? ORDER BY created_at ASC, rowid ASC`, iterationID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []Proposal
	for rows.Next() {
		p, err := scanProposalRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProposal fetches a single proposal by ID.
func GetProposal(q Querier, id string) (*Proposal, error) {
	row := q.QueryRow(`
		SELECT id, iteration_id, strategy_name, candidates_raw, candidates_encoded, predicted_mean, predicted_std, created_at
		FROM proposals WHERE id = ?`, id)
	var p Proposal
	var rawJSON, encJSON, meanJSON, stdJSON, createdAt string
	if err := row.Scan(&p.ID, &p.IterationID, &p.StrategyName, &rawJSON, &encJSON, &meanJSON, &stdJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	return finishProposal(&p, rawJSON, encJSON, meanJSON, stdJSON, createdAt)
}

func scanProposalRows(rows *sql.Rows) (*Proposal, error) {
	var p Proposal
	var rawJSON, encJSON, meanJSON, stdJSON, createdAt string
	if err := rows.Scan(&p.ID, &p.IterationID, &p.StrategyName, &rawJSON, &encJSON, &meanJSON, &stdJSON, &createdAt); err != nil {
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	return finishProposal(&p, rawJSON, encJSON, meanJSON, stdJSON, createdAt)
}

func finishProposal(p *Proposal, rawJSON, encJSON, meanJSON, stdJSON, createdAt string) (*Proposal, error) {
	if err := unmarshalJSON(rawJSON, &p.CandidatesRaw); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(encJSON, &p.CandidatesEncoded); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(meanJSON, &p.PredictedMean); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(stdJSON, &p.PredictedStd); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

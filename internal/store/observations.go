package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Observation is one recorded (x, y) pair against a campaign: the raw input
// values and the raw (natural-direction, natural-units) objective values
// actually measured, optionally tied back to the iteration whose proposal it
// confirms.
type Observation struct {
	ID          string
	CampaignID  string
	IterationID string // empty if not tied to a specific iteration's proposal
	XRaw        map[string]any
	YRaw        map[string]float64
	Feasible    bool
	CreatedAt   time.Time
}

// CreateObservation inserts one observation.
func CreateObservation(q Querier, o *Observation) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	xRawJSON, err := marshalJSON(o.XRaw)
	if err != nil {
		return fmt.Errorf("marshal observation x_raw: %w", err)
	}
	yRawJSON, err := marshalJSON(o.YRaw)
	if err != nil {
		return fmt.Errorf("marshal observation y_raw: %w", err)
	}

	var iterationID any
	if o.IterationID != "" {
		iterationID = o.IterationID
	}

	feasible := 0
	if o.Feasible {
		feasible = 1
	}

	_, err = q.Exec(`
		INSERT INTO observations (id, campaign_id, iteration_id, x_raw, y_raw, feasible, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CampaignID, iterationID, xRawJSON, yRawJSON, feasible, o.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// ListObservations returns every observation for a campaign, in the order
// they were recorded (insertion order, which the analyzer's first-Pareto-
// optimal-point tie-break depends on).
func ListObservations(q Querier, campaignID string) ([]Observation, error) {
	rows, err := q.Query(`
		SELECT id, campaign_id, COALESCE(iteration_id, ''), x_raw, y_raw, feasible, created_at
		FROM observations WHERE campaign_id = ? ORDER BY created_at ASC, rowid ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		o, err := scanObservationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanObservationRows(rows *sql.Rows) (*Observation, error) {
	var o Observation
	var xRawJSON, yRawJSON, createdAt string
	var feasible int
	if err := rows.Scan(&o.ID, &o.CampaignID, &o.IterationID, &xRawJSON, &yRawJSON, &feasible, &createdAt); err != nil {
		return nil, fmt.Errorf("scan observation: %w", err)
	}
	o.XRaw = map[string]any{}
	if err := unmarshalJSON(xRawJSON, &o.XRaw); err != nil {
		return nil, err
	}
	o.YRaw = map[string]float64{}
	if err := unmarshalJSON(yRawJSON, &o.YRaw); err != nil {
		return nil, err
	}
	o.Feasible = feasible != 0
	o.CreatedAt = parseTime(createdAt)
	return &o, nil
}

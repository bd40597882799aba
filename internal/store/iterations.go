package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Iteration is one optimization round within a campaign: a single strategy
// execution against a training-data snapshot.
type Iteration struct {
	ID          string
	CampaignID  string
	Index       int
	Strategy    string
	DatasetHash string
	CreatedAt   time.Time
}

// CreateIteration inserts a new iteration row.
func CreateIteration(q Querier, it *Iteration) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	_, err := q.Exec(`
		INSERT INTO iterations (id, campaign_id, idx, strategy, dataset_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, it.CampaignID, it.Index, it.Strategy, it.DatasetHash, it.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert iteration: %w", err)
	}
	return nil
}

// LatestIteration returns the highest-index iteration for a campaign, or
// sql.ErrNoRows if the campaign has none yet.
func LatestIteration(q Querier, campaignID string) (*Iteration, error) {
	row := q.QueryRow(`
		SELECT id, campaign_id, idx, strategy, dataset_hash, created_at
		FROM iterations WHERE campaign_id = ? ORDER BY idx DESC LIMIT 1`, campaignID)
	return scanIteration(row)
}

// GetIteration fetches one iteration by ID.
func GetIteration(q Querier, id string) (*Iteration, error) {
	row := q.QueryRow(`SELECT id, campaign_id, idx, strategy, dataset_hash, created_at FROM iterations WHERE id = ?`, id)
	return scanIteration(row)
}

// ListIterations returns all iterations for a campaign, ordered by index.
func ListIterations(q Querier, campaignID string) ([]Iteration, error) {
	rows, err := q.Query(`SELECT id, campaign_id, idx, strategy, dataset_hash, created_at FROM iterations WHERE campaign_id = ? ORDER BY idx ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var out []Iteration
	for rows.Next() {
		var it Iteration
		var createdAt string
		if err := rows.Scan(&it.ID, &it.CampaignID, &it.Index, &it.Strategy, &it.DatasetHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		it.CreatedAt = parseTime(createdAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanIteration(row *sql.Row) (*Iteration, error) {
	var it Iteration
	var createdAt string
	if err := row.Scan(&it.ID, &it.CampaignID, &it.Index, &it.Strategy, &it.DatasetHash, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan iteration: %w", err)
	}
	it.CreatedAt = parseTime(createdAt)
	return &it, nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Checkpoint indexes one saved model-state file on disk, written by
// internal/checkpointer. The store only tracks metadata; the serialized
// model state itself lives at FilePath.
type Checkpoint struct {
	ID             string
	CampaignID     string
	IterationIndex int
	Strategy       string
	FilePath       string
	FileSize       int64
	CreatedAt      time.Time
}

// CreateCheckpoint records a new checkpoint.
func CreateCheckpoint(q Querier, c *Checkpoint) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := q.Exec(`
		INSERT INTO checkpoints (id, campaign_id, iteration_index, strategy, file_path, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CampaignID, c.IterationIndex, c.Strategy, c.FilePath, c.FileSize, c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns checkpoints for a campaign, oldest first, filtered
// by strategy when non-empty.
func ListCheckpoints(q Querier, campaignID, strategy string) ([]Checkpoint, error) {
	var rows *sql.Rows
	var err error
	if strategy == "" {
		rows, err = q.Query(`SELECT id, campaign_id, iteration_index, strategy, file_path, file_size, created_at
			FROM checkpoints WHERE campaign_id = ? ORDER BY created_at ASC`, campaignID)
	} else {
		rows, err = q.Query(`SELECT id, campaign_id, iteration_index, strategy, file_path, file_size, created_at
			FROM checkpoints WHERE campaign_id = ? AND strategy = ? ORDER BY created_at ASC`, campaignID, strategy)
	}
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		var createdAt string
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.IterationIndex, &c.Strategy, &c.FilePath, &c.FileSize, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCheckpoint removes a checkpoint's metadata row; the caller is
// responsible for removing the underlying file.
func DeleteCheckpoint(q Querier, id string) error {
	if _, err := q.Exec(`DELETE FROM checkpoints WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/boa/internal/boaerr"
)

// CampaignStatus is one state of the campaign lifecycle state machine.
type CampaignStatus string

const (
	CampaignCreated   CampaignStatus = "created"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignArchived  CampaignStatus = "archived"
)

// validTransitions encodes the campaign status state machine:
// CREATED -> ACTIVE -> PAUSED/COMPLETED -> ARCHIVED, with PAUSED able to
// resume back to ACTIVE.
var validTransitions = map[CampaignStatus]map[CampaignStatus]bool{
	CampaignCreated:   {CampaignActive: true},
	CampaignActive:    {CampaignPaused: true, CampaignCompleted: true},
	CampaignPaused:    {CampaignActive: true, CampaignArchived: true},
	CampaignCompleted: {CampaignArchived: true},
	CampaignArchived:  {},
}

// Campaign is one optimization run against a Process.
type Campaign struct {
	ID        string
	ProcessID string
	Name      string
	Status    CampaignStatus
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateCampaign inserts a new campaign in the CREATED state.
func (s *Store) CreateCampaign(c *Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CampaignCreated
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	metaJSON, err := marshalJSON(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal campaign metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO campaigns (id, process_id, name, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProcessID, c.Name, string(c.Status), metaJSON,
		c.CreatedAt.UTC().Format(timeLayout), c.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetCampaign fetches a campaign by ID.
func (s *Store) GetCampaign(id string) (*Campaign, error) {
	row := s.db.QueryRow(`SELECT id, process_id, name, status, metadata, created_at, updated_at FROM campaigns WHERE id = ?`, id)
	return scanCampaign(row)
}

// ListCampaigns returns campaigns, optionally filtered by status.
func (s *Store) ListCampaigns(status CampaignStatus) ([]Campaign, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(`SELECT id, process_id, name, status, metadata, created_at, updated_at FROM campaigns ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.Query(`SELECT id, process_id, name, status, metadata, created_at, updated_at FROM campaigns WHERE status = ? ORDER BY created_at DESC`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaignRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetCampaignStatus transitions a campaign to newStatus, enforcing the
// lifecycle state machine. Returns boaerr.InvalidStateTransition if the
// transition is not allowed.
func (s *Store) SetCampaignStatus(id string, newStatus CampaignStatus) error {
	c, err := s.GetCampaign(id)
	if err != nil {
		if err == sql.ErrNoRows {
			return boaerr.NotFoundf("campaign %q not found", id)
		}
		return err
	}
	if !validTransitions[c.Status][newStatus] {
		return boaerr.New(boaerr.KindInvalidStateTransition, "campaign %q: cannot transition from %s to %s", id, c.Status, newStatus)
	}

	_, err = s.db.Exec(`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?`,
		string(newStatus), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	return nil
}

func scanCampaign(row *sql.Row) (*Campaign, error) {
	var c Campaign
	var status, metaJSON, createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.ProcessID, &c.Name, &status, &metaJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	return finishCampaign(&c, status, metaJSON, createdAt, updatedAt)
}

func scanCampaignRows(rows *sql.Rows) (*Campaign, error) {
	var c Campaign
	var status, metaJSON, createdAt, updatedAt string
	if err := rows.Scan(&c.ID, &c.ProcessID, &c.Name, &status, &metaJSON, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	return finishCampaign(&c, status, metaJSON, createdAt, updatedAt)
}

func finishCampaign(c *Campaign, status, metaJSON, createdAt, updatedAt string) (*Campaign, error) {
	c.Status = CampaignStatus(status)
	c.Metadata = map[string]any{}
	if err := unmarshalJSON(metaJSON, &c.Metadata); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

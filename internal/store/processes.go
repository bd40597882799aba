package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Process is a named, versioned declarative process definition, stored both
// as its original YAML source (for re-export) and a JSON-encoded
// specfile.ProcessSpec (for fast reload without re-parsing YAML).
type Process struct {
	ID        string
	Name      string
	Version   int
	SpecYAML  string
	SpecJSON  string
	CreatedAt time.Time
}

// CreateProcess inserts a new process row, reusing an existing row if one
// with the same (name, version) already exists ("reuse process by exact
// name+version match").
func (s *Store) CreateProcess(p *Process) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	var existingID string
	err := s.db.QueryRow(`SELECT id FROM processes WHERE name = ? AND version = ?`, p.Name, p.Version).Scan(&existingID)
	if err == nil {
		p.ID = existingID
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("lookup existing process: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO processes (id, name, version, spec_yaml, spec_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Version, p.SpecYAML, p.SpecJSON, p.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

// GetProcess fetches a process by ID.
func (s *Store) GetProcess(id string) (*Process, error) {
	row := s.db.QueryRow(`SELECT id, name, version, spec_yaml, spec_json, created_at FROM processes WHERE id = ?`, id)
	return scanProcess(row)
}

// GetProcessByNameVersion fetches a process by its exact (name, version) key.
func (s *Store) GetProcessByNameVersion(name string, version int) (*Process, error) {
	row := s.db.QueryRow(`SELECT id, name, version, spec_yaml, spec_json, created_at FROM processes WHERE name = ? AND version = ?`, name, version)
	return scanProcess(row)
}

func scanProcess(row *sql.Row) (*Process, error) {
	var p Process
	var createdAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Version, &p.SpecYAML, &p.SpecJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan process: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

const timeLayout = "2006-01-02 15:04:05"

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON[T any](s string, out *T) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/boa/internal/boaerr"
)

// JobStatus is one state of a queued job's lifecycle.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (st JobStatus) terminal() bool {
	return st == JobCompleted || st == JobFailed || st == JobCancelled
}

// Job is one durable unit of out-of-band work (e.g. running a strategy
// executor iteration) tracked through a FIFO queue: the engine never
// executes jobs itself, a worker loop polls, runs, and reports back.
type Job struct {
	ID          string
	JobType     string
	CampaignID  string
	Payload     map[string]any
	Status      JobStatus
	Progress    float64
	Error       string
	CreatedAt   time.Time
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// EnqueueJob inserts a new job in the PENDING state.
func (s *Store) EnqueueJob(j *Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Status = JobPending
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	payloadJSON, err := marshalJSON(j.Payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, job_type, campaign_id, payload, status, progress, error, created_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?)`,
		j.ID, j.JobType, j.CampaignID, payloadJSON, string(JobPending), j.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// DequeueJob atomically claims the oldest PENDING job and transitions it to
// RUNNING, matching job_queue.py:dequeue's "select oldest PENDING ordered by
// created_at, transition to RUNNING with started_at=now" semantics. Returns
// sql.ErrNoRows if no job is pending.
func (s *Store) DequeueJob() (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("dequeue: begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(`SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`, string(JobPending)).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("dequeue: select candidate: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.Exec(`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`, string(JobRunning), now, id); err != nil {
		return nil, fmt.Errorf("dequeue: claim job: %w", err)
	}

	row := tx.QueryRow(`
		SELECT id, job_type, campaign_id, payload, status, progress, error, created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dequeue: commit: %w", err)
	}
	return j, nil
}

// CompleteJob marks a job COMPLETED with progress=1.0.
func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, progress = 1.0, completed_at = ? WHERE id = ?`, string(JobCompleted), now, id)
	return checkJobUpdate(res, err, "complete job")
}

// FailJob marks a job FAILED with the given error message.
func (s *Store) FailJob(id, errMsg string) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?`, string(JobFailed), errMsg, now, id)
	return checkJobUpdate(res, err, "fail job")
}

// CancelJob marks a job CANCELLED. No-ops if already terminal; returns
// boaerr.JobAlreadyRunning if the job is currently RUNNING (per
// job_queue.py's JobAlreadyRunningError).
func (s *Store) CancelJob(id string) error {
	j, err := s.GetJob(id)
	if err != nil {
		if err == sql.ErrNoRows {
			return boaerr.NotFoundf("job %q not found", id)
		}
		return err
	}
	if j.Status.terminal() {
		return nil
	}
	if j.Status == JobRunning {
		return boaerr.New(boaerr.KindJobAlreadyRunning, "job %q is running and cannot be cancelled", id)
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.Exec(`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`, string(JobCancelled), now, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

// UpdateJobProgress sets a job's fractional progress, clamped to [0, 1].
func (s *Store) UpdateJobProgress(id string, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	res, err := s.db.Exec(`UPDATE jobs SET progress = ? WHERE id = ?`, progress, id)
	return checkJobUpdate(res, err, "update job progress")
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, job_type, campaign_id, payload, status, progress, error, created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs matching an optional status filter, newest first,
// paginated by limit/offset (limit<=0 means unbounded).
func (s *Store) ListJobs(status JobStatus, limit, offset int) ([]Job, error) {
	query := `SELECT id, job_type, campaign_id, payload, status, progress, error, created_at, started_at, completed_at FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// CleanupStaleJobs marks RUNNING jobs whose started_at is older than maxAge
// as FAILED, matching job_queue.py's cleanup_stale(max_age_hours).
func (s *Store) CleanupStaleJobs(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(timeLayout)
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE status = ? AND started_at IS NOT NULL AND started_at <= ?`,
		string(JobFailed), fmt.Sprintf("stale: exceeded max age of %s", maxAge), time.Now().UTC().Format(timeLayout),
		string(JobRunning), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup stale jobs: rows affected: %w", err)
	}
	return int(n), nil
}

// CleanupCompletedJobs keeps the keepLast most recently completed terminal
// jobs (by completed_at DESC) and deletes the rest, matching
// job_queue.py's cleanup_completed(keep_last).
func (s *Store) CleanupCompletedJobs(keepLast int) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM jobs WHERE id IN (
			SELECT id FROM jobs
			WHERE status IN (?, ?, ?)
			ORDER BY completed_at DESC, rowid DESC
			LIMIT -1 OFFSET ?
		)`,
		string(JobCompleted), string(JobFailed), string(JobCancelled), keepLast,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup completed jobs: rows affected: %w", err)
	}
	return int(n), nil
}

func checkJobUpdate(res sql.Result, err error, verb string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", verb, err)
	}
	if n == 0 {
		return boaerr.NotFoundf("job not found")
	}
	return nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var status, payloadJSON, createdAt string
	if err := row.Scan(&j.ID, &j.JobType, &j.CampaignID, &payloadJSON, &status, &j.Progress, &j.Error, &createdAt, &j.StartedAt, &j.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return finishJob(&j, status, payloadJSON, createdAt)
}

func scanJobRows(rows *sql.Rows) (*Job, error) {
	var j Job
	var status, payloadJSON, createdAt string
	if err := rows.Scan(&j.ID, &j.JobType, &j.CampaignID, &payloadJSON, &status, &j.Progress, &j.Error, &createdAt, &j.StartedAt, &j.CompletedAt); err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return finishJob(&j, status, payloadJSON, createdAt)
}

func finishJob(j *Job, status, payloadJSON, createdAt string) (*Job, error) {
	j.Status = JobStatus(status)
	j.Payload = map[string]any{}
	if err := unmarshalJSON(payloadJSON, &j.Payload); err != nil {
		return nil, err
	}
	j.CreatedAt = parseTime(createdAt)
	return j, nil
}

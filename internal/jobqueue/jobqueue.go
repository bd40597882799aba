// Package jobqueue implements the durable FIFO job queue and its worker
// loop. The queue never executes work itself — a Handler registered by job
// type does that; the queue only tracks PENDING/RUNNING/terminal state and
// hands the worker loop its next job.
package jobqueue

import (
	"database/sql"
	"errors"
	"time"

	"github.com/antigravity-dev/boa/internal/store"
)

// Queue is a thin, typed façade over the store's job table.
type Queue struct {
	store *store.Store
}

func New(s *store.Store) *Queue {
	return &Queue{store: s}
}

// Enqueue submits a new job of jobType against campaignID (campaignID may be
// empty for campaign-independent maintenance jobs).
func (q *Queue) Enqueue(jobType, campaignID string, payload map[string]any) (*store.Job, error) {
	j := &store.Job{JobType: jobType, CampaignID: campaignID, Payload: payload}
	if err := q.store.EnqueueJob(j); err != nil {
		return nil, err
	}
	return j, nil
}

// Dequeue atomically claims the oldest pending job, or returns (nil, nil) if
// the queue is empty.
func (q *Queue) Dequeue() (*store.Job, error) {
	j, err := q.store.DequeueJob()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

func (q *Queue) Complete(id string) error               { return q.store.CompleteJob(id) }
func (q *Queue) Fail(id, reason string) error            { return q.store.FailJob(id, reason) }
func (q *Queue) Cancel(id string) error                  { return q.store.CancelJob(id) }
func (q *Queue) UpdateProgress(id string, p float64) error { return q.store.UpdateJobProgress(id, p) }
func (q *Queue) Get(id string) (*store.Job, error)       { return q.store.GetJob(id) }

// List returns jobs matching an optional status filter, paginated.
func (q *Queue) List(status store.JobStatus, limit, offset int) ([]store.Job, error) {
	return q.store.ListJobs(status, limit, offset)
}

// CleanupStale fails RUNNING jobs older than maxAge.
func (q *Queue) CleanupStale(maxAge time.Duration) (int, error) {
	return q.store.CleanupStaleJobs(maxAge)
}

// CleanupCompleted prunes terminal jobs beyond the most recent keepLast.
func (q *Queue) CleanupCompleted(keepLast int) (int, error) {
	return q.store.CleanupCompletedJobs(keepLast)
}

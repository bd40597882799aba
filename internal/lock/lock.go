// Package lock implements the campaign write lock: a store-backed mutual
// exclusion primitive ensuring only one mutating operation (initial design,
// optimization iteration, observation recording, decision recording) runs
// against a campaign at a time. The interface shape follows a familiar
// leader-lock pattern, but is backed by a real table
// (internal/store/locks.go) rather than an in-memory stub.
package lock

import (
	"time"

	"github.com/antigravity-dev/boa/internal/store"
)

// CampaignLock guards mutating operations on one campaign at a time.
type CampaignLock struct {
	store *store.Store
	ttl   time.Duration
}

// New builds a CampaignLock backed by store, with the given lease TTL.
func New(s *store.Store, ttl time.Duration) *CampaignLock {
	return &CampaignLock{store: s, ttl: ttl}
}

// Acquire takes the write lock for campaignID under holder's name. Returns
// *boaerr.Locked if another holder currently owns an unexpired lease.
func (l *CampaignLock) Acquire(campaignID, holder string) error {
	return l.store.AcquireCampaignLock(campaignID, holder, l.ttl)
}

// Release gives up the lock. Idempotent.
func (l *CampaignLock) Release(campaignID, holder string) error {
	return l.store.ReleaseCampaignLock(campaignID, holder)
}

// WithLock acquires the lock, runs fn, and always releases afterward —
// whether fn returns an error or not. WithLock opens no transaction: writes
// fn makes are committed as fn makes them and are not rolled back when fn
// returns an error.
func (l *CampaignLock) WithLock(campaignID, holder string, fn func() error) error {
	if err := l.Acquire(campaignID, holder); err != nil {
		return err
	}
	defer l.Release(campaignID, holder)
	return fn()
}

// Sweep removes every expired lock row. Intended to run on a periodic tick
// (see runMaintenanceTick in cmd/boa) so a crashed holder's lease
// is reclaimable well before its next natural refresh would occur anyway.
func (l *CampaignLock) Sweep() (int, error) {
	return l.store.SweepExpiredLocks()
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/antigravity-dev/boa/internal/boaerr"
)

// AcquireCampaignLock attempts to take the write lock for a campaign. It
// succeeds if no lock row exists, the existing lock has expired, or the
// existing lock is already held by the same holder (re-entrant refresh).
// Otherwise it returns a *boaerr.Locked naming the current holder and expiry.
func (s *Store) AcquireCampaignLock(campaignID, holder string, ttl time.Duration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("acquire lock: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	expires := now.Add(ttl)

	var curHolder, expiresAtStr string
	err = tx.QueryRow(`SELECT holder, expires_at FROM campaign_locks WHERE campaign_id = ?`, campaignID).Scan(&curHolder, &expiresAtStr)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO campaign_locks (campaign_id, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
			campaignID, holder, now.UTC().Format(timeLayout), expires.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("acquire lock: insert: %w", err)
		}
	case err != nil:
		return fmt.Errorf("acquire lock: lookup: %w", err)
	default:
		curExpires := parseTime(expiresAtStr)
		if curHolder != holder && now.Before(curExpires) {
			return &boaerr.Locked{CampaignID: campaignID, Holder: curHolder, ExpiresAt: curExpires}
		}
		if _, err := tx.Exec(`UPDATE campaign_locks SET holder = ?, acquired_at = ?, expires_at = ? WHERE campaign_id = ?`,
			holder, now.UTC().Format(timeLayout), expires.UTC().Format(timeLayout), campaignID); err != nil {
			return fmt.Errorf("acquire lock: refresh: %w", err)
		}
	}

	return tx.Commit()
}

// ReleaseCampaignLock releases the lock on a campaign. Idempotent: it is not
// an error to release a lock that does not exist. If holder is non-empty,
// the release only takes effect when holder currently owns the lock.
func (s *Store) ReleaseCampaignLock(campaignID, holder string) error {
	var err error
	if holder == "" {
		_, err = s.db.Exec(`DELETE FROM campaign_locks WHERE campaign_id = ?`, campaignID)
	} else {
		_, err = s.db.Exec(`DELETE FROM campaign_locks WHERE campaign_id = ? AND holder = ?`, campaignID, holder)
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// SweepExpiredLocks deletes every lock row whose expiry has passed, and
// returns how many were removed. Intended to be driven periodically by a
// cron-scheduled maintenance tick.
func (s *Store) SweepExpiredLocks() (int, error) {
	res, err := s.db.Exec(`DELETE FROM campaign_locks WHERE expires_at < ?`, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: rows affected: %w", err)
	}
	return int(n), nil
}

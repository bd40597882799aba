// Package checkpointer implements the model checkpointer: saves/loads
// surrogate model state to named, timestamped files on disk and indexes them
// in the store.
package checkpointer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/antigravity-dev/boa/internal/store"
)

// Checkpointer saves/loads model state under baseDir/<campaign_id>/.
type Checkpointer struct {
	store   *store.Store
	baseDir string
}

func New(s *store.Store, baseDir string) *Checkpointer {
	return &Checkpointer{store: s, baseDir: baseDir}
}

func (c *Checkpointer) campaignDir(campaignID string) string {
	return filepath.Join(c.baseDir, campaignID)
}

// filename builds checkpoint_iter{index}_{strategy}_{YYYYMMDD_HHMMSS}.bin;
// BOA has no torch tensor to name the extension after, so the state is
// opaque JSON under a generic .bin suffix.
func filename(index int, strategy string, at time.Time) string {
	return fmt.Sprintf("checkpoint_iter%d_%s_%s.bin", index, strategy, at.UTC().Format("20060102_150405"))
}

// Save serializes modelState as JSON to a new checkpoint file and records it
// in the store.
func (c *Checkpointer) Save(campaignID string, iterationIndex int, strategy string, modelState map[string]any) (*store.Checkpoint, error) {
	dir := c.campaignDir(campaignID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpointer: create dir %s: %w", dir, err)
	}

	now := time.Now()
	path := filepath.Join(dir, filename(iterationIndex, strategy, now))

	data, err := json.Marshal(modelState)
	if err != nil {
		return nil, fmt.Errorf("checkpointer: marshal model state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("checkpointer: write %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("checkpointer: stat %s: %w", path, err)
	}

	cp := &store.Checkpoint{
		CampaignID:     campaignID,
		IterationIndex: iterationIndex,
		Strategy:       strategy,
		FilePath:       path,
		FileSize:       info.Size(),
		CreatedAt:      now,
	}
	if err := store.CreateCheckpoint(c.store.DB(), cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Load deserializes a checkpoint's model state from disk.
func (c *Checkpointer) Load(cp *store.Checkpoint) (map[string]any, error) {
	data, err := os.ReadFile(cp.FilePath)
	if err != nil {
		return nil, fmt.Errorf("checkpointer: read %s: %w", cp.FilePath, err)
	}
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("checkpointer: unmarshal %s: %w", cp.FilePath, err)
	}
	return state, nil
}

// LoadLatest loads the most recently created checkpoint for a campaign,
// optionally filtered by strategy.
func (c *Checkpointer) LoadLatest(campaignID, strategy string) (map[string]any, *store.Checkpoint, error) {
	checkpoints, err := store.ListCheckpoints(c.store.DB(), campaignID, strategy)
	if err != nil {
		return nil, nil, err
	}
	if len(checkpoints) == 0 {
		return nil, nil, nil
	}
	latest := checkpoints[len(checkpoints)-1]
	state, err := c.Load(&latest)
	if err != nil {
		return nil, nil, err
	}
	return state, &latest, nil
}

// List returns checkpoints for a campaign, oldest first, optionally filtered
// by strategy.
func (c *Checkpointer) List(campaignID, strategy string) ([]store.Checkpoint, error) {
	return store.ListCheckpoints(c.store.DB(), campaignID, strategy)
}

// Cleanup removes all but the keepLatest most recent checkpoints for a
// campaign (optionally scoped to one strategy), deleting both the store row
// and the underlying file, matching checkpointer.py's cleanup(keep_latest).
func (c *Checkpointer) Cleanup(campaignID, strategy string, keepLatest int) (int, error) {
	checkpoints, err := store.ListCheckpoints(c.store.DB(), campaignID, strategy)
	if err != nil {
		return 0, err
	}
	if len(checkpoints) <= keepLatest {
		return 0, nil
	}

	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt) })
	toRemove := checkpoints[:len(checkpoints)-keepLatest]

	removed := 0
	for _, cp := range toRemove {
		if err := os.Remove(cp.FilePath); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("checkpointer: remove %s: %w", cp.FilePath, err)
		}
		if err := store.DeleteCheckpoint(c.store.DB(), cp.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// GetFileSize returns the on-disk size of a checkpoint's file.
func (c *Checkpointer) GetFileSize(cp *store.Checkpoint) (int64, error) {
	info, err := os.Stat(cp.FilePath)
	if err != nil {
		return 0, fmt.Errorf("checkpointer: stat %s: %w", cp.FilePath, err)
	}
	return info.Size(), nil
}

// Package ledger implements the proposal ledger: the transactional append
// log of iterations, proposals, decisions, and observations for one
// campaign.
package ledger

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/antigravity-dev/boa/internal/boaerr"
	"github.com/antigravity-dev/boa/internal/store"
)

// Ledger operates against one Store. Every multi-statement mutating method
// (StartIteration, RecordDecision, AddObservations) runs in its own
// transaction with all-or-nothing commit semantics; the single-row writes
// (AddProposal, AddObservation) are autocommitted. Callers hold the
// campaign write lock around ledger writes.
type Ledger struct {
	store *store.Store
}

func New(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// CurrentIteration returns the latest iteration recorded for a campaign, or
// nil if none exists yet.
func (l *Ledger) CurrentIteration(campaignID string) (*store.Iteration, error) {
	it, err := store.LatestIteration(l.store.DB(), campaignID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// StartIteration creates the next iteration for a campaign: index =
// current.Index+1, or 0 if this is the first iteration. A campaign in the
// CREATED state is auto-promoted to ACTIVE, matching ledger.py's
// start_iteration.
func (l *Ledger) StartIteration(campaignID, strategy, datasetHash string) (*store.Iteration, error) {
	tx, err := l.store.BeginTx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := store.LatestIteration(tx, campaignID)
	index := 0
	if err == nil {
		index = current.Index + 1
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	it := &store.Iteration{CampaignID: campaignID, Index: index, Strategy: strategy, DatasetHash: datasetHash}
	if err := store.CreateIteration(tx, it); err != nil {
		return nil, err
	}

	var status string
	if err := tx.QueryRow(`SELECT status FROM campaigns WHERE id = ?`, campaignID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, boaerr.NotFoundf("campaign %q not found", campaignID)
		}
		return nil, err
	}
	if store.CampaignStatus(status) == store.CampaignCreated {
		if _, err := tx.Exec(`UPDATE campaigns SET status = ?, updated_at = datetime('now') WHERE id = ?`,
			string(store.CampaignActive), campaignID); err != nil {
			return nil, fmt.Errorf("start iteration: activate campaign: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("start iteration: commit: %w", err)
	}
	return it, nil
}

// AddProposal records one strategy run's ordered candidate list generated
// within an iteration.
func (l *Ledger) AddProposal(p *store.Proposal) error {
	return store.CreateProposal(l.store.DB(), p)
}

// RecordDecision records which candidates from an iteration's proposals were
// accepted. Returns boaerr.DecisionAlreadyExists if a decision already
// exists. Each accepted entry's candidate_indices must be in range of the
// referenced proposal's candidate list, matching record_decision's own
// bounds check before it persists the accepted list.
func (l *Ledger) RecordDecision(d *store.Decision) error {
	tx, err := l.store.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, acc := range d.Accepted {
		proposal, err := store.GetProposal(tx, acc.ProposalID)
		if err != nil {
			if err == sql.ErrNoRows {
				return boaerr.New(boaerr.KindValidationError, "decision references unknown proposal %q", acc.ProposalID)
			}
			return err
		}
		n := proposal.NumCandidates()
		for _, idx := range acc.CandidateIndices {
			if idx < 0 || idx >= n {
				return boaerr.New(boaerr.KindValidationError, "candidate_indices %d out of range for proposal %q (%d candidates)", idx, acc.ProposalID, n)
			}
		}
	}

	if err := store.CreateDecision(tx, d); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record decision: commit: %w", err)
	}
	return nil
}

// AddObservation records one (x, y) pair against a campaign.
func (l *Ledger) AddObservation(o *store.Observation) error {
	return store.CreateObservation(l.store.DB(), o)
}

// AddObservations records a batch atomically.
func (l *Ledger) AddObservations(observations []*store.Observation) error {
	tx, err := l.store.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, o := range observations {
		if err := store.CreateObservation(tx, o); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// canonicalKey renders a raw input map into the same canonical string used
// for pending-candidate deduplication: the map's entries sorted by key, then
// concatenated as "key=value;" with each value formatted by %v. This mirrors
// ledger.py:get_pending_candidates's `str(sorted(candidate.items()))`
// approach of building a hashable, order-independent key from a dict.
func canonicalKey(raw map[string]any) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := ""
	for _, k := range keys {
		key += fmt.Sprintf("%s=%v;", k, raw[k])
	}
	return key
}

// PendingCandidate is one accepted-but-not-yet-observed candidate: a single
// point, named back to the proposal and candidate slot it came from, from
// any iteration in the campaign's history (not just the latest). Mirrors
// the dict shape get_pending_candidates builds per accepted item.
type PendingCandidate struct {
	XRaw           map[string]any
	IterationIndex int
	StrategyName   string
	ProposalID     string
	CandidateIndex int
}

// PendingCandidates walks every iteration of a campaign, and for each one
// that has a recorded Decision, resolves its accepted proposal/index pairs
// against that proposal's candidate list, returning every such candidate
// whose x_raw has not yet been matched by an observation (using the
// canonical string-key equality rule above). This mirrors
// ledger.py:get_pending_candidates, which scans all iterations' decisions
// rather than only inspecting the latest iteration's proposals.
func (l *Ledger) PendingCandidates(campaignID string) ([]PendingCandidate, error) {
	iterations, err := store.ListIterations(l.store.DB(), campaignID)
	if err != nil {
		return nil, err
	}

	observations, err := store.ListObservations(l.store.DB(), campaignID)
	if err != nil {
		return nil, err
	}
	observed := make(map[string]bool, len(observations))
	for _, o := range observations {
		observed[canonicalKey(o.XRaw)] = true
	}

	var pending []PendingCandidate
	for _, it := range iterations {
		decision, err := store.GetDecisionForIteration(l.store.DB(), it.ID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}

		proposals, err := store.ListProposals(l.store.DB(), it.ID)
		if err != nil {
			return nil, err
		}
		proposalByID := make(map[string]store.Proposal, len(proposals))
		for _, p := range proposals {
			proposalByID[p.ID] = p
		}

		for _, acc := range decision.Accepted {
			proposal, ok := proposalByID[acc.ProposalID]
			if !ok {
				continue
			}
			for _, idx := range acc.CandidateIndices {
				if idx < 0 || idx >= proposal.NumCandidates() {
					continue
				}
				xRaw := proposal.CandidatesRaw[idx]
				if observed[canonicalKey(xRaw)] {
					continue
				}
				pending = append(pending, PendingCandidate{
					XRaw:           xRaw,
					IterationIndex: it.Index,
					StrategyName:   proposal.StrategyName,
					ProposalID:     proposal.ID,
					CandidateIndex: idx,
				})
			}
		}
	}
	return pending, nil
}

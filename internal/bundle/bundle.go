// Package bundle implements campaign export/import: a self-contained JSON
// snapshot of a process, campaign, and its full observation/iteration/
// proposal/decision/checkpoint history. Model binary state is never
// embedded, only checkpoint metadata — re-running the strategy's fit
// recreates the model.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/antigravity-dev/boa/internal/boaerr"
	"github.com/antigravity-dev/boa/internal/specfile"
	"github.com/antigravity-dev/boa/internal/store"
)

// CurrentVersion is the only bundle format version this implementation
// accepts on import.
const CurrentVersion = "1.0"

// Bundle is the full JSON export of one campaign and its process.
type Bundle struct {
	Version     string             `json:"version"`
	Process     ProcessSection     `json:"process"`
	Campaign    CampaignSection    `json:"campaign"`
	Observations []ObservationEntry `json:"observations"`
	Iterations  []IterationEntry   `json:"iterations"`
	Proposals   []ProposalEntry    `json:"proposals"`
	Decisions   []DecisionEntry    `json:"decisions"`
	Checkpoints []CheckpointEntry  `json:"checkpoints"`
}

type ProcessSection struct {
	Name     string         `json:"name"`
	Version  int            `json:"version"`
	SpecYAML string         `json:"spec_yaml"`
	Metadata map[string]any `json:"metadata"`
}

type CampaignSection struct {
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

type ObservationEntry struct {
	Inputs   map[string]any     `json:"inputs"`
	Outputs  map[string]float64 `json:"outputs"`
	Feasible bool               `json:"feasible"`
	Metadata map[string]any     `json:"metadata,omitempty"`
}

type IterationEntry struct {
	Index             int            `json:"index"`
	Strategy          string         `json:"strategy"`
	AcquisitionConfig map[string]any `json:"acquisition_config,omitempty"`
}

// ProposalEntry is one candidate, flattened out of its owning proposal's
// candidate list. ProposalIndex names which of an iteration's proposals
// (one per strategy run) it came from; CandidateIndex names its slot within
// that proposal's ordered candidate list.
type ProposalEntry struct {
	IterationIndex int            `json:"iteration_index"`
	ProposalIndex  int            `json:"proposal_index"`
	StrategyName   string         `json:"strategy_name"`
	CandidateIndex int            `json:"candidate_index"`
	Inputs         map[string]any `json:"inputs"`
}

// AcceptedEntry names the candidates accepted from one proposal within an
// iteration, by proposal_index/candidate_indices rather than raw proposal
// ID (IDs are freshly minted on import).
type AcceptedEntry struct {
	ProposalIndex    int   `json:"proposal_index"`
	CandidateIndices []int `json:"candidate_indices"`
}

type DecisionEntry struct {
	IterationIndex int             `json:"iteration_index"`
	Accepted       []AcceptedEntry `json:"accepted"`
	Reason         string          `json:"reason,omitempty"`
}

type CheckpointEntry struct {
	IterationIndex int    `json:"iteration_index"`
	ModelType      string `json:"model_type"`
}

// Exporter builds Bundles from store state.
type Exporter struct {
	store *store.Store
}

func NewExporter(s *store.Store) *Exporter {
	return &Exporter{store: s}
}

// Export assembles a full Bundle for campaignID.
func (e *Exporter) Export(campaignID string) (*Bundle, error) {
	campaign, err := e.store.GetCampaign(campaignID)
	if err != nil {
		return nil, boaerr.NotFoundf("campaign %q not found", campaignID)
	}
	proc, err := e.store.GetProcess(campaign.ProcessID)
	if err != nil {
		return nil, boaerr.NotFoundf("process %q not found", campaign.ProcessID)
	}

	iterations, err := store.ListIterations(e.store.DB(), campaignID)
	if err != nil {
		return nil, err
	}
	indexByIterationID := make(map[string]int, len(iterations))
	for _, it := range iterations {
		indexByIterationID[it.ID] = it.Index
	}

	b := &Bundle{
		Version: CurrentVersion,
		Process: ProcessSection{
			Name:     proc.Name,
			Version:  proc.Version,
			SpecYAML: proc.SpecYAML,
		},
		Campaign: CampaignSection{
			Name:     campaign.Name,
			Status:   string(campaign.Status),
			Metadata: campaign.Metadata,
		},
	}

	observations, err := store.ListObservations(e.store.DB(), campaignID)
	if err != nil {
		return nil, err
	}
	for _, o := range observations {
		b.Observations = append(b.Observations, ObservationEntry{
			Inputs:   o.XRaw,
			Outputs:  o.YRaw,
			Feasible: o.Feasible,
		})
	}

	for _, it := range iterations {
		b.Iterations = append(b.Iterations, IterationEntry{Index: it.Index, Strategy: it.Strategy})

		proposals, err := store.ListProposals(e.store.DB(), it.ID)
		if err != nil {
			return nil, err
		}
		proposalIndexByID := make(map[string]int, len(proposals))
		for pi, p := range proposals {
			proposalIndexByID[p.ID] = pi
			for ci, raw := range p.CandidatesRaw {
				b.Proposals = append(b.Proposals, ProposalEntry{
					IterationIndex: it.Index,
					ProposalIndex:  pi,
					StrategyName:   p.StrategyName,
					CandidateIndex: ci,
					Inputs:         raw,
				})
			}
		}

		if d, err := store.GetDecisionForIteration(e.store.DB(), it.ID); err == nil {
			accepted := make([]AcceptedEntry, 0, len(d.Accepted))
			for _, acc := range d.Accepted {
				pi, ok := proposalIndexByID[acc.ProposalID]
				if !ok {
					continue
				}
				accepted = append(accepted, AcceptedEntry{ProposalIndex: pi, CandidateIndices: acc.CandidateIndices})
			}
			b.Decisions = append(b.Decisions, DecisionEntry{
				IterationIndex: it.Index,
				Accepted:       accepted,
				Reason:         d.Note,
			})
		}

		checkpoints, err := store.ListCheckpoints(e.store.DB(), campaignID, "")
		if err != nil {
			return nil, err
		}
		for _, cp := range checkpoints {
			if cp.IterationIndex == it.Index {
				b.Checkpoints = append(b.Checkpoints, CheckpointEntry{IterationIndex: cp.IterationIndex, ModelType: cp.Strategy})
			}
		}
	}

	return b, nil
}

// ExportToFile writes a campaign's bundle as indented JSON to path.
func (e *Exporter) ExportToFile(campaignID, path string) error {
	b, err := e.Export(campaignID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("bundle: write %s: %w", path, err)
	}
	return nil
}

// Importer restores Bundles into store state.
type Importer struct {
	store *store.Store
}

func NewImporter(s *store.Store) *Importer {
	return &Importer{store: s}
}

// ImportResult names the freshly created rows.
type ImportResult struct {
	ProcessID  string
	CampaignID string
}

// Import restores a Bundle: it reuses an existing Process by exact
// (name, version) match (CreateProcess already implements that rule) and
// always mints a fresh Campaign with a new ID. Decision/proposal
// cross-references are restored by iteration index rather than raw ID,
// since every ID here is freshly minted.
func (im *Importer) Import(b *Bundle) (*ImportResult, error) {
	if b.Version != CurrentVersion {
		return nil, boaerr.New(boaerr.KindValidationError, "unsupported bundle version %q (expected %q)", b.Version, CurrentVersion)
	}

	spec, err := specfile.Load(b.Process.SpecYAML, specfile.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("bundle: parse embedded process spec: %w", err)
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal parsed spec: %w", err)
	}

	proc := &store.Process{
		Name:     b.Process.Name,
		Version:  b.Process.Version,
		SpecYAML: b.Process.SpecYAML,
		SpecJSON: string(specJSON),
	}
	if err := im.store.CreateProcess(proc); err != nil {
		return nil, fmt.Errorf("bundle: create/reuse process: %w", err)
	}

	campaign := &store.Campaign{
		ProcessID: proc.ID,
		Name:      b.Campaign.Name,
		Metadata:  b.Campaign.Metadata,
	}
	if err := im.store.CreateCampaign(campaign); err != nil {
		return nil, fmt.Errorf("bundle: create campaign: %w", err)
	}

	iterationIDByIndex := make(map[int]string, len(b.Iterations))
	for _, ie := range b.Iterations {
		it := &store.Iteration{CampaignID: campaign.ID, Index: ie.Index, Strategy: ie.Strategy}
		if err := store.CreateIteration(im.store.DB(), it); err != nil {
			return nil, fmt.Errorf("bundle: create iteration %d: %w", ie.Index, err)
		}
		iterationIDByIndex[ie.Index] = it.ID
	}

	type proposalKey = [2]int // {iteration_index, proposal_index}
	type proposalGroup struct {
		strategyName string
		candidates   map[int]map[string]any
	}
	groups := make(map[proposalKey]*proposalGroup)
	for _, pe := range b.Proposals {
		key := proposalKey{pe.IterationIndex, pe.ProposalIndex}
		g, ok := groups[key]
		if !ok {
			g = &proposalGroup{strategyName: pe.StrategyName, candidates: map[int]map[string]any{}}
			groups[key] = g
		}
		g.candidates[pe.CandidateIndex] = pe.Inputs
	}

	keys := make([]proposalKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	proposalIDByKey := make(map[proposalKey]string, len(keys))
	for _, key := range keys {
		iterID, ok := iterationIDByIndex[key[0]]
		if !ok {
			return nil, boaerr.New(boaerr.KindValidationError, "proposal references unknown iteration_index %d", key[0])
		}
		g := groups[key]
		raw := make([]map[string]any, len(g.candidates))
		for idx, inputs := range g.candidates {
			if idx < 0 || idx >= len(raw) {
				return nil, boaerr.New(boaerr.KindValidationError, "proposal candidate_index %d out of range for iteration %d proposal %d", idx, key[0], key[1])
			}
			raw[idx] = inputs
		}
		p := &store.Proposal{
			IterationID:       iterID,
			StrategyName:      g.strategyName,
			CandidatesRaw:     raw,
			CandidatesEncoded: make([][]float64, len(raw)),
		}
		if err := store.CreateProposal(im.store.DB(), p); err != nil {
			return nil, fmt.Errorf("bundle: create proposal: %w", err)
		}
		proposalIDByKey[key] = p.ID
	}

	for _, de := range b.Decisions {
		iterID, ok := iterationIDByIndex[de.IterationIndex]
		if !ok {
			return nil, boaerr.New(boaerr.KindValidationError, "decision references unknown iteration_index %d", de.IterationIndex)
		}
		accepted := make([]store.AcceptedCandidates, 0, len(de.Accepted))
		for _, ae := range de.Accepted {
			pid, ok := proposalIDByKey[proposalKey{de.IterationIndex, ae.ProposalIndex}]
			if !ok {
				return nil, boaerr.New(boaerr.KindValidationError, "decision references unknown proposal_index %d for iteration %d", ae.ProposalIndex, de.IterationIndex)
			}
			accepted = append(accepted, store.AcceptedCandidates{ProposalID: pid, CandidateIndices: ae.CandidateIndices})
		}
		d := &store.Decision{IterationID: iterID, Accepted: accepted, Note: de.Reason}
		if err := store.CreateDecision(im.store.DB(), d); err != nil {
			return nil, fmt.Errorf("bundle: create decision: %w", err)
		}
	}

	for _, oe := range b.Observations {
		o := &store.Observation{CampaignID: campaign.ID, XRaw: oe.Inputs, YRaw: oe.Outputs, Feasible: oe.Feasible}
		if err := store.CreateObservation(im.store.DB(), o); err != nil {
			return nil, fmt.Errorf("bundle: create observation: %w", err)
		}
	}

	// Checkpoint metadata only; there is no model binary state to restore.

	if err := restoreStatus(im.store, campaign.ID, store.CampaignStatus(b.Campaign.Status)); err != nil {
		return nil, fmt.Errorf("bundle: restore campaign status: %w", err)
	}

	return &ImportResult{ProcessID: proc.ID, CampaignID: campaign.ID}, nil
}

// restoreStatus drives a freshly-created (CREATED) campaign to the target
// status, walking through ACTIVE first when the target isn't directly
// reachable from CREATED (e.g. a COMPLETED export), since the state machine
// in internal/store/campaigns.go only allows CREATED -> ACTIVE; an ARCHIVED
// target is reached through ACTIVE -> COMPLETED.
func restoreStatus(s *store.Store, campaignID string, target store.CampaignStatus) error {
	if target == "" || target == store.CampaignCreated {
		return nil
	}
	if target != store.CampaignActive {
		if err := s.SetCampaignStatus(campaignID, store.CampaignActive); err != nil {
			return err
		}
	}
	if target == store.CampaignArchived {
		if err := s.SetCampaignStatus(campaignID, store.CampaignCompleted); err != nil {
			return err
		}
	}
	return s.SetCampaignStatus(campaignID, target)
}

// ImportFromFile reads and imports a bundle from a JSON file on disk.
func (im *Importer) ImportFromFile(path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", path, err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal %s: %w", path, err)
	}
	return im.Import(&b)
}

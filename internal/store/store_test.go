package store

import (
	"database/sql"
	"testing"
	"time"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProcess(t *testing.T, s *Store) *Process {
	t.Helper()
	p := &Process{Name: "widget_yield", Version: 1, SpecYAML: "name: widget_yield", SpecJSON: "{}"}
	if err := s.CreateProcess(p); err != nil {
		t.Fatalf("CreateProcess failed: %v", err)
	}
	return p
}

func seedCampaign(t *testing.T, s *Store, processID string) *Campaign {
	t.Helper()
	c := &Campaign{ProcessID: processID, Name: "run-1"}
	if err := s.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}
	return c
}

func TestCreateProcessReusesExistingNameVersion(t *testing.T) {
	s := tempStore(t)
	p1 := seedProcess(t, s)
	p2 := &Process{Name: "widget_yield", Version: 1, SpecYAML: "name: widget_yield", SpecJSON: "{}"}
	if err := s.CreateProcess(p2); err != nil {
		t.Fatalf("CreateProcess (reuse) failed: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatalf("expected reused process ID %q, got %q", p1.ID, p2.ID)
	}
}

func TestGetProcessByNameVersion(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	got, err := s.GetProcessByNameVersion("widget_yield", 1)
	if err != nil {
		t.Fatalf("GetProcessByNameVersion failed: %v", err)
	}
	if got.ID != p.ID {
		t.Fatalf("got process %q, want %q", got.ID, p.ID)
	}
}

func TestCampaignStatusStateMachineAllowsDocumentedTransitions(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c := seedCampaign(t, s, p.ID)

	if err := s.SetCampaignStatus(c.ID, CampaignActive); err != nil {
		t.Fatalf("created -> active failed: %v", err)
	}
	if err := s.SetCampaignStatus(c.ID, CampaignPaused); err != nil {
		t.Fatalf("active -> paused failed: %v", err)
	}
	if err := s.SetCampaignStatus(c.ID, CampaignActive); err != nil {
		t.Fatalf("paused -> active (resume) failed: %v", err)
	}
	if err := s.SetCampaignStatus(c.ID, CampaignCompleted); err != nil {
		t.Fatalf("active -> completed failed: %v", err)
	}
	if err := s.SetCampaignStatus(c.ID, CampaignArchived); err != nil {
		t.Fatalf("completed -> archived failed: %v", err)
	}
}

func TestCampaignStatusStateMachineRejectsInvalidTransition(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c := seedCampaign(t, s, p.ID)

	if err := s.SetCampaignStatus(c.ID, CampaignActive); err != nil {
		t.Fatalf("created -> active failed: %v", err)
	}
	if err := s.SetCampaignStatus(c.ID, CampaignCompleted); err != nil {
		t.Fatalf("active -> completed failed: %v", err)
	}
	if err := s.SetCampaignStatus(c.ID, CampaignArchived); err != nil {
		t.Fatalf("completed -> archived failed: %v", err)
	}
	if err := s.SetCampaignStatus(c.ID, CampaignActive); err == nil {
		t.Fatal("expected archived -> active to be rejected")
	}
}

func TestListCampaignsFiltersByStatus(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c1 := seedCampaign(t, s, p.ID)
	c2 := &Campaign{ProcessID: p.ID, Name: "run-2"}
	if err := s.CreateCampaign(c2); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}
	if err := s.SetCampaignStatus(c1.ID, CampaignActive); err != nil {
		t.Fatalf("SetCampaignStatus failed: %v", err)
	}

	active, err := s.ListCampaigns(CampaignActive)
	if err != nil {
		t.Fatalf("ListCampaigns failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != c1.ID {
		t.Fatalf("expected exactly campaign %q in active list, got %+v", c1.ID, active)
	}

	all, err := s.ListCampaigns("")
	if err != nil {
		t.Fatalf("ListCampaigns(all) failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 campaigns total, got %d", len(all))
	}
}

func TestIterationLifecycle(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c := seedCampaign(t, s, p.ID)

	it0 := &Iteration{CampaignID: c.ID, Index: 0, Strategy: "default"}
	it1 := &Iteration{CampaignID: c.ID, Index: 1, Strategy: "default"}
	if err := CreateIteration(s.DB(), it0); err != nil {
		t.Fatalf("CreateIteration(0) failed: %v", err)
	}
	if err := CreateIteration(s.DB(), it1); err != nil {
		t.Fatalf("CreateIteration(1) failed: %v", err)
	}

	latest, err := LatestIteration(s.DB(), c.ID)
	if err != nil {
		t.Fatalf("LatestIteration failed: %v", err)
	}
	if latest.ID != it1.ID {
		t.Fatalf("expected latest iteration %q, got %q", it1.ID, latest.ID)
	}

	all, err := ListIterations(s.DB(), c.ID)
	if err != nil {
		t.Fatalf("ListIterations failed: %v", err)
	}
	if len(all) != 2 || all[0].Index != 0 || all[1].Index != 1 {
		t.Fatalf("expected iterations ordered by index, got %+v", all)
	}
}

func TestProposalRoundTrip(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c := seedCampaign(t, s, p.ID)
	it := &Iteration{CampaignID: c.ID, Index: 0}
	if err := CreateIteration(s.DB(), it); err != nil {
		t.Fatalf("CreateIteration failed: %v", err)
	}

	prop := &Proposal{
		IterationID:  it.ID,
		StrategyName: "default",
		CandidatesRaw: []map[string]any{
			{"temperature": 42.0},
			{"temperature": 43.0},
		},
		CandidatesEncoded: [][]float64{{0.5, 0.25}, {0.6, 0.3}},
		PredictedMean:     [][]float64{{1.0, 2.0}, {1.1, 2.1}},
		PredictedStd:      [][]float64{{0.1, 0.2}, {0.1, 0.2}},
	}
	if err := CreateProposal(s.DB(), prop); err != nil {
		t.Fatalf("CreateProposal failed: %v", err)
	}

	got, err := GetProposal(s.DB(), prop.ID)
	if err != nil {
		t.Fatalf("GetProposal failed: %v", err)
	}
	if got.StrategyName != "default" {
		t.Fatalf("unexpected strategy name round trip: %+v", got)
	}
	if got.CandidatesRaw[0]["temperature"].(float64) != 42.0 {
		t.Fatalf("unexpected CandidatesRaw round trip: %+v", got.CandidatesRaw)
	}
	if len(got.CandidatesEncoded) != 2 || len(got.PredictedMean) != 2 {
		t.Fatalf("unexpected encoded/mean round trip: %+v", got)
	}

	list, err := ListProposals(s.DB(), it.ID)
	if err != nil {
		t.Fatalf("ListProposals failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(list))
	}
}

func TestDecisionRejectsDuplicateForSameIteration(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c := seedCampaign(t, s, p.ID)
	it := &Iteration{CampaignID: c.ID, Index: 0}
	if err := CreateIteration(s.DB(), it); err != nil {
		t.Fatalf("CreateIteration failed: %v", err)
	}

	d1 := &Decision{IterationID: it.ID, Accepted: []AcceptedCandidates{{ProposalID: "p1", CandidateIndices: []int{0}}}}
	if err := CreateDecision(s.DB(), d1); err != nil {
		t.Fatalf("CreateDecision failed: %v", err)
	}
	d2 := &Decision{IterationID: it.ID, Accepted: []AcceptedCandidates{{ProposalID: "p2", CandidateIndices: []int{0}}}}
	if err := CreateDecision(s.DB(), d2); err == nil {
		t.Fatal("expected a second decision for the same iteration to be rejected")
	}

	got, err := GetDecisionForIteration(s.DB(), it.ID)
	if err != nil {
		t.Fatalf("GetDecisionForIteration failed: %v", err)
	}
	if len(got.Accepted) != 1 || got.Accepted[0].ProposalID != "p1" || len(got.Accepted[0].CandidateIndices) != 1 {
		t.Fatalf("unexpected accepted candidates: %+v", got.Accepted)
	}
}

func TestObservationsListedInInsertionOrder(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c := seedCampaign(t, s, p.ID)

	o1 := &Observation{CampaignID: c.ID, XRaw: map[string]any{"t": 1.0}, YRaw: map[string]float64{"yield": 1}, Feasible: true}
	o2 := &Observation{CampaignID: c.ID, XRaw: map[string]any{"t": 2.0}, YRaw: map[string]float64{"yield": 2}, Feasible: true}
	if err := CreateObservation(s.DB(), o1); err != nil {
		t.Fatalf("CreateObservation(1) failed: %v", err)
	}
	if err := CreateObservation(s.DB(), o2); err != nil {
		t.Fatalf("CreateObservation(2) failed: %v", err)
	}

	list, err := ListObservations(s.DB(), c.ID)
	if err != nil {
		t.Fatalf("ListObservations failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != o1.ID || list[1].ID != o2.ID {
		t.Fatalf("expected observations in insertion order, got %+v", list)
	}
}

func TestCheckpointListAndDelete(t *testing.T) {
	s := tempStore(t)
	p := seedProcess(t, s)
	c := seedCampaign(t, s, p.ID)

	ck := &Checkpoint{CampaignID: c.ID, IterationIndex: 0, Strategy: "default", FilePath: "/tmp/x.json", FileSize: 10}
	if err := CreateCheckpoint(s.DB(), ck); err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	list, err := ListCheckpoints(s.DB(), c.ID, "")
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(list))
	}

	if err := DeleteCheckpoint(s.DB(), ck.ID); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}
	list, err = ListCheckpoints(s.DB(), c.ID, "")
	if err != nil {
		t.Fatalf("ListCheckpoints after delete failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected 0 checkpoints after delete, got %d", len(list))
	}
}

func TestJobQueueDequeueClaimsOldestPending(t *testing.T) {
	s := tempStore(t)
	j1 := &Job{JobType: "optimize_iteration", CampaignID: "c1"}
	if err := s.EnqueueJob(j1); err != nil {
		t.Fatalf("EnqueueJob(1) failed: %v", err)
	}
	j2 := &Job{JobType: "optimize_iteration", CampaignID: "c1"}
	if err := s.EnqueueJob(j2); err != nil {
		t.Fatalf("EnqueueJob(2) failed: %v", err)
	}

	got, err := s.DequeueJob()
	if err != nil {
		t.Fatalf("DequeueJob failed: %v", err)
	}
	if got.ID != j1.ID {
		t.Fatalf("expected oldest job %q dequeued first, got %q", j1.ID, got.ID)
	}
	if got.Status != JobRunning {
		t.Fatalf("expected dequeued job to be RUNNING, got %v", got.Status)
	}
}

func TestJobQueueDequeueEmptyReturnsNoRows(t *testing.T) {
	s := tempStore(t)
	if _, err := s.DequeueJob(); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows on an empty queue, got %v", err)
	}
}

func TestJobLifecycleCompleteFailCancel(t *testing.T) {
	s := tempStore(t)
	j := &Job{JobType: "analyze_campaign", CampaignID: "c1"}
	if err := s.EnqueueJob(j); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if _, err := s.DequeueJob(); err != nil {
		t.Fatalf("DequeueJob failed: %v", err)
	}

	if err := s.CancelJob(j.ID); err == nil {
		t.Fatal("expected cancelling a RUNNING job to fail")
	}
	if err := s.UpdateJobProgress(j.ID, 0.5); err != nil {
		t.Fatalf("UpdateJobProgress failed: %v", err)
	}
	if err := s.CompleteJob(j.ID); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	got, err := s.GetJob(j.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != JobCompleted || got.Progress != 1.0 {
		t.Fatalf("expected COMPLETED status with progress 1.0, got %+v", got)
	}

	// Cancelling an already-terminal job is a no-op.
	if err := s.CancelJob(j.ID); err != nil {
		t.Fatalf("expected cancelling a terminal job to no-op, got %v", err)
	}
}

func TestJobCleanupStaleMarksOldRunningJobsFailed(t *testing.T) {
	s := tempStore(t)
	j := &Job{JobType: "optimize_iteration", CampaignID: "c1"}
	if err := s.EnqueueJob(j); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if _, err := s.DequeueJob(); err != nil {
		t.Fatalf("DequeueJob failed: %v", err)
	}

	n, err := s.CleanupStaleJobs(0)
	if err != nil {
		t.Fatalf("CleanupStaleJobs failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale job cleaned up, got %d", n)
	}
	got, err := s.GetJob(j.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != JobFailed {
		t.Fatalf("expected stale job marked FAILED, got %v", got.Status)
	}
}

func TestJobCleanupCompletedKeepsOnlyMostRecent(t *testing.T) {
	s := tempStore(t)
	for i := 0; i < 3; i++ {
		j := &Job{JobType: "optimize_iteration", CampaignID: "c1"}
		if err := s.EnqueueJob(j); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
		if err := s.CompleteJob(j.ID); err != nil {
			t.Fatalf("CompleteJob failed: %v", err)
		}
	}
	n, err := s.CleanupCompletedJobs(1)
	if err != nil {
		t.Fatalf("CleanupCompletedJobs failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 jobs deleted keeping the most recent 1, got %d", n)
	}
	remaining, err := s.ListJobs("", 0, 0)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining job, got %d", len(remaining))
	}
}

func TestCampaignLockAcquireReleaseAndContention(t *testing.T) {
	s := tempStore(t)
	if err := s.AcquireCampaignLock("c1", "worker-a", time.Minute); err != nil {
		t.Fatalf("initial acquire failed: %v", err)
	}
	if err := s.AcquireCampaignLock("c1", "worker-b", time.Minute); err == nil {
		t.Fatal("expected a second holder to be rejected while the lock is held")
	}
	if err := s.AcquireCampaignLock("c1", "worker-a", time.Minute); err != nil {
		t.Fatalf("expected the same holder to be able to refresh the lock, got %v", err)
	}
	if err := s.ReleaseCampaignLock("c1", "worker-a"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := s.AcquireCampaignLock("c1", "worker-b", time.Minute); err != nil {
		t.Fatalf("expected worker-b to acquire after release, got %v", err)
	}
}

func TestSweepExpiredLocksRemovesOnlyExpired(t *testing.T) {
	s := tempStore(t)
	if err := s.AcquireCampaignLock("expired", "worker-a", -time.Minute); err != nil {
		t.Fatalf("acquire (already-expired) failed: %v", err)
	}
	if err := s.AcquireCampaignLock("live", "worker-b", time.Hour); err != nil {
		t.Fatalf("acquire (live) failed: %v", err)
	}

	n, err := s.SweepExpiredLocks()
	if err != nil {
		t.Fatalf("SweepExpiredLocks failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired lock swept, got %d", n)
	}
	if err := s.AcquireCampaignLock("live", "worker-c", time.Hour); err == nil {
		t.Fatal("expected the still-live lock to remain held after sweep")
	}
}

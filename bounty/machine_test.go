package bounty

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
	"github.com/deep60/nexus-intel/reputation"
)

// TestSubmit_WiresRealReputationEngine is a composition smoke test: the C6
// reputation.Engine satisfies Machine's ReputationSource directly, with
// no adapter needed.
func TestSubmit_WiresRealReputationEngine(t *testing.T) {
	rep := reputation.New(nil, nil)
	if err := rep.ApplyDeltas(context.Background(), []domain.ReputationDelta{
		{EngineID: "engine-1", WasCorrect: true, Confidence: 0.9, ResponseTime: time.Second},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := New(NewMemoryStore(), rep, nil, nil, Config{})
	b := openTestBounty(t, m, func(s *domain.BountySpec) { s.MinStake = 1 })

	if _, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, rep.MinStake("engine-1"), ""); err != nil {
		t.Fatalf("unexpected error submitting with the real reputation engine wired in: %v", err)
	}
}

type fakeReputation struct {
	minStake int64
	score    float64
}

func (r fakeReputation) MinStake(engineID string) int64         { return r.minStake }
func (r fakeReputation) Score(ctx context.Context, engineID string) float64 { return r.score }

func newTestMachine() *Machine {
	return New(NewMemoryStore(), fakeReputation{minStake: 0, score: 1000}, nil, nil, Config{})
}

func openTestBounty(t *testing.T, m *Machine, opts func(*domain.BountySpec)) *domain.Bounty {
	t.Helper()
	spec := domain.BountySpec{
		Creator:           "creator-1",
		RewardPool:        1000,
		MinStake:          10,
		MinReputation:     0,
		RequiredConsensus: 0.5,
		Deadline:          time.Now().Add(time.Hour),
	}
	if opts != nil {
		opts(&spec)
	}
	b, err := m.OpenBounty(context.Background(), spec)
	if err != nil {
		t.Fatalf("unexpected error opening bounty: %v", err)
	}
	return b
}

func TestSubmit_Admits(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)

	sub, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 100, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != domain.SubmissionActive {
		t.Fatalf("got status %v, want active", sub.Status)
	}
}

func TestSubmit_RejectsDoubleSubmission(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)

	if _, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 100, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictBenign, 0.5, 100, "")
	if nexuserrors.Code(err) != nexuserrors.ErrCodeAlreadySubmitted {
		t.Fatalf("got code %v, want AlreadySubmitted", nexuserrors.Code(err))
	}
}

func TestSubmit_ConcurrentDoubleSubmissionResolvesToOne(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 100, "")
			results[i] = err
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range results {
		if err == nil {
			admitted++
		}
	}
	if admitted != 1 {
		t.Fatalf("got %d admissions, want exactly 1 under concurrent double-submission", admitted)
	}
}

func TestSubmit_ParticipantCapEnforced(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, func(s *domain.BountySpec) { s.MaxParticipants = 2 })

	if _, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 100, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Submit(context.Background(), b.ID, "engine-2", domain.VerdictBenign, 0.9, 100, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := m.Submit(context.Background(), b.ID, "engine-3", domain.VerdictBenign, 0.9, 100, "")
	if nexuserrors.Code(err) != nexuserrors.ErrCodeParticipantCapReached {
		t.Fatalf("got code %v, want ParticipantCapReached", nexuserrors.Code(err))
	}
}

func TestSubmit_PastDeadlineRejected(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, func(s *domain.BountySpec) { s.Deadline = time.Now().Add(50 * time.Millisecond) })

	time.Sleep(60 * time.Millisecond)
	_, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 100, "")
	if nexuserrors.Code(err) != nexuserrors.ErrCodePastDeadline {
		t.Fatalf("got code %v, want PastDeadline", nexuserrors.Code(err))
	}
}

func TestSubmit_ConfidenceOutOfRangeRejected(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)

	_, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 1.5, 100, "")
	if nexuserrors.Code(err) != nexuserrors.ErrCodeConfidenceOutOfRange {
		t.Fatalf("got code %v, want ConfidenceOutOfRange", nexuserrors.Code(err))
	}
}

func TestSubmit_StakeTooLowRejected(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)

	_, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 1, "")
	if nexuserrors.Code(err) != nexuserrors.ErrCodeStakeTooLow {
		t.Fatalf("got code %v, want StakeTooLow", nexuserrors.Code(err))
	}
}

func TestSubmit_ReputationTooLowRejected(t *testing.T) {
	m := New(NewMemoryStore(), fakeReputation{minStake: 0, score: 10}, nil, nil, Config{})
	b := openTestBounty(t, m, func(s *domain.BountySpec) { s.MinReputation = 500 })

	_, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 100, "")
	if nexuserrors.Code(err) != nexuserrors.ErrCodeReputationTooLow {
		t.Fatalf("got code %v, want ReputationTooLow", nexuserrors.Code(err))
	}
}

func TestSnapshot_FreezesSubmissionsAndTransitionsToUnderReview(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)
	if _, err := m.Submit(context.Background(), b.ID, "engine-1", domain.VerdictMalicious, 0.9, 100, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frozen, subs, err := m.Snapshot(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frozen.Status != domain.BountyUnderReview {
		t.Fatalf("got status %v, want under_review", frozen.Status)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d submissions, want 1", len(subs))
	}

	// bounty no longer accepts new submissions post-snapshot
	_, err = m.Submit(context.Background(), b.ID, "engine-2", domain.VerdictBenign, 0.5, 100, "")
	if nexuserrors.Code(err) != nexuserrors.ErrCodeBountyNotActive {
		t.Fatalf("got code %v, want BountyNotActive", nexuserrors.Code(err))
	}
}

func TestDispute_RejectedBeforeCompletion(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)

	_, err := m.Dispute(context.Background(), b.ID, "engine-1", domain.DisputeTypeIncorrectVerdict, nil)
	if nexuserrors.Code(err) != nexuserrors.ErrCodeNotDisputable {
		t.Fatalf("got code %v, want NotDisputable", nexuserrors.Code(err))
	}
}

func TestDispute_OpensAfterCompletion(t *testing.T) {
	m := newTestMachine()
	b := openTestBounty(t, m, nil)
	if err := m.Complete(context.Background(), b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := m.Dispute(context.Background(), b.ID, "engine-1", domain.DisputeTypeUnfairSlash, []domain.Evidence{{Description: "reanalysis shows benign"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != domain.DisputeOpen {
		t.Fatalf("got status %v, want open", d.Status)
	}

	frozen, _, err := m.Snapshot(context.Background(), b.ID)
	_ = frozen
	if nexuserrors.Code(err) != nexuserrors.ErrCodeNotFinalizable {
		t.Fatalf("got code %v, want NotFinalizable (disputed bounty is not re-snapshottable)", nexuserrors.Code(err))
	}
}

func TestDispute_RejectedOutsideWindow(t *testing.T) {
	m := New(NewMemoryStore(), fakeReputation{minStake: 0, score: 1000}, nil, nil, Config{DisputeWindow: 10 * time.Millisecond})
	b := openTestBounty(t, m, nil)
	if err := m.Complete(context.Background(), b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	_, err := m.Dispute(context.Background(), b.ID, "engine-1", domain.DisputeTypeIncorrectVerdict, nil)
	if nexuserrors.Code(err) != nexuserrors.ErrCodeWindowClosed {
		t.Fatalf("got code %v, want WindowClosed", nexuserrors.Code(err))
	}
}

package platform

import (
	"context"
	"testing"
	"time"

	"github.com/deep60/nexus-intel/bounty"
	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/ledger"
	"github.com/deep60/nexus-intel/pipeline"
	"github.com/deep60/nexus-intel/pipeline/analyzer"
	"github.com/deep60/nexus-intel/pipeline/artifactstore"
	"github.com/deep60/nexus-intel/platform/core"
	"github.com/deep60/nexus-intel/reputation"
)

// stubAnalyzer always produces a fixed detection, just enough to drive an
// AnalysisResult through the full Analyze->Submit->Finalize lifecycle.
type stubAnalyzer struct{}

func (stubAnalyzer) ID() string                    { return "stub-v1" }
func (stubAnalyzer) Type() domain.AnalyzerType      { return domain.AnalyzerTypeStatic }
func (stubAnalyzer) DefaultTimeout() time.Duration  { return time.Second }
func (stubAnalyzer) Accepts(domain.ArtifactKind) bool { return true }
func (stubAnalyzer) Analyze(ctx context.Context, ref domain.ArtifactRef, data []byte, opts analyzer.Options) analyzer.Outcome {
	return analyzer.Produced(domain.Detection{AnalyzerID: "stub-v1", Verdict: domain.VerdictMalicious, Confidence: 0.9, Severity: domain.SeverityHigh})
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	store := artifactstore.NewInMemoryStore()
	store.Seed("contentaddr", []byte("payload"))

	p := pipeline.New(store, []analyzer.Analyzer{stubAnalyzer{}}, pipeline.DefaultConfig(), core.NewDispatchOptions(), nil)
	b := bounty.New(bounty.NewMemoryStore(), reputation.New(nil, nil), nil, nil, bounty.Config{})
	rep := reputation.New(nil, nil)
	lg := ledger.NewStubLedger()

	return New(p, b, rep, lg, nil)
}

func TestCore_FullLifecycle_AnalyzeSubmitFinalize(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	result, err := c.Analyze(ctx, pipeline.Request{
		Artifact:        domain.ArtifactRef{ContentAddress: "contentaddr", Kind: domain.ArtifactKindFile},
		OverallDeadline: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected analyze error: %v", err)
	}
	if result.ConsensusVerdict != domain.VerdictMalicious {
		t.Fatalf("got verdict %v, want malicious", result.ConsensusVerdict)
	}

	b, err := c.OpenBounty(ctx, domain.BountySpec{
		Creator: "creator-1", RewardPool: 1000, MinStake: 10, RequiredConsensus: 0.5,
		Deadline: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected open_bounty error: %v", err)
	}

	if _, err := c.Submit(ctx, b.ID, "engine-1", result.ConsensusVerdict, 0.9, 100, result.ResultID); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if _, err := c.Submit(ctx, b.ID, "engine-2", domain.VerdictMalicious, 0.8, 100, ""); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	// Fresh engines score 0 and so carry zero settlement weight, which
	// would settle Unknown; give both a reputation first.
	if err := c.reputation.ApplyDeltas(ctx, []domain.ReputationDelta{
		{EngineID: "engine-1", WasCorrect: true, Confidence: 0.9, ResponseTime: time.Second},
		{EngineID: "engine-2", WasCorrect: true, Confidence: 0.9, ResponseTime: time.Second},
	}); err != nil {
		t.Fatalf("unexpected reputation seeding error: %v", err)
	}

	settlement, err := c.Finalize(ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected finalize error: %v", err)
	}
	if settlement.ConsensusVerdict != domain.VerdictMalicious {
		t.Fatalf("got settlement verdict %v, want malicious", settlement.ConsensusVerdict)
	}
	if len(settlement.Rewards) != 2 {
		t.Fatalf("got %d rewards, want 2", len(settlement.Rewards))
	}

	dispute, err := c.Dispute(ctx, b.ID, "engine-2", domain.DisputeTypeIncorrectVerdict, nil)
	if err != nil {
		t.Fatalf("unexpected dispute error: %v", err)
	}
	if dispute.Status != domain.DisputeOpen {
		t.Fatalf("got dispute status %v, want open", dispute.Status)
	}
}

func TestCore_FinalizeRejectsUnknownBounty(t *testing.T) {
	c := newTestCore(t)
	_, err := c.Finalize(context.Background(), "nonexistent")
	if err == nil {
		t.Fatalf("expected an error finalizing an unknown bounty")
	}
}

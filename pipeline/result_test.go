package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/deep60/nexus-intel/domain"
)

func TestAddDetection_RecomputesMalicious(t *testing.T) {
	r := NewResult("r1", domain.ArtifactRef{}, time.Now())
	AddDetection(r, domain.Detection{Verdict: domain.VerdictMalicious, Confidence: 0.9, Severity: domain.SeverityCritical})
	AddDetection(r, domain.Detection{Verdict: domain.VerdictBenign, Confidence: 0.9, Severity: domain.SeverityLow})

	if r.ConsensusVerdict != domain.VerdictMalicious {
		t.Fatalf("got %v, want malicious", r.ConsensusVerdict)
	}
}

func TestAddDetection_NoStrictMajorityIsSuspicious(t *testing.T) {
	r := NewResult("r1", domain.ArtifactRef{}, time.Now())
	AddDetection(r, domain.Detection{Verdict: domain.VerdictMalicious, Confidence: 0.5, Severity: domain.SeverityMedium})
	AddDetection(r, domain.Detection{Verdict: domain.VerdictBenign, Confidence: 0.5, Severity: domain.SeverityMedium})
	AddDetection(r, domain.Detection{Verdict: domain.VerdictSuspicious, Confidence: 0.1, Severity: domain.SeverityInfo})

	if r.ConsensusVerdict != domain.VerdictSuspicious {
		t.Fatalf("got %v, want suspicious (W_S > 0 tiebreak)", r.ConsensusVerdict)
	}
}

func TestAddDetection_NoDetectionsIsUnknown(t *testing.T) {
	r := NewResult("r1", domain.ArtifactRef{}, time.Now())
	if r.ConsensusVerdict != domain.VerdictUnknown {
		t.Fatalf("got %v, want unknown", r.ConsensusVerdict)
	}
	if r.ConsensusConfidence != 0 {
		t.Fatalf("got confidence %v, want 0", r.ConsensusConfidence)
	}
}

func TestAddDetection_ConfidenceIsArithmeticMean(t *testing.T) {
	r := NewResult("r1", domain.ArtifactRef{}, time.Now())
	AddDetection(r, domain.Detection{Verdict: domain.VerdictMalicious, Confidence: 0.8, Severity: domain.SeverityHigh})
	AddDetection(r, domain.Detection{Verdict: domain.VerdictMalicious, Confidence: 0.4, Severity: domain.SeverityHigh})

	if math.Abs(r.ConsensusConfidence-0.6) > 1e-12 {
		t.Fatalf("got %v, want 0.6", r.ConsensusConfidence)
	}
}

func TestAddDetection_SeverityIsMax(t *testing.T) {
	r := NewResult("r1", domain.ArtifactRef{}, time.Now())
	AddDetection(r, domain.Detection{Verdict: domain.VerdictMalicious, Confidence: 0.5, Severity: domain.SeverityLow})
	AddDetection(r, domain.Detection{Verdict: domain.VerdictMalicious, Confidence: 0.5, Severity: domain.SeverityCritical})

	if r.ConsensusSeverity != domain.SeverityCritical {
		t.Fatalf("got %v, want critical", r.ConsensusSeverity)
	}
}

func TestAdvance_MonotonicStatus(t *testing.T) {
	r := NewResult("r1", domain.ArtifactRef{}, time.Now())
	Advance(r, domain.AnalysisInProgress, time.Now())
	if r.Status != domain.AnalysisInProgress {
		t.Fatalf("got %v, want in_progress", r.Status)
	}

	// attempting to revert is a no-op
	Advance(r, domain.AnalysisPending, time.Now())
	if r.Status != domain.AnalysisInProgress {
		t.Fatalf("status reverted: got %v", r.Status)
	}
}

func TestAdvance_FinishedAtSetOnce(t *testing.T) {
	r := NewResult("r1", domain.ArtifactRef{}, time.Now())
	Advance(r, domain.AnalysisInProgress, time.Now())

	first := time.Now()
	Advance(r, domain.AnalysisCompleted, first)
	if r.FinishedAt != first {
		t.Fatalf("expected finished_at to be set")
	}

	// a further attempt to re-finish is a no-op: status can't re-advance to
	// a terminal state and FinishedAt stays the first-set value.
	later := first.Add(time.Minute)
	Advance(r, domain.AnalysisFailed, later)
	if r.FinishedAt != first {
		t.Fatalf("finished_at must be set exactly once, got %v want %v", r.FinishedAt, first)
	}
}

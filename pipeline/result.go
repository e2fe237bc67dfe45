package pipeline

import (
	"time"

	"github.com/deep60/nexus-intel/domain"
)

// NewResult starts a fresh, Pending AnalysisResult for one artifact traversal.
func NewResult(resultID string, artifact domain.ArtifactRef, startedAt time.Time) *domain.AnalysisResult {
	r := domain.NewAnalysisResult(resultID, artifact)
	r.StartedAt = startedAt
	return r
}

// AddDetection appends a detection and recomputes the consensus fields
// (§4.3.3 invariant ii: "consensus fields are recomputed only when a
// detection is added").
func AddDetection(r *domain.AnalysisResult, d domain.Detection) {
	r.Detections = append(r.Detections, d)
	recomputeConsensus(r)
}

// AddError appends a per-analyzer failure to the result's error list. It
// does not affect consensus.
func AddError(r *domain.AnalysisResult, e domain.AnalyzerError) {
	r.Errors = append(r.Errors, e)
}

// Advance moves the result to next if the transition is monotonic (§3
// invariant i), and is a no-op otherwise.
func Advance(r *domain.AnalysisResult, next domain.AnalysisStatus, at time.Time) {
	if !r.Status.CanAdvance(next) {
		return
	}
	r.Status = next
	if next == domain.AnalysisCompleted || next == domain.AnalysisFailed || next == domain.AnalysisTimeout {
		r.SetFinished(at)
	}
}

// recomputeConsensus implements §4.3.3: weighted verdict counting with a
// Malicious > Benign > Suspicious > Unknown precedence, confidence as the
// arithmetic mean of produced detections, and severity as the observed max.
func recomputeConsensus(r *domain.AnalysisResult) {
	var wM, wS, wB float64
	var confidenceSum float64
	severity := domain.SeverityInfo
	hasDetection := len(r.Detections) > 0

	for _, d := range r.Detections {
		weight := d.Confidence * domain.SeverityWeight(d.Severity)
		switch d.Verdict {
		case domain.VerdictMalicious:
			wM += weight
		case domain.VerdictSuspicious:
			wS += weight
		case domain.VerdictBenign:
			wB += weight
		}
		confidenceSum += d.Confidence
		severity = domain.MaxSeverity(severity, d.Severity)
	}

	switch {
	case wM > wB && wM > wS:
		r.ConsensusVerdict = domain.VerdictMalicious
	case wB > wM && wB > wS:
		r.ConsensusVerdict = domain.VerdictBenign
	case wS > 0:
		r.ConsensusVerdict = domain.VerdictSuspicious
	default:
		r.ConsensusVerdict = domain.VerdictUnknown
	}

	if hasDetection {
		r.ConsensusConfidence = confidenceSum / float64(len(r.Detections))
		r.ConsensusSeverity = severity
	} else {
		r.ConsensusConfidence = 0
	}
}

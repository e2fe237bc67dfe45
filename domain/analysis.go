package domain

import "time"

// AnalysisStatus is the monotonic lifecycle of one artifact traversal
// through the analysis pipeline (§3 AnalysisResult invariant i).
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisInProgress AnalysisStatus = "in_progress"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
	AnalysisTimeout    AnalysisStatus = "timeout"
)

// analysisStatusRank defines the allowed forward path
// Pending -> InProgress -> {Completed, Failed, Timeout}.
var analysisStatusRank = map[AnalysisStatus]int{
	AnalysisPending:    0,
	AnalysisInProgress: 1,
	AnalysisCompleted:  2,
	AnalysisFailed:     2,
	AnalysisTimeout:    2,
}

// CanAdvance reports whether the status may move from cur to next without
// reverting (§3 invariant i, §8 property 1). Terminal statuses never advance.
func (cur AnalysisStatus) CanAdvance(next AnalysisStatus) bool {
	if cur == next {
		return false
	}
	return analysisStatusRank[next] > analysisStatusRank[cur]
}

// Priority affects per-analyzer timeouts but never correctness (§4.3.1).
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// AnalyzerError records a non-fatal failure from one analyzer.
type AnalyzerError struct {
	AnalyzerID string
	Kind       string // e.g. "timeout", "cancelled", "internal"
	Message    string
}

// AnalysisResult is the fan-in record for one artifact traversal (§3).
type AnalysisResult struct {
	ResultID   string
	Artifact   ArtifactRef
	Detections []Detection
	Errors     []AnalyzerError

	ConsensusVerdict    Verdict
	ConsensusConfidence float64
	ConsensusSeverity   Severity

	Status      AnalysisStatus
	StartedAt   time.Time
	FinishedAt  time.Time
	finishedSet bool
}

// NewAnalysisResult starts a fresh, Pending result for one artifact.
func NewAnalysisResult(resultID string, artifact ArtifactRef) *AnalysisResult {
	return &AnalysisResult{
		ResultID:         resultID,
		Artifact:         artifact,
		Status:           AnalysisPending,
		ConsensusVerdict: VerdictUnknown,
	}
}

// SetFinished records the completion timestamp exactly once (§3 invariant iii).
func (r *AnalysisResult) SetFinished(at time.Time) {
	if r.finishedSet {
		return
	}
	r.FinishedAt = at
	r.finishedSet = true
}

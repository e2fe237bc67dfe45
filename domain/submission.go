package domain

import "time"

// SubmissionStatus is the lifecycle state of one engine's verdict on a bounty.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionActive   SubmissionStatus = "active"
	SubmissionWinning  SubmissionStatus = "winning"
	SubmissionLosing   SubmissionStatus = "losing"
	SubmissionSlashed  SubmissionStatus = "slashed"
	SubmissionRefunded SubmissionStatus = "refunded"
)

// Submission is one engine's staked verdict on one bounty (§3).
type Submission struct {
	ID               string
	BountyID         string
	EngineID         string
	Verdict          Verdict
	Confidence       float64
	Stake            int64
	SubmittedAt      time.Time
	Status           SubmissionStatus
	AnalysisResultID string // optional
}

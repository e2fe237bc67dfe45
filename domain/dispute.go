package domain

import "time"

// DisputeStatus is the lifecycle of a post-settlement objection (§3).
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeVotingPhase DisputeStatus = "voting_phase"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeRejected    DisputeStatus = "rejected"
	DisputeEscalated   DisputeStatus = "escalated"
	DisputeWithdrawn   DisputeStatus = "withdrawn"
)

// DisputeType classifies what a disputer is objecting to.
type DisputeType string

const (
	DisputeTypeIncorrectVerdict DisputeType = "incorrect_verdict"
	DisputeTypeUnfairSlash      DisputeType = "unfair_slash"
	DisputeTypeProcessViolation DisputeType = "process_violation"
)

// Evidence is one piece of supporting material attached to a Dispute.
type Evidence struct {
	SubmittedBy string
	Description string
	Reference   string // opaque pointer to external material (URL, doc id)
	SubmittedAt time.Time
}

// ResolutionDecision is the opaque outcome of dispute arbitration.
// The weighting/voting formula behind it is left unspecified per spec §9's
// open question; a caller-side arbiter supplies this value verbatim.
type ResolutionDecision struct {
	Upheld      bool
	Rationale   string
	Adjustments []RewardEntry // compensation/penalty entries, if any
	DecidedAt   time.Time
	DecidedBy   string
}

// Dispute is an optional post-settlement objection (§3).
type Dispute struct {
	ID         string
	BountyID   string
	Disputer   string
	Type       DisputeType
	Severity   Severity
	Evidence   []Evidence
	Status     DisputeStatus
	Resolution *ResolutionDecision
	CreatedAt  time.Time
}

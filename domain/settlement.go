package domain

import "time"

// RewardEntry credits one correct submission's engine (§3 Settlement).
type RewardEntry struct {
	EngineID     string
	SubmissionID string
	Amount       int64
	StakeReturned int64
}

// SlashReason is why a submission's stake was partially or fully forfeited (§4.5.4).
type SlashReason string

const (
	SlashMinor    SlashReason = "minor"
	SlashModerate SlashReason = "moderate"
	SlashSevere   SlashReason = "severe"
	SlashCritical SlashReason = "critical"
)

// SlashEntry records one incorrect submission's forfeiture (§3 Settlement).
type SlashEntry struct {
	EngineID      string
	SubmissionID  string
	Amount        int64
	Redistributed int64
	Burned        int64
	Reason        SlashReason
}

// Settlement is the immutable output of consensus for one bounty (§3, §4.5).
type Settlement struct {
	BountyID            string
	ConsensusVerdict    Verdict
	ConsensusConfidence float64
	Rewards             []RewardEntry
	Slashes             []SlashEntry
	Burn                int64
	IdempotencyKey      string
	EmittedAt           time.Time
}

// ReputationDelta is one engine's outcome from a Settlement, fed to C6 (§4.6.1).
type ReputationDelta struct {
	EngineID       string
	WasCorrect     bool
	Confidence     float64
	ResponseTime   time.Duration
	ThreatCategory string
}

package domain

import "time"

// BountyStatus is the FSM state of one bounty (§4.4.1).
type BountyStatus string

const (
	BountyDraft      BountyStatus = "draft"
	BountyActive     BountyStatus = "active"
	BountyInProgress BountyStatus = "in_progress"
	BountyUnderReview BountyStatus = "under_review"
	BountyCompleted  BountyStatus = "completed"
	BountyExpired    BountyStatus = "expired"
	BountyCancelled  BountyStatus = "cancelled"
	BountyDisputed   BountyStatus = "disputed"
)

// BountySpec is the caller-supplied shape for opening a bounty (§6.1 open_bounty).
type BountySpec struct {
	Creator            string
	Artifact           ArtifactRef
	RewardPool         int64
	MinStake           int64
	MinReputation      float64
	RequiredConsensus  float64 // fraction in [0,1]
	Deadline           time.Time
	MaxParticipants    int // 0 means uncapped
	EnableEarlyFinalize bool
}

// Bounty is one unit of work for a crowd of engines (§3).
type Bounty struct {
	ID                  string
	Creator             string
	Artifact            ArtifactRef
	RewardPool          int64
	MinStake            int64
	MinReputation       float64
	RequiredConsensus   float64
	Deadline            time.Time
	MaxParticipants     int
	CurrentParticipants int
	Status              BountyStatus
	EnableEarlyFinalize bool
	CreatedAt           time.Time
	CompletedAt         time.Time
}

// HasCap reports whether a participant cap is configured.
func (b *Bounty) HasCap() bool {
	return b.MaxParticipants > 0
}

// AtCap reports whether the participant cap has been reached.
func (b *Bounty) AtCap() bool {
	return b.HasCap() && b.CurrentParticipants >= b.MaxParticipants
}

// Package bounty implements C4: the bounty lifecycle state machine and its
// submission admission contract. Grounded on
// packages/com.r3e.services.gasbank/service.go's account lifecycle idiom —
// explicit status enum, atomic per-key admission, rollback-on-failure —
// generalized from account balance mutation to bounty/submission
// admission.
package bounty

import (
	"context"
	"sync"
	"time"

	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
	"github.com/deep60/nexus-intel/infrastructure/logging"
	pgnotify "github.com/deep60/nexus-intel/infrastructure/notify"
)

// ReputationSource is the C6 query surface C4 needs for admission: an
// engine's current score-derived minimum stake and reputation score.
type ReputationSource interface {
	MinStake(engineID string) int64
	Score(ctx context.Context, engineID string) float64
}

// Store persists bounties, submissions, and disputes (§6.4).
type Store interface {
	SaveBounty(ctx context.Context, b domain.Bounty) error
	GetBounty(ctx context.Context, id string) (domain.Bounty, error)
	SaveSubmission(ctx context.Context, s domain.Submission) error
	ListSubmissions(ctx context.Context, bountyID string) ([]domain.Submission, error)
	SaveDispute(ctx context.Context, d domain.Dispute) error
}

// bountyState is the mutable, mutex-guarded per-bounty admission state kept
// in-process regardless of Store backing, matching §5's "submission store
// partitioned per bounty... serializes its writes."
type bountyState struct {
	mu           sync.Mutex
	bounty       domain.Bounty
	submitted    map[string]struct{} // engine_id -> admitted
	submissions  []domain.Submission
}

// Machine runs the bounty FSM of §4.4 over a Store, a ReputationSource, and
// a best-effort notification Publisher.
type Machine struct {
	store   Store
	rep     ReputationSource
	notify  pgnotify.Publisher
	log     *logging.Logger
	cfg     Config

	statesMu sync.Mutex
	states   map[string]*bountyState
}

// Config tunes admission/finalization policy knobs left open by the spec.
type Config struct {
	// EnableEarlyFinalization is carried in the config but read by no code:
	// ShouldFinalize never finalizes early on required_consensus.
	EnableEarlyFinalization bool
	// QuiescenceDelay is carried in the config but read by no code:
	// ShouldFinalize reports true as soon as the cap is reached.
	QuiescenceDelay time.Duration
	// DisputeWindow bounds how long after completion a dispute may be
	// opened (§4.4.1 "Completed --dispute opened--> Disputed"). Zero means
	// no window restriction.
	DisputeWindow time.Duration
}

// New constructs a Machine.
func New(store Store, rep ReputationSource, notify pgnotify.Publisher, log *logging.Logger, cfg Config) *Machine {
	if log == nil {
		log = logging.Default()
	}
	return &Machine{
		store:  store,
		rep:    rep,
		notify: notify,
		log:    log,
		cfg:    cfg,
		states: make(map[string]*bountyState),
	}
}

// OpenBounty validates and persists a new Active bounty from spec, per §6.1
// open_bounty.
func (m *Machine) OpenBounty(ctx context.Context, spec domain.BountySpec) (*domain.Bounty, error) {
	if spec.RewardPool <= 0 {
		return nil, nexuserrors.InvalidBountySpec("reward_pool", "must be positive")
	}
	if spec.RequiredConsensus < 0 || spec.RequiredConsensus > 1 {
		return nil, nexuserrors.InvalidBountySpec("required_consensus", "must be in [0,1]")
	}
	if spec.Deadline.Before(time.Now()) {
		return nil, nexuserrors.InvalidBountySpec("deadline", "must be in the future")
	}

	b := domain.Bounty{
		ID:                  newID(),
		Creator:             spec.Creator,
		Artifact:            spec.Artifact,
		RewardPool:          spec.RewardPool,
		MinStake:            spec.MinStake,
		MinReputation:       spec.MinReputation,
		RequiredConsensus:   spec.RequiredConsensus,
		Deadline:            spec.Deadline,
		MaxParticipants:     spec.MaxParticipants,
		EnableEarlyFinalize: spec.EnableEarlyFinalize,
		Status:              domain.BountyActive,
		CreatedAt:           time.Now(),
	}
	if err := m.store.SaveBounty(ctx, b); err != nil {
		return nil, nexuserrors.DatabaseError("save_bounty", err)
	}

	m.statesMu.Lock()
	m.states[b.ID] = &bountyState{bounty: b, submitted: make(map[string]struct{})}
	m.statesMu.Unlock()

	m.publish(ctx, "bounty.created", map[string]interface{}{"bounty_id": b.ID})
	return &b, nil
}

// state returns the in-process admission state for bountyID, loading it
// from the Store on first access.
func (m *Machine) state(ctx context.Context, bountyID string) (*bountyState, error) {
	m.statesMu.Lock()
	st, ok := m.states[bountyID]
	m.statesMu.Unlock()
	if ok {
		return st, nil
	}

	b, err := m.store.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, nexuserrors.NotFound("bounty", bountyID)
	}
	existing, err := m.store.ListSubmissions(ctx, bountyID)
	if err != nil {
		return nil, nexuserrors.DatabaseError("list_submissions", err)
	}
	submitted := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		submitted[s.EngineID] = struct{}{}
	}

	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	if st, ok := m.states[bountyID]; ok {
		return st, nil
	}
	st = &bountyState{bounty: b, submitted: submitted, submissions: existing}
	m.states[bountyID] = st
	return st, nil
}

// Submit implements §4.4.2's admission contract. Admission is atomic per
// (bounty, engine): the per-bounty mutex ensures two concurrent submissions
// from the same engine resolve to exactly one Submission and one
// AlreadySubmitted rejection (§8 property 2).
func (m *Machine) Submit(ctx context.Context, bountyID, engineID string, verdict domain.Verdict, confidence float64, stake int64, analysisResultID string) (*domain.Submission, error) {
	if confidence < 0 || confidence > 1 {
		return nil, nexuserrors.ConfidenceOutOfRange(confidence)
	}

	st, err := m.state(ctx, bountyID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.bounty.Status != domain.BountyActive {
		// A bounty that left Active only because its cap filled still
		// reports the cap as the reason for rejection.
		if st.bounty.Status == domain.BountyInProgress && st.bounty.AtCap() {
			return nil, nexuserrors.ParticipantCapReached(bountyID, st.bounty.MaxParticipants)
		}
		return nil, nexuserrors.BountyNotActive(bountyID)
	}
	if time.Now().After(st.bounty.Deadline) {
		return nil, nexuserrors.PastDeadline(bountyID)
	}
	if st.bounty.AtCap() {
		return nil, nexuserrors.ParticipantCapReached(bountyID, st.bounty.MaxParticipants)
	}
	if _, already := st.submitted[engineID]; already {
		return nil, nexuserrors.AlreadySubmitted(bountyID, engineID)
	}
	if m.rep != nil {
		score := m.rep.Score(ctx, engineID)
		if score < st.bounty.MinReputation {
			return nil, nexuserrors.ReputationTooLow(engineID, st.bounty.MinReputation, score)
		}
		if minStake := m.rep.MinStake(engineID); stake < minStake {
			return nil, nexuserrors.StakeTooLow(minStake, stake)
		}
	}
	if stake < st.bounty.MinStake {
		return nil, nexuserrors.StakeTooLow(st.bounty.MinStake, stake)
	}

	sub := domain.Submission{
		ID:               newID(),
		BountyID:         bountyID,
		EngineID:         engineID,
		Verdict:          verdict,
		Confidence:       confidence,
		Stake:            stake,
		SubmittedAt:      time.Now(),
		Status:           domain.SubmissionActive,
		AnalysisResultID: analysisResultID,
	}

	// Rollback-on-failure: the in-process admission is provisional until
	// the store write succeeds, mirroring the gasbank service's
	// save-then-restore-on-failure idiom.
	st.submitted[engineID] = struct{}{}
	st.submissions = append(st.submissions, sub)
	st.bounty.CurrentParticipants++

	if err := m.store.SaveSubmission(ctx, sub); err != nil {
		delete(st.submitted, engineID)
		st.submissions = st.submissions[:len(st.submissions)-1]
		st.bounty.CurrentParticipants--
		return nil, nexuserrors.DatabaseError("save_submission", err)
	}

	m.publish(ctx, "submission.admitted", map[string]interface{}{"bounty_id": bountyID, "engine_id": engineID})

	if st.bounty.AtCap() {
		st.bounty.Status = domain.BountyInProgress
	}

	return &sub, nil
}

// ShouldFinalize reports whether the bounty's deadline has passed or its
// participant cap is reached, from its current in-process state. It applies
// no quiescence delay and no early finalization.
func (m *Machine) ShouldFinalize(ctx context.Context, bountyID string) (bool, error) {
	st, err := m.state(ctx, bountyID)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if time.Now().After(st.bounty.Deadline) {
		return true, nil
	}
	if st.bounty.HasCap() && st.bounty.CurrentParticipants >= st.bounty.MaxParticipants {
		return true, nil
	}
	return false, nil
}

// Snapshot returns the frozen bounty and submission set for finalization,
// transitioning the bounty to UnderReview. Subsequent Submit calls against
// this bounty fail with BountyNotActive.
func (m *Machine) Snapshot(ctx context.Context, bountyID string) (domain.Bounty, []domain.Submission, error) {
	st, err := m.state(ctx, bountyID)
	if err != nil {
		return domain.Bounty{}, nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.bounty.Status {
	case domain.BountyCompleted, domain.BountyCancelled, domain.BountyDisputed:
		return domain.Bounty{}, nil, nexuserrors.NotFinalizable(bountyID)
	}

	st.bounty.Status = domain.BountyUnderReview
	if err := m.store.SaveBounty(ctx, st.bounty); err != nil {
		return domain.Bounty{}, nil, nexuserrors.DatabaseError("save_bounty", err)
	}

	frozen := make([]domain.Submission, len(st.submissions))
	copy(frozen, st.submissions)
	m.publish(ctx, "bounty.finalized", map[string]interface{}{"bounty_id": bountyID})
	return st.bounty, frozen, nil
}

// Complete marks the bounty Completed after C5 has produced a Settlement.
func (m *Machine) Complete(ctx context.Context, bountyID string) error {
	st, err := m.state(ctx, bountyID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.bounty.Status = domain.BountyCompleted
	st.bounty.CompletedAt = time.Now()
	if err := m.store.SaveBounty(ctx, st.bounty); err != nil {
		return nexuserrors.DatabaseError("save_bounty", err)
	}
	return nil
}

// Dispute opens a post-settlement objection against a Completed bounty
// (§4.4.1, §6.1 dispute). It transitions the bounty to Disputed and
// persists the Dispute record; resolution itself is out of scope (§4
// ResolutionDecision's arbitration formula is an open question, §9).
func (m *Machine) Dispute(ctx context.Context, bountyID, disputer string, disputeType domain.DisputeType, evidence []domain.Evidence) (*domain.Dispute, error) {
	st, err := m.state(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.bounty.Status != domain.BountyCompleted {
		return nil, nexuserrors.NotDisputable(bountyID)
	}
	if m.cfg.DisputeWindow > 0 && time.Since(st.bounty.CompletedAt) > m.cfg.DisputeWindow {
		return nil, nexuserrors.WindowClosed(bountyID)
	}

	d := domain.Dispute{
		ID:        newID(),
		BountyID:  bountyID,
		Disputer:  disputer,
		Type:      disputeType,
		Evidence:  evidence,
		Status:    domain.DisputeOpen,
		CreatedAt: time.Now(),
	}
	if err := m.store.SaveDispute(ctx, d); err != nil {
		return nil, nexuserrors.DatabaseError("save_dispute", err)
	}

	st.bounty.Status = domain.BountyDisputed
	if err := m.store.SaveBounty(ctx, st.bounty); err != nil {
		return nil, nexuserrors.DatabaseError("save_bounty", err)
	}

	m.publish(ctx, "dispute.raised", map[string]interface{}{"bounty_id": bountyID, "dispute_id": d.ID})
	return &d, nil
}

func (m *Machine) publish(ctx context.Context, channel string, payload interface{}) {
	if m.notify == nil {
		return
	}
	if err := m.notify.Publish(ctx, channel, payload); err != nil {
		m.log.WithContext(ctx).WithError(err).Warn("bounty notification publish failed")
	}
}

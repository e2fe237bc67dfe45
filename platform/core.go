// Package platform wires C1-C6 into the five submission-ingress operations
// the edge calls (§6.1): analyze, submit, open_bounty, finalize, dispute. It
// is the composition root an HTTP/WebSocket edge would talk to —
// no component here invents new domain logic, it only sequences calls
// across pipeline, bounty, payout, reputation, and ledger.
package platform

import (
	"context"
	"time"

	"github.com/deep60/nexus-intel/bounty"
	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
	"github.com/deep60/nexus-intel/infrastructure/logging"
	"github.com/deep60/nexus-intel/infrastructure/resilience"
	"github.com/deep60/nexus-intel/ledger"
	"github.com/deep60/nexus-intel/payout"
	"github.com/deep60/nexus-intel/pipeline"
	"github.com/deep60/nexus-intel/platform/core"
	"github.com/deep60/nexus-intel/reputation"
)

// Core composes the platform's six components behind the operation table
// of §6.1. It embeds core.ServiceBase for the standard readiness/lifecycle
// surface the rest of the teacher's services expose.
type Core struct {
	*core.ServiceBase

	pipeline   *pipeline.Coordinator
	bounty     *bounty.Machine
	reputation *reputation.Engine
	ledger     ledger.Ledger
	log        *logging.Logger
}

// New wires the given component instances into a Core.
func New(p *pipeline.Coordinator, b *bounty.Machine, rep *reputation.Engine, lg ledger.Ledger, log *logging.Logger) *Core {
	if log == nil {
		log = logging.Default()
	}
	svc := core.NewServiceBase("nexus-core", "threat-intel")
	svc.MarkStarted()
	return &Core{
		ServiceBase: svc,
		pipeline:    p,
		bounty:      b,
		reputation:  rep,
		ledger:      lg,
		log:         log,
	}
}

// Analyze runs an artifact through C1-C3 (§6.1 analyze).
func (c *Core) Analyze(ctx context.Context, req pipeline.Request) (*domain.AnalysisResult, error) {
	complete := core.StartObservation(ctx, core.NoopObservationHooks, map[string]string{"op": "analyze"})
	result, err := c.pipeline.Analyze(ctx, req)
	complete(err)
	return result, err
}

// Submit admits a submission into an active bounty (§6.1 submit), fed
// from an Analyze result's identity if the caller attached one.
func (c *Core) Submit(ctx context.Context, bountyID, engineID string, verdict domain.Verdict, confidence float64, stake int64, analysisResultID string) (*domain.Submission, error) {
	return c.bounty.Submit(ctx, bountyID, engineID, verdict, confidence, stake, analysisResultID)
}

// OpenBounty creates a new Active bounty (§6.1 open_bounty).
func (c *Core) OpenBounty(ctx context.Context, spec domain.BountySpec) (*domain.Bounty, error) {
	return c.bounty.OpenBounty(ctx, spec)
}

// Finalize freezes a bounty's submission set, computes consensus/payout
// via C5, emits the Settlement to the ledger, feeds the resulting
// ReputationDelta batch back into C6, and marks the bounty Completed
// (§6.1 finalize). This is the one operation that sequences bounty,
// reputation, payout and ledger in a single call.
func (c *Core) Finalize(ctx context.Context, bountyID string) (domain.Settlement, error) {
	b, submissions, err := c.bounty.Snapshot(ctx, bountyID)
	if err != nil {
		return domain.Settlement{}, err
	}

	engineIDs := make([]string, len(submissions))
	for i, s := range submissions {
		engineIDs[i] = s.EngineID
	}
	reputationSnapshot := c.reputation.WeightSnapshot(engineIDs)

	settlement, err := payout.Settle(b, submissions, reputationSnapshot)
	if err != nil {
		return domain.Settlement{}, err
	}

	applied, err := payout.Emit(ctx, c.ledger, settlement, resilience.DefaultRetryConfig())
	if err != nil {
		if nexuserrors.Code(err) == nexuserrors.ErrCodeLedgerPermanent {
			// best-effort: leave the bounty in under_review rather than
			// falsely marking it Completed; an operator must intervene.
			c.log.LogLedgerEmission(ctx, bountyID, settlement.IdempotencyKey, err)
		}
		return domain.Settlement{}, err
	}
	settlement.EmittedAt = time.Now()
	c.log.LogLedgerEmission(ctx, bountyID, settlement.IdempotencyKey, nil)
	_ = applied // tx ref is captured in the ledger itself; nothing further to propagate here

	deltas := reputationDeltas(settlement, submissions)
	if err := c.reputation.ApplyDeltas(ctx, deltas); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("reputation update failed after settlement")
	}

	if err := c.bounty.Complete(ctx, bountyID); err != nil {
		return settlement, err
	}
	return settlement, nil
}

// Dispute opens a post-settlement objection against a Completed bounty
// (§6.1 dispute).
func (c *Core) Dispute(ctx context.Context, bountyID, disputer string, disputeType domain.DisputeType, evidence []domain.Evidence) (*domain.Dispute, error) {
	return c.bounty.Dispute(ctx, bountyID, disputer, disputeType, evidence)
}

// reputationDeltas derives C6's per-engine batch from a completed
// Settlement: an engine is "correct" iff its submission matched the
// consensus verdict.
func reputationDeltas(settlement domain.Settlement, submissions []domain.Submission) []domain.ReputationDelta {
	deltas := make([]domain.ReputationDelta, 0, len(submissions))
	for _, s := range submissions {
		deltas = append(deltas, domain.ReputationDelta{
			EngineID:     s.EngineID,
			WasCorrect:   s.Verdict == settlement.ConsensusVerdict,
			Confidence:   s.Confidence,
			ResponseTime: 0, // submission timing is tracked by the edge, not reconstructible here
		})
	}
	return deltas
}

package payout

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/infrastructure/resilience"
	"github.com/deep60/nexus-intel/ledger"
)

func sub(id, engine string, verdict domain.Verdict, confidence float64, stake int64) domain.Submission {
	return domain.Submission{ID: id, EngineID: engine, Verdict: verdict, Confidence: confidence, Stake: stake, Status: domain.SubmissionActive}
}

// TestSettle_S1_UnanimousMalicious mirrors spec scenario S1: three
// Malicious submissions, all engines at reputation 500/1000.
func TestSettle_S1_UnanimousMalicious(t *testing.T) {
	bounty := domain.Bounty{ID: "B1", RewardPool: 1000}
	submissions := []domain.Submission{
		sub("s1", "e1", domain.VerdictMalicious, 0.9, 100),
		sub("s2", "e2", domain.VerdictMalicious, 0.85, 100),
		sub("s3", "e3", domain.VerdictMalicious, 0.8, 100),
	}
	reputations := map[string]float64{"e1": 500, "e2": 500, "e3": 500}

	settlement, err := Settle(bounty, submissions, reputations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settlement.ConsensusVerdict != domain.VerdictMalicious {
		t.Fatalf("got verdict %v, want malicious", settlement.ConsensusVerdict)
	}
	if settlement.ConsensusConfidence != 1.0 {
		t.Fatalf("got confidence %v, want 1.0 (all weight on one verdict)", settlement.ConsensusConfidence)
	}
	if len(settlement.Slashes) != 0 {
		t.Fatalf("expected no slashes, got %d", len(settlement.Slashes))
	}
	if len(settlement.Rewards) != 3 {
		t.Fatalf("expected 3 rewards, got %d", len(settlement.Rewards))
	}
	// the highest-confidence submission must earn the largest payout
	payouts := map[string]int64{}
	for _, r := range settlement.Rewards {
		payouts[r.EngineID] = r.Amount
	}
	if !(payouts["e1"] > payouts["e2"] && payouts["e2"] > payouts["e3"]) {
		t.Fatalf("expected payouts to rank by confidence, got %+v", payouts)
	}
	assertConservation(t, bounty, submissions, reputations, settlement)
}

// TestSettle_S2_SplitVoteReputationDominates mirrors spec scenario S2: raw
// stake favors Benign but reputation-weighted consensus favors Malicious.
func TestSettle_S2_SplitVoteReputationDominates(t *testing.T) {
	bounty := domain.Bounty{ID: "B2", RewardPool: 1000}
	submissions := []domain.Submission{
		sub("s1", "e1", domain.VerdictMalicious, 0.9, 50),
		sub("s2", "e2", domain.VerdictBenign, 0.9, 500),
	}
	reputations := map[string]float64{"e1": 800, "e2": 200}

	settlement, err := Settle(bounty, submissions, reputations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settlement.ConsensusVerdict != domain.VerdictMalicious {
		t.Fatalf("got verdict %v, want malicious despite larger raw stake on benign", settlement.ConsensusVerdict)
	}
	if len(settlement.Slashes) != 1 || settlement.Slashes[0].EngineID != "e2" {
		t.Fatalf("expected e2's benign submission to be slashed, got %+v", settlement.Slashes)
	}
	if settlement.Slashes[0].Reason != domain.SlashSevere {
		t.Fatalf("got slash reason %v, want severe (confidence 0.9 is in [0.8,0.95))", settlement.Slashes[0].Reason)
	}
	assertConservation(t, bounty, submissions, reputations, settlement)
}

// TestSettle_S3_ZeroWeightSettlesUnknown mirrors spec scenario S3: no
// stake/confidence weight, so the bounty settles Unknown with stakes
// returned and nothing paid or slashed.
func TestSettle_S3_ZeroWeightSettlesUnknown(t *testing.T) {
	bounty := domain.Bounty{ID: "B3", RewardPool: 1000}
	submissions := []domain.Submission{
		sub("s1", "e1", domain.VerdictMalicious, 0, 100),
	}
	reputations := map[string]float64{"e1": 0}

	settlement, err := Settle(bounty, submissions, reputations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settlement.ConsensusVerdict != domain.VerdictUnknown {
		t.Fatalf("got verdict %v, want unknown", settlement.ConsensusVerdict)
	}
	if settlement.ConsensusConfidence != 0 {
		t.Fatalf("got confidence %v, want 0", settlement.ConsensusConfidence)
	}
	if len(settlement.Slashes) != 0 {
		t.Fatalf("expected no slashes, got %d", len(settlement.Slashes))
	}
	if len(settlement.Rewards) != 1 || settlement.Rewards[0].Amount != 100 {
		t.Fatalf("expected stake returned in full, got %+v", settlement.Rewards)
	}
}

// assertConservation checks §8 property 3 at the pre-bonus base-distribution
// level. RewardEntry.Amount additionally carries §4.5.3's accuracy_bonus and
// reputation_multiplier, which layer strictly on top of a submission's base
// share of adjustedPool and are, by the spec's own S2 worked example, not
// themselves funded by the pool (see
// TestSettle_AccuracyBonusAndReputationMultiplierInflateReward) — so they
// are excluded here and asserted separately instead. What this checks is the
// identity that does hold exactly: adjustedPool (reward_pool plus
// redistributed slash stake) floors down into the correct submissions' base
// rewards plus Burn, and every slash forfeits no more than its own stake.
func assertConservation(t *testing.T, bounty domain.Bounty, submissions []domain.Submission, reputations map[string]float64, settlement domain.Settlement) {
	t.Helper()

	var redistributed, slashBurnTotal int64
	for _, sl := range settlement.Slashes {
		redistributed += sl.Redistributed
		slashBurnTotal += sl.Burned
		if staked := stakeOf(submissions, sl.SubmissionID); sl.Redistributed+sl.Burned > staked {
			t.Fatalf("slash on %s forfeits more than its stake: redistributed=%d burned=%d staked=%d",
				sl.SubmissionID, sl.Redistributed, sl.Burned, staked)
		}
	}
	adjustedPool := bounty.RewardPool + redistributed

	weights := make(map[string]float64, len(submissions))
	var correctWeight float64
	for _, s := range submissions {
		w := weight(s, reputations[s.EngineID])
		weights[s.ID] = w
		if s.Verdict == settlement.ConsensusVerdict {
			correctWeight += w
		}
	}

	var baseRewardTotal int64
	for _, s := range submissions {
		w := weights[s.ID]
		if s.Verdict != settlement.ConsensusVerdict || w == 0 || correctWeight == 0 {
			continue
		}
		share := w / correctWeight
		baseRewardTotal += int64(math.Floor(share * float64(adjustedPool)))

		if r := rewardFor(settlement, s.ID); r != nil && r.StakeReturned != s.Stake {
			t.Fatalf("reward %s returned stake %d, want full stake %d", s.ID, r.StakeReturned, s.Stake)
		}
	}

	wantBurn := adjustedPool - baseRewardTotal + slashBurnTotal
	if settlement.Burn != wantBurn {
		t.Fatalf("base-distribution conservation violated: got burn %d, want %d (adjustedPool=%d baseRewardTotal=%d slashBurn=%d)",
			settlement.Burn, wantBurn, adjustedPool, baseRewardTotal, slashBurnTotal)
	}
}

func stakeOf(submissions []domain.Submission, submissionID string) int64 {
	for _, s := range submissions {
		if s.ID == submissionID {
			return s.Stake
		}
	}
	return 0
}

func rewardFor(settlement domain.Settlement, submissionID string) *domain.RewardEntry {
	for i := range settlement.Rewards {
		if settlement.Rewards[i].SubmissionID == submissionID {
			return &settlement.Rewards[i]
		}
	}
	return nil
}

// TestSettle_AccuracyBonusAndReputationMultiplierInflateReward documents
// §4.5.3's accuracy_bonus and reputation_multiplier deliberately: a sole
// rewarded submission gets the entire adjustedPool as its base share, yet a
// high-confidence, high-reputation submission still earns strictly more
// than base-share-plus-stake once the bonus and multiplier are applied.
// This is the unfunded layer assertConservation excludes above.
func TestSettle_AccuracyBonusAndReputationMultiplierInflateReward(t *testing.T) {
	bounty := domain.Bounty{ID: "B4", RewardPool: 1000}
	submissions := []domain.Submission{
		sub("s1", "e1", domain.VerdictMalicious, 0.95, 100),
	}
	reputations := map[string]float64{"e1": 1000}

	settlement, err := Settle(bounty, submissions, reputations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settlement.Rewards) != 1 {
		t.Fatalf("expected 1 reward, got %d", len(settlement.Rewards))
	}
	baseSharePlusStake := bounty.RewardPool + submissions[0].Stake
	if got := settlement.Rewards[0].Amount; got <= baseSharePlusStake {
		t.Fatalf("expected accuracy_bonus/reputation_multiplier to inflate reward above base+stake: got %d, want > %d",
			got, baseSharePlusStake)
	}
}

func TestSettle_IsPure(t *testing.T) {
	bounty := domain.Bounty{ID: "B1", RewardPool: 1000}
	submissions := []domain.Submission{
		sub("s1", "e1", domain.VerdictMalicious, 0.9, 100),
		sub("s2", "e2", domain.VerdictBenign, 0.5, 50),
	}
	reputations := map[string]float64{"e1": 500, "e2": 500}

	first, err := Settle(bounty, submissions, reputations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Settle(bounty, submissions, reputations)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ConsensusVerdict != second.ConsensusVerdict || first.ConsensusConfidence != second.ConsensusConfidence {
		t.Fatalf("Settle is not pure: got %+v and %+v", first, second)
	}
	if len(first.Rewards) != len(second.Rewards) || len(first.Slashes) != len(second.Slashes) {
		t.Fatalf("Settle is not pure across reward/slash counts")
	}
}

func TestSettle_PropertyRandomSubmissionsConserveValue(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	verdicts := []domain.Verdict{domain.VerdictMalicious, domain.VerdictBenign, domain.VerdictSuspicious}

	for trial := 0; trial < 50; trial++ {
		bounty := domain.Bounty{ID: "Brand", RewardPool: int64(100 + rng.Intn(5000))}
		n := 1 + rng.Intn(8)
		var submissions []domain.Submission
		reputations := map[string]float64{}
		for i := 0; i < n; i++ {
			engine := "e" + string(rune('a'+i))
			submissions = append(submissions, sub("s"+string(rune('a'+i)), engine,
				verdicts[rng.Intn(len(verdicts))], rng.Float64(), int64(1+rng.Intn(500))))
			reputations[engine] = rng.Float64() * 1000
		}

		settlement, err := Settle(bounty, submissions, reputations)
		if err != nil {
			t.Fatalf("trial %d: unexpected error: %v", trial, err)
		}
		if settlement.Burn < 0 {
			t.Fatalf("trial %d: negative burn %d", trial, settlement.Burn)
		}
		for _, r := range settlement.Rewards {
			if r.Amount < 0 {
				t.Fatalf("trial %d: negative reward amount %d", trial, r.Amount)
			}
		}
		if settlement.ConsensusVerdict != domain.VerdictUnknown {
			assertConservation(t, bounty, submissions, reputations, settlement)
		}
	}
}

// flakyLedger fails transiently a fixed number of times before delegating
// to an inner Ledger, exercising Emit's retry path.
type flakyLedger struct {
	inner     ledger.Ledger
	failures  int
	permanent bool
	attempts  int
}

func (l *flakyLedger) Apply(ctx context.Context, s domain.Settlement) (ledger.Applied, error) {
	l.attempts++
	if l.attempts <= l.failures {
		if l.permanent {
			return ledger.Applied{}, &ledger.PermanentError{Err: errors.New("settlement rejected")}
		}
		return ledger.Applied{}, &ledger.TransientError{Err: errors.New("ledger unavailable")}
	}
	return l.inner.Apply(ctx, s)
}

func TestEmit_RetriesTransientThenSucceeds(t *testing.T) {
	lg := &flakyLedger{inner: ledger.NewStubLedger(), failures: 2}
	settlement := domain.Settlement{BountyID: "B1", IdempotencyKey: "settle:B1"}

	applied, err := Emit(context.Background(), lg, settlement, retryConfigFast())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.TxRef == "" {
		t.Fatalf("expected a tx ref")
	}
	if lg.attempts != 3 {
		t.Fatalf("expected 3 attempts (2 transient failures + success), got %d", lg.attempts)
	}
}

func TestEmit_PermanentErrorIsNotRetried(t *testing.T) {
	lg := &flakyLedger{inner: ledger.NewStubLedger(), failures: 100, permanent: true}
	settlement := domain.Settlement{BountyID: "B1", IdempotencyKey: "settle:B1"}

	_, err := Emit(context.Background(), lg, settlement, retryConfigFast())
	if err == nil {
		t.Fatalf("expected an error")
	}
	if lg.attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", lg.attempts)
	}
}

func TestEmit_IdempotentAcrossRepeatedCalls(t *testing.T) {
	lg := ledger.NewStubLedger()
	settlement := domain.Settlement{BountyID: "B1", IdempotencyKey: "settle:B1"}

	first, err := Emit(context.Background(), lg, settlement, retryConfigFast())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Emit(context.Background(), lg, settlement, retryConfigFast())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TxRef != second.TxRef {
		t.Fatalf("expected idempotent emission, got %q and %q", first.TxRef, second.TxRef)
	}
	if lg.Entries() != 1 {
		t.Fatalf("expected exactly one applied entry, got %d", lg.Entries())
	}
}

func retryConfigFast() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

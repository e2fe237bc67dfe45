// Package payout implements C5: the pure consensus and reward/slash
// computation of §4.5, plus ledger emission. Settle itself reads no
// wall-clock or global state (§8 property 5), grounded structurally on the
// bookkeeping style of packages/com.r3e.services.gasbank/service/settlement.go
// but expressed as one pure function rather than a stateful poller.
package payout

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
	"github.com/deep60/nexus-intel/infrastructure/resilience"
	"github.com/deep60/nexus-intel/ledger"
)

// MaxScore is the platform's reputation score ceiling used to normalize
// w_reputation and the reputation_multiplier (§4.5.1, §4.5.3).
const MaxScore = 1000.0

// RedistributionRatio is the platform constant fraction of slashed stake
// added back to the reward pool before reward computation (§4.5.4).
const RedistributionRatio = 0.8

// verdictTieBreakRank implements §4.5.2's tie-break order
// Suspicious > Malicious > Benign > Unknown (higher wins on a weight tie).
var verdictTieBreakRank = map[domain.Verdict]int{
	domain.VerdictSuspicious: 3,
	domain.VerdictMalicious:  2,
	domain.VerdictBenign:     1,
	domain.VerdictUnknown:    0,
}

// weight computes w(s) per §4.5.1. A submission whose status is not
// Pending/Active at finalization carries zero weight.
func weight(s domain.Submission, reputationScore float64) float64 {
	if s.Status != domain.SubmissionPending && s.Status != domain.SubmissionActive {
		return 0
	}
	stake := s.Stake
	if stake < 1 {
		stake = 1
	}
	wStake := math.Log(float64(stake)) / 15
	wConfidence := s.Confidence
	wReputation := reputationScore / MaxScore
	return wStake * wConfidence * wReputation
}

func bonusRate(confidence float64) float64 {
	switch {
	case confidence > 0.9:
		return 0.20
	case confidence > 0.8:
		return 0.10
	default:
		return 0
	}
}

func slashFraction(confidence float64) (float64, domain.SlashReason) {
	switch {
	case confidence >= 0.95:
		return 1.0, domain.SlashCritical
	case confidence >= 0.8:
		return 0.5, domain.SlashSevere
	case confidence >= 0.5:
		return 0.25, domain.SlashModerate
	default:
		return 0.10, domain.SlashMinor
	}
}

// Settle computes the settlement for bounty from its frozen submission set
// and a reputation snapshot, per §4.5.1-§4.5.4. It performs no I/O and
// reads no wall-clock or global state.
func Settle(bounty domain.Bounty, submissions []domain.Submission, reputationSnapshot map[string]float64) (domain.Settlement, error) {
	weights := make([]float64, len(submissions))
	weightByVerdict := map[domain.Verdict]float64{}
	var totalWeight float64

	for i, s := range submissions {
		w := weight(s, reputationSnapshot[s.EngineID])
		weights[i] = w
		weightByVerdict[s.Verdict] += w
		totalWeight += w
	}

	if totalWeight == 0 {
		return zeroWeightSettlement(bounty, submissions), nil
	}

	consensusVerdict := selectConsensus(weightByVerdict)
	consensusConfidence := weightByVerdict[consensusVerdict] / totalWeight

	// Pass 1: determine the slash pot from incorrect submissions.
	var slashes []domain.SlashEntry
	var slashTotal int64
	for i, s := range submissions {
		if s.Verdict == consensusVerdict || weights[i] == 0 {
			continue
		}
		fraction, reason := slashFraction(s.Confidence)
		amount := int64(math.Floor(float64(s.Stake) * fraction))
		redistributed := int64(math.Floor(float64(amount) * RedistributionRatio))
		burned := amount - redistributed
		slashes = append(slashes, domain.SlashEntry{
			EngineID: s.EngineID, SubmissionID: s.ID, Amount: amount,
			Redistributed: redistributed, Burned: burned, Reason: reason,
		})
		slashTotal += redistributed
	}

	adjustedPool := bounty.RewardPool + slashTotal

	// Pass 2: distribute the (possibly redistribution-augmented) pool
	// across correct submissions per §4.5.3.
	var correctWeight float64
	for i, s := range submissions {
		if s.Verdict == consensusVerdict {
			correctWeight += weights[i]
		}
	}

	var rewards []domain.RewardEntry
	var baseRewardTotal int64
	if correctWeight > 0 {
		for i, s := range submissions {
			if s.Verdict != consensusVerdict || weights[i] == 0 {
				continue
			}
			share := weights[i] / correctWeight
			baseReward := share * float64(adjustedPool)
			flooredBase := math.Floor(baseReward)
			accuracyBonus := baseReward * bonusRate(s.Confidence)
			reputationMultiplier := 0.8 + 0.4*(reputationSnapshot[s.EngineID]/MaxScore)
			payout := int64(math.Floor((baseReward+accuracyBonus)*reputationMultiplier)) + s.Stake
			rewards = append(rewards, domain.RewardEntry{
				EngineID: s.EngineID, SubmissionID: s.ID, Amount: payout, StakeReturned: s.Stake,
			})
			baseRewardTotal += int64(flooredBase)
		}
	}

	// Rounding residue from flooring each base reward share is burned
	// (§4.5.3's last sentence), on top of whatever slashed stake wasn't
	// redistributed (§4.5.4).
	roundingBurn := adjustedPool - baseRewardTotal
	if roundingBurn < 0 {
		roundingBurn = 0
	}
	var slashBurnTotal int64
	for _, sl := range slashes {
		slashBurnTotal += sl.Burned
	}

	return domain.Settlement{
		BountyID:            bounty.ID,
		ConsensusVerdict:    consensusVerdict,
		ConsensusConfidence: consensusConfidence,
		Rewards:             rewards,
		Slashes:             slashes,
		Burn:                roundingBurn + slashBurnTotal,
		IdempotencyKey:      fmt.Sprintf("settle:%s", bounty.ID),
	}, nil
}

// zeroWeightSettlement implements §4.5.2's degenerate case: Unknown
// consensus, zero confidence, all stakes returned, no rewards, no slash.
func zeroWeightSettlement(bounty domain.Bounty, submissions []domain.Submission) domain.Settlement {
	rewards := make([]domain.RewardEntry, 0, len(submissions))
	for _, s := range submissions {
		rewards = append(rewards, domain.RewardEntry{EngineID: s.EngineID, SubmissionID: s.ID, Amount: s.Stake, StakeReturned: s.Stake})
	}
	return domain.Settlement{
		BountyID:            bounty.ID,
		ConsensusVerdict:    domain.VerdictUnknown,
		ConsensusConfidence: 0,
		Rewards:             rewards,
		IdempotencyKey:      fmt.Sprintf("settle:%s", bounty.ID),
	}
}

// selectConsensus sums weights per verdict (already summed by the caller)
// and picks the highest, breaking ties via verdictTieBreakRank (§4.5.2).
func selectConsensus(weightByVerdict map[domain.Verdict]float64) domain.Verdict {
	verdicts := make([]domain.Verdict, 0, len(weightByVerdict))
	for v := range weightByVerdict {
		verdicts = append(verdicts, v)
	}
	sort.Slice(verdicts, func(i, j int) bool {
		wi, wj := weightByVerdict[verdicts[i]], weightByVerdict[verdicts[j]]
		if wi != wj {
			return wi > wj
		}
		return verdictTieBreakRank[verdicts[i]] > verdictTieBreakRank[verdicts[j]]
	})
	if len(verdicts) == 0 {
		return domain.VerdictUnknown
	}
	return verdicts[0]
}

// Emit applies settlement to the ledger, retrying transient failures with
// the idempotency key settle:<bounty_id> (§4.5.5). A permanent ledger
// error stops the retries at once and is returned wrapped in a
// LedgerPermanent service error. Emit does not change the bounty's status.
func Emit(ctx context.Context, lg ledger.Ledger, settlement domain.Settlement, retry resilience.RetryConfig) (ledger.Applied, error) {
	if retry.MaxAttempts <= 0 {
		retry = resilience.DefaultRetryConfig()
	}
	var applied ledger.Applied
	var permanentErr *ledger.PermanentError
	err := resilience.Retry(ctx, retry, func() error {
		var applyErr error
		applied, applyErr = lg.Apply(ctx, settlement)
		if applyErr == nil {
			return nil
		}
		if perm, ok := applyErr.(*ledger.PermanentError); ok {
			permanentErr = perm
			return nil // stop retrying; surfaced below, not as a transient failure
		}
		return applyErr
	})
	if permanentErr != nil {
		return ledger.Applied{}, nexuserrors.LedgerPermanent(settlement.BountyID, permanentErr)
	}
	if err != nil {
		return ledger.Applied{}, nexuserrors.LedgerTransient(settlement.BountyID, err)
	}
	return applied, nil
}

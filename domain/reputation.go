package domain

import "time"

// Tier is derived from an engine's score via fixed cutoffs (§4.6.1, §3 invariant ii).
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

// tierCutoffs maps the minimum score required for each tier, highest first.
var tierCutoffs = []struct {
	tier  Tier
	floor float64
}{
	{TierDiamond, 850},
	{TierPlatinum, 650},
	{TierGold, 450},
	{TierSilver, 250},
	{TierBronze, 0},
}

// TierForScore derives the tier for a score via the fixed cutoff table.
func TierForScore(score float64) Tier {
	for _, c := range tierCutoffs {
		if score >= c.floor {
			return c.tier
		}
	}
	return TierBronze
}

// baseMinStake is the per-tier base stake requirement (§4.6.3), Bronze 100 -> Diamond 5.
var baseMinStake = map[Tier]int64{
	TierBronze:   100,
	TierSilver:   60,
	TierGold:     30,
	TierPlatinum: 15,
	TierDiamond:  5,
}

// BaseMinStake returns the tier's base stake requirement before the
// recent-accuracy multiplier is applied.
func BaseMinStake(t Tier) int64 {
	if v, ok := baseMinStake[t]; ok {
		return v
	}
	return baseMinStake[TierBronze]
}

// EngineReputation is per-engine accuracy/history tracking (§3, §4.6).
type EngineReputation struct {
	EngineID string

	Score          float64
	HistoricalHigh float64

	TotalSubmissions      int
	SuccessfulSubmissions int
	FalsePositives        int
	FalseNegatives        int

	MeanResponseSeconds float64

	Expertise map[string]float64 // per-threat-category, floored at 0

	Tier Tier

	LastUpdated time.Time
}

// NewEngineReputation returns a fresh reputation record for an unseen engine.
func NewEngineReputation(engineID string) *EngineReputation {
	return &EngineReputation{
		EngineID:  engineID,
		Tier:      TierBronze,
		Expertise: make(map[string]float64),
	}
}

// ScorePoint is one sample in a reputation score history series (§4.6.3 history).
type ScorePoint struct {
	At    time.Time
	Score float64
}

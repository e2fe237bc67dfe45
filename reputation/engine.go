// Package reputation implements C6: per-engine score update, tiering,
// decay, and the minimum-stake/vote-weight queries consumed by C4 and C5
// (spec.md §4.6). Reads and writes of one engine's state both take that
// engine's own mutex, so reads are not lock-free and do not share a read
// lock; writes are serialized per engine id, grounded on the teacher's per-resource mutex
// partitioning in packages/com.r3e.services.gasbank/service/state.go.
package reputation

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
)

// ScoreCap is the maximum attainable reputation score (§4.6.1), matching
// payout.MaxScore so a fully-trusted engine normalizes to weight 1.0.
const ScoreCap = 1000.0

// DecayFactor is the multiplier applied to score and expertise for an
// engine that has gone a full decay period without an update (§4.6.2).
const DecayFactor = 0.95

// DecayPeriod is the default cadence of the decay sweep (§4.6.2).
const DecayPeriod = 30 * 24 * time.Hour

// targetResponseSeconds and volumeSaturation are platform constants the
// spec leaves unnamed; chosen to keep timeliness/volume in a sane [0,1]
// range for the expected submission cadence (documented in DESIGN.md).
const (
	targetResponseSeconds = 300.0
	volumeSaturation      = 1000.0
)

// historyLimit bounds how many ScorePoints are retained per engine so
// History never grows unbounded (§4.6.3 "window" is a slice of this).
const historyLimit = 500

type engineState struct {
	mu   sync.Mutex
	rep  domain.EngineReputation
	// recentOutcomes is a short trailing window used by min_stake's
	// accuracy multiplier (§4.6.3) and consistency's variance term (§4.6.1).
	recentOutcomes []bool
	history        []domain.ScorePoint
}

// Engine is the reputation store and score-update implementation (C6).
// It satisfies bounty.ReputationSource.
type Engine struct {
	mu       sync.RWMutex // guards the engines map only, not per-engine state
	engines  map[string]*engineState
	notifier Notifier
	now      func() time.Time
}

// Notifier publishes tier-change events (§6.3). Optional: New accepts nil.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// New returns an empty Engine. now defaults to time.Now; tests may
// override it to make decay and timeliness calculations deterministic.
func New(notifier Notifier, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{engines: make(map[string]*engineState), notifier: notifier, now: now}
}

func (e *Engine) stateFor(engineID string) *engineState {
	e.mu.RLock()
	st, ok := e.engines[engineID]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.engines[engineID]; ok {
		return st
	}
	st = &engineState{rep: *domain.NewEngineReputation(engineID)}
	e.engines[engineID] = st
	return st
}

// ApplyDeltas updates each engine named in deltas per §4.6.1, after a
// Settlement. Each engine's entry is applied under its own lock; engines
// are independent, so callers may fan this out themselves if desired.
func (e *Engine) ApplyDeltas(ctx context.Context, deltas []domain.ReputationDelta) error {
	for _, d := range deltas {
		if err := e.applyOne(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyOne(ctx context.Context, d domain.ReputationDelta) error {
	st := e.stateFor(d.EngineID)
	st.mu.Lock()
	defer st.mu.Unlock()

	r := &st.rep
	r.TotalSubmissions++
	if d.WasCorrect {
		r.SuccessfulSubmissions++
	} else if d.Confidence > 0.8 {
		r.FalsePositives++
	} else {
		r.FalseNegatives++
	}

	if r.TotalSubmissions == 1 {
		r.MeanResponseSeconds = d.ResponseTime.Seconds()
	} else {
		n := float64(r.TotalSubmissions)
		r.MeanResponseSeconds += (d.ResponseTime.Seconds() - r.MeanResponseSeconds) / n
	}

	if d.ThreatCategory != "" {
		delta := -0.5
		if d.WasCorrect {
			delta = 1.0
		}
		next := r.Expertise[d.ThreatCategory] + delta
		if next < 0 {
			next = 0
		}
		r.Expertise[d.ThreatCategory] = next
	}

	st.recentOutcomes = append(st.recentOutcomes, d.WasCorrect)
	if len(st.recentOutcomes) > 30 {
		st.recentOutcomes = st.recentOutcomes[len(st.recentOutcomes)-30:]
	}

	recomputeScore(r, st.recentOutcomes)
	r.LastUpdated = e.now()

	previousTier := r.Tier
	r.Tier = domain.TierForScore(r.Score)

	st.history = append(st.history, domain.ScorePoint{At: r.LastUpdated, Score: r.Score})
	if len(st.history) > historyLimit {
		st.history = st.history[len(st.history)-historyLimit:]
	}

	if e.notifier != nil && previousTier != r.Tier {
		// Best-effort: a failed publish does not fail the update.
		_ = e.publishTierChange(ctx, r.EngineID, previousTier, r.Tier)
	}
	return nil
}

// recomputeScore implements §4.6.1's formula in full, including the
// historical-high bump.
func recomputeScore(r *domain.EngineReputation, recentOutcomes []bool) {
	total := float64(r.TotalSubmissions)
	successful := float64(r.SuccessfulSubmissions)

	accuracy := 0.0
	if total > 0 {
		accuracy = successful / total
	}

	timeliness := 1.0
	if r.MeanResponseSeconds > 0 {
		timeliness = math.Min(1, targetResponseSeconds/r.MeanResponseSeconds)
	}

	consistency := consistencyOf(recentOutcomes)

	volume := 0.0
	if total > 0 {
		volume = math.Log(total) / math.Log(volumeSaturation)
		volume = math.Max(0, math.Min(1, volume))
	}

	specializationBonus := math.Min(0.5, 0.1*float64(countPositiveExpertise(r.Expertise)))

	score := 1000*(0.40*accuracy+0.25*timeliness+0.20*consistency+0.15*volume) + 100*specializationBonus

	penalty := 1.0
	switch {
	case accuracy < 0.5:
		penalty = 0.5
	case accuracy < 0.7:
		penalty = 0.8
	}
	score = math.Min(ScoreCap, score*penalty)

	r.Score = score
	if score > r.HistoricalHigh {
		r.HistoricalHigh = score
	}
}

// consistencyOf derives §4.6.1's consistency term from the variance of a
// trailing accuracy window: low variance (stable performance) scores
// near 1, high variance scores near 0. Engines with fewer than 10
// samples get the spec's flat default of 0.5.
func consistencyOf(recentOutcomes []bool) float64 {
	if len(recentOutcomes) < 10 {
		return 0.5
	}
	mean := 0.0
	for _, ok := range recentOutcomes {
		if ok {
			mean++
		}
	}
	mean /= float64(len(recentOutcomes))

	variance := 0.0
	for _, ok := range recentOutcomes {
		v := 0.0
		if ok {
			v = 1.0
		}
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(recentOutcomes))

	// max variance of a Bernoulli sample is 0.25 (mean=0.5); normalize so
	// zero variance is full consistency and maximum variance is none.
	return math.Max(0, 1-variance/0.25)
}

func countPositiveExpertise(expertise map[string]float64) int {
	n := 0
	for _, v := range expertise {
		if v > 0 {
			n++
		}
	}
	return n
}

// MinStake satisfies bounty.ReputationSource (§4.6.3): base stake by tier
// multiplied by a recent-accuracy factor.
func (e *Engine) MinStake(engineID string) int64 {
	st := e.stateFor(engineID)
	st.mu.Lock()
	defer st.mu.Unlock()

	base := domain.BaseMinStake(st.rep.Tier)
	recentAccuracy := recentAccuracyOf(st.recentOutcomes)

	multiplier := 1.0
	switch {
	case len(st.recentOutcomes) == 0:
		// an unseen engine keeps the unit multiplier
	case recentAccuracy < 0.5:
		multiplier = 2.0
	case recentAccuracy > 0.8:
		multiplier = 0.5
	}
	return int64(math.Ceil(float64(base) * multiplier))
}

func recentAccuracyOf(recentOutcomes []bool) float64 {
	if len(recentOutcomes) == 0 {
		return 1.0 // an unseen engine is not yet penalized
	}
	correct := 0
	for _, ok := range recentOutcomes {
		if ok {
			correct++
		}
	}
	return float64(correct) / float64(len(recentOutcomes))
}

// Score satisfies bounty.ReputationSource: the engine's current raw score.
func (e *Engine) Score(ctx context.Context, engineID string) float64 {
	st := e.stateFor(engineID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.rep.Score
}

// WeightSnapshot batch-reads scores for C5's weighting pass (§4.6.3),
// taking each engine's own lock only long enough to copy its score.
func (e *Engine) WeightSnapshot(engineIDs []string) map[string]float64 {
	out := make(map[string]float64, len(engineIDs))
	for _, id := range engineIDs {
		st := e.stateFor(id)
		st.mu.Lock()
		out[id] = st.rep.Score
		st.mu.Unlock()
	}
	return out
}

// History returns the score series for engineID within window, newest
// samples last (§4.6.3).
func (e *Engine) History(engineID string, window time.Duration) []domain.ScorePoint {
	st := e.stateFor(engineID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if window <= 0 {
		out := make([]domain.ScorePoint, len(st.history))
		copy(out, st.history)
		return out
	}
	cutoff := e.now().Add(-window)
	out := make([]domain.ScorePoint, 0, len(st.history))
	for _, p := range st.history {
		if !p.At.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// Precision returns successful / (successful + false_positives), 0 if the
// denominator is 0 (§4.6.1). Tracked for diagnostics; not a score input.
func (e *Engine) Precision(engineID string) float64 {
	st := e.stateFor(engineID)
	st.mu.Lock()
	defer st.mu.Unlock()
	successful := float64(st.rep.SuccessfulSubmissions)
	denom := successful + float64(st.rep.FalsePositives)
	if denom == 0 {
		return 0
	}
	return successful / denom
}

// Recall returns successful / (successful + false_negatives), 0 if the
// denominator is 0 (§4.6.1). Tracked for diagnostics; not a score input.
func (e *Engine) Recall(engineID string) float64 {
	st := e.stateFor(engineID)
	st.mu.Lock()
	defer st.mu.Unlock()
	successful := float64(st.rep.SuccessfulSubmissions)
	denom := successful + float64(st.rep.FalseNegatives)
	if denom == 0 {
		return 0
	}
	return successful / denom
}

// Snapshot returns a copy of engineID's full reputation record, primarily
// for diagnostics and tests.
func (e *Engine) Snapshot(engineID string) domain.EngineReputation {
	st := e.stateFor(engineID)
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := st.rep
	cp.Expertise = make(map[string]float64, len(st.rep.Expertise))
	for k, v := range st.rep.Expertise {
		cp.Expertise[k] = v
	}
	return cp
}

func (e *Engine) publishTierChange(ctx context.Context, engineID string, from, to domain.Tier) error {
	payload := []byte(`{"engine_id":"` + engineID + `","from_tier":"` + string(from) + `","to_tier":"` + string(to) + `"}`)
	if err := e.notifier.Publish(ctx, "reputation.tier_changed", payload); err != nil {
		return nexuserrors.DatabaseError("publish tier change notification", err)
	}
	return nil
}

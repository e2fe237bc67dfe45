package reputation

import (
	"context"
	"time"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/infrastructure/logging"
	"github.com/robfig/cron/v3"
)

// DecaySpec is the default cron expression for the decay sweep: once a
// month, at 03:00 on the 1st (§4.6.2's "default: monthly").
const DecaySpec = "0 3 1 * *"

// DecayScheduler drives Engine.Decay on a cron cadence, grounded on the
// teacher's Worker lifecycle (internal/marble/worker.go) but using
// robfig/cron for the actual scheduling rather than a fixed-interval
// ticker, since decay runs on a calendar cadence rather than every N
// seconds.
type DecayScheduler struct {
	engine *Engine
	cron   *cron.Cron
	log    *logging.Logger
	entry  cron.EntryID
}

// NewDecayScheduler wires engine's decay sweep onto spec (DecaySpec if
// empty). log defaults to logging.Default() if nil.
func NewDecayScheduler(engine *Engine, spec string, log *logging.Logger) (*DecayScheduler, error) {
	if spec == "" {
		spec = DecaySpec
	}
	if log == nil {
		log = logging.Default()
	}
	c := cron.New()
	s := &DecayScheduler{engine: engine, cron: c, log: log}

	id, err := c.AddFunc(spec, s.runSweep)
	if err != nil {
		return nil, err
	}
	s.entry = id
	return s, nil
}

// Start begins the scheduler in the background. Stop must be called to
// release its goroutine.
func (s *DecayScheduler) Start() { s.cron.Start() }

// Stop blocks until the in-flight sweep (if any) finishes, then halts
// future runs.
func (s *DecayScheduler) Stop() { <-s.cron.Stop().Done() }

func (s *DecayScheduler) runSweep() {
	ctx := context.Background()
	n := s.engine.Decay(ctx, DecayPeriod, DecayFactor)
	s.log.Info(ctx, "reputation decay sweep completed", map[string]interface{}{"decayed_engines": n})
}

// Decay multiplies score and expertise by factor for every engine whose
// LastUpdated is older than period (§4.6.2), returning the count of
// engines decayed.
func (e *Engine) Decay(ctx context.Context, period time.Duration, factor float64) int {
	e.mu.RLock()
	ids := make([]string, 0, len(e.engines))
	for id := range e.engines {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	cutoff := e.now().Add(-period)
	decayed := 0
	for _, id := range ids {
		if e.decayOne(id, cutoff, factor) {
			decayed++
		}
	}
	return decayed
}

func (e *Engine) decayOne(engineID string, cutoff time.Time, factor float64) bool {
	st := e.stateFor(engineID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.rep.LastUpdated.After(cutoff) {
		return false
	}
	st.rep.Score *= factor
	for category, v := range st.rep.Expertise {
		st.rep.Expertise[category] = v * factor
	}
	st.rep.Tier = domain.TierForScore(st.rep.Score)
	st.rep.LastUpdated = e.now()
	st.history = append(st.history, domain.ScorePoint{At: st.rep.LastUpdated, Score: st.rep.Score})
	if len(st.history) > historyLimit {
		st.history = st.history[len(st.history)-historyLimit:]
	}
	return true
}

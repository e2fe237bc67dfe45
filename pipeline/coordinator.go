// Package pipeline implements C3: the analysis coordinator that fans a
// single AnalysisRequest out to the active analyzer set and fans the
// outcomes back in to one AnalysisResult. Grounded on
// packages/com.r3e.services.oracle/service/dispatcher.go's per-item
// scheduling/cancellation idiom, generalized from "one poll tick handles
// many pending requests" to "one Analyze call fans out to many analyzers."
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/deep60/nexus-intel/domain"
	nexuserrors "github.com/deep60/nexus-intel/infrastructure/errors"
	"github.com/deep60/nexus-intel/infrastructure/logging"
	"github.com/deep60/nexus-intel/pipeline/analyzer"
	"github.com/deep60/nexus-intel/pipeline/artifactstore"
	"github.com/deep60/nexus-intel/platform/core"
)

// Request is one analysis request (§4.3.1).
type Request struct {
	Artifact            domain.ArtifactRef
	EnabledAnalyzers    map[string]bool // empty means all registered analyzers are enabled
	Priority            domain.Priority
	RequireAllAnalyzers bool
	OverallDeadline     time.Duration
}

// Config tunes the coordinator's fan-out behavior and result cache.
type Config struct {
	ResultCacheSize int
	ResultCacheTTL  time.Duration
}

// DefaultConfig returns sane coordinator defaults.
func DefaultConfig() Config {
	return Config{ResultCacheSize: 1024, ResultCacheTTL: 5 * time.Minute}
}

// Coordinator runs the fan-out/fan-in algorithm of §4.3.2 over a registered
// analyzer set, backed by an artifact store and an optional result cache.
type Coordinator struct {
	store     artifactstore.Store
	analyzers []analyzer.Analyzer
	dispatch  core.DispatchOptions
	cache     *lru.LRU[string, *domain.AnalysisResult]
	log       *logging.Logger

	idMu   sync.Mutex
	nextID int
}

// New constructs a Coordinator over the given store and analyzer set.
func New(store artifactstore.Store, analyzers []analyzer.Analyzer, cfg Config, dispatch core.DispatchOptions, log *logging.Logger) *Coordinator {
	if cfg.ResultCacheSize <= 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Coordinator{
		store:     store,
		analyzers: analyzers,
		dispatch:  dispatch,
		cache:     lru.NewLRU[string, *domain.AnalysisResult](cfg.ResultCacheSize, nil, cfg.ResultCacheTTL),
		log:       log,
	}
}

func (c *Coordinator) newResultID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	c.nextID++
	return fmt.Sprintf("result-%d", c.nextID)
}

// Analyze runs §4.3.2's fan-out/fan-in algorithm for req, returning the
// assembled AnalysisResult. A cache hit on (content_address,
// enabled_analyzer_set) short-circuits analyzer dispatch entirely — but
// only for terminal (Completed/Timeout) cached results, never Failed ones
// (§4.3.5).
func (c *Coordinator) Analyze(ctx context.Context, req Request) (*domain.AnalysisResult, error) {
	cacheKey := c.cacheKey(req)
	if cached, ok := c.cache.Get(cacheKey); ok {
		if cached.Status == domain.AnalysisCompleted || cached.Status == domain.AnalysisTimeout {
			return cached, nil
		}
	}

	if req.OverallDeadline <= 0 {
		req.OverallDeadline = 30 * time.Second
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, req.OverallDeadline)
	defer cancel()

	data, err := c.store.Fetch(deadlineCtx, req.Artifact.ContentAddress)
	if err != nil {
		return nil, err
	}

	result := NewResult(c.newResultID(), req.Artifact, time.Now())
	Advance(result, domain.AnalysisInProgress, time.Now())

	active := c.activeSet(req)
	if len(active) == 0 {
		Advance(result, domain.AnalysisCompleted, time.Now())
		c.cache.Add(cacheKey, result)
		return result, nil
	}

	type outcomeMsg struct {
		analyzerID string
		outcome    analyzer.Outcome
	}
	fanIn := make(chan outcomeMsg, len(active))

	deadline, hasDeadline := deadlineCtx.Deadline()
	start := time.Now()

	var wg sync.WaitGroup
	for _, a := range active {
		wg.Add(1)
		go func(a analyzer.Analyzer) {
			defer wg.Done()
			perAnalyzerTimeout := a.DefaultTimeout()
			if hasDeadline {
				remaining := time.Until(deadline)
				if remaining < perAnalyzerTimeout {
					perAnalyzerTimeout = remaining
				}
			}
			taskCtx, taskCancel := context.WithTimeout(deadlineCtx, perAnalyzerTimeout)
			defer taskCancel()

			spanCtx, finishSpan := c.dispatch.Tracer().StartSpan(taskCtx, "pipeline.analyze", map[string]string{
				"analyzer_id": a.ID(), "content_address": req.Artifact.ContentAddress,
			})
			finishObs := core.StartObservation(spanCtx, core.NoopObservationHooks, map[string]string{"analyzer_id": a.ID()})

			outcome := c.runAnalyzer(spanCtx, a, req.Artifact, data)

			var spanErr error
			if outcome.IsFailed() {
				spanErr = fmt.Errorf("%s: %s", outcome.Err().Kind, outcome.Err().Message)
			}
			finishObs(spanErr)
			finishSpan(spanErr)

			fanIn <- outcomeMsg{analyzerID: a.ID(), outcome: outcome}
		}(a)
	}

	go func() {
		wg.Wait()
		close(fanIn)
	}()

	var anyProduced bool
	var anyFailed bool
	for msg := range fanIn {
		switch {
		case msg.outcome.IsProduced():
			anyProduced = true
			AddDetection(result, msg.outcome.Detection())
		case msg.outcome.IsFailed():
			anyFailed = true
			AddError(result, msg.outcome.Err())
			c.log.LogAnalyzerRun(ctx, msg.analyzerID, req.Artifact.ContentAddress, "failed", fmt.Errorf(msg.outcome.Err().Message))
		case msg.outcome.IsSkipped():
			c.log.LogAnalyzerRun(ctx, msg.analyzerID, req.Artifact.ContentAddress, "skipped: "+msg.outcome.SkipReason(), nil)
		}
	}

	finishedAt := time.Now()
	switch {
	case req.RequireAllAnalyzers && anyFailed:
		Advance(result, domain.AnalysisFailed, finishedAt)
	case !anyProduced && deadlineCtx.Err() != nil:
		Advance(result, domain.AnalysisTimeout, finishedAt)
	default:
		Advance(result, domain.AnalysisCompleted, finishedAt)
	}

	_ = start // retained for future latency metrics wiring
	if result.Status == domain.AnalysisCompleted || result.Status == domain.AnalysisTimeout {
		c.cache.Add(cacheKey, result)
	}
	return result, nil
}

// runAnalyzer invokes a single analyzer, converting a context-deadline
// expiry into a Failed(Timeout) outcome that never aborts its siblings.
func (c *Coordinator) runAnalyzer(ctx context.Context, a analyzer.Analyzer, ref domain.ArtifactRef, data []byte) analyzer.Outcome {
	if !a.Accepts(ref.Kind) {
		return analyzer.Skipped("artifact kind not supported by this analyzer")
	}
	done := make(chan analyzer.Outcome, 1)
	go func() {
		done <- a.Analyze(ctx, ref, data, analyzer.Options{})
	}()
	select {
	case outcome := <-done:
		return outcome
	case <-ctx.Done():
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.ID(), Kind: "timeout", Message: "analyzer deadline exceeded"})
	}
}

// activeSet computes S = enabled ∩ applicable(artifact) per §4.3.2 step 2.
func (c *Coordinator) activeSet(req Request) []analyzer.Analyzer {
	var active []analyzer.Analyzer
	for _, a := range c.analyzers {
		if len(req.EnabledAnalyzers) > 0 && !req.EnabledAnalyzers[a.ID()] {
			continue
		}
		if !a.Accepts(req.Artifact.Kind) {
			continue
		}
		active = append(active, a)
	}
	return active
}

// cacheKey implements the §4.3.5 cache key: content address, enabled
// analyzer set, and options digest (priority + require_all flag here).
func (c *Coordinator) cacheKey(req Request) string {
	var ids []string
	for _, a := range c.analyzers {
		if len(req.EnabledAnalyzers) == 0 || req.EnabledAnalyzers[a.ID()] {
			ids = append(ids, a.ID())
		}
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s|%s|%s|%t", req.Artifact.ContentAddress, strings.Join(ids, ","), req.Priority, req.RequireAllAnalyzers)
}

// ArtifactUnavailable exposes the artifact-fetch error kind for callers that
// need to branch on it explicitly (e.g. bounty admission treating an
// unfetchable artifact as a rejection rather than a retryable error).
func ArtifactUnavailable(contentAddress string, err error) error {
	return nexuserrors.ArtifactUnavailable(contentAddress, err)
}

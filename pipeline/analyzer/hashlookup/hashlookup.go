// Package hashlookup implements a hash-reputation analyzer: a cheap,
// near-instant lookup of an artifact's digest against a known-bad/known-good
// feed. Grounded on the oracle dispatcher's external-lookup idiom
// (packages/com.r3e.services.oracle/service/dispatcher.go) — a single
// blocking call guarded by the caller's context deadline.
package hashlookup

import (
	"context"
	"time"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/pipeline/analyzer"
)

// Feed is the external reputation source this analyzer consults. A real
// deployment backs it with a threat-intel API or local bloom-filter feed.
type Feed interface {
	Lookup(ctx context.Context, sha256 string) (FeedEntry, bool, error)
}

// FeedEntry is one feed hit.
type FeedEntry struct {
	Verdict    domain.Verdict
	Confidence float64
	Severity   domain.Severity
	Categories []string
}

// Analyzer looks up an artifact's SHA-256 against a reputation feed.
type Analyzer struct {
	id      string
	feed    Feed
	timeout time.Duration
}

// New constructs a hash-lookup analyzer with the given feed collaborator.
func New(id string, feed Feed, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Analyzer{id: id, feed: feed, timeout: timeout}
}

func (a *Analyzer) ID() string                       { return a.id }
func (a *Analyzer) Type() domain.AnalyzerType        { return domain.AnalyzerTypeHash }
func (a *Analyzer) DefaultTimeout() time.Duration    { return a.timeout }
func (a *Analyzer) Accepts(k domain.ArtifactKind) bool { return true }

// Analyze queries the feed once; a miss is a Skipped outcome, never a
// failure — an unknown hash is not an analyzer malfunction (§4.2.2).
func (a *Analyzer) Analyze(ctx context.Context, ref domain.ArtifactRef, data []byte, opts analyzer.Options) analyzer.Outcome {
	digests := domain.ComputeDigests(data)
	entry, found, err := a.feed.Lookup(ctx, digests.SHA256)
	if err != nil {
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "internal", Message: err.Error()})
	}
	if !found {
		return analyzer.Skipped("hash not present in reputation feed")
	}
	return analyzer.Produced(domain.Detection{
		AnalyzerID: a.id,
		Verdict:    entry.Verdict,
		Confidence: entry.Confidence,
		Severity:   entry.Severity,
		Categories: entry.Categories,
	})
}

var _ analyzer.Analyzer = (*Analyzer)(nil)

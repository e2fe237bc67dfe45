// Package analyzer defines C2: the analyzer plugin contract and its
// outcome type. Concrete analyzers live in sibling packages
// (hashlookup, static, yara, dynamic); this package only fixes the
// shape every one of them must honor so pipeline.Coordinator can treat
// them uniformly.
package analyzer

import (
	"context"
	"time"

	"github.com/deep60/nexus-intel/domain"
)

// Options carries per-run configuration an analyzer may consult (e.g. a
// dynamic analyzer's sandbox script budget).
type Options struct {
	Priority domain.Priority
}

// Analyzer is one pluggable detection engine (§2 C2).
type Analyzer interface {
	// ID uniquely identifies this analyzer instance, e.g. "yara-v1".
	ID() string
	// Type classifies the analyzer for timeout/scheduling policy (§4.2.1).
	Type() domain.AnalyzerType
	// DefaultTimeout is the budget applied absent a tighter overall deadline.
	DefaultTimeout() time.Duration
	// Accepts reports whether this analyzer can run against the given kind.
	Accepts(kind domain.ArtifactKind) bool
	// Analyze inspects data and returns one Outcome. Analyze must itself
	// respect ctx cancellation/deadline; the coordinator does not kill
	// goroutines that ignore ctx.
	Analyze(ctx context.Context, ref domain.ArtifactRef, data []byte, opts Options) Outcome
}

// outcomeKind is Outcome's internal discriminant (§4.3.1 "either produces a
// Detection, explicitly abstains, or fails").
type outcomeKind int

const (
	outcomeProduced outcomeKind = iota
	outcomeSkipped
	outcomeFailed
)

// Outcome is a closed sum type: exactly one of Produced/Skipped/Failed
// reports true for any given value.
type Outcome struct {
	kind      outcomeKind
	detection domain.Detection
	skipRaw   string
	failErr   domain.AnalyzerError
}

// Produced returns a Detection-bearing outcome.
func Produced(d domain.Detection) Outcome {
	return Outcome{kind: outcomeProduced, detection: d}
}

// Skipped returns an explicit-abstention outcome (e.g. artifact kind not
// supported, or the analyzer found nothing worth reporting).
func Skipped(reason string) Outcome {
	return Outcome{kind: outcomeSkipped, skipRaw: reason}
}

// Failed returns a failure outcome carrying the analyzer error.
func Failed(err domain.AnalyzerError) Outcome {
	return Outcome{kind: outcomeFailed, failErr: err}
}

// IsProduced reports whether this outcome carries a Detection.
func (o Outcome) IsProduced() bool { return o.kind == outcomeProduced }

// IsSkipped reports whether the analyzer explicitly abstained.
func (o Outcome) IsSkipped() bool { return o.kind == outcomeSkipped }

// IsFailed reports whether the analyzer failed.
func (o Outcome) IsFailed() bool { return o.kind == outcomeFailed }

// Detection returns the carried detection. Only meaningful when IsProduced.
func (o Outcome) Detection() domain.Detection { return o.detection }

// SkipReason returns the abstention reason. Only meaningful when IsSkipped.
func (o Outcome) SkipReason() string { return o.skipRaw }

// Err returns the carried analyzer error. Only meaningful when IsFailed.
func (o Outcome) Err() domain.AnalyzerError { return o.failErr }

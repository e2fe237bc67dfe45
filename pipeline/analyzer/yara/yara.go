// Package yara implements a rule-matching analyzer in the spirit of YARA:
// named rules, each a set of string/regex conditions, all of which must
// match for the rule to fire. A real deployment would shell out to
// libyara; this implementation keeps the same rule model with Go regexps so
// the analyzer stays a pure, poolable unit of CPU work with no cgo
// dependency, matching the teacher's avoidance of cgo throughout the stack.
package yara

import (
	"context"
	"regexp"
	"time"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/pipeline/analyzer"
)

// Rule is one named detection rule: all Patterns must match for it to fire.
type Rule struct {
	Name       string
	Patterns   []*regexp.Regexp
	Verdict    domain.Verdict
	Confidence float64
	Severity   domain.Severity
	Categories []string
}

// Matches reports whether every pattern in the rule matches data.
func (r Rule) Matches(data []byte) bool {
	for _, p := range r.Patterns {
		if !p.Match(data) {
			return false
		}
	}
	return len(r.Patterns) > 0
}

// Analyzer evaluates a fixed rule set against artifact bytes.
type Analyzer struct {
	id      string
	rules   []Rule
	timeout time.Duration
}

// New constructs a rule-matching analyzer with the given rule set.
func New(id string, rules []Rule, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Analyzer{id: id, rules: rules, timeout: timeout}
}

func (a *Analyzer) ID() string                    { return a.id }
func (a *Analyzer) Type() domain.AnalyzerType     { return domain.AnalyzerTypeYARA }
func (a *Analyzer) DefaultTimeout() time.Duration { return a.timeout }

func (a *Analyzer) Accepts(k domain.ArtifactKind) bool {
	return k == domain.ArtifactKindFile
}

// Analyze evaluates every rule, reporting the most severe match (ties broken
// by rule order). No rule firing is a Skipped outcome, not Benign — the
// analyzer makes no claim about artifacts its rule set doesn't cover.
func (a *Analyzer) Analyze(ctx context.Context, ref domain.ArtifactRef, data []byte, opts analyzer.Options) analyzer.Outcome {
	if err := ctx.Err(); err != nil {
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "cancelled", Message: err.Error()})
	}

	var best *Rule
	for i := range a.rules {
		if !a.rules[i].Matches(data) {
			continue
		}
		if best == nil || domain.SeverityWeight(a.rules[i].Severity) > domain.SeverityWeight(best.Severity) {
			best = &a.rules[i]
		}
	}
	if best == nil {
		return analyzer.Skipped("no rule matched")
	}

	return analyzer.Produced(domain.Detection{
		AnalyzerID: a.id,
		Verdict:    best.Verdict,
		Confidence: best.Confidence,
		Severity:   best.Severity,
		Categories: best.Categories,
		Payload:    map[string]interface{}{"rule": best.Name},
	})
}

var _ analyzer.Analyzer = (*Analyzer)(nil)

package yara

import (
	"context"
	"regexp"
	"testing"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/pipeline/analyzer"
)

func TestAnalyzer_RuleMatch(t *testing.T) {
	rules := []Rule{
		{
			Name:       "ransom-note",
			Patterns:   []*regexp.Regexp{regexp.MustCompile(`(?i)your files have been encrypted`)},
			Verdict:    domain.VerdictMalicious,
			Confidence: 0.9,
			Severity:   domain.SeverityCritical,
			Categories: []string{"ransomware"},
		},
	}
	a := New("yara-v1", rules, 0)

	outcome := a.Analyze(context.Background(), domain.ArtifactRef{}, []byte("YOUR FILES HAVE BEEN ENCRYPTED"), analyzer.Options{})
	if !outcome.IsProduced() {
		t.Fatalf("expected produced outcome")
	}
	if outcome.Detection().Verdict != domain.VerdictMalicious {
		t.Fatalf("got verdict %v, want malicious", outcome.Detection().Verdict)
	}
}

func TestAnalyzer_NoRuleMatches(t *testing.T) {
	rules := []Rule{
		{Name: "r1", Patterns: []*regexp.Regexp{regexp.MustCompile(`nope`)}, Verdict: domain.VerdictMalicious},
	}
	a := New("yara-v1", rules, 0)

	outcome := a.Analyze(context.Background(), domain.ArtifactRef{}, []byte("clean content"), analyzer.Options{})
	if !outcome.IsSkipped() {
		t.Fatalf("expected skipped outcome")
	}
}

func TestAnalyzer_MostSevereRuleWins(t *testing.T) {
	rules := []Rule{
		{Name: "low", Patterns: []*regexp.Regexp{regexp.MustCompile(`foo`)}, Verdict: domain.VerdictSuspicious, Severity: domain.SeverityLow},
		{Name: "high", Patterns: []*regexp.Regexp{regexp.MustCompile(`foo`)}, Verdict: domain.VerdictMalicious, Severity: domain.SeverityCritical},
	}
	a := New("yara-v1", rules, 0)

	outcome := a.Analyze(context.Background(), domain.ArtifactRef{}, []byte("foo bar"), analyzer.Options{})
	if outcome.Detection().Severity != domain.SeverityCritical {
		t.Fatalf("got severity %v, want critical", outcome.Detection().Severity)
	}
}

func TestRule_RequiresAllPatterns(t *testing.T) {
	r := Rule{Patterns: []*regexp.Regexp{regexp.MustCompile(`foo`), regexp.MustCompile(`bar`)}}
	if r.Matches([]byte("foo only")) {
		t.Fatalf("expected no match when only one pattern is present")
	}
	if !r.Matches([]byte("foo and bar")) {
		t.Fatalf("expected match when both patterns are present")
	}
}

// Package dynamic implements a sandboxed dynamic-analysis analyzer: a
// detection script runs against artifact bytes inside an isolated goja
// VM (a pure-Go JavaScript runtime), one VM per invocation for isolation.
// Grounded on system/tee/script_engine.go's gojaScriptEngine — the same
// per-call goja.New(), console-capture, and entry-point-invocation idiom,
// adapted from arbitrary TEE script execution to a fixed detection-script
// contract that returns a verdict/confidence/severity triple.
package dynamic

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/deep60/nexus-intel/domain"
	"github.com/deep60/nexus-intel/pipeline/analyzer"
)

// scriptResult is the shape a detection script's entry point must return.
type scriptResult struct {
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Severity   string   `json:"severity"`
	Categories []string `json:"categories"`
}

// Analyzer runs a fixed detection script against artifact bytes inside an
// isolated goja VM, one fresh VM per call.
type Analyzer struct {
	id         string
	script     string
	entryPoint string
	timeout    time.Duration
}

// New constructs a dynamic analyzer. script must define entryPoint as a
// top-level function taking the artifact's bytes (as a string) and
// returning an object matching scriptResult's fields.
func New(id, script, entryPoint string, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Analyzer{id: id, script: script, entryPoint: entryPoint, timeout: timeout}
}

func (a *Analyzer) ID() string                    { return a.id }
func (a *Analyzer) Type() domain.AnalyzerType     { return domain.AnalyzerTypeDynamic }
func (a *Analyzer) DefaultTimeout() time.Duration { return a.timeout }

func (a *Analyzer) Accepts(k domain.ArtifactKind) bool {
	return k == domain.ArtifactKindFile
}

// Analyze runs the sandboxed script, interrupting the VM if ctx is
// cancelled or its deadline elapses before the script returns.
func (a *Analyzer) Analyze(ctx context.Context, ref domain.ArtifactRef, data []byte, opts analyzer.Options) analyzer.Outcome {
	vm := goja.New()

	var logs []string
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			logs = append(logs, arg.String())
		}
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
	_ = vm.Set("input", string(data))

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("deadline exceeded")
		case <-watchDone:
		}
	}()

	if _, err := vm.RunString(a.script); err != nil {
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "internal", Message: fmt.Sprintf("load script: %v", err)})
	}

	entryPoint, ok := goja.AssertFunction(vm.Get(a.entryPoint))
	if !ok {
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "internal", Message: fmt.Sprintf("entry point %q is not a function", a.entryPoint)})
	}

	resultVal, err := entryPoint(goja.Undefined(), vm.Get("input"))
	if err != nil {
		if ctx.Err() != nil {
			return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "timeout", Message: ctx.Err().Error()})
		}
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "internal", Message: err.Error()})
	}

	var result scriptResult
	if err := vm.ExportTo(resultVal, &result); err != nil {
		return analyzer.Failed(domain.AnalyzerError{AnalyzerID: a.id, Kind: "internal", Message: fmt.Sprintf("decode result: %v", err)})
	}
	if result.Verdict == "" {
		return analyzer.Skipped("script reported no verdict")
	}

	return analyzer.Produced(domain.Detection{
		AnalyzerID: a.id,
		Verdict:    domain.Verdict(result.Verdict),
		Confidence: result.Confidence,
		Severity:   domain.Severity(result.Severity),
		Categories: result.Categories,
		Payload:    map[string]interface{}{"logs": logs},
	})
}

var _ analyzer.Analyzer = (*Analyzer)(nil)

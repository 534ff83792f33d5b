package workflow

import (
	"fmt"
	"strings"

	"github.com/storycheck/storycheck/internal/artifact"
	"github.com/storycheck/storycheck/internal/runner"
)

// Failure signature vocabularies, matched against lowercased output.
var (
	loadSignatures = []string{
		"load failure", "parse", "invalid step pattern", "unknown action",
		"unexpected end of json",
	}
	runtimeSignatures = []string{
		"runtime error", "panic:", "unresolved placeholder",
		"no step definition matches", "no response captured",
	}
	networkSignatures = []string{
		"connection error", "connection refused", "timeout",
		"deadline exceeded", "no such host", "network is unreachable",
	}

	stepLoadMarkers = []string{
		"step definition", "step pattern", "unknown action", "placeholder",
		"invalid method", "requires an endpoint", "invalid status",
	}
	featureLoadMarkers = []string{"feature", "scenario", "line "}
)

// Fixed per-rule confidence heuristics. Load failures are unambiguous;
// keyword matches get less credit as the vocabulary gets noisier.
const (
	confidenceSyntax       = 0.95
	confidenceAssertion    = 0.9
	confidenceRuntime      = 0.85
	confidenceNetwork      = 0.8
	confidenceUnclassified = 0.2
)

// Diagnostician classifies failed runs and decides whether the repair
// agent can act on them.
type Diagnostician struct{}

func NewDiagnostician() *Diagnostician {
	return &Diagnostician{}
}

// Diagnose classifies the first non-passing result in declaration order.
// Rules are checked in priority order: load-time failures, then runtime
// errors, then assertion mismatches, then network trouble. Output matching
// nothing is unclassified, which stops the repair loop.
func (d *Diagnostician) Diagnose(results []RunResult) Diagnosis {
	problem, ok := firstProblem(results)
	if !ok {
		return Diagnosis{
			Category:   CategoryUnclassified,
			Confidence: 0,
			Rationale:  "no failing scenario found to diagnose",
		}
	}

	output := strings.ToLower(problem.Output)

	if problem.LoadFailure && matchesAny(output, loadSignatures) {
		return Diagnosis{
			Category:   CategorySyntaxError,
			Confidence: confidenceSyntax,
			Rationale: fmt.Sprintf("artifacts failed to load before any scenario ran: %s",
				firstLine(problem.Output)),
			Target: d.loadFailureTarget(output),
		}
	}

	if sig, ok := matchAny(output, runtimeSignatures); ok {
		return Diagnosis{
			Category:   CategoryRuntimeError,
			Confidence: confidenceRuntime,
			Rationale: fmt.Sprintf("scenario %q stopped on a runtime failure (%q): %s",
				problem.Scenario, sig, firstLine(problem.Output)),
			Target: artifact.KindSteps,
		}
	}

	if strings.Contains(output, "assertion failed") {
		return Diagnosis{
			Category:   CategoryAssertionFailure,
			Confidence: confidenceAssertion,
			Rationale: fmt.Sprintf("scenario %q observed a wrong value: %s. The target API response did not match the expectation",
				problem.Scenario, firstLine(problem.Output)),
		}
	}

	if sig, ok := matchAny(output, networkSignatures); ok {
		return Diagnosis{
			Category:   CategoryConfigOrNetwork,
			Confidence: confidenceNetwork,
			Rationale: fmt.Sprintf("scenario %q hit transport trouble (%q). Check the configured base URL and target availability",
				problem.Scenario, sig),
		}
	}

	return Diagnosis{
		Category:   CategoryUnclassified,
		Confidence: confidenceUnclassified,
		Rationale: fmt.Sprintf("scenario %q failed with output matching no known failure signature: %s",
			problem.Scenario, firstLine(problem.Output)),
	}
}

// loadFailureTarget decides which artifact a load failure implicates. Step
// set errors name definitions, patterns, or actions; feature parse errors
// name lines, scenarios, or the Feature declaration.
func (d *Diagnostician) loadFailureTarget(output string) artifact.Kind {
	for _, marker := range stepLoadMarkers {
		if strings.Contains(output, marker) {
			return artifact.KindSteps
		}
	}
	for _, marker := range featureLoadMarkers {
		if strings.Contains(output, marker) {
			return artifact.KindFeature
		}
	}
	return artifact.KindSteps
}

func firstProblem(results []RunResult) (RunResult, bool) {
	for _, r := range results {
		if r.Status != runner.StatusPassed {
			return r, true
		}
	}
	return RunResult{}, false
}

func matchesAny(output string, signatures []string) bool {
	_, ok := matchAny(output, signatures)
	return ok
}

func matchAny(output string, signatures []string) (string, bool) {
	for _, sig := range signatures {
		if strings.Contains(output, sig) {
			return sig, true
		}
	}
	return "", false
}

// firstLine trims captured output to its first line for rationales.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}

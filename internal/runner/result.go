package runner

import "time"

// Scenario result statuses.
const (
	// StatusPassed means every step of the scenario succeeded.
	StatusPassed = "passed"
	// StatusFailed means an assertion step observed a wrong value.
	StatusFailed = "failed"
	// StatusErrored means the scenario could not run to an assertion
	// verdict: load failures, unmatched steps, transport errors.
	StatusErrored = "errored"
)

// SuiteName labels the synthetic result emitted when the whole suite fails
// to load and no individual scenario ran.
const SuiteName = "<suite>"

// Result is the outcome of one scenario run, or of the suite as a whole
// when loading failed before any scenario could start.
type Result struct {
	Scenario   string   `json:"scenario"`
	Tags       []string `json:"tags,omitempty"`
	Status     string   `json:"status"`
	StepsRun   int      `json:"stepsRun"`
	FailedStep string   `json:"failedStep,omitempty"`
	// Output is the captured failure output: empty for passed scenarios,
	// otherwise a single classified message such as
	// "assertion failed: expected status 200, got 404".
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	// LoadFailure marks the synthetic whole-suite result produced when the
	// artifacts failed to parse or compile.
	LoadFailure bool `json:"loadFailure,omitempty"`
}

// Counts aggregates scenario statuses for reporting.
type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// Count tallies results by status.
func Count(results []Result) Counts {
	var c Counts
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			c.Passed++
		case StatusFailed:
			c.Failed++
		default:
			c.Errored++
		}
	}
	return c
}

// AllPassed reports whether every scenario passed.
func AllPassed(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Status != StatusPassed {
			return false
		}
	}
	return true
}

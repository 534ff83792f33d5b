package workflow

import (
	"errors"
	"time"

	"github.com/storycheck/storycheck/internal/artifact"
	"github.com/storycheck/storycheck/internal/runner"
)

// Phase represents a run phase
type Phase string

const (
	PhaseGenerate Phase = "GENERATE"
	PhaseRun      Phase = "RUN"
	PhaseDiagnose Phase = "DIAGNOSE"
	PhaseRepair   Phase = "REPAIR"
	PhaseDone     Phase = "DONE"
	PhaseFailed   Phase = "FAILED"
)

// Terminal reports whether the phase ends the run.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Verdict is the terminal outcome of a run.
type Verdict string

const (
	VerdictNone      Verdict = ""
	VerdictDone      Verdict = "done"
	VerdictFailed    Verdict = "failed"
	VerdictCancelled Verdict = "cancelled"
)

// Causes recorded on failed runs. Diagnosis categories are also used as
// causes when the repair loop stops on a classified failure.
const (
	CauseGeneration = "generation"
	CauseRepair     = "repair"
	CauseCancelled  = "cancelled"
	CauseInternal   = "internal"
)

// Category is the diagnostician's classification of a failed run.
type Category string

const (
	CategorySyntaxError      Category = "SyntaxError"
	CategoryRuntimeError     Category = "RuntimeError"
	CategoryAssertionFailure Category = "AssertionFailure"
	CategoryConfigOrNetwork  Category = "ConfigOrNetworkError"
	CategoryUnclassified     Category = "Unclassified"
)

// Diagnosis is the classifier verdict for one failed run.
type Diagnosis struct {
	Category   Category      `json:"category"`
	Confidence float64       `json:"confidence"`
	Rationale  string        `json:"rationale"`
	Target     artifact.Kind `json:"target,omitempty"`
}

// Repairable reports whether the repair agent can act on this diagnosis.
// Assertion and network failures are treated as the target system's
// problem; unclassified failures stop the loop.
func (d Diagnosis) Repairable() bool {
	return d.Category == CategorySyntaxError || d.Category == CategoryRuntimeError
}

// RunResult ties one scenario outcome to the artifact version pair that
// produced it.
type RunResult struct {
	runner.Result
	FeatureVersion int `json:"featureVersion"`
	StepsVersion   int `json:"stepsVersion"`
}

// RepairAttempt records one completed or attempted repair. History is
// ordered and append-only.
type RepairAttempt struct {
	Attempt       int           `json:"attempt"`
	Target        artifact.Kind `json:"target"`
	BeforeVersion int           `json:"beforeVersion"`
	AfterVersion  int           `json:"afterVersion"`
	Diagnosis     Diagnosis     `json:"diagnosis"`
	Timestamp     time.Time     `json:"timestamp"`
}

// RunError records why a run ended before reaching a done verdict.
type RunError struct {
	Message   string    `json:"message"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *RunError) Error() string {
	return e.Message
}

// RunState represents the persisted state of a run
type RunState struct {
	Version        string          `json:"version"`
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Slug           string          `json:"slug"`
	Story          string          `json:"story"`
	CurrentPhase   Phase           `json:"currentPhase"`
	Verdict        Verdict         `json:"verdict,omitempty"`
	Cause          string          `json:"cause,omitempty"`
	MaxRetries     int             `json:"maxRetries"`
	AttemptCount   int             `json:"attemptCount"`
	FeatureVersion int             `json:"featureVersion,omitempty"`
	StepsVersion   int             `json:"stepsVersion,omitempty"`
	Results        []RunResult     `json:"results,omitempty"`
	History        []RepairAttempt `json:"history,omitempty"`
	LastDiagnosis  *Diagnosis      `json:"lastDiagnosis,omitempty"`
	Error          *RunError       `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Outcome summarizes the state for listings: passed, failed, cancelled, or
// in_progress.
func (s *RunState) Outcome() string {
	switch {
	case s.Verdict == VerdictCancelled:
		return "cancelled"
	case s.CurrentPhase == PhaseDone:
		return "passed"
	case s.CurrentPhase == PhaseFailed:
		return "failed"
	default:
		return "in_progress"
	}
}

// RunInfo represents summary information for listing runs
type RunInfo struct {
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Story     string    `json:"story"`
	Phase     Phase     `json:"currentPhase"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Repairs   int       `json:"repairs"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transition is the outcome of one phase handler: the next phase plus the
// payload the handler produced. apply folds it into the next state
// snapshot.
type Transition struct {
	To      Phase
	Verdict Verdict
	Cause   string
	Note    string

	Results        []RunResult
	Diagnosis      *Diagnosis
	Repair         *RepairAttempt
	FeatureVersion int
	StepsVersion   int
	BumpAttempt    bool
}

// Error variables for common error conditions
var (
	ErrInvalidRunName = errors.New("invalid run name")
	ErrRunNotFound    = errors.New("run not found")
	ErrRunExists      = errors.New("run already exists")
	ErrStateCorrupted = errors.New("state file corrupted")
	ErrStateLocked    = errors.New("run is locked by another process")
	ErrStoryTooLong   = errors.New("story too long")
	ErrEmptyStory     = errors.New("story cannot be empty")
	ErrNoArtifact     = errors.New("no artifact found in model output")
	ErrGeneration     = errors.New("artifact generation failed")
	ErrValidation     = errors.New("artifact validation failed")
	ErrRepair         = errors.New("artifact repair failed")
	ErrTestsFailed    = errors.New("tests failed")
	ErrCancelled      = errors.New("run cancelled")
)

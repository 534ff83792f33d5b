package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/storycheck/storycheck/internal/artifact"
	"github.com/storycheck/storycheck/internal/config"
	"github.com/storycheck/storycheck/internal/llm"
	"github.com/storycheck/storycheck/internal/runner"
)

// DefaultMaxRetries bounds the repair loop when no limit is configured.
const DefaultMaxRetries = 3

// ReportWriter renders and persists the final report for a run. It is
// called exactly once per run, on every terminal path.
type ReportWriter interface {
	Write(state *RunState, runDir string) error
}

// Options holds the dependencies and settings for an orchestrator.
type Options struct {
	// BaseDir is the root directory for run state and artifacts.
	BaseDir  string
	Config   *config.Config
	Client   llm.Client
	Reporter ReportWriter

	// MaxRetries bounds repair attempts per run. Zero means
	// DefaultMaxRetries; negative disables repair.
	MaxRetries int

	// Out receives progress output. Defaults to os.Stdout.
	Out    io.Writer
	Logger *slog.Logger
}

// Orchestrator drives a run through the phase machine:
// GENERATE -> RUN -> DIAGNOSE -> (REPAIR -> RUN)* -> DONE | FAILED.
// State is saved after every transition so an interrupted run leaves an
// inspectable record.
type Orchestrator struct {
	stateManager  StateManager
	featureGen    *FeatureGenerator
	stepGen       *StepGenerator
	repairer      *Repairer
	runner        *runner.Runner
	diagnostician *Diagnostician
	reporter      ReportWriter
	cfg           *config.Config
	maxRetries    int
	out           io.Writer
	logger        *slog.Logger
	now           TimeProvider
}

// NewOrchestrator creates an orchestrator from options. Config, Client,
// and Reporter are required to execute runs; commands that only inspect or
// delete stored state may omit them.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	o := &Orchestrator{
		stateManager:  NewStateManager(opts.BaseDir),
		runner:        runner.New(logger),
		diagnostician: NewDiagnostician(),
		reporter:      opts.Reporter,
		cfg:           opts.Config,
		maxRetries:    maxRetries,
		out:           out,
		logger:        logger,
		now:           time.Now,
	}
	if opts.Client != nil {
		o.featureGen = NewFeatureGenerator(opts.Client, opts.Config)
		o.stepGen = NewStepGenerator(opts.Client, opts.Config)
		o.repairer = NewRepairer(opts.Client, opts.Config)
	}
	return o, nil
}

// SetTimeProvider allows setting a custom time provider for testing.
func (o *Orchestrator) SetTimeProvider(tp TimeProvider) {
	o.now = tp
	o.stateManager.SetTimeProvider(tp)
}

// Run executes the full workflow for a story and returns the final state.
// The returned error is nil only when the run ends with a done verdict;
// terminal failures return a sentinel-wrapped error describing why, while
// the state carries the complete record either way.
func (o *Orchestrator) Run(ctx context.Context, story string) (*RunState, error) {
	if o.cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if o.featureGen == nil {
		return nil, fmt.Errorf("generation client cannot be nil")
	}
	if o.reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}

	state, err := o.stateManager.InitState(story, o.maxRetries)
	if err != nil {
		return nil, err
	}
	o.logger.Info("run initialized",
		"run", state.Name,
		"maxRetries", state.MaxRetries,
	)

	fmt.Fprintln(o.out, Bold(Cyan("storycheck")))
	fmt.Fprintln(o.out, strings.Repeat("=", 30))
	fmt.Fprintf(o.out, "\n%s: %s\n", Bold("Run"), state.Name)
	fmt.Fprintf(o.out, "%s: %s\n", Bold("Story"), Ellipsis(firstLine(state.Story), 80))

	store := artifact.NewStore(o.stateManager.RunDir(state.Name))
	for !state.CurrentPhase.Terminal() {
		if ctx.Err() != nil {
			if err := o.applyAndSave(state, o.cancelTransition(ctx)); err != nil {
				return state, err
			}
			continue
		}

		tr, err := o.executePhase(ctx, state, store)
		if err != nil {
			if ctx.Err() != nil {
				tr = o.cancelTransition(ctx)
			} else {
				tr = Transition{To: PhaseFailed, Verdict: VerdictFailed, Cause: CauseInternal, Note: err.Error()}
			}
		} else if tr.To == PhaseFailed && ctx.Err() != nil {
			tr = o.cancelTransition(ctx)
		}
		if err := o.applyAndSave(state, tr); err != nil {
			return state, err
		}
	}

	if err := o.reporter.Write(state, o.stateManager.RunDir(state.Name)); err != nil {
		o.logger.Error("failed to write report", "run", state.Name, "error", err)
		fmt.Fprintf(o.out, "%s failed to write report: %v\n", Yellow("!"), err)
	}

	elapsed := o.now().Sub(state.CreatedAt)
	switch {
	case state.Verdict == VerdictDone:
		fmt.Fprintf(o.out, "\n%s Run passed in %s\n", Green("✓"), FormatDuration(elapsed))
	case state.Verdict == VerdictCancelled:
		fmt.Fprintf(o.out, "\n%s Run cancelled after %s\n", Yellow("✗"), FormatDuration(elapsed))
	default:
		fmt.Fprintf(o.out, "\n%s Run failed (%s) after %s\n", Red("✗"), state.Cause, FormatDuration(elapsed))
	}
	fmt.Fprintf(o.out, "%s: %s\n", Bold("Report"), o.stateManager.ReportsDir(state.Name))

	return state, o.terminalError(state)
}

// RunDir returns the directory holding a run's state, artifacts, and
// reports.
func (o *Orchestrator) RunDir(name string) string {
	return o.stateManager.RunDir(name)
}

// Status returns the persisted state of a run.
func (o *Orchestrator) Status(name string) (*RunState, error) {
	return o.stateManager.LoadState(name)
}

// List returns summary information for all runs.
func (o *Orchestrator) List() ([]RunInfo, error) {
	return o.stateManager.ListRuns()
}

// Delete removes a run and all its artifacts.
func (o *Orchestrator) Delete(name string) error {
	if !o.stateManager.RunExists(name) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, name)
	}
	return o.stateManager.DeleteRun(name)
}

// Clean deletes finished runs and returns their names. With all set,
// in-progress runs are deleted too.
func (o *Orchestrator) Clean(all bool) ([]string, error) {
	runs, err := o.stateManager.ListRuns()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var deleted []string
	for _, run := range runs {
		if !all && run.Status == "in_progress" {
			continue
		}
		if err := o.stateManager.DeleteRun(run.Name); err != nil {
			continue
		}
		deleted = append(deleted, run.Name)
	}
	return deleted, nil
}

func (o *Orchestrator) executePhase(ctx context.Context, state *RunState, store *artifact.Store) (Transition, error) {
	switch state.CurrentPhase {
	case PhaseGenerate:
		return o.executeGenerate(ctx, state, store)
	case PhaseRun:
		return o.executeRun(ctx, state, store)
	case PhaseDiagnose:
		return o.executeDiagnose(state)
	case PhaseRepair:
		return o.executeRepair(ctx, state, store)
	default:
		return Transition{}, fmt.Errorf("unexpected phase: %s", state.CurrentPhase)
	}
}

func (o *Orchestrator) executeGenerate(ctx context.Context, state *RunState, store *artifact.Store) (Transition, error) {
	fmt.Fprintf(o.out, "\n%s\n", Bold("Phase: Generate"))

	featureText, feature, err := o.featureGen.Generate(ctx, state.Story)
	if err != nil {
		o.logger.Error("feature generation failed", "run", state.Name, "error", err)
		fmt.Fprintf(o.out, "%s %v\n", Red("✗"), err)
		return Transition{To: PhaseFailed, Verdict: VerdictFailed, Cause: CauseGeneration, Note: noteFromError(err)}, nil
	}
	featureVersion, err := store.Put(artifact.KindFeature, featureText)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to store feature: %w", err)
	}
	fmt.Fprintf(o.out, "%s feature accepted (v%d, %d scenarios)\n", Green("✓"), featureVersion, len(feature.Scenarios))

	stepsText, _, err := o.stepGen.Generate(ctx, featureText, feature)
	if err != nil {
		o.logger.Error("step generation failed", "run", state.Name, "error", err)
		fmt.Fprintf(o.out, "%s %v\n", Red("✗"), err)
		return Transition{
			To:             PhaseFailed,
			Verdict:        VerdictFailed,
			Cause:          CauseGeneration,
			Note:           noteFromError(err),
			FeatureVersion: featureVersion,
		}, nil
	}
	stepsVersion, err := store.Put(artifact.KindSteps, stepsText)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to store steps: %w", err)
	}
	fmt.Fprintf(o.out, "%s steps accepted (v%d)\n", Green("✓"), stepsVersion)

	return Transition{To: PhaseRun, FeatureVersion: featureVersion, StepsVersion: stepsVersion}, nil
}

func (o *Orchestrator) executeRun(ctx context.Context, state *RunState, store *artifact.Store) (Transition, error) {
	fmt.Fprintf(o.out, "\n%s\n", Bold(fmt.Sprintf("Phase: Run (attempt %d)", state.AttemptCount+1)))

	featureText, err := store.Get(artifact.KindFeature, state.FeatureVersion)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to load feature v%d: %w", state.FeatureVersion, err)
	}
	stepsText, err := store.Get(artifact.KindSteps, state.StepsVersion)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to load steps v%d: %w", state.StepsVersion, err)
	}

	results, err := o.runner.Run(ctx, runner.Suite{
		Feature:        featureText,
		Steps:          stepsText,
		FeatureVersion: state.FeatureVersion,
		StepsVersion:   state.StepsVersion,
		Config:         o.cfg,
	})
	if err != nil {
		return Transition{}, fmt.Errorf("failed to run suite: %w", err)
	}

	runResults := make([]RunResult, len(results))
	for i, res := range results {
		runResults[i] = RunResult{
			Result:         res,
			FeatureVersion: state.FeatureVersion,
			StepsVersion:   state.StepsVersion,
		}
		fmt.Fprintln(o.out, FormatResult(res))
	}

	counts := runner.Count(results)
	if runner.AllPassed(results) {
		fmt.Fprintf(o.out, "%s %d passed\n", Green("✓"), counts.Passed)
		return Transition{To: PhaseDone, Verdict: VerdictDone, Results: runResults, BumpAttempt: true}, nil
	}
	fmt.Fprintf(o.out, "%s %d passed, %d failed, %d errored\n", Red("✗"), counts.Passed, counts.Failed, counts.Errored)
	return Transition{To: PhaseDiagnose, Results: runResults, BumpAttempt: true}, nil
}

func (o *Orchestrator) executeDiagnose(state *RunState) (Transition, error) {
	fmt.Fprintf(o.out, "\n%s\n", Bold("Phase: Diagnose"))

	diag := o.diagnostician.Diagnose(state.Results)
	o.logger.Info("run diagnosed",
		"run", state.Name,
		"category", diag.Category,
		"confidence", diag.Confidence,
		"target", diag.Target,
	)
	fmt.Fprintf(o.out, "%s %s (confidence %.2f): %s\n", Yellow("!"), diag.Category, diag.Confidence, diag.Rationale)

	if !diag.Repairable() {
		note := fmt.Sprintf("%s: %s", diag.Category, diag.Rationale)
		return Transition{To: PhaseFailed, Verdict: VerdictFailed, Cause: string(diag.Category), Diagnosis: &diag, Note: note}, nil
	}
	if len(state.History) >= state.MaxRetries {
		note := fmt.Sprintf("repair budget exhausted after %d attempt(s): %s", len(state.History), diag.Rationale)
		fmt.Fprintf(o.out, "%s %s\n", Red("✗"), note)
		return Transition{To: PhaseFailed, Verdict: VerdictFailed, Cause: CauseRepair, Diagnosis: &diag, Note: note}, nil
	}
	return Transition{To: PhaseRepair, Diagnosis: &diag}, nil
}

func (o *Orchestrator) executeRepair(ctx context.Context, state *RunState, store *artifact.Store) (Transition, error) {
	diag := state.LastDiagnosis
	if diag == nil {
		return Transition{}, errors.New("repair phase reached without a diagnosis")
	}
	attempt := len(state.History) + 1
	fmt.Fprintf(o.out, "\n%s\n", Bold(fmt.Sprintf("Phase: Repair (%d/%d)", attempt, state.MaxRetries)))

	failingKind := diag.Target
	pairedKind := artifact.KindFeature
	beforeVersion := state.StepsVersion
	pairedVersion := state.FeatureVersion
	if failingKind == artifact.KindFeature {
		pairedKind = artifact.KindSteps
		beforeVersion = state.FeatureVersion
		pairedVersion = state.StepsVersion
	}

	failing, err := store.Get(failingKind, beforeVersion)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to load %s v%d: %w", failingKind, beforeVersion, err)
	}
	paired, err := store.Get(pairedKind, pairedVersion)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to load %s v%d: %w", pairedKind, pairedVersion, err)
	}

	text, err := o.repairer.Repair(ctx, *diag, failureOutput(state.Results), failing, paired)
	if err != nil {
		o.logger.Error("repair failed", "run", state.Name, "attempt", attempt, "error", err)
		fmt.Fprintf(o.out, "%s %v\n", Red("✗"), err)
		return Transition{To: PhaseFailed, Verdict: VerdictFailed, Cause: CauseRepair, Note: noteFromError(err)}, nil
	}

	afterVersion, err := store.Put(failingKind, text)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to store repaired %s: %w", failingKind, err)
	}
	fmt.Fprintf(o.out, "%s repaired %s: v%d -> v%d\n", Green("✓"), failingKind, beforeVersion, afterVersion)

	tr := Transition{
		To: PhaseRun,
		Repair: &RepairAttempt{
			Attempt:       attempt,
			Target:        failingKind,
			BeforeVersion: beforeVersion,
			AfterVersion:  afterVersion,
			Diagnosis:     *diag,
			Timestamp:     o.now(),
		},
	}
	if failingKind == artifact.KindFeature {
		tr.FeatureVersion = afterVersion
	} else {
		tr.StepsVersion = afterVersion
	}
	return tr, nil
}

// applyAndSave folds a transition into the state and persists the result.
func (o *Orchestrator) applyAndSave(state *RunState, tr Transition) error {
	apply(state, tr, o.now())
	if err := o.stateManager.SaveState(state.Name, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// apply folds a transition into the state. It performs no I/O.
func apply(state *RunState, tr Transition, now time.Time) {
	from := state.CurrentPhase
	state.CurrentPhase = tr.To
	if tr.Verdict != VerdictNone {
		state.Verdict = tr.Verdict
	}
	if tr.Cause != "" {
		state.Cause = tr.Cause
	}
	if tr.FeatureVersion > 0 {
		state.FeatureVersion = tr.FeatureVersion
	}
	if tr.StepsVersion > 0 {
		state.StepsVersion = tr.StepsVersion
	}
	if tr.BumpAttempt {
		state.AttemptCount++
	}
	if tr.Results != nil {
		state.Results = tr.Results
	}
	if tr.Diagnosis != nil {
		state.LastDiagnosis = tr.Diagnosis
	}
	if tr.Repair != nil {
		state.History = append(state.History, *tr.Repair)
	}
	if tr.To == PhaseFailed {
		state.Error = &RunError{Message: tr.Note, Phase: from, Timestamp: now}
	}
}

func (o *Orchestrator) cancelTransition(ctx context.Context) Transition {
	note := "run cancelled"
	if err := context.Cause(ctx); err != nil {
		note = fmt.Sprintf("run cancelled: %v", err)
	}
	return Transition{To: PhaseFailed, Verdict: VerdictCancelled, Cause: CauseCancelled, Note: note}
}

// terminalError maps the terminal state onto the sentinel taxonomy the CLI
// derives exit codes from.
func (o *Orchestrator) terminalError(state *RunState) error {
	if state.Verdict == VerdictDone {
		return nil
	}
	msg := "run failed"
	if state.Error != nil {
		msg = state.Error.Message
	}
	switch state.Cause {
	case CauseCancelled:
		return fmt.Errorf("%w: %s", ErrCancelled, msg)
	case CauseGeneration:
		return fmt.Errorf("%w: %s", ErrGeneration, msg)
	case CauseInternal:
		return errors.New(msg)
	default:
		return fmt.Errorf("%w: %s", ErrTestsFailed, msg)
	}
}

// noteFromError strips the sentinel prefix so persisted notes do not repeat
// it once terminalError wraps them again.
func noteFromError(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrGeneration, ErrValidation, ErrRepair} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// failureOutput gathers the outputs of all non-passing scenarios for the
// repair prompt.
func failureOutput(results []RunResult) string {
	var b strings.Builder
	for _, res := range results {
		if res.Status == runner.StatusPassed {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if res.FailedStep != "" {
			fmt.Fprintf(&b, "scenario %q, step %q: %s", res.Scenario, res.FailedStep, res.Output)
		} else {
			fmt.Fprintf(&b, "scenario %q: %s", res.Scenario, res.Output)
		}
	}
	return b.String()
}

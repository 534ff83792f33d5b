// Package runner executes generated feature and step artifacts against the
// configured HTTP API and reports one result per scenario.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storycheck/storycheck/internal/config"
	"github.com/storycheck/storycheck/internal/gherkin"
)

// Suite is one runnable pair of artifacts with the configuration they run
// against. Versions identify the artifacts in the store for bookkeeping.
type Suite struct {
	Feature        string
	Steps          string
	FeatureVersion int
	StepsVersion   int
	Config         *config.Config
}

// Runner loads a suite and executes its scenarios with live HTTP calls.
type Runner struct {
	logger *slog.Logger
}

// New builds a Runner.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes the suite. Results are ordered by scenario declaration order
// in the feature regardless of execution order. A suite that fails to load
// yields exactly one synthetic errored result covering all scenarios. The
// returned error is reserved for invalid invocations, not test failures.
func (r *Runner) Run(ctx context.Context, suite Suite) ([]Result, error) {
	cfg := suite.Config
	if cfg == nil {
		return nil, errors.New("suite has no configuration")
	}

	feature, set, err := loadSuite(suite)
	if err != nil {
		r.logger.Error("suite failed to load",
			"featureVersion", suite.FeatureVersion,
			"stepsVersion", suite.StepsVersion,
			"error", err)
		return []Result{{
			Scenario:    SuiteName,
			Status:      StatusErrored,
			Output:      fmt.Sprintf("load failure: %v", err),
			LoadFailure: true,
		}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Run.Timeout.Std())
	defer cancel()

	// One shared client; each request is additionally bounded by the
	// per-request timeout.
	client := &http.Client{Timeout: cfg.Run.PerRequestTimeout.Std()}

	results := make([]Result, len(feature.Scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Run.Parallel)

	for i, sc := range feature.Scenarios {
		g.Go(func() error {
			results[i] = r.runScenario(gctx, client, cfg, feature, sc, set)
			// Return nil so a failing scenario does not cancel its
			// siblings; outcomes live in the results slice.
			return nil
		})
	}
	_ = g.Wait()

	counts := Count(results)
	r.logger.Debug("suite run complete",
		"featureVersion", suite.FeatureVersion,
		"stepsVersion", suite.StepsVersion,
		"passed", counts.Passed,
		"failed", counts.Failed,
		"errored", counts.Errored)
	return results, nil
}

// loadSuite performs the strict load phase: feature parse, step set parse,
// step set compile. Errors here become a whole-suite load failure.
func loadSuite(suite Suite) (*gherkin.Feature, *gherkin.CompiledSet, error) {
	feature, err := gherkin.Parse(suite.Feature)
	if err != nil {
		return nil, nil, err
	}
	set, err := gherkin.ParseStepSet([]byte(suite.Steps))
	if err != nil {
		return nil, nil, err
	}
	compiled, err := gherkin.Compile(set)
	if err != nil {
		return nil, nil, err
	}
	return feature, compiled, nil
}

func (r *Runner) runScenario(ctx context.Context, client *http.Client, cfg *config.Config, f *gherkin.Feature, sc gherkin.Scenario, set *gherkin.CompiledSet) Result {
	start := time.Now()
	res := Result{Scenario: sc.Name, Tags: sc.Tags, Status: StatusPassed}

	steps := make([]gherkin.Step, 0, len(f.Background)+len(sc.Steps))
	steps = append(steps, f.Background...)
	steps = append(steps, sc.Steps...)

	exec := &execution{client: client, cfg: cfg, set: set}
	var output bytes.Buffer
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			res.Status = StatusErrored
			res.FailedStep = stepLine(step)
			if errors.Is(err, context.DeadlineExceeded) {
				fmt.Fprintf(&output, "timeout: suite run exceeded %s", cfg.Run.Timeout.Std())
			} else {
				fmt.Fprintf(&output, "run cancelled: %v", err)
			}
			break
		}

		res.StepsRun++
		err := exec.step(ctx, step)
		if err == nil {
			continue
		}
		res.FailedStep = stepLine(step)
		var assertion *assertionError
		if errors.As(err, &assertion) {
			res.Status = StatusFailed
		} else {
			res.Status = StatusErrored
		}
		output.WriteString(err.Error())
		break
	}

	res.Output = strings.TrimSpace(output.String())
	res.Duration = time.Since(start)
	r.logger.Debug("scenario complete",
		"scenario", sc.Name,
		"status", res.Status,
		"duration", res.Duration)
	return res
}

func stepLine(step gherkin.Step) string {
	return step.Keyword + " " + step.Text
}

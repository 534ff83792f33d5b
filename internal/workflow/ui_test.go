package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/storycheck/storycheck/internal/artifact"
	"github.com/storycheck/storycheck/internal/runner"
)

func TestColorFunctions(t *testing.T) {
	tests := []struct {
		name      string
		colorFunc func(string) string
		input     string
		wantStart string
		wantEnd   string
	}{
		{
			name:      "Green wraps with green ANSI codes",
			colorFunc: Green,
			input:     "passed",
			wantStart: "\033[32m",
			wantEnd:   "\033[0m",
		},
		{
			name:      "Red wraps with red ANSI codes",
			colorFunc: Red,
			input:     "failed",
			wantStart: "\033[31m",
			wantEnd:   "\033[0m",
		},
		{
			name:      "Yellow wraps with yellow ANSI codes",
			colorFunc: Yellow,
			input:     "cancelled",
			wantStart: "\033[33m",
			wantEnd:   "\033[0m",
		},
		{
			name:      "Cyan wraps with cyan ANSI codes",
			colorFunc: Cyan,
			input:     "info",
			wantStart: "\033[36m",
			wantEnd:   "\033[0m",
		},
		{
			name:      "Bold wraps with bold ANSI codes",
			colorFunc: Bold,
			input:     "run-name",
			wantStart: "\033[1m",
			wantEnd:   "\033[0m",
		},
		{
			name:      "Green handles empty string",
			colorFunc: Green,
			input:     "",
			wantStart: "\033[32m",
			wantEnd:   "\033[0m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.colorFunc(tt.input)
			assert.True(t, strings.HasPrefix(got, tt.wantStart))
			assert.True(t, strings.HasSuffix(got, tt.wantEnd))
			assert.Contains(t, got, tt.input)
		})
	}
}

func TestEllipsis(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{
			name:  "shorter than max is unchanged",
			input: "fetch a user",
			max:   60,
			want:  "fetch a user",
		},
		{
			name:  "exactly max is unchanged",
			input: "abcde",
			max:   5,
			want:  "abcde",
		},
		{
			name:  "longer than max is truncated with ellipsis",
			input: "abcdefghij",
			max:   8,
			want:  "abcde...",
		},
		{
			name:  "max of 3 or less truncates without ellipsis",
			input: "abcdefghij",
			max:   3,
			want:  "abc",
		},
		{
			name:  "counts runes not bytes",
			input: "héllo wörld this is long",
			max:   10,
			want:  "héllo w...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ellipsis(tt.input, tt.max))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{
			name:     "zero duration",
			duration: 0,
			want:     "0ms",
		},
		{
			name:     "sub-second durations are milliseconds",
			duration: 120 * time.Millisecond,
			want:     "120ms",
		},
		{
			name:     "999 milliseconds",
			duration: 999 * time.Millisecond,
			want:     "999ms",
		},
		{
			name:     "1 second exactly",
			duration: 1 * time.Second,
			want:     "1s",
		},
		{
			name:     "30 seconds",
			duration: 30 * time.Second,
			want:     "30s",
		},
		{
			name:     "90 seconds",
			duration: 90 * time.Second,
			want:     "1m 30s",
		},
		{
			name:     "1 minute exactly",
			duration: 1 * time.Minute,
			want:     "1m 0s",
		},
		{
			name:     "3661 seconds",
			duration: 3661 * time.Second,
			want:     "1h 1m 1s",
		},
		{
			name:     "rounds down from 499ms",
			duration: 30*time.Second + 499*time.Millisecond,
			want:     "30s",
		},
		{
			name:     "rounds up from 500ms",
			duration: 30*time.Second + 500*time.Millisecond,
			want:     "31s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.duration))
		})
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name     string
		result   runner.Result
		contains []string
	}{
		{
			name: "passed scenario shows steps and duration",
			result: runner.Result{
				Scenario: "Fetch an existing user",
				Status:   runner.StatusPassed,
				StepsRun: 4,
				Duration: 120 * time.Millisecond,
			},
			contains: []string{"✓", "Fetch an existing user", "4 steps", "120ms"},
		},
		{
			name: "failed scenario shows first output line",
			result: runner.Result{
				Scenario: "Request a missing user",
				Status:   runner.StatusFailed,
				Output:   "assertion failed: expected status 404, got 200\nsecond line",
			},
			contains: []string{"✗", "Request a missing user", "assertion failed: expected status 404, got 200"},
		},
		{
			name: "errored scenario shows first output line",
			result: runner.Result{
				Scenario: "Create a user",
				Status:   runner.StatusErrored,
				Output:   "runtime error: no step definition matches \"I wait\"",
			},
			contains: []string{"!", "Create a user", "runtime error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatResult(tt.result)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}

	t.Run("failed output is trimmed to one line", func(t *testing.T) {
		got := FormatResult(runner.Result{
			Scenario: "x",
			Status:   runner.StatusFailed,
			Output:   "first\nsecond",
		})
		assert.NotContains(t, got, "second")
	})
}

func TestFormatRunList(t *testing.T) {
	t.Run("no runs", func(t *testing.T) {
		assert.Equal(t, "No runs found.\n", FormatRunList(nil))
	})

	t.Run("lists each run with status and story", func(t *testing.T) {
		runs := []RunInfo{
			{
				Name:      "fetch-a-user-4f7a2c9e",
				Story:     "As a customer\nI want to fetch a user",
				Phase:     PhaseDone,
				Status:    "passed",
				Attempts:  1,
				Repairs:   0,
				UpdatedAt: time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC),
			},
			{
				Name:     "delete-a-user-9b1c2d3e",
				Story:    "As an admin I want to delete a user",
				Phase:    PhaseFailed,
				Status:   "failed",
				Attempts: 4,
				Repairs:  3,
			},
		}

		got := FormatRunList(runs)
		assert.Contains(t, got, "fetch-a-user-4f7a2c9e")
		assert.Contains(t, got, "As a customer")
		assert.NotContains(t, got, "I want to fetch a user")
		assert.Contains(t, got, "phase: Done, runs: 1, repairs: 0")
		assert.Contains(t, got, "2026-08-22T10:00:00Z")
		assert.Contains(t, got, "delete-a-user-9b1c2d3e")
		assert.Contains(t, got, "phase: Failed, runs: 4, repairs: 3")
	})

	t.Run("truncates long stories", func(t *testing.T) {
		runs := []RunInfo{{
			Name:   "long-story-run",
			Story:  strings.Repeat("a", 100),
			Status: "in_progress",
		}}
		got := FormatRunList(runs)
		assert.Contains(t, got, strings.Repeat("a", 57)+"...")
		assert.NotContains(t, got, strings.Repeat("a", 61))
	})
}

func TestFormatRunStatus(t *testing.T) {
	t.Run("passed run", func(t *testing.T) {
		state := &RunState{
			Name:           "fetch-a-user-4f7a2c9e",
			Story:          "As a customer I want to fetch a user",
			CurrentPhase:   PhaseDone,
			Verdict:        VerdictDone,
			AttemptCount:   2,
			FeatureVersion: 1,
			StepsVersion:   2,
			Results: []RunResult{
				{
					Result: runner.Result{
						Scenario: "Fetch an existing user",
						Status:   runner.StatusPassed,
						StepsRun: 4,
						Duration: 90 * time.Millisecond,
					},
					FeatureVersion: 1,
					StepsVersion:   2,
				},
			},
			History: []RepairAttempt{
				{
					Attempt:       1,
					Target:        artifact.KindSteps,
					BeforeVersion: 1,
					AfterVersion:  2,
					Diagnosis: Diagnosis{
						Category:   CategorySyntaxError,
						Confidence: 0.95,
						Rationale:  "placeholder name is not legal",
					},
				},
			},
		}

		got := FormatRunStatus(state)
		assert.Contains(t, got, "fetch-a-user-4f7a2c9e")
		assert.Contains(t, got, "Passed")
		assert.Contains(t, got, "Phase: Done")
		assert.Contains(t, got, "Artifacts: feature v1, steps v2")
		assert.Contains(t, got, "Runs: 2, Repairs: 1")
		assert.Contains(t, got, "Fetch an existing user")
		assert.Contains(t, got, "Repair History:")
		assert.Contains(t, got, "#1 steps [SyntaxError] v1 -> v2")
	})

	t.Run("failed run shows error", func(t *testing.T) {
		state := &RunState{
			Name:         "broken-run-00000000",
			Story:        "story",
			CurrentPhase: PhaseFailed,
			Verdict:      VerdictFailed,
			Cause:        string(CategoryAssertionFailure),
			Error: &RunError{
				Message: "Category: AssertionFailure",
				Phase:   PhaseDiagnose,
			},
		}

		got := FormatRunStatus(state)
		assert.Contains(t, got, "Failed")
		assert.Contains(t, got, "Category: AssertionFailure")
	})

	t.Run("in progress run before generation", func(t *testing.T) {
		state := &RunState{
			Name:         "pending-run-00000000",
			Story:        "story",
			CurrentPhase: PhaseGenerate,
		}

		got := FormatRunStatus(state)
		assert.Contains(t, got, "In Progress")
		assert.Contains(t, got, "Phase: Generate")
		assert.NotContains(t, got, "Artifacts:")
		assert.NotContains(t, got, "Repair History:")
	})
}

// Package report renders the final account of a run as markdown and JSON.
// The report is written on every terminal path, whatever the verdict.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storycheck/storycheck/internal/artifact"
	"github.com/storycheck/storycheck/internal/runner"
	"github.com/storycheck/storycheck/internal/workflow"
)

const (
	reportsDirName   = "reports"
	markdownFileName = "report.md"
	jsonFileName     = "report.json"
)

// Summary aggregates the run for the report header.
type Summary struct {
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Errored  int `json:"errored"`
	Attempts int `json:"attempts"`
	Repairs  int `json:"repairs"`
}

// ArtifactRef points at a stored artifact file, relative to the run
// directory.
type ArtifactRef struct {
	Kind    string `json:"kind"`
	Version int    `json:"version"`
	Path    string `json:"path"`
}

// Report is a self-contained account of one run: what was asked, what
// happened, what was repaired, and where the artifacts live.
type Report struct {
	Run        string                   `json:"run"`
	Story      string                   `json:"story"`
	Verdict    string                   `json:"verdict"`
	Cause      string                   `json:"cause,omitempty"`
	Summary    Summary                  `json:"summary"`
	Scenarios  []workflow.RunResult     `json:"scenarios,omitempty"`
	Repairs    []workflow.RepairAttempt `json:"repairs,omitempty"`
	Artifacts  []ArtifactRef            `json:"artifacts,omitempty"`
	Error      *workflow.RunError       `json:"error,omitempty"`
	CreatedAt  time.Time                `json:"createdAt"`
	FinishedAt time.Time                `json:"finishedAt"`
}

// Build projects a run state into a report.
func Build(state *workflow.RunState) Report {
	results := make([]runner.Result, len(state.Results))
	for i, r := range state.Results {
		results[i] = r.Result
	}
	counts := runner.Count(results)

	rep := Report{
		Run:     state.Name,
		Story:   state.Story,
		Verdict: state.Outcome(),
		Cause:   state.Cause,
		Summary: Summary{
			Passed:   counts.Passed,
			Failed:   counts.Failed,
			Errored:  counts.Errored,
			Attempts: state.AttemptCount,
			Repairs:  len(state.History),
		},
		Scenarios:  state.Results,
		Repairs:    state.History,
		Error:      state.Error,
		CreatedAt:  state.CreatedAt,
		FinishedAt: state.UpdatedAt,
	}
	if state.FeatureVersion > 0 {
		rep.Artifacts = append(rep.Artifacts, ArtifactRef{
			Kind:    string(artifact.KindFeature),
			Version: state.FeatureVersion,
			Path:    artifact.Rel(artifact.KindFeature, state.FeatureVersion),
		})
	}
	if state.StepsVersion > 0 {
		rep.Artifacts = append(rep.Artifacts, ArtifactRef{
			Kind:    string(artifact.KindSteps),
			Version: state.StepsVersion,
			Path:    artifact.Rel(artifact.KindSteps, state.StepsVersion),
		})
	}
	return rep
}

// Markdown renders the report as a markdown document.
func (r Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# storycheck: %s\n\n", r.Run)
	fmt.Fprintf(&b, "**Verdict: %s**\n\n", strings.ToUpper(r.Verdict))
	if r.Verdict == "failed" && r.Cause != "" {
		fmt.Fprintf(&b, "Cause: `%s`\n\n", r.Cause)
	}
	for _, line := range strings.Split(strings.TrimRight(r.Story, "\n"), "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}

	b.WriteString("\n## Summary\n\n")
	fmt.Fprintf(&b, "- Scenarios: %d passed, %d failed, %d errored\n",
		r.Summary.Passed, r.Summary.Failed, r.Summary.Errored)
	fmt.Fprintf(&b, "- Test runs: %d\n", r.Summary.Attempts)
	fmt.Fprintf(&b, "- Repairs: %d\n", r.Summary.Repairs)
	if !r.CreatedAt.IsZero() && !r.FinishedAt.Before(r.CreatedAt) {
		fmt.Fprintf(&b, "- Elapsed: %s\n", workflow.FormatDuration(r.FinishedAt.Sub(r.CreatedAt)))
	}

	if len(r.Scenarios) > 0 {
		b.WriteString("\n## Scenarios\n\n")
		b.WriteString("| Scenario | Status | Steps | Duration | Artifacts |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, s := range r.Scenarios {
			name := s.Scenario
			if len(s.Tags) > 0 {
				name = strings.Join(s.Tags, " ") + " " + name
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %s | v%d / v%d |\n",
				tableCell(name), s.Status, s.StepsRun,
				workflow.FormatDuration(s.Duration), s.FeatureVersion, s.StepsVersion)
		}
		writeFailures(&b, r.Scenarios)
	}

	if len(r.Repairs) > 0 {
		b.WriteString("\n## Repair log\n")
		for _, rep := range r.Repairs {
			fmt.Fprintf(&b, "\n### Repair %d: %s v%d -> v%d\n\n",
				rep.Attempt, rep.Target, rep.BeforeVersion, rep.AfterVersion)
			fmt.Fprintf(&b, "- Category: %s (confidence %.2f)\n",
				rep.Diagnosis.Category, rep.Diagnosis.Confidence)
			fmt.Fprintf(&b, "- Rationale: %s\n", rep.Diagnosis.Rationale)
			if !rep.Timestamp.IsZero() {
				fmt.Fprintf(&b, "- At: %s\n", rep.Timestamp.UTC().Format(time.RFC3339))
			}
		}
	}

	if len(r.Artifacts) > 0 {
		b.WriteString("\n## Artifacts\n\n")
		for _, a := range r.Artifacts {
			fmt.Fprintf(&b, "- %s v%d: `%s`\n", a.Kind, a.Version, a.Path)
		}
	}

	if r.Error != nil {
		b.WriteString("\n## Error\n\n")
		fmt.Fprintf(&b, "Run stopped in phase %s:\n\n", r.Error.Phase)
		fmt.Fprintf(&b, "```text\n%s\n```\n", r.Error.Message)
	}

	return b.String()
}

// writeFailures adds one detail section per non-passing scenario, with the
// captured output fenced so multi-line failures stay readable.
func writeFailures(b *strings.Builder, scenarios []workflow.RunResult) {
	var failing []workflow.RunResult
	for _, s := range scenarios {
		if s.Status != runner.StatusPassed {
			failing = append(failing, s)
		}
	}
	if len(failing) == 0 {
		return
	}
	b.WriteString("\n## Failures\n\n")
	for _, s := range failing {
		if s.FailedStep != "" {
			fmt.Fprintf(b, "**%s** (step: `%s`)\n\n", s.Scenario, s.FailedStep)
		} else {
			fmt.Fprintf(b, "**%s**\n\n", s.Scenario)
		}
		fmt.Fprintf(b, "```text\n%s\n```\n\n", strings.TrimRight(s.Output, "\n"))
	}
}

// tableCell keeps scenario names from breaking the markdown table.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// WriteFiles persists the report under runDir/reports as both markdown and
// JSON.
func WriteFiles(r Report, runDir string) error {
	dir := filepath.Join(runDir, reportsDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, markdownFileName), []byte(r.Markdown()), 0644); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, jsonFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}

// MarkdownPath returns where WriteFiles puts the markdown report for a run
// directory.
func MarkdownPath(runDir string) string {
	return filepath.Join(runDir, reportsDirName, markdownFileName)
}

// Writer builds and persists final reports. It satisfies the orchestrator's
// report dependency.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Write renders the state into runDir/reports.
func (w *Writer) Write(state *workflow.RunState, runDir string) error {
	return WriteFiles(Build(state), runDir)
}

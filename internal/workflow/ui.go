package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/storycheck/storycheck/internal/runner"
)

// ANSI color codes
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

// Green returns a green colored string
func Green(s string) string {
	return ansiGreen + s + ansiReset
}

// Red returns a red colored string
func Red(s string) string {
	return ansiRed + s + ansiReset
}

// Yellow returns a yellow colored string
func Yellow(s string) string {
	return ansiYellow + s + ansiReset
}

// Cyan returns a cyan colored string
func Cyan(s string) string {
	return ansiCyan + s + ansiReset
}

// Bold returns a bold string
func Bold(s string) string {
	return ansiBold + s + ansiReset
}

// Ellipsis shortens s to at most max runes, appending "..." when truncated.
func Ellipsis(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// phaseName returns a human-readable phase name
func phaseName(phase Phase) string {
	switch phase {
	case PhaseGenerate:
		return "Generate"
	case PhaseRun:
		return "Run"
	case PhaseDiagnose:
		return "Diagnose"
	case PhaseRepair:
		return "Repair"
	case PhaseDone:
		return "Done"
	case PhaseFailed:
		return "Failed"
	default:
		return string(phase)
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatResult renders one scenario outcome as a progress line.
func FormatResult(res runner.Result) string {
	switch res.Status {
	case runner.StatusPassed:
		return fmt.Sprintf("  %s %s (%d steps, %s)", Green("✓"), res.Scenario, res.StepsRun, FormatDuration(res.Duration))
	case runner.StatusFailed:
		return fmt.Sprintf("  %s %s: %s", Red("✗"), res.Scenario, firstLine(res.Output))
	default:
		return fmt.Sprintf("  %s %s: %s", Red("!"), res.Scenario, firstLine(res.Output))
	}
}

// FormatRunList renders run summaries as an aligned listing.
func FormatRunList(runs []RunInfo) string {
	if len(runs) == 0 {
		return "No runs found.\n"
	}

	var b strings.Builder
	for _, run := range runs {
		statusStr := run.Status
		switch run.Status {
		case "passed":
			statusStr = Green(run.Status)
		case "failed":
			statusStr = Red(run.Status)
		case "cancelled":
			statusStr = Yellow(run.Status)
		case "in_progress":
			statusStr = Yellow(run.Status)
		}
		b.WriteString(fmt.Sprintf("%s  %s  %s\n", Bold(run.Name), statusStr, Ellipsis(firstLine(run.Story), 60)))
		b.WriteString(fmt.Sprintf("    phase: %s, runs: %d, repairs: %d, updated: %s\n",
			phaseName(run.Phase), run.Attempts, run.Repairs, run.UpdatedAt.Format(time.RFC3339)))
	}
	return b.String()
}

// FormatRunStatus renders the full state of one run for the status command.
func FormatRunStatus(state *RunState) string {
	var b strings.Builder

	b.WriteString(Bold("Run: ") + state.Name + "\n")
	b.WriteString(fmt.Sprintf("Story: %s\n", Ellipsis(firstLine(state.Story), 80)))

	statusStr := ""
	switch state.Outcome() {
	case "passed":
		statusStr = Green("Passed")
	case "failed":
		statusStr = Red("Failed")
	case "cancelled":
		statusStr = Yellow("Cancelled")
	default:
		statusStr = Yellow("In Progress")
	}
	b.WriteString(fmt.Sprintf("Status: %s\n", statusStr))
	b.WriteString(fmt.Sprintf("Phase: %s\n", phaseName(state.CurrentPhase)))
	if state.FeatureVersion > 0 {
		b.WriteString(fmt.Sprintf("Artifacts: feature v%d, steps v%d\n", state.FeatureVersion, state.StepsVersion))
	}
	b.WriteString(fmt.Sprintf("Runs: %d, Repairs: %d\n", state.AttemptCount, len(state.History)))

	if state.Error != nil {
		b.WriteString("\n" + Red("Error: ") + state.Error.Message + "\n")
	}

	if len(state.Results) > 0 {
		b.WriteString("\nScenarios:\n")
		for _, res := range state.Results {
			b.WriteString(FormatResult(res.Result) + "\n")
		}
	}

	if len(state.History) > 0 {
		b.WriteString("\nRepair History:\n")
		for _, att := range state.History {
			b.WriteString(fmt.Sprintf("  #%d %s [%s] v%d -> v%d\n",
				att.Attempt, att.Target, att.Diagnosis.Category, att.BeforeVersion, att.AfterVersion))
		}
	}

	return b.String()
}

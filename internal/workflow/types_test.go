package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storycheck/storycheck/internal/artifact"
)

func TestPhase_Terminal(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		want  bool
	}{
		{
			name:  "generate is not terminal",
			phase: PhaseGenerate,
			want:  false,
		},
		{
			name:  "run is not terminal",
			phase: PhaseRun,
			want:  false,
		},
		{
			name:  "diagnose is not terminal",
			phase: PhaseDiagnose,
			want:  false,
		},
		{
			name:  "repair is not terminal",
			phase: PhaseRepair,
			want:  false,
		},
		{
			name:  "done is terminal",
			phase: PhaseDone,
			want:  true,
		},
		{
			name:  "failed is terminal",
			phase: PhaseFailed,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.phase.Terminal())
		})
	}
}

func TestDiagnosis_Repairable(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		want     bool
	}{
		{
			name:     "syntax errors are repairable",
			category: CategorySyntaxError,
			want:     true,
		},
		{
			name:     "runtime errors are repairable",
			category: CategoryRuntimeError,
			want:     true,
		},
		{
			name:     "assertion failures are not repairable",
			category: CategoryAssertionFailure,
			want:     false,
		},
		{
			name:     "config or network errors are not repairable",
			category: CategoryConfigOrNetwork,
			want:     false,
		},
		{
			name:     "unclassified failures are not repairable",
			category: CategoryUnclassified,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diagnosis{Category: tt.category, Target: artifact.KindSteps}
			assert.Equal(t, tt.want, d.Repairable())
		})
	}
}

func TestRunState_Outcome(t *testing.T) {
	tests := []struct {
		name  string
		state RunState
		want  string
	}{
		{
			name:  "done phase is passed",
			state: RunState{CurrentPhase: PhaseDone, Verdict: VerdictDone},
			want:  "passed",
		},
		{
			name:  "failed phase is failed",
			state: RunState{CurrentPhase: PhaseFailed, Verdict: VerdictFailed},
			want:  "failed",
		},
		{
			name:  "cancelled verdict wins over phase",
			state: RunState{CurrentPhase: PhaseFailed, Verdict: VerdictCancelled},
			want:  "cancelled",
		},
		{
			name:  "non-terminal phase is in progress",
			state: RunState{CurrentPhase: PhaseRun},
			want:  "in_progress",
		},
		{
			name:  "zero state is in progress",
			state: RunState{},
			want:  "in_progress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Outcome())
		})
	}
}

func TestRunError_Error(t *testing.T) {
	err := &RunError{
		Message: "generation client: missing API key",
		Phase:   PhaseGenerate,
	}
	assert.Equal(t, "generation client: missing API key", err.Error())
}

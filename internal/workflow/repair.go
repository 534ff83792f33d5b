package workflow

import (
	"context"
	"fmt"

	"github.com/storycheck/storycheck/internal/artifact"
	"github.com/storycheck/storycheck/internal/config"
	"github.com/storycheck/storycheck/internal/gherkin"
	"github.com/storycheck/storycheck/internal/llm"
	"github.com/storycheck/storycheck/internal/prompts"
)

// Repairer regenerates a defective artifact from a diagnosis. Only the
// artifact the diagnosis targets is rewritten; the paired artifact is
// supplied to the prompt as context and never modified.
type Repairer struct {
	client    llm.Client
	cfg       *config.Config
	extractor ArtifactExtractor
}

// NewRepairer creates a repairer backed by the given generation client.
func NewRepairer(client llm.Client, cfg *config.Config) *Repairer {
	return &Repairer{
		client:    client,
		cfg:       cfg,
		extractor: NewArtifactExtractor(),
	}
}

// Repair produces a replacement for the failing artifact and validates it
// to the same acceptance bar as initial generation. The returned text is
// the candidate to store as a new version.
func (r *Repairer) Repair(ctx context.Context, diag Diagnosis, output, failing, paired string) (string, error) {
	data := prompts.RepairData{
		Category:  string(diag.Category),
		Rationale: diag.Rationale,
		Output:    output,
		Failing:   failing,
		Paired:    paired,
	}
	switch diag.Target {
	case artifact.KindSteps:
		data.Kind = "steps"
		data.Fence = "json"
		data.PairedKind = "feature"
		data.PairedFence = "gherkin"
	case artifact.KindFeature:
		data.Kind = "feature"
		data.Fence = "gherkin"
		data.PairedKind = "steps"
		data.PairedFence = "json"
	default:
		return "", fmt.Errorf("%w: no repair target in diagnosis", ErrRepair)
	}

	prompt, err := prompts.Repair(data)
	if err != nil {
		return "", fmt.Errorf("%w: render repair prompt: %v", ErrRepair, err)
	}

	raw, err := r.client.Generate(ctx, prompt, generationParams(r.cfg, prompts.SystemRepair))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRepair, data.Kind, err)
	}

	switch diag.Target {
	case artifact.KindSteps:
		return r.acceptSteps(raw, paired)
	default:
		return r.acceptFeature(raw, paired)
	}
}

func (r *Repairer) acceptSteps(raw, pairedFeature string) (string, error) {
	text, err := r.extractor.ExtractJSON(raw)
	if err != nil {
		return "", fmt.Errorf("%w: steps: %v", ErrRepair, err)
	}
	set, err := gherkin.ParseStepSet([]byte(text))
	if err != nil {
		return "", fmt.Errorf("%w: repaired steps rejected: %v", ErrRepair, err)
	}
	// Coverage is only checkable when the paired feature itself parses.
	if feature, perr := gherkin.Parse(pairedFeature); perr == nil {
		if err := gherkin.CheckCoverage(feature, set); err != nil {
			return "", fmt.Errorf("%w: repaired steps rejected: %v", ErrRepair, err)
		}
	}
	return text, nil
}

func (r *Repairer) acceptFeature(raw, pairedSteps string) (string, error) {
	text, err := r.extractor.ExtractGherkin(raw)
	if err != nil {
		return "", fmt.Errorf("%w: feature: %v", ErrRepair, err)
	}
	feature, err := gherkin.Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: repaired feature rejected: %v", ErrRepair, err)
	}
	if set, perr := gherkin.ParseStepSet([]byte(pairedSteps)); perr == nil {
		if err := gherkin.CheckCoverage(feature, set); err != nil {
			return "", fmt.Errorf("%w: repaired feature rejected: %v", ErrRepair, err)
		}
	}
	return text, nil
}

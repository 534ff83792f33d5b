package workflow

import (
	"context"
	"fmt"

	"github.com/storycheck/storycheck/internal/config"
	"github.com/storycheck/storycheck/internal/gherkin"
	"github.com/storycheck/storycheck/internal/llm"
	"github.com/storycheck/storycheck/internal/prompts"
)

// FeatureGenerator turns a user story into an accepted feature artifact.
type FeatureGenerator struct {
	client    llm.Client
	cfg       *config.Config
	extractor ArtifactExtractor
}

// NewFeatureGenerator creates a feature generator backed by the given
// generation client.
func NewFeatureGenerator(client llm.Client, cfg *config.Config) *FeatureGenerator {
	return &FeatureGenerator{
		client:    client,
		cfg:       cfg,
		extractor: NewArtifactExtractor(),
	}
}

// Generate produces feature text for the story and validates its structure
// before accepting it. The parsed form is returned alongside the text so
// callers can run coverage checks without reparsing.
func (g *FeatureGenerator) Generate(ctx context.Context, story string) (string, *gherkin.Feature, error) {
	prompt, err := prompts.Feature(prompts.FeatureData{
		Story:      story,
		APIName:    g.cfg.API.Name,
		BaseURL:    g.cfg.API.BaseURL,
		Endpoints:  prompts.Lines(g.cfg.API.Endpoints),
		Parameters: prompts.Lines(g.cfg.API.Parameters),
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: render feature prompt: %v", ErrGeneration, err)
	}

	raw, err := g.client.Generate(ctx, prompt, generationParams(g.cfg, prompts.SystemFeature))
	if err != nil {
		return "", nil, fmt.Errorf("%w: feature: %v", ErrGeneration, err)
	}

	text, err := g.extractor.ExtractGherkin(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: feature: %v", ErrGeneration, err)
	}

	feature, err := gherkin.Parse(text)
	if err != nil {
		return "", nil, fmt.Errorf("%w: generated feature rejected: %v", ErrValidation, err)
	}
	return text, feature, nil
}

// StepGenerator turns an accepted feature into an accepted step definition
// artifact.
type StepGenerator struct {
	client    llm.Client
	cfg       *config.Config
	extractor ArtifactExtractor
}

// NewStepGenerator creates a step definition generator backed by the given
// generation client.
func NewStepGenerator(client llm.Client, cfg *config.Config) *StepGenerator {
	return &StepGenerator{
		client:    client,
		cfg:       cfg,
		extractor: NewArtifactExtractor(),
	}
}

// Generate produces a step definition document for the feature and accepts
// it only when it is structurally sound and covers every step text. Action
// semantics are checked later, at load time, by the runner.
func (g *StepGenerator) Generate(ctx context.Context, featureText string, feature *gherkin.Feature) (string, *gherkin.StepSet, error) {
	prompt, err := prompts.Steps(prompts.StepsData{
		Feature:    featureText,
		BaseURL:    g.cfg.API.BaseURL,
		Endpoints:  prompts.Lines(g.cfg.API.Endpoints),
		Parameters: prompts.Lines(g.cfg.API.Parameters),
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: render steps prompt: %v", ErrGeneration, err)
	}

	raw, err := g.client.Generate(ctx, prompt, generationParams(g.cfg, prompts.SystemSteps))
	if err != nil {
		return "", nil, fmt.Errorf("%w: steps: %v", ErrGeneration, err)
	}

	text, err := g.extractor.ExtractJSON(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: steps: %v", ErrGeneration, err)
	}

	set, err := gherkin.ParseStepSet([]byte(text))
	if err != nil {
		return "", nil, fmt.Errorf("%w: generated steps rejected: %v", ErrValidation, err)
	}
	if err := gherkin.CheckCoverage(feature, set); err != nil {
		return "", nil, fmt.Errorf("%w: generated steps rejected: %v", ErrValidation, err)
	}
	return text, set, nil
}

// generationParams maps the generation configuration onto per-call
// parameters, leaving zero values unset so client defaults apply.
func generationParams(cfg *config.Config, system string) llm.GenerationParams {
	params := llm.GenerationParams{System: system}
	if cfg.Generation.Temperature > 0 {
		t := cfg.Generation.Temperature
		params.Temperature = &t
	}
	if cfg.Generation.MaxTokens > 0 {
		m := cfg.Generation.MaxTokens
		params.MaxTokens = &m
	}
	return params
}

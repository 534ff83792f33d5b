package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storycheck/storycheck/internal/config"
	"github.com/storycheck/storycheck/internal/gherkin"
	"github.com/storycheck/storycheck/internal/llm"
	"github.com/storycheck/storycheck/internal/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testFeatureText = `Feature: User lookup
  Scenario: Fetch an existing user
    When I request user with ID "valid_user_id"
    Then I should receive a 200 response`

const testStepsText = `{
  "steps": [
    {"step": "I request user with ID \"{user_id}\"", "action": "request", "method": "GET", "endpoint": "get_user"},
    {"step": "I should receive a {status} response", "action": "assert_status"}
  ]
}`

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Name:    "reqres",
			BaseURL: baseURL,
			Endpoints: map[string]string{
				"get_user": "/users/{user_id}",
			},
			Parameters: map[string]string{
				"valid_user_id":   "2",
				"missing_user_id": "23",
			},
		},
		Generation: config.GenerationConfig{
			Model:       "gpt-4o-mini",
			Timeout:     config.Duration(30 * time.Second),
			Temperature: 0.2,
			MaxTokens:   2048,
		},
		Run: config.RunConfig{
			Timeout:           config.Duration(30 * time.Second),
			PerRequestTimeout: config.Duration(5 * time.Second),
			Parallel:          2,
		},
	}
}

func TestFeatureGenerator_Generate(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)
	cfg := testConfig("http://example.test/api")
	gen := NewFeatureGenerator(client, cfg)

	story := "I want to fetch a user profile"
	var gotPrompt string
	var gotParams llm.GenerationParams
	client.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
			gotPrompt = prompt
			gotParams = params
			return "Here you go:\n\n```gherkin\n" + testFeatureText + "\n```\n", nil
		})

	text, feature, err := gen.Generate(context.Background(), story)

	require.NoError(t, err)
	assert.Equal(t, testFeatureText, text)
	require.NotNil(t, feature)
	require.Len(t, feature.Scenarios, 1)
	assert.Equal(t, "Fetch an existing user", feature.Scenarios[0].Name)

	assert.Contains(t, gotPrompt, story)
	assert.Contains(t, gotPrompt, "get_user: /users/{user_id}")
	assert.Contains(t, gotPrompt, "valid_user_id = 2")
	assert.Equal(t, prompts.SystemFeature, gotParams.System)
	require.NotNil(t, gotParams.Temperature)
	assert.Equal(t, float32(0.2), *gotParams.Temperature)
	require.NotNil(t, gotParams.MaxTokens)
	assert.Equal(t, 2048, *gotParams.MaxTokens)
}

func TestFeatureGenerator_Generate_ClientError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)
	gen := NewFeatureGenerator(client, testConfig("http://example.test"))

	client.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("backend unavailable"))

	_, _, err := gen.Generate(context.Background(), "I want to fetch a user profile")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestFeatureGenerator_Generate_NoArtifact(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)
	gen := NewFeatureGenerator(client, testConfig("http://example.test"))

	client.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("I am unable to write a feature for that story.", nil)

	_, _, err := gen.Generate(context.Background(), "I want to fetch a user profile")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.True(t, errors.Is(err, ErrNoArtifact))
}

func TestFeatureGenerator_Generate_RejectsMalformed(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)
	gen := NewFeatureGenerator(client, testConfig("http://example.test"))

	client.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("```gherkin\nScenario: orphan scenario\n  When I do something\n```", nil)

	_, _, err := gen.Generate(context.Background(), "I want to fetch a user profile")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "generated feature rejected")
}

func TestStepGenerator_Generate(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)
	cfg := testConfig("http://example.test/api")
	gen := NewStepGenerator(client, cfg)

	feature, err := gherkin.Parse(testFeatureText)
	require.NoError(t, err)

	var gotPrompt string
	var gotParams llm.GenerationParams
	client.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
			gotPrompt = prompt
			gotParams = params
			return "```json\n" + testStepsText + "\n```", nil
		})

	text, set, err := gen.Generate(context.Background(), testFeatureText, feature)

	require.NoError(t, err)
	assert.Equal(t, testStepsText, text)
	require.NotNil(t, set)
	assert.Len(t, set.Steps, 2)

	assert.Contains(t, gotPrompt, testFeatureText)
	assert.Contains(t, gotPrompt, "get_user: /users/{user_id}")
	assert.Equal(t, prompts.SystemSteps, gotParams.System)
}

func TestStepGenerator_Generate_RejectsIncompleteCoverage(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)
	gen := NewStepGenerator(client, testConfig("http://example.test"))

	feature, err := gherkin.Parse(testFeatureText)
	require.NoError(t, err)

	// Only one of the two feature steps has a binding.
	client.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("```json\n{\"steps\": [{\"step\": \"I should receive a {status} response\", \"action\": \"assert_status\"}]}\n```", nil)

	_, _, err = gen.Generate(context.Background(), testFeatureText, feature)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "step coverage incomplete")
}

func TestStepGenerator_Generate_RejectsStructurallyInvalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := llm.NewMockClient(ctrl)
	gen := NewStepGenerator(client, testConfig("http://example.test"))

	feature, err := gherkin.Parse(testFeatureText)
	require.NoError(t, err)

	client.EXPECT().
		Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("```json\n{\"steps\": [{\"step\": \"I request user with ID \\\"{user_id}\\\"\"}]}\n```", nil)

	_, _, err = gen.Generate(context.Background(), testFeatureText, feature)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "has no action")
}

func TestGenerationParams(t *testing.T) {
	cfg := testConfig("http://example.test")
	params := generationParams(cfg, prompts.SystemFeature)

	assert.Equal(t, prompts.SystemFeature, params.System)
	require.NotNil(t, params.Temperature)
	assert.Equal(t, float32(0.2), *params.Temperature)
	require.NotNil(t, params.MaxTokens)
	assert.Equal(t, 2048, *params.MaxTokens)

	cfg.Generation.Temperature = 0
	cfg.Generation.MaxTokens = 0
	params = generationParams(cfg, prompts.SystemSteps)

	assert.Nil(t, params.Temperature)
	assert.Nil(t, params.MaxTokens)
}

package gherkin

import (
	"fmt"
	"strings"
)

// Feature is a parsed BDD feature document: ordered scenarios, each an
// ordered sequence of steps. Background steps, when present, run before
// every scenario.
type Feature struct {
	Name        string
	Description []string
	Tags        []string
	Background  []Step
	Scenarios   []Scenario
}

// Scenario is one named scenario with its ordered steps.
type Scenario struct {
	Name  string
	Tags  []string
	Steps []Step
}

// Step is a single step line: keyword plus the remaining text.
type Step struct {
	Keyword string
	Text    string
}

var stepKeywords = []string{"Given", "When", "Then", "And", "But"}

// Parse reads Gherkin text into a Feature. It accepts the subset this
// system generates: one Feature, optional Background, plain scenarios with
// Given/When/Then/And/But steps, tags, comments, and description lines.
func Parse(text string) (*Feature, error) {
	var (
		feature      *Feature
		current      *Scenario
		inBackground bool
		pendingTags  []string
	)

	closeScenario := func() error {
		if current == nil {
			return nil
		}
		if len(current.Steps) == 0 {
			return fmt.Errorf("scenario %q has no steps", current.Name)
		}
		feature.Scenarios = append(feature.Scenarios, *current)
		current = nil
		return nil
	}

	for i, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		lineNo := i + 1

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue

		case strings.HasPrefix(line, "@"):
			tags, err := parseTags(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			pendingTags = append(pendingTags, tags...)

		case strings.HasPrefix(line, "Feature:"):
			if feature != nil {
				return nil, fmt.Errorf("line %d: multiple Feature declarations", lineNo)
			}
			name := strings.TrimSpace(strings.TrimPrefix(line, "Feature:"))
			if name == "" {
				return nil, fmt.Errorf("line %d: Feature has no name", lineNo)
			}
			feature = &Feature{Name: name, Tags: pendingTags}
			pendingTags = nil

		case strings.HasPrefix(line, "Background:"):
			if feature == nil {
				return nil, fmt.Errorf("line %d: Background before Feature declaration", lineNo)
			}
			if len(feature.Background) > 0 || inBackground {
				return nil, fmt.Errorf("line %d: multiple Background sections", lineNo)
			}
			if len(feature.Scenarios) > 0 || current != nil {
				return nil, fmt.Errorf("line %d: Background must precede scenarios", lineNo)
			}
			inBackground = true

		case strings.HasPrefix(line, "Scenario Outline:"):
			return nil, fmt.Errorf("line %d: scenario outlines are not supported", lineNo)

		case strings.HasPrefix(line, "Scenario:"):
			if feature == nil {
				return nil, fmt.Errorf("line %d: Scenario before Feature declaration", lineNo)
			}
			if err := closeScenario(); err != nil {
				return nil, err
			}
			inBackground = false
			name := strings.TrimSpace(strings.TrimPrefix(line, "Scenario:"))
			if name == "" {
				return nil, fmt.Errorf("line %d: Scenario has no name", lineNo)
			}
			current = &Scenario{Name: name, Tags: pendingTags}
			pendingTags = nil

		default:
			step, ok := parseStep(line)
			if ok {
				switch {
				case inBackground:
					if err := checkStepStart(feature.Background, step); err != nil {
						return nil, fmt.Errorf("line %d: %w", lineNo, err)
					}
					feature.Background = append(feature.Background, step)
				case current != nil:
					if err := checkStepStart(current.Steps, step); err != nil {
						return nil, fmt.Errorf("line %d: %w", lineNo, err)
					}
					current.Steps = append(current.Steps, step)
				default:
					return nil, fmt.Errorf("line %d: step outside any scenario: %q", lineNo, line)
				}
				continue
			}
			if feature == nil {
				return nil, fmt.Errorf("line %d: unexpected content before Feature declaration: %q", lineNo, line)
			}
			if current != nil || inBackground {
				return nil, fmt.Errorf("line %d: unrecognized line: %q", lineNo, line)
			}
			feature.Description = append(feature.Description, line)
		}
	}

	if feature == nil {
		return nil, fmt.Errorf("missing Feature declaration")
	}
	if err := closeScenario(); err != nil {
		return nil, err
	}
	if len(feature.Scenarios) == 0 {
		return nil, fmt.Errorf("feature %q has no scenarios", feature.Name)
	}
	return feature, nil
}

func parseTags(line string) ([]string, error) {
	var tags []string
	for _, field := range strings.Fields(line) {
		if !strings.HasPrefix(field, "@") || len(field) == 1 {
			return nil, fmt.Errorf("malformed tag line: %q", line)
		}
		tags = append(tags, field)
	}
	return tags, nil
}

func parseStep(line string) (Step, bool) {
	for _, kw := range stepKeywords {
		if strings.HasPrefix(line, kw+" ") {
			text := strings.TrimSpace(strings.TrimPrefix(line, kw+" "))
			if text == "" {
				return Step{}, false
			}
			return Step{Keyword: kw, Text: text}, true
		}
	}
	return Step{}, false
}

func checkStepStart(prior []Step, step Step) error {
	if len(prior) == 0 && (step.Keyword == "And" || step.Keyword == "But") {
		return fmt.Errorf("%s cannot start a step sequence", step.Keyword)
	}
	return nil
}

// AllStepTexts returns every distinct step text in the feature, background
// first, preserving first-appearance order.
func (f *Feature) AllStepTexts() []string {
	seen := make(map[string]bool)
	var texts []string
	add := func(steps []Step) {
		for _, s := range steps {
			if !seen[s.Text] {
				seen[s.Text] = true
				texts = append(texts, s.Text)
			}
		}
	}
	add(f.Background)
	for _, sc := range f.Scenarios {
		add(sc.Steps)
	}
	return texts
}

// ScenarioNames returns scenario names in declaration order.
func (f *Feature) ScenarioNames() []string {
	names := make([]string, len(f.Scenarios))
	for i, sc := range f.Scenarios {
		names[i] = sc.Name
	}
	return names
}

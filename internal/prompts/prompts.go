package prompts

import (
	"bytes"
	_ "embed"
	"sort"
	"strings"
	"text/template"
)

//go:embed feature.md
var featureTmpl string

//go:embed steps.md
var stepsTmpl string

//go:embed repair.md
var repairTmpl string

// System prompts for the generation capability, one per role.
const (
	SystemFeature = "You are a QA engineer writing Gherkin feature documents for HTTP API testing."
	SystemSteps   = "You are a QA engineer producing machine-readable step definitions as JSON."
	SystemRepair  = "You are a QA engineer repairing defective generated test artifacts."
)

// Line is one key/value hint rendered into a prompt list.
type Line struct {
	Key   string
	Value string
}

// Lines converts a hint map into Key-sorted lines so rendered prompts are
// stable across runs.
func Lines(m map[string]string) []Line {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]Line, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, Line{Key: k, Value: m[k]})
	}
	return lines
}

// FeatureData holds template parameters for the feature generation prompt.
type FeatureData struct {
	Story      string
	APIName    string
	BaseURL    string
	Endpoints  []Line
	Parameters []Line
}

// Feature renders the feature generation prompt.
func Feature(data FeatureData) (string, error) {
	return render("feature", featureTmpl, data)
}

// StepsData holds template parameters for the step generation prompt.
type StepsData struct {
	Feature    string
	BaseURL    string
	Endpoints  []Line
	Parameters []Line
}

// Steps renders the step generation prompt.
func Steps(data StepsData) (string, error) {
	return render("steps", stepsTmpl, data)
}

// RepairData holds template parameters for the repair prompt.
type RepairData struct {
	// Kind names the failing artifact ("feature" or "steps").
	Kind      string
	Category  string
	Rationale string
	// Output is the captured output of the failing run.
	Output  string
	Failing string
	// Fence is the code fence language for the failing artifact.
	Fence string
	// Paired carries the other artifact for context, optional.
	Paired      string
	PairedKind  string
	PairedFence string
}

// Repair renders the artifact repair prompt.
func Repair(data RepairData) (string, error) {
	return render("repair", repairTmpl, data)
}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ArtifactExtractor pulls generated artifact text out of model responses.
// Models are instructed to respond with a single fenced code block, but
// responses with prose around the block, or with no fence at all, are
// tolerated where the artifact is still unambiguous.
type ArtifactExtractor interface {
	ExtractGherkin(output string) (string, error)
	ExtractJSON(output string) (string, error)
}

// artifactExtractor implements ArtifactExtractor
type artifactExtractor struct {
	gherkinBlockRegex *regexp.Regexp
	jsonBlockRegex    *regexp.Regexp
}

// NewArtifactExtractor creates a new extractor
func NewArtifactExtractor() ArtifactExtractor {
	return &artifactExtractor{
		gherkinBlockRegex: regexp.MustCompile("(?s)```(?:gherkin|feature)\\s*\\n(.*?)```"),
		jsonBlockRegex:    regexp.MustCompile("(?s)```json\\s*\\n(.*?)```"),
	}
}

// ExtractGherkin extracts a feature document from model output. Fenced
// gherkin blocks win; bare output starting with a Feature declaration is
// accepted as a fallback.
func (p *artifactExtractor) ExtractGherkin(output string) (string, error) {
	for _, block := range p.findBlocks(p.gherkinBlockRegex, output) {
		trimmed := strings.TrimSpace(block)
		if trimmed != "" {
			return trimmed, nil
		}
	}

	trimmed := strings.TrimSpace(output)
	if strings.HasPrefix(trimmed, "Feature:") || strings.HasPrefix(trimmed, "@") {
		return trimmed, nil
	}

	preview := truncateOutput(output, 500)
	return "", fmt.Errorf("no gherkin block found in output.\n\nModel output preview:\n%s\n\n%w", preview, ErrNoArtifact)
}

// ExtractJSON extracts a JSON document from model output. Direct JSON is
// accepted as-is; otherwise the first valid fenced json block wins.
func (p *artifactExtractor) ExtractJSON(output string) (string, error) {
	trimmed := strings.TrimSpace(output)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	blocks := p.findBlocks(p.jsonBlockRegex, output)
	if len(blocks) == 0 {
		preview := truncateOutput(output, 500)
		return "", fmt.Errorf("no JSON blocks found in output.\n\nModel output preview:\n%s\n\n%w", preview, ErrNoArtifact)
	}

	for _, block := range blocks {
		candidate := strings.TrimSpace(block)
		if candidate == "" {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := truncateOutput(output, 500)
	return "", fmt.Errorf("no valid JSON found in output.\n\nModel output preview:\n%s\n\n%w", preview, ErrNoArtifact)
}

// findBlocks finds all fenced code blocks matching the given fence regex
func (p *artifactExtractor) findBlocks(re *regexp.Regexp, output string) []string {
	matches := re.FindAllStringSubmatch(output, -1)
	blocks := make([]string, 0, len(matches))

	for _, match := range matches {
		if len(match) > 1 {
			blocks = append(blocks, match[1])
		}
	}

	return blocks
}

// truncateOutput truncates output to maxLen characters with ellipsis
func truncateOutput(output string, maxLen int) string {
	if len(output) == 0 {
		return "(empty output)"
	}
	if len(output) <= maxLen {
		return output
	}
	return output[:maxLen] + fmt.Sprintf("...\n(truncated, showing first %d chars)", maxLen)
}

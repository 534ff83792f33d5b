package gherkin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Step binding actions understood by the test runner.
const (
	ActionNoop               = "noop"
	ActionRequest            = "request"
	ActionAssertStatus       = "assert_status"
	ActionAssertJSON         = "assert_json"
	ActionAssertBodyContains = "assert_body_contains"
)

// StepSet is the step definition artifact: an ordered list of bindings
// mapping step patterns to executable HTTP actions.
type StepSet struct {
	Steps []Binding `json:"steps"`
}

// Binding binds one step pattern to an action. Pattern placeholders:
// "{name}" inside quotes captures a quoted value, bare {name} captures one
// whitespace-free token. Captured values are available to the action and
// resolved through the configured parameters map.
type Binding struct {
	Pattern  string         `json:"step"`
	Action   string         `json:"action"`
	Method   string         `json:"method,omitempty"`
	Endpoint string         `json:"endpoint,omitempty"`
	Body     map[string]any `json:"body,omitempty"`
	Status   int            `json:"status,omitempty"`
	Path     string         `json:"path,omitempty"`
	Value    any            `json:"value,omitempty"`
	Text     string         `json:"text,omitempty"`
}

// ParseStepSet performs the acceptance-time structural check: the document
// must be valid JSON with a non-empty steps list, and every binding must
// carry a pattern and an action. Action semantics are deliberately not
// checked here; that happens when the runner compiles the set.
func ParseStepSet(data []byte) (*StepSet, error) {
	var set StepSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse step definitions: %w", err)
	}
	if len(set.Steps) == 0 {
		return nil, fmt.Errorf("step definitions contain no steps")
	}
	for i, b := range set.Steps {
		if strings.TrimSpace(b.Pattern) == "" {
			return nil, fmt.Errorf("step definition %d has no step pattern", i+1)
		}
		if strings.TrimSpace(b.Action) == "" {
			return nil, fmt.Errorf("step definition %d (%q) has no action", i+1, b.Pattern)
		}
	}
	return &set, nil
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

var placeholderName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CompiledBinding is a load-time compiled binding: pattern as an anchored
// regexp with named captures in order.
type CompiledBinding struct {
	Binding
	re     *regexp.Regexp
	params []string
}

// Params returns the placeholder names of the pattern in declaration order.
func (b *CompiledBinding) Params() []string {
	return b.params
}

// CompiledSet is a step set after strict load-time compilation.
type CompiledSet struct {
	bindings []CompiledBinding
}

// Match finds the first binding whose pattern matches the step text and
// returns it with the captured parameter values.
func (c *CompiledSet) Match(text string) (*CompiledBinding, map[string]string, bool) {
	for i := range c.bindings {
		b := &c.bindings[i]
		m := b.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		captured := make(map[string]string, len(b.params))
		for j, name := range b.params {
			captured[name] = m[j+1]
		}
		return b, captured, true
	}
	return nil, nil, false
}

// Compile performs the strict load-time check of a step set: known actions,
// well-formed placeholders, sane methods and statuses, compilable patterns.
// A set that passed ParseStepSet can still fail here; the runner reports
// that as a load failure.
func Compile(set *StepSet) (*CompiledSet, error) {
	compiled := &CompiledSet{bindings: make([]CompiledBinding, 0, len(set.Steps))}
	for _, b := range set.Steps {
		cb, err := compileBinding(b)
		if err != nil {
			return nil, err
		}
		compiled.bindings = append(compiled.bindings, cb)
	}
	return compiled, nil
}

func compileBinding(b Binding) (CompiledBinding, error) {
	switch b.Action {
	case ActionNoop:
	case ActionRequest:
		if b.Method == "" {
			b.Method = "GET"
		}
		b.Method = strings.ToUpper(b.Method)
		if !validMethods[b.Method] {
			return CompiledBinding{}, fmt.Errorf("step %q: invalid method %q", b.Pattern, b.Method)
		}
		if strings.TrimSpace(b.Endpoint) == "" {
			return CompiledBinding{}, fmt.Errorf("step %q: request action requires an endpoint", b.Pattern)
		}
	case ActionAssertStatus:
		if b.Status != 0 && (b.Status < 100 || b.Status > 599) {
			return CompiledBinding{}, fmt.Errorf("step %q: invalid status %d", b.Pattern, b.Status)
		}
	case ActionAssertJSON, ActionAssertBodyContains:
	default:
		return CompiledBinding{}, fmt.Errorf("step %q: unknown action %q", b.Pattern, b.Action)
	}

	re, params, err := compilePattern(b.Pattern)
	if err != nil {
		return CompiledBinding{}, fmt.Errorf("invalid step pattern %q: %w", b.Pattern, err)
	}
	return CompiledBinding{Binding: b, re: re, params: params}, nil
}

// compilePattern translates a step pattern into an anchored regexp.
// "{name}" becomes a quoted capture, bare {name} a single-token capture.
func compilePattern(pattern string) (*regexp.Regexp, []string, error) {
	var (
		sb     strings.Builder
		params []string
		i      int
	)
	sb.WriteString("^")
	for i < len(pattern) {
		switch {
		case strings.HasPrefix(pattern[i:], `"{`):
			end := strings.Index(pattern[i+2:], `}"`)
			if end < 0 {
				return nil, nil, fmt.Errorf("unclosed quoted placeholder")
			}
			name := pattern[i+2 : i+2+end]
			if err := addParam(&params, name); err != nil {
				return nil, nil, err
			}
			sb.WriteString(`"([^"]*)"`)
			i += end + 4
		case pattern[i] == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return nil, nil, fmt.Errorf("unclosed placeholder")
			}
			name := pattern[i+1 : i+end]
			if err := addParam(&params, name); err != nil {
				return nil, nil, err
			}
			sb.WriteString(`(\S+)`)
			i += end + 1
		default:
			sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, nil, err
	}
	return re, params, nil
}

func addParam(params *[]string, name string) error {
	if !placeholderName.MatchString(name) {
		return fmt.Errorf("invalid placeholder name %q", name)
	}
	for _, existing := range *params {
		if existing == name {
			return fmt.Errorf("duplicate placeholder %q", name)
		}
	}
	*params = append(*params, name)
	return nil
}

// CheckCoverage verifies the acceptance-time coverage invariant: every step
// text in the feature must match some binding pattern. Matching here is a
// loose placeholder-aware comparison, intentionally weaker than load-time
// compilation so structurally covered but uncompilable sets still load-fail
// at run time rather than being rejected silently here.
func CheckCoverage(f *Feature, set *StepSet) error {
	var uncovered []string
	for _, text := range f.AllStepTexts() {
		if !coveredBy(set, text) {
			uncovered = append(uncovered, text)
		}
	}
	if len(uncovered) > 0 {
		return fmt.Errorf("step coverage incomplete: %d step(s) without a definition: %q",
			len(uncovered), uncovered)
	}
	return nil
}

func coveredBy(set *StepSet, text string) bool {
	for _, b := range set.Steps {
		if looseMatch(b.Pattern, text) {
			return true
		}
	}
	return false
}

// looseMatch walks pattern and text together, consuming a quoted string for
// "{name}" and a non-space token for bare {name}. Malformed placeholders
// degrade to literal comparison.
func looseMatch(pattern, text string) bool {
	p, t := 0, 0
	for p < len(pattern) {
		if strings.HasPrefix(pattern[p:], `"{`) {
			if end := strings.Index(pattern[p+2:], `}"`); end >= 0 {
				if t >= len(text) || text[t] != '"' {
					return false
				}
				closing := strings.IndexByte(text[t+1:], '"')
				if closing < 0 {
					return false
				}
				t += closing + 2
				p += end + 4
				continue
			}
		}
		if pattern[p] == '{' {
			if end := strings.IndexByte(pattern[p:], '}'); end > 0 {
				start := t
				for t < len(text) && text[t] != ' ' {
					t++
				}
				if t == start {
					return false
				}
				p += end + 1
				continue
			}
		}
		if t >= len(text) || text[t] != pattern[p] {
			return false
		}
		p++
		t++
	}
	return t == len(text)
}

package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/storycheck/storycheck/internal/config"
	"github.com/storycheck/storycheck/internal/gherkin"
)

// assertionError marks a step whose assertion observed a wrong value. The
// scenario is then failed rather than errored.
type assertionError struct {
	msg string
}

func (e *assertionError) Error() string {
	return e.msg
}

func assertionf(format string, args ...any) error {
	return &assertionError{msg: fmt.Sprintf(format, args...)}
}

// execution is the per-scenario state threaded through step execution:
// the most recent HTTP response seen by a request step.
type execution struct {
	client *http.Client
	cfg    *config.Config
	set    *gherkin.CompiledSet

	lastStatus  int
	lastBody    []byte
	hasResponse bool
}

func (e *execution) step(ctx context.Context, step gherkin.Step) error {
	binding, captured, ok := e.set.Match(step.Text)
	if !ok {
		return fmt.Errorf("runtime error: no step definition matches %q", step.Text)
	}

	switch binding.Action {
	case gherkin.ActionNoop:
		return nil
	case gherkin.ActionRequest:
		return e.request(ctx, binding, captured)
	case gherkin.ActionAssertStatus:
		return e.assertStatus(binding, captured)
	case gherkin.ActionAssertJSON:
		return e.assertJSON(binding, captured)
	case gherkin.ActionAssertBodyContains:
		return e.assertBodyContains(binding, captured)
	default:
		return fmt.Errorf("runtime error: unsupported action %q", binding.Action)
	}
}

func (e *execution) request(ctx context.Context, b *gherkin.CompiledBinding, captured map[string]string) error {
	template, ok := e.cfg.EndpointPath(b.Endpoint)
	if !ok {
		return fmt.Errorf("runtime error: unknown endpoint %q", b.Endpoint)
	}
	path, err := e.expandPath(template, captured)
	if err != nil {
		return err
	}
	target := strings.TrimSuffix(e.cfg.API.BaseURL, "/") + path

	var body io.Reader
	if len(b.Body) > 0 {
		payload, err := json.Marshal(e.expandBody(b.Body, captured))
		if err != nil {
			return fmt.Errorf("runtime error: encode request body: %v", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, b.Method, target, body)
	if err != nil {
		return fmt.Errorf("runtime error: build request %s %s: %v", b.Method, target, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range e.cfg.API.Headers {
		req.Header.Set(name, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %s %s: %v", b.Method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("connection error: read response from %s: %v", target, err)
	}

	e.lastStatus = resp.StatusCode
	e.lastBody = data
	e.hasResponse = true
	return nil
}

func (e *execution) assertStatus(b *gherkin.CompiledBinding, captured map[string]string) error {
	if !e.hasResponse {
		return fmt.Errorf("runtime error: no response captured before status assertion")
	}

	want := b.Status
	if params := b.Params(); len(params) > 0 {
		raw := e.cfg.ResolveParameter(captured[params[0]])
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("runtime error: expected status %q is not a number", raw)
		}
		want = parsed
	}
	if want == 0 {
		return fmt.Errorf("runtime error: status assertion has no expected code")
	}

	if e.lastStatus != want {
		return assertionf("assertion failed: expected status %d, got %d", want, e.lastStatus)
	}
	return nil
}

func (e *execution) assertJSON(b *gherkin.CompiledBinding, captured map[string]string) error {
	if !e.hasResponse {
		return fmt.Errorf("runtime error: no response captured before JSON assertion")
	}

	// Placeholders fill path then value in declaration order; fixed fields
	// cover whatever the pattern does not capture.
	params := b.Params()
	path := b.Path
	if path == "" && len(params) > 0 {
		path = captured[params[0]]
		params = params[1:]
	}
	if path == "" {
		return fmt.Errorf("runtime error: JSON assertion has no field path")
	}

	var want string
	switch {
	case len(params) > 0:
		want = e.cfg.ResolveParameter(captured[params[0]])
	case b.Value != nil:
		want = fmt.Sprintf("%v", b.Value)
	default:
		return fmt.Errorf("runtime error: JSON assertion on %q has no expected value", path)
	}

	var doc any
	if err := json.Unmarshal(e.lastBody, &doc); err != nil {
		return fmt.Errorf("runtime error: response body is not JSON: %v", err)
	}

	got, found := lookupPath(doc, path)
	if !found {
		return assertionf("assertion failed: expected field %q to be %q, but the field is missing", path, want)
	}
	if gotStr := jsonValueString(got); gotStr != want {
		return assertionf("assertion failed: expected field %q to be %q, got %q", path, want, gotStr)
	}
	return nil
}

func (e *execution) assertBodyContains(b *gherkin.CompiledBinding, captured map[string]string) error {
	if !e.hasResponse {
		return fmt.Errorf("runtime error: no response captured before body assertion")
	}

	want := b.Text
	if params := b.Params(); len(params) > 0 {
		want = e.cfg.ResolveParameter(captured[params[0]])
	}
	if want == "" {
		return fmt.Errorf("runtime error: body assertion has no expected text")
	}

	if !strings.Contains(string(e.lastBody), want) {
		return assertionf("assertion failed: expected body to contain %q, got %s", want, preview(e.lastBody))
	}
	return nil
}

var pathToken = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// expandPath substitutes {name} tokens in an endpoint path template.
// Captured step values resolve through the configured parameters map;
// tokens with no captured value fall back to the parameters map directly.
func (e *execution) expandPath(template string, captured map[string]string) (string, error) {
	var missing string
	expanded := pathToken.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		if raw, ok := captured[name]; ok {
			return url.PathEscape(e.cfg.ResolveParameter(raw))
		}
		if value, ok := e.cfg.API.Parameters[name]; ok {
			return url.PathEscape(value)
		}
		if missing == "" {
			missing = token
		}
		return token
	})
	if missing != "" {
		return "", fmt.Errorf("runtime error: unresolved placeholder %s in path %s", missing, template)
	}
	return expanded, nil
}

func (e *execution) expandBody(body map[string]any, captured map[string]string) map[string]any {
	out := make(map[string]any, len(body))
	for key, value := range body {
		out[key] = e.expandValue(value, captured)
	}
	return out
}

func (e *execution) expandValue(value any, captured map[string]string) any {
	switch v := value.(type) {
	case string:
		return e.expandString(v, captured)
	case map[string]any:
		return e.expandBody(v, captured)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = e.expandValue(item, captured)
		}
		return out
	default:
		return value
	}
}

// expandString substitutes {name} tokens inside body strings. Unknown
// tokens are left as written; request bodies may contain literal braces.
func (e *execution) expandString(s string, captured map[string]string) string {
	return pathToken.ReplaceAllStringFunc(s, func(token string) string {
		name := token[1 : len(token)-1]
		if raw, ok := captured[name]; ok {
			return e.cfg.ResolveParameter(raw)
		}
		if value, ok := e.cfg.API.Parameters[name]; ok {
			return value
		}
		return token
	})
}

// lookupPath walks a dotted path, e.g. data.id or items.0.name, through a
// decoded JSON document.
func lookupPath(doc any, path string) (any, bool) {
	current := doc
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[part]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func jsonValueString(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func preview(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "an empty body"
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

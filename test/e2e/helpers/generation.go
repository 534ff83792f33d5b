package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// CapturedRequest is one chat completion request the generation server
// received.
type CapturedRequest struct {
	Model         string
	System        string
	Prompt        string
	Authorization string
}

// GenerationServer replays scripted completions from an OpenAI-compatible
// endpoint so runs exercise the real generation client without network
// access.
type GenerationServer struct {
	t         *testing.T
	server    *httptest.Server
	mu        sync.Mutex
	responses []string
	requests  []CapturedRequest
}

// NewGenerationServer starts a server that returns the given completions in
// order. A request past the end of the script fails the test.
func NewGenerationServer(t *testing.T, responses ...string) *GenerationServer {
	t.Helper()

	g := &GenerationServer{t: t, responses: responses}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

// BaseURL is the value to put in generation.baseURL.
func (g *GenerationServer) BaseURL() string {
	return g.server.URL + "/v1"
}

// Requests returns the captured requests in arrival order.
func (g *GenerationServer) Requests() []CapturedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]CapturedRequest(nil), g.requests...)
}

func (g *GenerationServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}

	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	captured := CapturedRequest{
		Model:         body.Model,
		Authorization: r.Header.Get("Authorization"),
	}
	for _, m := range body.Messages {
		switch m.Role {
		case "system":
			captured.System = m.Content
		case "user":
			captured.Prompt = m.Content
		}
	}

	g.mu.Lock()
	index := len(g.requests)
	g.requests = append(g.requests, captured)
	var content string
	if index < len(g.responses) {
		content = g.responses[index]
	}
	g.mu.Unlock()

	if content == "" {
		g.t.Errorf("generation server received request %d beyond the script", index+1)
		http.Error(w, "script exhausted", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-scripted",
		"object": "chat.completion",
		"model":  body.Model,
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	})
}

// NewHangingGenerationServer starts a server that never answers, holding
// every request open until the caller goes away. Used to exercise
// cancellation mid-generation.
func NewHangingGenerationServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	return server
}

package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewTargetAPI starts a small in-process stand-in for the demo user API the
// starter configuration points at.
func NewTargetAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"id":         2,
				"email":      "janet.weaver@example.com",
				"first_name": "Janet",
				"last_name":  "Weaver",
			},
		})
	})
	mux.HandleFunc("GET /users/23", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{})
	})
	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":        "101",
			"createdAt": "2026-08-22T10:00:00Z",
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestOpenAPIHandler(t *testing.T) {
	t.Parallel()

	r := mux.NewRouter()
	NewOpenAPIHandler().RegisterRoutes(r)

	rec := serve(r, http.MethodGet, "/api/openapi.yaml", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("Unexpected YAML response %d", rec.Code)
	}

	rec = serve(r, http.MethodGet, "/api/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	doc := decodeBody(t, rec)
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/api/hello", "/api/emails/send", "/api/transcribe", "/api/translate/tts", "/readyz"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("Expected path %s in document", p)
		}
	}
}

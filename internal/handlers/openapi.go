package handlers

import (
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// OpenAPIHandler serves the API description
type OpenAPIHandler struct {
	document []byte
}

// NewOpenAPIHandler creates a handler for the embedded document
func NewOpenAPIHandler() *OpenAPIHandler {
	return &OpenAPIHandler{document: openAPIDocument}
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/openapi.yaml", h.ServeYAML).Methods(http.MethodGet)
	r.HandleFunc("/api/openapi.json", h.ServeJSON).Methods(http.MethodGet)
}

// ServeYAML serves the OpenAPI document in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	if _, err := w.Write(h.document); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// ServeJSON serves the OpenAPI document in JSON format
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := yaml.Unmarshal(h.document, &doc); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to parse OpenAPI specification")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker()
	h.AddCheck("database", func(context.Context) error { return errors.New("down") })
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected liveness to ignore dependencies, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Checks != nil {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestReadyCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     map[string]error
		wantStatus int
		want       map[string]string
	}{
		{name: "no dependencies", checks: nil, wantStatus: http.StatusOK, want: map[string]string{}},
		{name: "all healthy", checks: map[string]error{"database": nil, "redis": nil}, wantStatus: http.StatusOK, want: map[string]string{"database": "healthy", "redis": "healthy"}},
		{
			name:       "one failing",
			checks:     map[string]error{"database": nil, "rabbitmq": errors.New("connection closed")},
			wantStatus: http.StatusServiceUnavailable,
			want:       map[string]string{"database": "healthy", "rabbitmq": "unhealthy: connection closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHealthChecker()
			for name, err := range tt.checks {
				h.AddCheck(name, func(context.Context) error { return err })
			}

			rec := httptest.NewRecorder()
			h.ReadyCheck(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Checks) != len(tt.want) {
				t.Fatalf("Expected %d checks, got %v", len(tt.want), resp.Checks)
			}
			for name, want := range tt.want {
				if resp.Checks[name] != want {
					t.Errorf("Check %s: expected %q, got %q", name, want, resp.Checks[name])
				}
			}
		})
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if want := `{"status":"healthy"}` + "\n"; w.Body.String() != want {
		t.Errorf("body = %q, want %q", w.Body.String(), want)
	}
}

func TestReadyHandler(t *testing.T) {
	gw, _ := newTestGateway(t)
	h := NewReadyHandler(gw, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ready" || body["agents"] != float64(2) {
		t.Errorf("body = %v", body)
	}

	// A fresh gateway against a dead upstream has no snapshot to fall back on.
	gw2, srv2 := newTestGateway(t)
	srv2.Close()
	w = httptest.NewRecorder()
	NewReadyHandler(gw2, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestRootHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewRootHandler("1.2.3").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["version"] != "1.2.3" || body["message"] == "" {
		t.Errorf("body = %v", body)
	}
}

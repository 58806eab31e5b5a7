package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusEndpoint(t *testing.T) {
	mux := NewMux(testDeps(&fakeRunner{}, &fakeIngestor{}))

	// A couple of turns so the counters move.
	postJSON(t, mux, "/invoke", InvokeRequest{ThreadID: "t1", Messages: userMessages("one")})
	postJSON(t, mux, "/invoke", InvokeRequest{ThreadID: "t2", Messages: userMessages("two")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Service.Name != "smart-query" {
		t.Errorf("service name = %q", resp.Service.Name)
	}
	if resp.Turns.Total != 2 {
		t.Errorf("turns total = %d, want 2", resp.Turns.Total)
	}
	if resp.Tools.Registered != 1 {
		t.Errorf("tools registered = %d, want 1", resp.Tools.Registered)
	}
	if resp.Threads.Active != 0 {
		t.Errorf("threads active = %d, want 0", resp.Threads.Active)
	}
}

func TestStatusMethodNotAllowed(t *testing.T) {
	mux := NewMux(testDeps(&fakeRunner{}, &fakeIngestor{}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := NewMux(testDeps(&fakeRunner{}, &fakeIngestor{}))

	postJSON(t, mux, "/invoke", InvokeRequest{ThreadID: "t1", Messages: userMessages("one")})
	postJSON(t, mux, "/run-rag", IngestRequest{DocumentURL: "https://example.com/doc.pdf"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"smartquery_turns_total 1",
		"smartquery_ingests_total 1",
		"smartquery_tools_registered 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

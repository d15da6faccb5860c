package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/cexll/reviewloop/internal/invocations"
)

func newTestServer(store *invocations.Store) *httptest.Server {
	r := mux.NewRouter()
	NewHandler(store).RegisterRoutes(r)
	return httptest.NewServer(r)
}

func TestHandleList(t *testing.T) {
	store := invocations.NewStore()
	store.Create(&invocations.Invocation{ID: "inv-1", Op: "submit", Repo: "owner/repo", Number: 7, Actor: "alice"})
	store.Create(&invocations.Invocation{ID: "inv-2", Op: "approve", Repo: "owner/repo", Number: 7, Actor: "bob"})

	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/invocations")
	if err != nil {
		t.Fatalf("GET /invocations: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body struct {
		Invocations []invocations.Invocation `json:"invocations"`
		Count       int                      `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
	if len(body.Invocations) != 2 {
		t.Fatalf("invocations = %d, want 2", len(body.Invocations))
	}
}

func TestHandleDetail(t *testing.T) {
	store := invocations.NewStore()
	store.Create(&invocations.Invocation{ID: "inv-1", Op: "findings", Repo: "owner/repo", Number: 3, Actor: "carol"})
	store.RecordOutcome("inv-1", "rev-deadbeef", "findings-posted")

	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/invocations/inv-1")
	if err != nil {
		t.Fatalf("GET /invocations/inv-1: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var inv invocations.Invocation
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if inv.ID != "inv-1" {
		t.Errorf("id = %q, want inv-1", inv.ID)
	}
	if inv.SessionID != "rev-deadbeef" {
		t.Errorf("session_id = %q, want rev-deadbeef", inv.SessionID)
	}
	if inv.Action != "findings-posted" {
		t.Errorf("action = %q, want findings-posted", inv.Action)
	}
}

func TestHandleDetail_NotFound(t *testing.T) {
	srv := newTestServer(invocations.NewStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/invocations/missing")
	if err != nil {
		t.Fatalf("GET /invocations/missing: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arbiterhq/arbiter/internal/cache"
	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/gateway"
	"github.com/arbiterhq/arbiter/internal/orchestrator"
	"github.com/arbiterhq/arbiter/internal/storage"
	"github.com/arbiterhq/arbiter/provider"
	"github.com/arbiterhq/arbiter/provider/mock"
)

// setupTestServer builds a full stack backed by in-memory storage and a
// scriptable mock provider.
func setupTestServer(t *testing.T) (*httptest.Server, *mock.Adapter) {
	t.Helper()

	adapter := mock.New("mockai",
		mock.WithModels("mock-small"),
		mock.WithResponses(
			"First argument.",
			"Second argument.",
			"Third argument.",
			"Fourth argument.",
		),
	)

	registry := provider.NewRegistry()
	registry.Register(adapter)

	gw := gateway.New(registry, gateway.DefaultSettings(), nil)
	store := storage.NewMemoryStorage()
	publisher := events.NewPublisher()
	service := orchestrator.New(store, gw, cache.NewMemory(time.Minute), publisher, orchestrator.DefaultOptions())

	handler := New(service, gw, registry)
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	t.Cleanup(publisher.Close)

	return srv, adapter
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

// createTestDebate creates a debate with two mock AI participants.
func createTestDebate(t *testing.T, baseURL string, maxRounds int) *core.Debate {
	t.Helper()

	resp := postJSON(t, baseURL+"/api/debates", map[string]any{
		"topic":      "Should tests talk to real providers?",
		"max_rounds": maxRounds,
		"participants": []map[string]any{
			{"name": "Advocate", "kind": "ai", "provider": "mockai", "model": "mock-small"},
			{"name": "Skeptic", "kind": "ai", "provider": "mockai", "model": "mock-small"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	debate := decodeBody[*core.Debate](t, resp)
	if len(debate.Participants) != 2 {
		t.Fatalf("Expected 2 participants, got %d", len(debate.Participants))
	}
	return debate
}

func waitForStatus(t *testing.T, baseURL, id string, want core.DebateStatus) *core.Debate {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/debates/" + id)
		if err != nil {
			t.Fatalf("GET debate failed: %v", err)
		}
		debate := decodeBody[*core.Debate](t, resp)
		if debate.Status == want {
			return debate
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Debate %s did not reach status %s", id, want)
	return nil
}

func TestCreateDebateValidation(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/debates", map[string]any{"max_rounds": 2})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing topic, got %d", resp.StatusCode)
	}
}

func TestGetDebateNotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/debates/no-such-debate")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestStartRequiresTwoParticipants(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/debates", map[string]any{"topic": "Lonely debate"})
	debate := decodeBody[*core.Debate](t, resp)

	startResp := postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/start", nil)
	defer startResp.Body.Close()
	if startResp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", startResp.StatusCode)
	}
}

func TestDebateRunsToCompletion(t *testing.T) {
	srv, adapter := setupTestServer(t)

	debate := createTestDebate(t, srv.URL, 1)

	startResp := postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/start", nil)
	defer startResp.Body.Close()
	if startResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", startResp.StatusCode)
	}

	completed := waitForStatus(t, srv.URL, debate.ID, core.StatusCompleted)
	if len(completed.Rounds) != 1 {
		t.Errorf("Expected 1 round, got %d", len(completed.Rounds))
	}
	if adapter.Calls() != 2 {
		t.Errorf("Expected 2 adapter calls, got %d", adapter.Calls())
	}

	// Results endpoint returns the aggregate once terminal
	resultsResp, err := http.Get(srv.URL + "/api/debates/" + debate.ID + "/results")
	if err != nil {
		t.Fatalf("GET results failed: %v", err)
	}
	if resultsResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resultsResp.StatusCode)
	}
	results := decodeBody[*core.DebateResults](t, resultsResp)
	if len(results.Rounds) != 1 || len(results.Rounds[0].Responses) != 2 {
		t.Error("Results missing round responses")
	}
}

func TestResultsBeforeCompletion(t *testing.T) {
	srv, _ := setupTestServer(t)
	debate := createTestDebate(t, srv.URL, 1)

	resp, err := http.Get(srv.URL + "/api/debates/" + debate.ID + "/results")
	if err != nil {
		t.Fatalf("GET results failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unfinished debate, got %d", resp.StatusCode)
	}
}

func TestSubmitResponseEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := postJSON(t, srv.URL+"/api/debates", map[string]any{
		"topic":      "Human only debate",
		"max_rounds": 1,
		"participants": []map[string]any{
			{"name": "Alice", "kind": "human"},
			{"name": "Bob", "kind": "human"},
		},
	})
	debate := decodeBody[*core.Debate](t, resp)

	startResp := postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/start", nil)
	started := decodeBody[*core.Debate](t, startResp)

	roundsResp, err := http.Get(srv.URL + "/api/debates/" + debate.ID + "/rounds")
	if err != nil {
		t.Fatalf("GET rounds failed: %v", err)
	}
	rounds := decodeBody[[]*core.Round](t, roundsResp)
	if len(rounds) != 1 {
		t.Fatalf("Expected 1 open round, got %d", len(rounds))
	}

	for _, p := range started.Participants {
		submitResp := postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/responses", map[string]any{
			"round_id":       rounds[0].ID,
			"participant_id": p.ID,
			"content":        "Position from " + p.Name,
		})
		if submitResp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", submitResp.StatusCode)
		}
		submitResp.Body.Close()
	}

	waitForStatus(t, srv.URL, debate.ID, core.StatusCompleted)

	// Duplicate submission is rejected
	dupResp := postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/responses", map[string]any{
		"round_id":       rounds[0].ID,
		"participant_id": started.Participants[0].ID,
		"content":        "Another take",
	})
	defer dupResp.Body.Close()
	if dupResp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for duplicate submission, got %d", dupResp.StatusCode)
	}
}

func TestRemoveParticipantEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	debate := createTestDebate(t, srv.URL, 1)

	req, _ := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/debates/"+debate.ID+"/participants/"+debate.Participants[0].ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/api/debates/" + debate.ID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	updated := decodeBody[*core.Debate](t, getResp)
	if len(updated.Participants) != 1 {
		t.Errorf("Expected 1 participant after removal, got %d", len(updated.Participants))
	}
}

func TestDeleteDebateEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	debate := createTestDebate(t, srv.URL, 1)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/debates/"+debate.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/api/debates/" + debate.ID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", getResp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	debate := createTestDebate(t, srv.URL, 1)

	postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/start", nil).Body.Close()
	waitForStatus(t, srv.URL, debate.ID, core.StatusCompleted)

	resp, err := http.Get(srv.URL + "/api/debates/" + debate.ID + "/export/markdown")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Unexpected content type: %s", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".md") {
		t.Errorf("Unexpected content disposition: %s", cd)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("Failed to read export body: %v", err)
	}
	if !strings.Contains(body.String(), debate.Topic) {
		t.Error("Export does not contain the debate topic")
	}

	badResp, err := http.Get(srv.URL + "/api/debates/" + debate.ID + "/export/xml")
	if err != nil {
		t.Fatalf("GET export failed: %v", err)
	}
	defer badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unsupported format, got %d", badResp.StatusCode)
	}
}

func TestListDebatesEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	createTestDebate(t, srv.URL, 1)
	createTestDebate(t, srv.URL, 2)

	resp, err := http.Get(srv.URL + "/api/debates")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	summaries := decodeBody[[]*core.DebateSummary](t, resp)
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 debates, got %d", len(summaries))
	}
	if summaries[0].ParticipantCount != 2 {
		t.Errorf("Expected participant count 2, got %d", summaries[0].ParticipantCount)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/providers")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	providers := decodeBody[[]map[string]any](t, resp)
	if len(providers) != 1 {
		t.Fatalf("Expected 1 provider, got %d", len(providers))
	}
	if providers[0]["name"] != "mockai" {
		t.Errorf("Unexpected provider name: %v", providers[0]["name"])
	}

	modelsResp, err := http.Get(srv.URL + "/api/models")
	if err != nil {
		t.Fatalf("GET models failed: %v", err)
	}
	models := decodeBody[map[string][]string](t, modelsResp)
	if len(models["mockai"]) == 0 {
		t.Error("Expected models for mockai")
	}
}

func TestEventStreamRelaysDebate(t *testing.T) {
	srv, _ := setupTestServer(t)
	debate := createTestDebate(t, srv.URL, 1)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/debates/"+debate.ID+"/events", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Unexpected content type: %s", ct)
	}

	// Kick off the debate once the stream is attached
	startResp := postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/start", nil)
	startResp.Body.Close()

	seen := make(map[string]int)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for scanner.Scan() {
			line := scanner.Text()
			if event, ok := strings.CutPrefix(line, "event: "); ok {
				seen[event]++
				if event == string(core.EventDebateCompleted) {
					return
				}
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for debate.completed on the event stream")
	}

	if seen["snapshot"] != 1 {
		t.Errorf("Expected 1 snapshot event, got %d", seen["snapshot"])
	}
	if seen[string(core.EventRoundStarted)] == 0 {
		t.Error("Expected a round.started event on the stream")
	}
	if seen[string(core.EventResponseSubmitted)] != 2 {
		t.Errorf("Expected 2 response.submitted events, got %d", seen[string(core.EventResponseSubmitted)])
	}
}

func TestEventStreamTerminalSnapshot(t *testing.T) {
	srv, _ := setupTestServer(t)
	debate := createTestDebate(t, srv.URL, 1)

	postJSON(t, srv.URL+"/api/debates/"+debate.ID+"/start", nil).Body.Close()
	waitForStatus(t, srv.URL, debate.ID, core.StatusCompleted)

	resp, err := http.Get(fmt.Sprintf("%s/api/debates/%s/events", srv.URL, debate.ID))
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	out := body.String()
	if !strings.Contains(out, "event: snapshot") {
		t.Error("Expected snapshot event for finished debate")
	}
	if !strings.Contains(out, string(core.StatusCompleted)) {
		t.Error("Snapshot does not carry the completed status")
	}
}

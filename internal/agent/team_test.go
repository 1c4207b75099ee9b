package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
)

// completionServer serves canned chat-completion responses in order and
// records every request body it sees.
type completionServer struct {
	mu        sync.Mutex
	responses []string
	bodies    []string
}

func newCompletionServer(t *testing.T, responses ...string) (*httptest.Server, *completionServer) {
	t.Helper()
	cs := &completionServer{responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		cs.mu.Lock()
		cs.bodies = append(cs.bodies, string(body))
		if len(cs.responses) == 0 {
			cs.mu.Unlock()
			t.Errorf("completion server received unexpected extra request")
			http.Error(w, "no more responses", http.StatusInternalServerError)
			return
		}
		resp := cs.responses[0]
		cs.responses = cs.responses[1:]
		cs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, cs
}

func (c *completionServer) requestBodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bodies...)
}

const toolCallCompletion = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [{
				"id": "call_1",
				"type": "function",
				"function": {"name": "web_search", "arguments": "{\"query\":\"remote data science jobs\"}"}
			}]
		}
	}]
}`

const finalCompletion = `{
	"id": "cmpl-2",
	"object": "chat.completion",
	"created": 1700000001,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {
			"role": "assistant",
			"content": "Remote data science roles favor strong portfolios. TERMINATE"
		}
	}]
}`

func TestTeamRunsToolRoundThenTerminates(t *testing.T) {
	t.Parallel()

	llm, cs := newCompletionServer(t, toolCallCompletion, finalCompletion)
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organic": [{"title": "Data science job board"}]}`))
	}))
	t.Cleanup(searchSrv.Close)

	team := BuildTeam(domain.SessionConfig{
		Credential:   "test-token",
		Model:        "gpt-4o-mini",
		SearchAPIKey: "test-search-key",
	}, Options{
		InferenceURL: llm.URL,
		SearchURL:    searchSrv.URL,
	})

	var events []Event
	for ev, err := range team.Run(context.Background(), "find me remote data science jobs") {
		if err != nil {
			t.Fatalf("team run failed: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events (tool call, text, final), got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventToolCallRequest {
		t.Errorf("expected first event to be a tool-call request, got %v", events[0].Kind)
	}
	if len(events[0].Calls) != 1 || events[0].Calls[0].Name != "web_search" {
		t.Errorf("unexpected tool calls: %+v", events[0].Calls)
	}
	if events[1].Kind != EventTextMessage || !strings.Contains(events[1].Content, "TERMINATE") {
		t.Errorf("expected raw text message with sentinel, got %+v", events[1])
	}
	if events[2].Kind != EventFinalResponse {
		t.Errorf("expected final response, got %v", events[2].Kind)
	}

	// The second completion request must carry the tool output back.
	bodies := cs.requestBodies()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 completion requests, got %d", len(bodies))
	}
	if !strings.Contains(bodies[1], `"tool"`) || !strings.Contains(bodies[1], "Data science job board") {
		t.Errorf("second request does not include tool output: %s", bodies[1])
	}
}

func TestTeamWithoutSearchKeySendsNoTools(t *testing.T) {
	t.Parallel()

	llm, cs := newCompletionServer(t, finalCompletion)

	team := BuildTeam(domain.SessionConfig{
		Credential: "test-token",
		Model:      "gpt-4o-mini",
	}, Options{InferenceURL: llm.URL})

	for ev, err := range team.Run(context.Background(), "how do I negotiate salary?") {
		if err != nil {
			t.Fatalf("team run failed: %v", err)
		}
		_ = ev
	}

	bodies := cs.requestBodies()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 completion request, got %d", len(bodies))
	}
	if strings.Contains(bodies[0], `"tools"`) {
		t.Errorf("request should not declare tools without a search key: %s", bodies[0])
	}
}

func TestTeamErrorsWithoutTermination(t *testing.T) {
	t.Parallel()

	// Every round answers without the sentinel, so the run must give up.
	noSentinel := strings.ReplaceAll(finalCompletion, " TERMINATE", "")
	responses := make([]string, defaultMaxRounds)
	for i := range responses {
		responses[i] = noSentinel
	}
	llm, _ := newCompletionServer(t, responses...)

	team := BuildTeam(domain.SessionConfig{
		Credential: "test-token",
		Model:      "gpt-4o-mini",
	}, Options{InferenceURL: llm.URL})

	var runErr error
	for _, err := range team.Run(context.Background(), "hello") {
		if err != nil {
			runErr = err
			break
		}
	}
	if runErr == nil {
		t.Fatal("expected an error when no round terminates")
	}
	if !strings.Contains(runErr.Error(), "no termination") {
		t.Errorf("unexpected error: %v", runErr)
	}
}

func TestAssistantReportsUnknownToolToModel(t *testing.T) {
	t.Parallel()

	unknownToolCompletion := strings.ReplaceAll(toolCallCompletion, "web_search", "read_resume")
	llm, cs := newCompletionServer(t, unknownToolCompletion, finalCompletion)

	team := BuildTeam(domain.SessionConfig{
		Credential:   "test-token",
		Model:        "gpt-4o-mini",
		SearchAPIKey: "test-search-key",
	}, Options{InferenceURL: llm.URL, SearchURL: "http://127.0.0.1:1"})

	for _, err := range team.Run(context.Background(), "check my resume") {
		if err != nil {
			t.Fatalf("team run failed: %v", err)
		}
	}

	bodies := cs.requestBodies()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 completion requests, got %d", len(bodies))
	}
	if !strings.Contains(bodies[1], "unknown tool") {
		t.Errorf("expected unknown-tool report in follow-up request: %s", bodies[1])
	}
}

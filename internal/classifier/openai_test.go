package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calbot-io/calbot/internal/dispatch"
)

func newClassifierServer(t *testing.T, response string) (*httptest.Server, *chatRequest) {
	t.Helper()
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q, want bearer test-key", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newTestClassifier(baseURL string) *OpenAIClassifier {
	return NewOpenAIClassifier(Config{
		BaseURL: baseURL,
		Model:   "test-model",
		APIKey:  "test-key",
	}, nil)
}

func TestClassifyToolCall(t *testing.T) {
	response := `{
		"choices": [{
			"message": {
				"content": "",
				"tool_calls": [{
					"function": {
						"name": "create_event",
						"arguments": "{\"summary\":\"lunch\",\"start\":\"2026-08-24T12:00:00Z\",\"end\":\"2026-08-24T13:00:00Z\"}"
					}
				}]
			}
		}]
	}`
	srv, captured := newClassifierServer(t, response)
	c := newTestClassifier(srv.URL)

	req, reply, err := c.Classify(context.Background(), "alice", "schedule lunch tomorrow at noon")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty for a tool call", reply)
	}
	if req == nil {
		t.Fatal("Classify() returned no tool call")
	}
	if req.Name != dispatch.OpCreateEvent {
		t.Errorf("name = %q, want create_event", req.Name)
	}
	if req.UserID != "alice" {
		t.Errorf("userID = %q, want alice", req.UserID)
	}
	if req.RequestID == "" {
		t.Error("request must carry a correlation id")
	}
	if req.Arguments["summary"] != "lunch" {
		t.Errorf("arguments = %v, want decoded tool arguments", req.Arguments)
	}

	if captured.Model != "test-model" {
		t.Errorf("request model = %q, want test-model", captured.Model)
	}
	if len(captured.Tools) != len(dispatch.Schemas()) {
		t.Errorf("request carried %d tools, want %d", len(captured.Tools), len(dispatch.Schemas()))
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Errorf("messages = %v, want system then user", captured.Messages)
	}
}

func TestClassifyPlainReply(t *testing.T) {
	response := `{
		"choices": [{
			"message": {
				"content": "I can only help with calendar events.",
				"tool_calls": []
			}
		}]
	}`
	srv, _ := newClassifierServer(t, response)
	c := newTestClassifier(srv.URL)

	req, reply, err := c.Classify(context.Background(), "alice", "what's the weather?")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if req != nil {
		t.Errorf("req = %v, want nil for a plain reply", req)
	}
	if reply != "I can only help with calendar events." {
		t.Errorf("reply = %q, want the model content", reply)
	}
}

func TestClassifyFirstToolCallOnly(t *testing.T) {
	response := `{
		"choices": [{
			"message": {
				"tool_calls": [
					{"function": {"name": "delete_event", "arguments": "{\"event_id\":\"ev-1\"}"}},
					{"function": {"name": "delete_event", "arguments": "{\"event_id\":\"ev-2\"}"}}
				]
			}
		}]
	}`
	srv, _ := newClassifierServer(t, response)
	c := newTestClassifier(srv.URL)

	req, _, err := c.Classify(context.Background(), "alice", "delete both meetings")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if req == nil {
		t.Fatal("Classify() returned no tool call")
	}
	if req.Arguments["event_id"] != "ev-1" {
		t.Errorf("arguments = %v, want only the first tool call", req.Arguments)
	}
}

func TestClassifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := newTestClassifier(srv.URL)
	if _, _, err := c.Classify(context.Background(), "alice", "hi"); err == nil {
		t.Error("Classify() should fail on a 5xx response")
	}
}

func TestClassifyEmptyChoices(t *testing.T) {
	srv, _ := newClassifierServer(t, `{"choices": []}`)
	c := newTestClassifier(srv.URL)

	if _, _, err := c.Classify(context.Background(), "alice", "hi"); err == nil {
		t.Error("Classify() should fail on an empty choices list")
	}
}

func TestClassifyMalformedToolArguments(t *testing.T) {
	response := `{
		"choices": [{
			"message": {
				"tool_calls": [{"function": {"name": "create_event", "arguments": "{not json"}}]
			}
		}]
	}`
	srv, _ := newClassifierServer(t, response)
	c := newTestClassifier(srv.URL)

	if _, _, err := c.Classify(context.Background(), "alice", "hi"); err == nil {
		t.Error("Classify() should fail on malformed tool arguments")
	}
}

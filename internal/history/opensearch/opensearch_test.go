package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/vigil/internal/history"
)

func TestSinkSend(t *testing.T) {
	var receivedBody []byte
	var receivedPath string
	var receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedPath = r.URL.Path
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"x","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "supervisor-events")
	e := history.Event{
		Type:         history.EventRestartDenied,
		OccurredAt:   time.Now().UTC(),
		Target:       "relay",
		Reason:       "deny_cooldown",
		RestartCount: 2,
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Fatalf("method = %s, want POST", receivedMethod)
	}
	if receivedPath != "/supervisor-events/_doc" {
		t.Fatalf("path = %s", receivedPath)
	}
	var got map[string]any
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if got["type"] != string(history.EventRestartDenied) || got["target"] != "relay" || got["reason"] != "deny_cooldown" {
		t.Fatalf("body wrong: %v", got)
	}
}

func TestSinkSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink := New(server.URL, "supervisor-events")
	err := sink.Send(context.Background(), history.Event{Type: history.EventTargetDown, Target: "relay"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestSinkSendConnectionRefused(t *testing.T) {
	sink := New("http://127.0.0.1:1", "supervisor-events")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventTargetDown}); err == nil {
		t.Fatal("expected connection error")
	}
}

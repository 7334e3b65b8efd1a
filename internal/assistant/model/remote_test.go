package model_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/model"
)

// chatReply builds a chat-completions body whose message content is the
// given JSON payload.
func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func newRemote(t *testing.T, handler http.HandlerFunc) *model.RemoteAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return model.NewRemoteAdapter(model.RemoteConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
}

func TestRemote_ParsesSuggestedAction(t *testing.T) {
	adapter := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("bad auth header: %q", got)
		}
		json.NewEncoder(w).Encode(chatReply(
			`{"text": "", "confidence": 0.92, "suggested_action": {"type": "create_quote", "payload": {"client_id": "acme"}}}`,
		))
	})

	resp, err := adapter.GenerateResponse(context.Background(), model.Input{
		Message:        "crear cotización para acme",
		SpaceID:        "space-1",
		AllowedActions: []string{"create_quote"},
	})
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if resp.SuggestedAction == nil || resp.SuggestedAction.Type != "create_quote" {
		t.Fatalf("expected create_quote suggestion, got %+v", resp)
	}
	if resp.SuggestedAction.Payload["client_id"] != "acme" {
		t.Errorf("payload not parsed: %#v", resp.SuggestedAction.Payload)
	}
	if resp.Confidence != 0.92 {
		t.Errorf("confidence not parsed: %v", resp.Confidence)
	}
}

func TestRemote_RateLimited(t *testing.T) {
	adapter := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := adapter.GenerateResponse(context.Background(), model.Input{Message: "hola"})
	if !errors.Is(err, model.ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
}

func TestRemote_MalformedContent(t *testing.T) {
	adapter := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatReply("this is not json"))
	})

	_, err := adapter.GenerateResponse(context.Background(), model.Input{Message: "hola"})
	if !errors.Is(err, model.ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestRemote_APIError(t *testing.T) {
	adapter := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "auth_error"},
		})
	})

	_, err := adapter.GenerateResponse(context.Background(), model.Input{Message: "hola"})
	if err == nil {
		t.Fatal("expected error from API error body")
	}
}

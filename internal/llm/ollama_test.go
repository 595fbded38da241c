package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected test-model, got %q", req.Model)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		json.NewEncoder(w).Encode(chatResponse{
			Model:   req.Model,
			Message: Message{Role: RoleAssistant, Content: "  hello there  "},
			Done:    true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "test-model")
	got, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got != "hello there" {
		t.Errorf("expected trimmed response, got %q", got)
	}
}

func TestOllamaChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "missing")
	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %T", err)
	}
	if be.Provider != "ollama" {
		t.Errorf("expected ollama provider, got %q", be.Provider)
	}
}

func TestOllamaChatUnreachable(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:1", "test")
	_, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError for unreachable host, got %v", err)
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "test")
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestConvertToAnthropic(t *testing.T) {
	msgs, system := convertToAnthropic([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleSystem, Content: "emotion"},
		{Role: RoleUser, Content: "one"},
		{Role: RoleUser, Content: "two"},
		{Role: RoleAssistant, Content: "reply"},
	})

	if system != "persona\n\nemotion" {
		t.Errorf("unexpected system prompt %q", system)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 merged messages, got %d", len(msgs))
	}
	if msgs[0].Content != "one\n\ntwo" {
		t.Errorf("consecutive user turns not merged: %q", msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("expected assistant turn, got %q", msgs[1].Role)
	}
}

func TestConvertToAnthropicLeadingAssistant(t *testing.T) {
	msgs, _ := convertToAnthropic([]Message{
		{Role: RoleAssistant, Content: "I spoke first"},
	})
	if len(msgs) != 2 || msgs[0].Role != "user" {
		t.Fatalf("expected synthetic leading user turn, got %+v", msgs)
	}
}

// ABOUTME: Tests for chat completion calls and the reply fallback-chain decoder
// ABOUTME: Uses httptest servers for deterministic request/response scenarios

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"success shape", `{"success":true,"msg":"你好"}`, "你好"},
		{"success without msg falls through", `{"success":true}`, NoReplyText},
		{"openai shape", `{"choices":[{"message":{"content":"reply"}}]}`, "reply"},
		{"openai shape empty content", `{"choices":[{"message":{"content":""}}]}`, EmptyContentText},
		{"bare msg", `{"msg":"fallback"}`, "fallback"},
		{"success shape beats choices", `{"success":true,"msg":"a","choices":[{"message":{"content":"b"}}]}`, "a"},
		{"choices beat bare msg", `{"msg":"a","choices":[{"message":{"content":"b"}}]}`, "b"},
		{"unknown shape", `{"data":1}`, NoReplyText},
		{"not json", `plain text`, NoReplyText},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DecodeReply([]byte(tt.raw)); got != tt.want {
				t.Errorf("DecodeReply(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestChatCompletionRequestShape(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	var gotBody ChatPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Write([]byte(`{"success":true,"msg":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	payload := ChatPayload{
		Model:       "anthropic",
		Temperature: 0.7,
		MaxTokens:   1000,
		TopP:        0.9,
		Messages: []ChatMessage{
			{Role: "system", Content: "prompt"},
			{Role: "user", Content: "hi"},
		},
	}

	reply, err := c.ChatCompletion(context.Background(), "anthropic", "sk-test", payload)
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if reply != "ok" {
		t.Errorf("reply = %q", reply)
	}
	if gotPath != "/api/v1/anthropic/chat/completions/non-stream" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "sk-test" {
		t.Errorf("X-Api-Key = %q", gotKey)
	}
	if gotBody.Model != "anthropic" || len(gotBody.Messages) != 2 {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestChatCompletionHTTPErrorBecomesSyntheticReply(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	reply, err := NewClient(srv.URL).ChatCompletion(context.Background(), "openai", "k", ChatPayload{})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if reply != "[错误: HTTP 403]" {
		t.Errorf("reply = %q, want synthetic 403 text", reply)
	}
}

func TestChatCompletionRetriesOn5xx(t *testing.T) {
	t.Parallel()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"msg":"recovered"}`))
	}))
	t.Cleanup(srv.Close)

	reply, err := NewClient(srv.URL).ChatCompletion(context.Background(), "openai", "k", ChatPayload{})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if reply != "recovered" {
		t.Errorf("reply = %q, attempts = %d", reply, attempts)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestChatCompletionTransportErrorSurfaces(t *testing.T) {
	t.Parallel()

	// A closed server yields a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).ChatCompletion(context.Background(), "openai", "k", ChatPayload{})
	if err == nil {
		t.Fatal("expected a transport error, got nil")
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"http://host:8000/", "http://host:8000"},
		{"http://host:8000/api", "http://host:8000"},
		{"http://host:8000/api/", "http://host:8000"},
		{"http://host/gateway/api", "http://host/gateway/api"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeBaseURL(tt.in); got != tt.want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ABOUTME: Tests for the group directory and default-prompt fetches

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchGroups(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/groups" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"groups":[
			{"id":"grp_all","name":"全员群","bots":["chatgpt","claude"],"bot_names":["ChatGPT","Claude"],"bot_count":2,"is_default":true,"created_at":"2026-01-01","announcement":""},
			{"id":"grp_2","name":"小群","bots":["qwen","glm"],"bot_count":2,"is_default":false,"announcement":"聊技术"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	groups, err := NewClient(srv.URL).FetchGroups(context.Background())
	if err != nil {
		t.Fatalf("FetchGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups", len(groups))
	}
	if !groups[0].IsDefault || groups[0].ID != "grp_all" {
		t.Errorf("default group = %+v", groups[0])
	}
	if groups[1].Announcement != "聊技术" {
		t.Errorf("announcement = %q", groups[1].Announcement)
	}
}

func TestFetchGroupsRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	t.Cleanup(srv.Close)

	if _, err := NewClient(srv.URL).FetchGroups(context.Background()); err == nil {
		t.Error("expected an error for success=false")
	}
}

func TestFetchDefaultPrompts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/default-prompts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"prompts":{"chatgpt":"你是ChatGPT。","claude":"你是Claude。"}}`))
	}))
	t.Cleanup(srv.Close)

	prompts, err := NewClient(srv.URL).FetchDefaultPrompts(context.Background())
	if err != nil {
		t.Fatalf("FetchDefaultPrompts: %v", err)
	}
	if prompts["claude"] != "你是Claude。" {
		t.Errorf("prompts = %v", prompts)
	}
}

func TestFetchStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	if _, err := NewClient(srv.URL).FetchDefaultPrompts(context.Background()); err == nil {
		t.Error("expected an error for 404")
	}
}

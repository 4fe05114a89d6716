// ABOUTME: Tests for target resolution: everyone marker, mentions, random subsets, stripping
// ABOUTME: Random selection is asserted deterministically via a seeded source

package resolver

import (
	"math/rand"
	"testing"

	"github.com/niushuanan/omnitalk-x/internal/directory"
)

func providers(targets []Target) []string {
	out := make([]string, len(targets))
	for i, tgt := range targets {
		out[i] = tgt.Provider
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEveryoneMarkerInDefaultGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		group *directory.GroupInfo
	}{
		{"nil group", nil},
		{"synthesized default group", directory.DefaultGroup()},
		{"default-flagged custom membership", &directory.GroupInfo{ID: "grp_all", Bots: []string{"claude"}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Resolve(Input{Text: "@所有人 大家好", Group: tt.group}, nil)
			if !equalStrings(providers(res.Targets), directory.Roster) {
				t.Errorf("targets = %v, want the full roster", providers(res.Targets))
			}
			for _, tgt := range res.Targets {
				if tgt.Note != MentionNote {
					t.Errorf("target %s missing the addressed-directly note", tgt.Provider)
				}
			}
		})
	}
}

func TestEveryoneMarkerInCustomGroup(t *testing.T) {
	t.Parallel()

	group := &directory.GroupInfo{ID: "grp_7", Bots: []string{"claude", "qwen", "glm"}}
	res := Resolve(Input{Text: "开会了 @所有人", Group: group}, nil)

	want := []string{"anthropic", "qwen", "zhipu"}
	if !equalStrings(providers(res.Targets), want) {
		t.Errorf("targets = %v, want %v", providers(res.Targets), want)
	}
	for _, tgt := range res.Targets {
		if tgt.Note != MentionNote {
			t.Errorf("target %s missing note", tgt.Provider)
		}
	}
}

func TestIndividualMentions(t *testing.T) {
	t.Parallel()

	res := Resolve(Input{Text: "@claude @qwen 你们怎么看", Group: &directory.GroupInfo{ID: "grp_9", Bots: []string{"glm"}}}, nil)

	want := []string{"anthropic", "qwen"}
	if !equalStrings(providers(res.Targets), want) {
		t.Errorf("targets = %v, want %v", providers(res.Targets), want)
	}
	for _, tgt := range res.Targets {
		if tgt.Note != MentionNote {
			t.Errorf("mentioned target %s missing note", tgt.Provider)
		}
	}
	if res.ModelText != "你们怎么看" {
		t.Errorf("ModelText = %q, mention tokens leaked", res.ModelText)
	}
}

func TestMentionsCaseInsensitiveAndDeduplicated(t *testing.T) {
	t.Parallel()

	res := Resolve(Input{Text: "@Claude @CLAUDE @qwen", Group: nil}, nil)
	want := []string{"anthropic", "qwen"}
	if !equalStrings(providers(res.Targets), want) {
		t.Errorf("targets = %v, want %v", providers(res.Targets), want)
	}
}

func TestPrivateMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"plain text", "hello"},
		{"mentions are irrelevant in private mode", "@所有人 @chatgpt hi"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Resolve(Input{Text: tt.text, PrivateModel: "grok"}, nil)
			if !equalStrings(providers(res.Targets), []string{"xai"}) {
				t.Errorf("targets = %v, want [xai]", providers(res.Targets))
			}
			if res.Targets[0].Note != "" {
				t.Errorf("private target carries a note: %q", res.Targets[0].Note)
			}
		})
	}
}

func TestPrivateModeUnmappedModelKey(t *testing.T) {
	t.Parallel()

	res := Resolve(Input{Text: "hi", PrivateModel: "llama"}, nil)
	if len(res.Targets) != 0 {
		t.Errorf("targets = %v, want empty for an unmapped key", providers(res.Targets))
	}
}

func TestCustomGroupNoMentions(t *testing.T) {
	t.Parallel()

	group := &directory.GroupInfo{
		ID:   "grp_4",
		Bots: []string{"chatgpt", "claude", "deepseek", "seed"},
	}
	res := Resolve(Input{Text: "随便聊聊", Group: group}, nil)

	want := []string{"openai", "anthropic", "deepseek", "bytedance"}
	if !equalStrings(providers(res.Targets), want) {
		t.Errorf("targets = %v, want %v", providers(res.Targets), want)
	}
	for _, tgt := range res.Targets {
		if tgt.Note != "" {
			t.Errorf("unaddressed target %s has note %q", tgt.Provider, tgt.Note)
		}
	}
}

func TestCustomGroupDropsUnmappedMembers(t *testing.T) {
	t.Parallel()

	group := &directory.GroupInfo{ID: "grp_5", Bots: []string{"claude", "llama", "claude", "qwen"}}
	res := Resolve(Input{Text: "hi", Group: group}, nil)

	want := []string{"anthropic", "qwen"}
	if !equalStrings(providers(res.Targets), want) {
		t.Errorf("targets = %v, want %v (unmapped dropped, duplicates collapsed)", providers(res.Targets), want)
	}
}

func TestDefaultGroupRandomSubset(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	res := Resolve(Input{Text: "无人被@的消息", Group: nil}, rng)

	if len(res.Targets) != RandomSubsetSize {
		t.Fatalf("subset size = %d, want %d", len(res.Targets), RandomSubsetSize)
	}
	seen := make(map[string]bool)
	for _, tgt := range res.Targets {
		if seen[tgt.Provider] {
			t.Errorf("provider %s selected twice", tgt.Provider)
		}
		seen[tgt.Provider] = true
		if tgt.Note != "" {
			t.Errorf("random-subset target %s has note %q", tgt.Provider, tgt.Note)
		}
	}

	// Same seed, same subset.
	again := Resolve(Input{Text: "无人被@的消息", Group: nil}, rand.New(rand.NewSource(42)))
	if !equalStrings(providers(res.Targets), providers(again.Targets)) {
		t.Errorf("seeded selection not deterministic: %v vs %v",
			providers(res.Targets), providers(again.Targets))
	}
}

func TestStripMentions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"everyone marker", "@所有人 早上好", "早上好"},
		{"single mention", "@claude 讲个笑话", "讲个笑话"},
		{"mixed case mention", "@ChatGPT tell me", "tell me"},
		{"interior mention", "我想听 @qwen 的看法", "我想听 的看法"},
		{"whitespace collapsed", "@claude   @qwen   hello", "hello"},
		{"no mentions untouched", "普通消息", "普通消息"},
		{"only mentions falls back to original", "@claude", "@claude"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StripMentions(tt.in); got != tt.want {
				t.Errorf("StripMentions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

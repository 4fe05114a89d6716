// ABOUTME: Tests for the model/provider mapping tables and group helpers
// ABOUTME: Verifies the tables stay bidirectionally in lockstep

package directory

import "testing"

func TestMappingRoundTrip(t *testing.T) {
	t.Parallel()

	for _, key := range ModelKeys() {
		provider, ok := ProviderFor(key)
		if !ok {
			t.Fatalf("ProviderFor(%q) not found", key)
		}
		back, ok := ModelFor(provider)
		if !ok || back != key {
			t.Errorf("ModelFor(%q) = %q ok=%v, want %q", provider, back, ok, key)
		}
	}
}

func TestRosterAndModelKeysAligned(t *testing.T) {
	t.Parallel()

	keys := ModelKeys()
	if len(keys) != len(Roster) {
		t.Fatalf("len(ModelKeys)=%d, len(Roster)=%d", len(keys), len(Roster))
	}
	for i, key := range keys {
		provider, _ := ProviderFor(key)
		if provider != Roster[i] {
			t.Errorf("ModelKeys[%d]=%q maps to %q, Roster[%d]=%q", i, key, provider, i, Roster[i])
		}
	}
}

func TestUnmappedLookups(t *testing.T) {
	t.Parallel()

	if _, ok := ProviderFor("llama"); ok {
		t.Error("ProviderFor(llama) unexpectedly resolved")
	}
	if _, ok := ModelFor("meta"); ok {
		t.Error("ModelFor(meta) unexpectedly resolved")
	}
}

func TestBotName(t *testing.T) {
	t.Parallel()

	if got := BotName("chatgpt"); got != "ChatGPT" {
		t.Errorf("BotName(chatgpt) = %q", got)
	}
	if got := BotName("unknown"); got != "unknown" {
		t.Errorf("BotName(unknown) = %q, want the key itself", got)
	}
}

func TestIsEveryone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		group *GroupInfo
		want  bool
	}{
		{"nil group", nil, true},
		{"default flag", &GroupInfo{ID: "grp_1", IsDefault: true}, true},
		{"default id", &GroupInfo{ID: DefaultGroupID}, true},
		{"custom group", &GroupInfo{ID: "grp_42"}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.group.IsEveryone(); got != tt.want {
				t.Errorf("IsEveryone() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultGroup(t *testing.T) {
	t.Parallel()

	g := DefaultGroup()
	if g.ID != DefaultGroupID || !g.IsDefault {
		t.Fatalf("DefaultGroup() = %+v", g)
	}
	if g.BotCount != len(Roster) || len(g.Bots) != len(Roster) {
		t.Errorf("default group has %d bots, want %d", g.BotCount, len(Roster))
	}
}

func TestDefaultAnnouncement(t *testing.T) {
	t.Parallel()

	g := &GroupInfo{Name: "测试群", Bots: []string{"claude", "qwen"}}
	got := DefaultAnnouncement(g)
	want := "这是一个名为「测试群」的群聊，群成员有Claude、Qwen等等（包含小庄）。"
	if got != want {
		t.Errorf("DefaultAnnouncement = %q, want %q", got, want)
	}

	empty := DefaultAnnouncement(&GroupInfo{Name: "空群"})
	if empty != "这是一个名为「空群」的群聊，群成员有小庄。" {
		t.Errorf("DefaultAnnouncement(empty) = %q", empty)
	}
}

// ABOUTME: GroupInfo snapshot type sourced from the group directory service
// ABOUTME: Read-mostly reference data; includes the default-announcement template

package directory

import (
	"fmt"
	"strings"
)

// DefaultGroupID is the id of the implicit "everyone" group, synthesized by
// the directory service and always present.
const DefaultGroupID = "grp_all"

// DefaultGroupName is the display name of the "everyone" group.
const DefaultGroupName = "全员群"

// GroupInfo describes one chat group as returned by the directory service.
type GroupInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Bots         []string `json:"bots"`
	BotNames     []string `json:"bot_names"`
	BotCount     int      `json:"bot_count"`
	IsDefault    bool     `json:"is_default"`
	CreatedAt    string   `json:"created_at"`
	Announcement string   `json:"announcement"`
}

// IsEveryone reports whether g is the default "everyone" group. A nil group
// stands for the default group: callers without a directory snapshot behave
// as if they were in it.
func (g *GroupInfo) IsEveryone() bool {
	if g == nil {
		return true
	}
	return g.IsDefault || g.ID == DefaultGroupID
}

// ContextGroupID returns the group id under which context is scoped for g.
func (g *GroupInfo) ContextGroupID() string {
	if g == nil {
		return DefaultGroupID
	}
	return g.ID
}

// DefaultGroup synthesizes the "everyone" group with the full roster.
func DefaultGroup() *GroupInfo {
	bots := ModelKeys()
	names := make([]string, len(bots))
	for i, b := range bots {
		names[i] = BotName(b)
	}
	return &GroupInfo{
		ID:        DefaultGroupID,
		Name:      DefaultGroupName,
		Bots:      bots,
		BotNames:  names,
		BotCount:  len(bots),
		IsDefault: true,
	}
}

// DefaultAnnouncement builds the fallback announcement for groups whose
// announcement was never edited.
func DefaultAnnouncement(g *GroupInfo) string {
	name := "群聊"
	if g != nil && g.Name != "" {
		name = g.Name
	}

	var readable []string
	if g != nil {
		for _, b := range g.Bots {
			readable = append(readable, BotName(b))
		}
	}
	if len(readable) == 0 {
		return fmt.Sprintf("这是一个名为「%s」的群聊，群成员有小庄。", name)
	}

	return fmt.Sprintf("这是一个名为「%s」的群聊，群成员有%s等等（包含小庄）。",
		name, strings.Join(readable, "、"))
}

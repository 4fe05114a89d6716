// ABOUTME: Scoped conversation context persistence over the flat kv store
// ABOUTME: Multi-group versioned format is canonical; the legacy single-namespace key is read-migrated once

package history

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/niushuanan/omnitalk-x/internal/directory"
	"github.com/niushuanan/omnitalk-x/internal/kv"
	"github.com/niushuanan/omnitalk-x/internal/log"
)

const (
	// storageKey holds the versioned multi-group store.
	storageKey = "ai_context_history_v2"
	// legacyKey is the deprecated single-namespace predecessor. It is read
	// once if the versioned key is absent and never touched again.
	legacyKey = "ai_context_history"
)

// AnnouncementPrefix tags the one-time group announcement system message.
const AnnouncementPrefix = "【群公告】"

// Role is a conversation message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContextMessage is one stored conversation turn. TS is a millisecond
// timestamp used for replay ordering; zero means "sorts first".
type ContextMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts,omitempty"`
}

// Scope identifies one isolated context list: a (group, provider) pair, or
// (private, provider) when GroupID is empty. Context is never shared across
// providers within the same group.
type Scope struct {
	GroupID  string
	Provider string
}

// GroupScope returns the scope for a provider inside a group.
func GroupScope(groupID, provider string) Scope {
	if groupID == "" {
		groupID = directory.DefaultGroupID
	}
	return Scope{GroupID: groupID, Provider: provider}
}

// PrivateScope returns the private (one-on-one) scope for a provider.
func PrivateScope(provider string) Scope {
	return Scope{Provider: provider}
}

// Private reports whether the scope is a private conversation.
func (s Scope) Private() bool {
	return s.GroupID == ""
}

// Key returns a stable string form, used for per-scope serialization.
func (s Scope) Key() string {
	if s.Private() {
		return "private/" + s.Provider
	}
	return s.GroupID + "/" + s.Provider
}

// storeData is the versioned on-disk shape.
type storeData struct {
	Groups  map[string]map[string][]ContextMessage `json:"groups"`
	Private map[string][]ContextMessage            `json:"private"`
}

func emptyData() *storeData {
	return &storeData{
		Groups:  make(map[string]map[string][]ContextMessage),
		Private: make(map[string][]ContextMessage),
	}
}

// Store persists scoped context lists. All mutating operations hold a single
// mutex so read-modify-write cycles never interleave.
type Store struct {
	kv  kv.Store
	mu  sync.Mutex
	now func() int64 // unix milliseconds
}

// NewStore creates a context store over the given kv backend.
func NewStore(backend kv.Store) *Store {
	return &Store{
		kv:  backend,
		now: func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (s *Store) SetClock(now func() int64) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Read returns the stored context for a scope, empty if absent or corrupted.
func (s *Store) Read(scope Scope) []ContextMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().messages(scope)
}

// Write replaces the entire context list for a scope.
func (s *Store) Write(scope Scope, msgs []ContextMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	data.setMessages(scope, msgs)
	return s.save(data)
}

// Append adds messages to the end of a scope's context list.
func (s *Store) Append(scope Scope, msgs ...ContextMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	data.setMessages(scope, append(data.messages(scope), msgs...))
	return s.save(data)
}

// EnsureAnnouncement prepends a one-time system message carrying the group
// announcement. The insertion is idempotent, guarded by an exact-content
// check. It reports whether the message was newly injected. Empty text is a
// no-op.
func (s *Store) EnsureAnnouncement(scope Scope, announcement string) (bool, error) {
	if announcement == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	existing := data.messages(scope)
	tag := AnnouncementPrefix + announcement
	for _, m := range existing {
		if m.Role == RoleSystem && m.Content == tag {
			return false, nil
		}
	}

	// The announcement carries no timestamp so it sorts ahead of every
	// stamped turn on replay.
	msgs := append([]ContextMessage{{Role: RoleSystem, Content: tag}}, existing...)
	data.setMessages(scope, msgs)
	if err := s.save(data); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes a single scope's context entirely.
func (s *Store) Clear(scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	if scope.Private() {
		delete(data.Private, scope.Provider)
	} else if provs, ok := data.Groups[scope.GroupID]; ok {
		delete(provs, scope.Provider)
		if len(provs) == 0 {
			delete(data.Groups, scope.GroupID)
		}
	}
	return s.save(data)
}

// ClearGroup removes every provider's context within a group.
func (s *Store) ClearGroup(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	delete(data.Groups, groupID)
	return s.save(data)
}

// ClearAll removes the store, current and legacy keys both.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(storageKey); err != nil {
		return err
	}
	return s.kv.Delete(legacyKey)
}

// Now returns the store's current timestamp in milliseconds.
func (s *Store) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

// load reads the versioned store, migrating the legacy shape when the
// versioned key is absent. Corruption reads as empty.
func (s *Store) load() *storeData {
	if raw, ok, err := s.kv.Get(storageKey); err == nil && ok {
		var data storeData
		if json.Unmarshal([]byte(raw), &data) == nil {
			if data.Groups == nil {
				data.Groups = make(map[string]map[string][]ContextMessage)
			}
			if data.Private == nil {
				data.Private = make(map[string][]ContextMessage)
			}
			return &data
		}
		log.Warn("history: corrupt store under %s, starting empty", storageKey)
		return emptyData()
	}

	// Legacy shape: a flat provider -> messages map. Migrate it under the
	// default group and rewrite in the versioned shape.
	if raw, ok, err := s.kv.Get(legacyKey); err == nil && ok {
		var legacy map[string][]ContextMessage
		if json.Unmarshal([]byte(raw), &legacy) == nil && legacy != nil {
			migrated := emptyData()
			migrated.Groups[directory.DefaultGroupID] = legacy
			if err := s.save(migrated); err != nil {
				log.Warn("history: legacy migration write failed: %v", err)
			}
			log.Info("history: migrated legacy context store (%d providers)", len(legacy))
			return migrated
		}
	}

	return emptyData()
}

func (s *Store) save(data *storeData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.kv.Set(storageKey, string(raw))
}

func (d *storeData) messages(scope Scope) []ContextMessage {
	if scope.Private() {
		return d.Private[scope.Provider]
	}
	if provs, ok := d.Groups[scope.GroupID]; ok {
		return provs[scope.Provider]
	}
	return nil
}

func (d *storeData) setMessages(scope Scope, msgs []ContextMessage) {
	if scope.Private() {
		d.Private[scope.Provider] = msgs
		return
	}
	if d.Groups[scope.GroupID] == nil {
		d.Groups[scope.GroupID] = make(map[string][]ContextMessage)
	}
	d.Groups[scope.GroupID][scope.Provider] = msgs
}

// SortByTimestamp orders messages by ascending timestamp, missing timestamps
// first. The sort is stable so equal-stamped turns keep their stored order.
func SortByTimestamp(msgs []ContextMessage) []ContextMessage {
	sorted := make([]ContextMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TS < sorted[j].TS
	})
	return sorted
}

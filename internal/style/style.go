// ABOUTME: Generation parameter store with group -> global -> hard default resolution
// ABOUTME: Clamps on every read so corrupted or hand-edited state never escapes the bounds

package style

import (
	"encoding/json"
	"sync"

	"github.com/niushuanan/omnitalk-x/internal/kv"
	"github.com/niushuanan/omnitalk-x/internal/log"
)

const (
	// storageKey holds the versioned per-group config map.
	storageKey = "chat_style_config_v2"
	// legacyKey is the deprecated flat single-config predecessor; it is
	// read once as the global entry if the versioned key is absent.
	legacyKey = "chat_style_config"
)

// Clamping bounds and hard defaults.
const (
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	MinMaxTokens       = 64
	MaxMaxTokens       = 4096
	MinTopP            = 0.0
	MaxTopP            = 1.0
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
	DefaultTopP        = 0.9
)

// Config holds resolved generation parameters.
type Config struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

// Update is a partial config; nil fields keep their current value.
type Update struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// storedConfig tolerates partially-specified entries: missing fields fill
// from the hard defaults on read.
type storedConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// storeData is the versioned on-disk shape.
type storeData struct {
	Global *storedConfig            `json:"global,omitempty"`
	Groups map[string]*storedConfig `json:"groups,omitempty"`
}

// Store persists style configs over the flat kv store.
type Store struct {
	kv kv.Store
	mu sync.Mutex
}

// NewStore creates a style config store over the given kv backend.
func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Default returns the hard-coded default config.
func Default() Config {
	return Config{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		TopP:        DefaultTopP,
	}
}

// Resolve returns the effective config for a group: the group override when
// present, else the global config, else the hard default. Values are clamped
// on every read regardless of what was stored. An empty groupID resolves the
// global config.
func (s *Store) Resolve(groupID string) Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().resolve(groupID)
}

// Write merges an update into the currently resolved config and persists it
// at the appropriate scope: the group entry when groupID is non-empty, else
// the global entry.
func (s *Store) Write(groupID string, upd Update) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	next := data.resolve(groupID)
	if upd.Temperature != nil {
		next.Temperature = *upd.Temperature
	}
	if upd.MaxTokens != nil {
		next.MaxTokens = *upd.MaxTokens
	}
	if upd.TopP != nil {
		next.TopP = *upd.TopP
	}
	next = clampConfig(next)

	entry := &storedConfig{
		Temperature: &next.Temperature,
		MaxTokens:   &next.MaxTokens,
		TopP:        &next.TopP,
	}
	if groupID == "" {
		data.Global = entry
	} else {
		if data.Groups == nil {
			data.Groups = make(map[string]*storedConfig)
		}
		data.Groups[groupID] = entry
	}

	if err := s.save(data); err != nil {
		return Config{}, err
	}
	return next, nil
}

// ClearGroup removes a group's override so it falls back to the global config.
func (s *Store) ClearGroup(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	delete(data.Groups, groupID)
	return s.save(data)
}

// load reads the versioned store, migrating the legacy flat config as the
// global entry. Corruption reads as empty.
func (s *Store) load() *storeData {
	if raw, ok, err := s.kv.Get(storageKey); err == nil && ok {
		var data storeData
		if json.Unmarshal([]byte(raw), &data) == nil {
			return &data
		}
		log.Warn("style: corrupt store under %s, starting empty", storageKey)
		return &storeData{}
	}

	if raw, ok, err := s.kv.Get(legacyKey); err == nil && ok {
		var legacy storedConfig
		if json.Unmarshal([]byte(raw), &legacy) == nil {
			migrated := &storeData{Global: &legacy}
			if err := s.save(migrated); err != nil {
				log.Warn("style: legacy migration write failed: %v", err)
			}
			return migrated
		}
	}

	return &storeData{}
}

func (s *Store) save(data *storeData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.kv.Set(storageKey, string(raw))
}

func (d *storeData) resolve(groupID string) Config {
	if groupID != "" {
		if entry, ok := d.Groups[groupID]; ok && entry != nil {
			return clampConfig(entry.fill())
		}
	}
	if d.Global != nil {
		return clampConfig(d.Global.fill())
	}
	return Default()
}

// fill completes a partially-specified entry with the hard defaults.
func (c *storedConfig) fill() Config {
	out := Default()
	if c.Temperature != nil {
		out.Temperature = *c.Temperature
	}
	if c.MaxTokens != nil {
		out.MaxTokens = *c.MaxTokens
	}
	if c.TopP != nil {
		out.TopP = *c.TopP
	}
	return out
}

func clampConfig(c Config) Config {
	c.Temperature = clampFloat(c.Temperature, MinTemperature, MaxTemperature)
	c.MaxTokens = clampInt(c.MaxTokens, MinMaxTokens, MaxMaxTokens)
	c.TopP = clampFloat(c.TopP, MinTopP, MaxTopP)
	return c
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ABOUTME: System prompt resolution: user override, fetched default, generic fallback
// ABOUTME: Defaults come from the directory service or an offline YAML manifest

package directory

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/niushuanan/omnitalk-x/internal/kv"
)

// customPromptPrefix is the kv key prefix for user-configured prompts,
// one entry per model key.
const customPromptPrefix = "system_prompt_"

// GenericSystemPrompt is the lowest-priority system prompt, used when a
// model key has neither a user override nor a fetched default.
const GenericSystemPrompt = "你是一个专业的AI助手。"

// Prompts resolves per-model system prompts. Defaults are injected during an
// explicit load phase; there is no ambient fetch-at-init cache.
type Prompts struct {
	store kv.Store

	mu       sync.RWMutex
	defaults map[string]string // model key -> default prompt
}

// NewPrompts creates a Prompts resolver backed by store for user overrides.
func NewPrompts(store kv.Store) *Prompts {
	return &Prompts{
		store:    store,
		defaults: make(map[string]string),
	}
}

// SetDefaults replaces the default prompt table, typically with the result
// of a directory-service fetch.
func (p *Prompts) SetDefaults(m map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaults = make(map[string]string, len(m))
	for k, v := range m {
		p.defaults[k] = v
	}
}

// promptManifest is the on-disk YAML shape for offline defaults.
type promptManifest struct {
	Prompts map[string]string `yaml:"prompts"`
}

// LoadManifest reads default prompts from a YAML manifest file. Entries
// merge over any defaults already set.
func (p *Prompts) LoadManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading prompt manifest: %w", err)
	}

	var m promptManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing prompt manifest %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range m.Prompts {
		p.defaults[k] = v
	}
	return nil
}

// SystemPrompt returns the effective system prompt for a model key:
// user override, then fetched default, then the generic fallback.
func (p *Prompts) SystemPrompt(modelKey string) string {
	if modelKey != "" {
		if custom, ok, err := p.store.Get(customPromptPrefix + modelKey); err == nil && ok {
			if strings.TrimSpace(custom) != "" {
				return custom
			}
		}

		p.mu.RLock()
		def := p.defaults[modelKey]
		p.mu.RUnlock()
		if def != "" {
			return def
		}
	}

	return GenericSystemPrompt
}

// SetCustomPrompt persists a user override for a model key. An empty prompt
// removes the override.
func (p *Prompts) SetCustomPrompt(modelKey, prompt string) error {
	key := customPromptPrefix + modelKey
	if strings.TrimSpace(prompt) == "" {
		return p.store.Delete(key)
	}
	return p.store.Set(key, prompt)
}

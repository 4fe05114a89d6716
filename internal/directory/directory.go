// ABOUTME: Static bidirectional mapping between model keys and backend provider ids
// ABOUTME: The two tables must stay in lockstep; an unmapped key resolves to nothing

package directory

// Roster is the full fixed provider roster, in dispatch order.
var Roster = []string{
	"openai",
	"anthropic",
	"xai",
	"google",
	"zhipu",
	"moonshot",
	"minimax",
	"qwen",
	"deepseek",
	"bytedance",
}

// modelKeys lists the user-facing model keys in the same order as Roster.
var modelKeys = []string{
	"chatgpt",
	"claude",
	"grok",
	"gemini",
	"glm",
	"kimi",
	"minimax",
	"qwen",
	"deepseek",
	"seed",
}

var modelToProvider = map[string]string{
	"chatgpt":  "openai",
	"claude":   "anthropic",
	"grok":     "xai",
	"gemini":   "google",
	"glm":      "zhipu",
	"kimi":     "moonshot",
	"minimax":  "minimax",
	"qwen":     "qwen",
	"deepseek": "deepseek",
	"seed":     "bytedance",
}

var providerToModel = func() map[string]string {
	m := make(map[string]string, len(modelToProvider))
	for k, p := range modelToProvider {
		m[p] = k
	}
	return m
}()

// botNames maps model keys to their human-readable display names.
var botNames = map[string]string{
	"chatgpt":  "ChatGPT",
	"claude":   "Claude",
	"grok":     "Grok",
	"gemini":   "Gemini",
	"glm":      "GLM",
	"kimi":     "Kimi",
	"minimax":  "MiniMax",
	"qwen":     "Qwen",
	"deepseek": "DeepSeek",
	"seed":     "Seed",
}

// ProviderFor resolves a model key to its backend provider id.
func ProviderFor(modelKey string) (string, bool) {
	p, ok := modelToProvider[modelKey]
	return p, ok
}

// ModelFor resolves a provider id back to its model key.
func ModelFor(provider string) (string, bool) {
	k, ok := providerToModel[provider]
	return k, ok
}

// ModelKeys returns the closed set of known model keys in roster order.
// The returned slice is a copy.
func ModelKeys() []string {
	keys := make([]string, len(modelKeys))
	copy(keys, modelKeys)
	return keys
}

// BotName returns the display name for a model key, or the key itself when
// unknown.
func BotName(modelKey string) string {
	if n, ok := botNames[modelKey]; ok {
		return n
	}
	return modelKey
}

// ABOUTME: Maps raw user input and chat mode to the ordered set of providers to invoke
// ABOUTME: Handles the everyone marker, individual mentions, random subsets, and mention stripping

package resolver

import (
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/niushuanan/omnitalk-x/internal/directory"
	"github.com/niushuanan/omnitalk-x/internal/log"
)

// EveryoneMarker addresses every member of the active group.
const EveryoneMarker = "@所有人"

// MentionNote is attached to providers the user addressed directly.
const MentionNote = "注意：用户在群聊中@了你，请优先回应。"

// RandomSubsetSize is how many providers answer an unaddressed message in
// the default group.
const RandomSubsetSize = 5

// Input carries everything resolution needs. A non-empty PrivateModel
// selects private mode; otherwise Group describes the active group (nil
// stands for the default "everyone" group).
type Input struct {
	Text         string
	PrivateModel string
	Group        *directory.GroupInfo
}

// Target is one provider to dispatch to, with its optional annotation.
type Target struct {
	Provider string
	ModelKey string
	Note     string
}

// Result is the resolved target set plus the mention-stripped text that goes
// to the models. The raw text stays with the caller for the transcript.
type Result struct {
	Targets   []Target
	ModelText string
}

// mentionPatterns matches "@<modelKey>" case-insensitively, one pattern per
// known key.
var mentionPatterns = func() map[string]*regexp.Regexp {
	pats := make(map[string]*regexp.Regexp)
	for _, key := range directory.ModelKeys() {
		pats[key] = regexp.MustCompile("(?i)@" + regexp.QuoteMeta(key))
	}
	return pats
}()

// Resolve computes the target set for one user submission. rng drives the
// random subset selection; pass nil for a time-seeded source.
func Resolve(in Input, rng *rand.Rand) Result {
	out := Result{ModelText: StripMentions(in.Text)}

	if in.PrivateModel != "" {
		key := strings.ToLower(in.PrivateModel)
		provider, ok := directory.ProviderFor(key)
		if !ok {
			// An unmapped private target means no dispatch at all; that is
			// a configuration error, not a quiet empty result.
			log.Warn("resolver: unmapped private model key %q", in.PrivateModel)
			return out
		}
		out.Targets = []Target{{Provider: provider, ModelKey: key}}
		return out
	}

	if strings.Contains(in.Text, EveryoneMarker) {
		if in.Group.IsEveryone() {
			out.Targets = annotate(rosterTargets(), MentionNote)
		} else {
			out.Targets = annotate(memberTargets(in.Group), MentionNote)
		}
		return out
	}

	if mentioned := mentionTargets(in.Text); len(mentioned) > 0 {
		out.Targets = annotate(mentioned, MentionNote)
		return out
	}

	if in.Group.IsEveryone() {
		out.Targets = randomSubset(rng)
		return out
	}

	out.Targets = memberTargets(in.Group)
	return out
}

// StripMentions removes the everyone marker and all "@model" tokens so the
// literal mentions do not leak into the prompt. If stripping leaves nothing,
// the original text is returned.
func StripMentions(text string) string {
	cleaned := strings.ReplaceAll(text, EveryoneMarker, " ")
	for _, pat := range mentionPatterns {
		cleaned = pat.ReplaceAllString(cleaned, " ")
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return text
	}
	return cleaned
}

// rosterTargets maps the full fixed provider roster.
func rosterTargets() []Target {
	targets := make([]Target, 0, len(directory.Roster))
	for _, provider := range directory.Roster {
		key, _ := directory.ModelFor(provider)
		targets = append(targets, Target{Provider: provider, ModelKey: key})
	}
	return targets
}

// memberTargets maps a group's member bot keys to providers, dropping (and
// logging) any unmapped key, de-duplicated in member order.
func memberTargets(group *directory.GroupInfo) []Target {
	if group == nil {
		return rosterTargets()
	}

	seen := make(map[string]bool)
	var targets []Target
	for _, bot := range group.Bots {
		provider, ok := directory.ProviderFor(bot)
		if !ok {
			log.Warn("resolver: unmapped bot key %q in group %s", bot, group.ID)
			continue
		}
		if seen[provider] {
			continue
		}
		seen[provider] = true
		targets = append(targets, Target{Provider: provider, ModelKey: bot})
	}
	return targets
}

// mentionTargets scans for "@model" tokens against the closed set of known
// model keys, de-duplicated preserving first-seen order.
func mentionTargets(text string) []Target {
	seen := make(map[string]bool)
	var targets []Target
	for _, key := range directory.ModelKeys() {
		if !mentionPatterns[key].MatchString(text) {
			continue
		}
		provider, ok := directory.ProviderFor(key)
		if !ok || seen[provider] {
			continue
		}
		seen[provider] = true
		targets = append(targets, Target{Provider: provider, ModelKey: key})
	}
	return targets
}

// randomSubset picks RandomSubsetSize providers from the roster using a
// Fisher-Yates shuffle.
func randomSubset(rng *rand.Rand) []Target {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	shuffled := make([]string, len(directory.Roster))
	copy(shuffled, directory.Roster)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	n := RandomSubsetSize
	if n > len(shuffled) {
		n = len(shuffled)
	}

	targets := make([]Target, 0, n)
	for _, provider := range shuffled[:n] {
		key, _ := directory.ModelFor(provider)
		targets = append(targets, Target{Provider: provider, ModelKey: key})
	}
	return targets
}

func annotate(targets []Target, note string) []Target {
	for i := range targets {
		targets[i].Note = note
	}
	return targets
}

// ABOUTME: Per-submission fan-out: resolve targets, build payloads, reconcile replies
// ABOUTME: Each provider completes independently; failures never cross the per-provider boundary

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/niushuanan/omnitalk-x/internal/directory"
	"github.com/niushuanan/omnitalk-x/internal/history"
	"github.com/niushuanan/omnitalk-x/internal/log"
	"github.com/niushuanan/omnitalk-x/internal/resolver"
	"github.com/niushuanan/omnitalk-x/internal/style"
	"github.com/niushuanan/omnitalk-x/internal/transcript"
	"github.com/niushuanan/omnitalk-x/pkg/gateway"
)

var (
	// ErrNoAPIKey means no credential was supplied for the submission.
	ErrNoAPIKey = errors.New("api key not configured")
	// ErrEmptyMessage means the submission text was blank.
	ErrEmptyMessage = errors.New("empty message")
)

// ChatService issues one non-stream completion request. Implemented by
// *gateway.Client.
type ChatService interface {
	ChatCompletion(ctx context.Context, provider, apiKey string, payload gateway.ChatPayload) (string, error)
}

// Submission is one outgoing user message to fan out.
type Submission struct {
	Text         string
	PrivateModel string               // non-empty selects private mode
	Group        *directory.GroupInfo // active group; nil means the default group
	APIKey       string
}

// Receipt reports what a submission resolved to. An empty Targets slice
// means nothing was dispatched; the caller should warn the user.
type Receipt struct {
	Session string
	Targets []resolver.Target
}

// Dispatcher owns the fan-out pipeline. All collaborators are injected;
// there is no ambient global state and no load-time fetching.
type Dispatcher struct {
	chat        ChatService
	history     *history.Store
	styles      *style.Store
	prompts     *directory.Prompts
	transcripts *transcript.Log

	rngMu sync.Mutex
	rng   *rand.Rand

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	guardMu sync.Mutex
	guards  map[string]*sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRand injects the random source used for subset selection.
func WithRand(rng *rand.Rand) Option {
	return func(d *Dispatcher) { d.rng = rng }
}

// WithRateLimit sets the per-provider outbound request rate.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(d *Dispatcher) {
		d.limit = limit
		d.burst = burst
	}
}

// New creates a Dispatcher.
func New(chat ChatService, hist *history.Store, styles *style.Store, prompts *directory.Prompts, transcripts *transcript.Log, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		chat:        chat,
		history:     hist,
		styles:      styles,
		prompts:     prompts,
		transcripts: transcripts,
		limiters:    make(map[string]*rate.Limiter),
		limit:       rate.Limit(2),
		burst:       4,
		guards:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit resolves the target set for one user message and dispatches each
// provider concurrently. It records the raw text in the transcript, fans
// out, and returns once every provider completed or failed. Per-provider
// failures are reconciled into the transcript and context, never returned.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	text := strings.TrimSpace(sub.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if sub.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	d.rngMu.Lock()
	res := resolver.Resolve(resolver.Input{
		Text:         text,
		PrivateModel: sub.PrivateModel,
		Group:        sub.Group,
	}, d.rng)
	d.rngMu.Unlock()

	session := sessionName(sub)
	// The transcript shows the original text, mentions included.
	d.transcripts.AppendUser(session, text)

	receipt := &Receipt{Session: session, Targets: res.Targets}
	if len(res.Targets) == 0 {
		log.Warn("dispatch: no providers resolved for submission in session %s", session)
		return receipt, nil
	}

	var g errgroup.Group
	for _, target := range res.Targets {
		target := target
		g.Go(func() error {
			d.runProvider(ctx, sub, session, target, res.ModelText)
			return nil
		})
	}
	g.Wait() // per-provider errors are contained, never collected

	return receipt, nil
}

// runProvider executes the whole per-provider pipeline for one target. The
// scope guard serializes overlapping submissions that hit the same
// (scope, provider) pair, so context writes cannot interleave.
func (d *Dispatcher) runProvider(ctx context.Context, sub Submission, session string, target resolver.Target, modelText string) {
	scope := d.scopeFor(sub, target.Provider)

	guard := d.scopeGuard(scope.Key())
	guard.Lock()
	defer guard.Unlock()

	if !scope.Private() && sub.Group != nil {
		if _, err := d.history.EnsureAnnouncement(scope, sub.Group.Announcement); err != nil {
			log.Warn("dispatch: announcement injection for %s: %v", scope.Key(), err)
		}
	}

	stored := history.SortByTimestamp(d.history.Read(scope))

	cfg := d.resolveStyle(sub)
	payload := gateway.ChatPayload{
		Model:       target.Provider,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		Messages:    buildMessages(d.prompts.SystemPrompt(target.ModelKey), target.Note, stored, modelText),
	}

	reply := d.call(ctx, target.Provider, sub.APIKey, payload)

	// Both turns land in context even when the reply is a synthesized
	// error, so conversation continuity survives failures. The reply is
	// stamped strictly after the user turn.
	now := d.history.Now()
	err := d.history.Append(scope,
		history.ContextMessage{Role: history.RoleUser, Content: modelText, TS: now},
		history.ContextMessage{Role: history.RoleAssistant, Content: reply, TS: now + 1},
	)
	if err != nil {
		log.Error("dispatch: persisting context for %s: %v", scope.Key(), err)
	}

	d.transcripts.AppendAssistant(session, reply, target.Provider, target.ModelKey)
}

// call issues the rate-limited completion request, converting transport
// failures into synthetic reply text.
func (d *Dispatcher) call(ctx context.Context, provider, apiKey string, payload gateway.ChatPayload) string {
	if err := d.providerLimiter(provider).Wait(ctx); err != nil {
		return fmt.Sprintf("[错误: %v]", err)
	}

	reply, err := d.chat.ChatCompletion(ctx, provider, apiKey, payload)
	if err != nil {
		log.Warn("dispatch: provider %s failed: %v", provider, err)
		return fmt.Sprintf("[错误: %v]", err)
	}
	return reply
}

// buildMessages assembles the outbound sequence: system prompt, optional
// mention note, stored context in timestamp order, then the user turn last.
func buildMessages(systemPrompt, note string, stored []history.ContextMessage, userText string) []gateway.ChatMessage {
	msgs := make([]gateway.ChatMessage, 0, len(stored)+3)
	msgs = append(msgs, gateway.ChatMessage{Role: string(history.RoleSystem), Content: systemPrompt})
	if note != "" {
		msgs = append(msgs, gateway.ChatMessage{Role: string(history.RoleSystem), Content: note})
	}
	for _, m := range stored {
		msgs = append(msgs, gateway.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(msgs, gateway.ChatMessage{Role: string(history.RoleUser), Content: userText})
}

func (d *Dispatcher) scopeFor(sub Submission, provider string) history.Scope {
	if sub.PrivateModel != "" {
		return history.PrivateScope(provider)
	}
	return history.GroupScope(sub.Group.ContextGroupID(), provider)
}

func (d *Dispatcher) resolveStyle(sub Submission) style.Config {
	if sub.PrivateModel != "" {
		return d.styles.Resolve("")
	}
	return d.styles.Resolve(sub.Group.ContextGroupID())
}

// sessionName picks the transcript session: the model key for private
// chats, group_<id> for groups.
func sessionName(sub Submission) string {
	if sub.PrivateModel != "" {
		return strings.ToLower(sub.PrivateModel)
	}
	if sub.Group != nil {
		return "group_" + sub.Group.ID
	}
	return "group"
}

func (d *Dispatcher) providerLimiter(provider string) *rate.Limiter {
	d.limitMu.Lock()
	defer d.limitMu.Unlock()

	l, ok := d.limiters[provider]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[provider] = l
	}
	return l
}

func (d *Dispatcher) scopeGuard(key string) *sync.Mutex {
	d.guardMu.Lock()
	defer d.guardMu.Unlock()

	g, ok := d.guards[key]
	if !ok {
		g = &sync.Mutex{}
		d.guards[key] = g
	}
	return g
}

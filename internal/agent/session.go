// Package agent implements the conversational core: a bounded
// reason-act-reflect loop around the completion backend, with
// per-user emotional state, long-term memory, and tool execution.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mikan1111/mafuyu/internal/emotion"
	"github.com/mikan1111/mafuyu/internal/llm"
	"github.com/mikan1111/mafuyu/internal/memory"
	"github.com/mikan1111/mafuyu/internal/prompts"
	"github.com/mikan1111/mafuyu/internal/tools"
)

// DefaultMaxTurns bounds backend calls per exchange.
const DefaultMaxTurns = 3

// Options configures a Session.
type Options struct {
	Logger  *slog.Logger
	Client  llm.Client
	Tools   *tools.Registry
	Memory  memory.Store
	Emotion emotion.Store
	Policy  Policy

	PersonaFile string
	FewshotFile string

	// MaxTurns is the backend call budget per exchange. Zero means
	// DefaultMaxTurns.
	MaxTurns int

	// HistoryWindow is how many turns stay verbatim in context.
	HistoryWindow int

	// MemoryHits is how many recalled memories accompany each message.
	MemoryHits int

	// CreatorName marks the user treated as creator/partner in the
	// prompt. Matched as a case-insensitive substring of the user ID.
	CreatorName string

	Now func() time.Time
}

// Session runs conversations. Exchanges for the same user are
// serialized; different users proceed concurrently.
type Session struct {
	logger  *slog.Logger
	client  llm.Client
	tools   *tools.Registry
	memory  memory.Store
	emotion emotion.Store
	policy  Policy

	personaFile string
	fewshotFile string
	maxTurns    int
	window      int
	memoryHits  int
	creatorName string
	now         func() time.Time

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	histories map[string]*history

	cacheMu   sync.Mutex
	toolCache map[string]string
}

// NewSession creates a session from options, filling in defaults.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Policy == nil {
		opts.Policy = TagPolicy{}
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 40
	}
	if opts.MemoryHits <= 0 {
		opts.MemoryHits = 3
	}
	if opts.CreatorName == "" {
		opts.CreatorName = "mikan"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		logger:      opts.Logger,
		client:      opts.Client,
		tools:       opts.Tools,
		memory:      opts.Memory,
		emotion:     opts.Emotion,
		policy:      opts.Policy,
		personaFile: opts.PersonaFile,
		fewshotFile: opts.FewshotFile,
		maxTurns:    opts.MaxTurns,
		window:      opts.HistoryWindow,
		memoryHits:  opts.MemoryHits,
		creatorName: opts.CreatorName,
		now:         opts.Now,
		locks:       make(map[string]*sync.Mutex),
		histories:   make(map[string]*history),
		toolCache:   make(map[string]string),
	}
}

// userLock returns the serialization lock for a user.
func (s *Session) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Session) userHistory(userID string) *history {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[userID]
	if !ok {
		h = newHistory(s.window)
		s.histories[userID] = h
	}
	return h
}

// ClearHistory forgets a user's conversation turns.
func (s *Session) ClearHistory(userID string) {
	s.userHistory(userID).clear()
}

// Respond runs one full exchange: context assembly, the bounded
// reason-act-reflect loop, state updates, and response cleanup.
//
// When the reply text is non-empty and the error is non-nil, the
// exchange itself succeeded but a memory or emotion update did not
// persist; the error wraps memory.ErrPersistence or
// emotion.ErrPersistence so callers can flag it without discarding
// the reply.
func (s *Session) Respond(ctx context.Context, userID, text string) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	log := s.logger.With("user", userID)
	log.Info("exchange started", "input_len", len(text))

	messages, err := s.assembleContext(ctx, userID, text, log)
	if err != nil {
		return "", err
	}

	var lastResponse string
	var persistErr error
	final := ""
	for turn := 0; turn < s.maxTurns; turn++ {
		response, err := s.client.Chat(ctx, messages)
		if err != nil {
			log.Error("backend call failed", "turn", turn, "error", err)
			return "", fmt.Errorf("exchange: %w", err)
		}
		lastResponse = response

		persistErr = errors.Join(persistErr, s.applyThought(userID, response, log))

		call, ok := parseCall(response)
		if !ok {
			final = response
			break
		}

		result := s.executeCall(ctx, call, userID, log)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: response},
			llm.Message{Role: llm.RoleUser, Content: prompts.ReflectionPrompt(result.Payload)},
		)
	}

	// Budget exhausted mid-loop: the last text is still the best
	// answer available.
	if final == "" {
		final = lastResponse
	}

	cleaned := cleanResponse(final)
	if cleaned == "" {
		cleaned = prompts.EmptyResponseFallback
	}

	h := s.userHistory(userID)
	h.append(llm.RoleUser, text)
	h.append(llm.RoleAssistant, cleaned)

	log.Info("exchange completed", "output_len", len(cleaned))
	return cleaned, persistErr
}

// assembleContext builds the message list for a new exchange: system
// prompt, fewshot examples, compressed summary, recent history, and
// the user's message with recalled memories attached.
func (s *Session) assembleContext(ctx context.Context, userID, text string, log *slog.Logger) ([]llm.Message, error) {
	system := prompts.LoadPersona(s.personaFile)
	system += "\n\n" + prompts.TimeSection(s.now())

	if s.emotion != nil {
		state, err := s.emotion.Get(userID)
		if err != nil {
			log.Warn("emotion state unavailable", "error", err)
		} else {
			system += "\n\n" + emotion.PromptText(state)
		}
	}

	creator := strings.Contains(strings.ToLower(userID), strings.ToLower(s.creatorName))
	system += "\n\n" + prompts.UserContextSection(userID, creator)

	if s.tools != nil {
		system += "\n\n" + prompts.ToolsSection(s.tools.Catalog())
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	messages = append(messages, prompts.LoadFewshot(s.fewshotFile)...)

	h := s.userHistory(userID)
	if summary := s.compressedSummary(ctx, h, log); summary != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: prompts.CompressedHistorySection(summary),
		})
	}
	messages = append(messages, h.recent()...)

	userContent := text
	if section := s.memoryContext(userID, text, log); section != "" {
		userContent += "\n\n" + section
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userContent})

	return messages, nil
}

// memoryContext recalls memories relevant to the user's message.
// Storage failures degrade to no recall rather than aborting the
// exchange.
func (s *Session) memoryContext(userID, text string, log *slog.Logger) string {
	if s.memory == nil {
		return ""
	}
	keywords := memory.Tokenize(text)
	recs, err := s.memory.Search(userID, keywords, s.memoryHits)
	if err != nil {
		log.Warn("memory search failed", "error", err)
		return ""
	}
	contents := make([]string, len(recs))
	for i, r := range recs {
		contents[i] = r.Content
	}
	return prompts.MemorySection(contents)
}

// compressedSummary summarizes turns that fell out of the history
// window, caching the result until more turns are dropped.
func (s *Session) compressedSummary(ctx context.Context, h *history, log *slog.Logger) string {
	dropped, stale := h.dropped()
	if len(dropped) == 0 {
		return ""
	}
	if !stale {
		return h.cachedSummary()
	}

	// Only the tail of the dropped turns feeds the summarizer.
	tail := dropped
	if len(tail) > 20 {
		tail = tail[len(tail)-20:]
	}
	var b strings.Builder
	for _, m := range tail {
		content := m.Content
		if runes := []rune(content); len(runes) > 200 {
			content = string(runes[:200])
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteByte('\n')
	}

	summary, err := s.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompts.CompressionPrompt(b.String())},
	})
	if err != nil {
		log.Warn("history compression failed", "error", err)
		return h.cachedSummary()
	}
	h.setSummary(summary, len(dropped))
	log.Debug("history compressed", "dropped_turns", len(dropped))
	return summary
}

// applyThought parses the model's private thought and applies what
// the policy extracts: memory writes and emotion deltas. Failures to
// persist are logged and returned joined so the caller can surface
// them next to the reply.
func (s *Session) applyThought(userID, response string, log *slog.Logger) error {
	thought, ok := parseThought(response)
	if !ok {
		return nil
	}
	log.Debug("thought", "content", thought)

	var errs []error
	if content, ok := s.policy.Memorable(thought); ok && s.memory != nil {
		rec := &memory.Record{
			UserID:   userID,
			Keywords: memory.Tokenize(content),
			Content:  content,
		}
		if err := s.memory.Append(rec); err != nil {
			log.Warn("memory write failed", "error", err)
			errs = append(errs, err)
		} else {
			log.Info("memory added", "content", content)
		}
	}

	if d := s.policy.Deltas(thought); !d.IsZero() && s.emotion != nil {
		if _, err := s.emotion.ApplyDelta(userID, d); err != nil {
			log.Warn("emotion update failed", "error", err)
			errs = append(errs, err)
		} else {
			log.Info("emotion updated", "affection", d.Affection, "mood", d.Mood, "energy", d.Energy)
		}
	}
	return errors.Join(errs...)
}

// executeCall runs a tool marker through the registry, reusing cached
// search results within the session.
func (s *Session) executeCall(ctx context.Context, call toolCall, userID string, log *slog.Logger) tools.Result {
	log.Info("tool call", "tool", call.Name, "args", call.Args)

	if s.tools == nil {
		return tools.Result{Name: call.Name, Status: tools.StatusError, Payload: "no tools available"}
	}

	cacheKey := call.Name + ":" + call.Args
	if call.Name == "search_web" {
		s.cacheMu.Lock()
		cached, hit := s.toolCache[cacheKey]
		s.cacheMu.Unlock()
		if hit {
			log.Debug("tool cache hit", "tool", call.Name)
			return tools.Result{Name: call.Name, Status: tools.StatusOK, Payload: cached}
		}
	}

	args := argsFor(call.Name, call.Args)
	if call.Name == "recall_memory" {
		args["user"] = userID
	}

	result := s.tools.Execute(ctx, call.Name, args)
	if call.Name == "search_web" && result.OK() {
		s.cacheMu.Lock()
		s.toolCache[cacheKey] = result.Payload
		s.cacheMu.Unlock()
	}
	if !result.OK() {
		log.Warn("tool failed", "tool", call.Name, "payload", result.Payload)
	}
	return result
}

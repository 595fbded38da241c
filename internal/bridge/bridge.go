package bridge

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mikan1111/mafuyu/internal/config"
)

// Responder abstracts the agent session for testability. The real
// implementation is *agent.Session.
type Responder interface {
	Respond(ctx context.Context, userID, text string) (string, error)
	InitiateTalk(ctx context.Context, userID string) (string, error)
}

// handleTimeout bounds how long one inbound message may be processed.
const handleTimeout = 5 * time.Minute

// rateWindow is the sliding window for per-sender rate limiting.
const rateWindow = time.Minute

var mentionToken = regexp.MustCompile(`@\S+\s*`)

// Bridge routes gateway messages through the agent session.
type Bridge struct {
	client    *Client
	responder Responder
	logger    *slog.Logger

	allowedDMUser string
	freeChat      map[string]bool
	rateLimit     int
	idle          config.IdleConfig
	now           func() time.Time

	mu           sync.Mutex
	senderTimes  map[string][]time.Time
	lastChannel  string // last DM channel, idle speech target
	lastUser     string
	lastActivity time.Time
}

// New creates a bridge from the gateway client and bridge config.
func New(client *Client, responder Responder, cfg config.BridgeConfig, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	freeChat := make(map[string]bool, len(cfg.FreeChatChannels))
	for _, ch := range cfg.FreeChatChannels {
		freeChat[ch] = true
	}
	return &Bridge{
		client:        client,
		responder:     responder,
		logger:        logger,
		allowedDMUser: cfg.AllowedDMUser,
		freeChat:      freeChat,
		rateLimit:     cfg.RateLimit,
		idle:          cfg.Idle,
		now:           time.Now,
		senderTimes:   make(map[string][]time.Time),
	}
}

// Start consumes gateway messages until ctx is cancelled or the
// connection drops. The idle loop runs alongside when enabled.
func (b *Bridge) Start(ctx context.Context) {
	b.logger.Info("bridge started")

	if b.idle.Enabled {
		go b.idleLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge shutting down")
			return
		case in, ok := <-b.client.Messages():
			if !ok {
				b.logger.Info("gateway channel closed, bridge stopping")
				return
			}
			if !b.accept(in) {
				continue
			}
			if !b.allowSender(in.Sender) {
				b.logger.Warn("message rate-limited", "sender", in.Sender)
				continue
			}
			b.handleMessage(ctx, in)
		}
	}
}

// accept applies the access rules: DMs only from the allowed user,
// channel messages only when mentioned or in a free-chat channel.
func (b *Bridge) accept(in Inbound) bool {
	if in.Sender == "" || in.Content == "" {
		return false
	}
	if in.DM {
		return b.allowedDMUser == "" || in.Sender == b.allowedDMUser
	}
	return in.Mention || b.freeChat[in.Channel]
}

// handleMessage runs one inbound message through the session and
// sends the reply back to its channel.
func (b *Bridge) handleMessage(ctx context.Context, in Inbound) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	content := stripMention(in.Content)
	if content == "" {
		content = "やっほー"
	}

	userName := in.SenderName
	if userName == "" {
		userName = in.Sender
	}

	b.logger.Info("gateway message received",
		"sender", in.Sender,
		"channel", in.Channel,
		"dm", in.DM,
	)

	// DMs from the allowed user retarget idle speech.
	if in.DM {
		b.mu.Lock()
		b.lastChannel = in.Channel
		b.lastUser = userName
		b.lastActivity = b.now()
		b.mu.Unlock()
	}

	reply, err := b.responder.Respond(ctx, userName, content)
	if err != nil && reply == "" {
		b.logger.Error("exchange failed", "sender", in.Sender, "error", err)
		return
	}
	if err != nil {
		b.logger.Warn("state update not persisted", "sender", in.Sender, "error", err)
	}
	if reply == "" {
		return
	}

	b.mu.Lock()
	b.lastActivity = b.now()
	b.mu.Unlock()

	if err := b.client.Send(in.Channel, reply); err != nil {
		b.logger.Error("reply send failed", "channel", in.Channel, "error", err)
	}
}

// stripMention drops leading mention tokens left in the content.
func stripMention(s string) string {
	s = strings.TrimSpace(s)
	for {
		loc := mentionToken.FindStringIndex(s)
		if loc == nil || loc[0] != 0 {
			return strings.TrimSpace(s)
		}
		s = s[loc[1]:]
	}
}

// allowSender checks the per-minute rate limit for a sender.
func (b *Bridge) allowSender(sender string) bool {
	if b.rateLimit <= 0 {
		return true
	}

	now := b.now()
	cutoff := now.Add(-rateWindow)

	b.mu.Lock()
	defer b.mu.Unlock()

	timestamps := b.senderTimes[sender]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	if len(valid) >= b.rateLimit {
		b.senderTimes[sender] = valid
		return false
	}
	b.senderTimes[sender] = append(valid, now)
	return true
}

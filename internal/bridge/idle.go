package bridge

import (
	"context"
	"time"

	"github.com/mikan1111/mafuyu/internal/config"
)

// idleLoop periodically considers speaking first. It only targets the
// last DM channel, stays quiet during quiet hours, and after speaking
// resets the gap timer so it does not chatter.
func (b *Bridge) idleLoop(ctx context.Context) {
	interval := time.Duration(b.idle.IntervalMin) * time.Minute
	if interval <= 0 {
		interval = 20 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.Info("idle speech loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.maybeSpeak(ctx)
		}
	}
}

func (b *Bridge) maybeSpeak(ctx context.Context) {
	b.mu.Lock()
	channel, user, last := b.lastChannel, b.lastUser, b.lastActivity
	b.mu.Unlock()

	now := b.now()
	if !shouldSpeak(now, last, channel, b.idle) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	line, err := b.responder.InitiateTalk(ctx, user)
	if err != nil && line == "" {
		b.logger.Warn("idle speech failed", "error", err)
		return
	}
	if err != nil {
		b.logger.Warn("state update not persisted", "error", err)
	}
	if line == "" {
		return
	}

	if err := b.client.Send(channel, line); err != nil {
		b.logger.Error("idle speech send failed", "channel", channel, "error", err)
		return
	}

	b.logger.Info("idle speech sent", "channel", channel, "user", user)
	b.mu.Lock()
	b.lastActivity = now
	b.mu.Unlock()
}

// shouldSpeak decides whether idle speech is allowed right now: a DM
// target must exist, the minimum gap since the last exchange must
// have passed, and the clock must be outside quiet hours.
func shouldSpeak(now, lastActivity time.Time, channel string, idle config.IdleConfig) bool {
	if channel == "" || lastActivity.IsZero() {
		return false
	}

	gap := time.Duration(idle.MinGapMin) * time.Minute
	if gap <= 0 {
		gap = 60 * time.Minute
	}
	if now.Sub(lastActivity) < gap {
		return false
	}

	return !inQuietHours(now.Hour(), idle.QuietStartHour, idle.QuietEndHour)
}

// inQuietHours reports whether hour falls in [start, end), handling
// ranges that wrap past midnight.
func inQuietHours(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

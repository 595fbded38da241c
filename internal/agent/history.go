package agent

import (
	"sync"

	"github.com/mikan1111/mafuyu/internal/llm"
)

// history holds one user's conversation turns. Older turns beyond the
// window are summarized once and the summary cached until more turns
// fall out of the window.
type history struct {
	mu         sync.Mutex
	turns      []llm.Message
	window     int
	summary    string
	summarized int // number of dropped turns the cached summary covers
}

func newHistory(window int) *history {
	if window <= 0 {
		window = 40
	}
	return &history{window: window}
}

// append records a completed turn.
func (h *history) append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, llm.Message{Role: role, Content: content})
}

// recent returns the turns inside the window, newest last.
func (h *history) recent() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.turns) <= h.window {
		return append([]llm.Message(nil), h.turns...)
	}
	return append([]llm.Message(nil), h.turns[len(h.turns)-h.window:]...)
}

// dropped returns the turns that fell out of the window, and whether
// the cached summary is stale for them.
func (h *history) dropped() (turns []llm.Message, stale bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.turns) - h.window
	if n <= 0 {
		return nil, false
	}
	return append([]llm.Message(nil), h.turns[:n]...), n != h.summarized
}

// cachedSummary returns the current summary, which may be empty.
func (h *history) cachedSummary() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

// setSummary caches a summary covering n dropped turns.
func (h *history) setSummary(s string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary = s
	h.summarized = n
}

// clear forgets all turns and the summary.
func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
	h.summary = ""
	h.summarized = 0
}

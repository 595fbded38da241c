package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mikan1111/mafuyu/internal/emotion"
	"github.com/mikan1111/mafuyu/internal/llm"
	"github.com/mikan1111/mafuyu/internal/memory"
	"github.com/mikan1111/mafuyu/internal/tools"
)

// scriptedClient plays back canned responses and records every call.
type scriptedClient struct {
	responses []string
	calls     [][]llm.Message
	err       error
}

func (c *scriptedClient) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	c.calls = append(c.calls, msgs)
	if c.err != nil {
		return "", c.err
	}
	i := len(c.calls) - 1
	if i >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	return c.responses[i], nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

// fakeMemory is an in-memory memory.Store.
type fakeMemory struct {
	recs      []memory.Record
	appendErr error
	searchErr error
}

func (f *fakeMemory) Append(rec *memory.Record) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	f.recs = append(f.recs, *rec)
	return nil
}

func (f *fakeMemory) Search(userID string, keywords []string, limit int) ([]memory.Record, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []memory.Record
	for _, r := range f.recs {
		if r.UserID != userID {
			continue
		}
		for _, k := range keywords {
			if strings.Contains(strings.ToLower(strings.Join(r.Keywords, " ")), strings.ToLower(k)) {
				out = append(out, r)
				break
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMemory) Recent(userID string, n int) ([]memory.Record, error) { return nil, nil }
func (f *fakeMemory) Close() error                                         { return nil }

// fakeEmotion records applied deltas and serves a fixed state.
type fakeEmotion struct {
	state    emotion.State
	deltas   []emotion.Delta
	applyErr error
}

func (f *fakeEmotion) Get(userID string) (emotion.State, error) {
	s := f.state
	s.UserID = userID
	return s, nil
}

func (f *fakeEmotion) ApplyDelta(userID string, d emotion.Delta) (emotion.State, error) {
	if f.applyErr != nil {
		return emotion.State{}, f.applyErr
	}
	f.deltas = append(f.deltas, d)
	return f.state, nil
}

func (f *fakeEmotion) Close() error { return nil }

func testSession(t *testing.T, client llm.Client, reg *tools.Registry) (*Session, *fakeMemory, *fakeEmotion) {
	t.Helper()
	mem := &fakeMemory{}
	emo := &fakeEmotion{state: emotion.State{
		Affection: emotion.DefaultAffection,
		Mood:      emotion.DefaultMood,
		Energy:    emotion.DefaultEnergy,
	}}
	s := NewSession(Options{
		Client:  client,
		Tools:   reg,
		Memory:  mem,
		Emotion: emo,
		Now:     func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) },
	})
	return s, mem, emo
}

func TestRespondPlainExchange(t *testing.T) {
	client := &scriptedClient{responses: []string{"こんにちは！"}}
	s, _, _ := testSession(t, client, nil)

	got, err := s.Respond(context.Background(), "alice", "やあ")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "こんにちは！" {
		t.Errorf("got %q", got)
	}
	if len(client.calls) != 1 {
		t.Errorf("backend called %d times, want 1", len(client.calls))
	}

	// System prompt carries persona, time, emotion, and user context.
	system := client.calls[0][0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message role = %q", system.Role)
	}
	for _, want := range []string{"[Current Time]", "[Emotional State]", "Name: alice"} {
		if !strings.Contains(system.Content, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestRespondToolCallLoop(t *testing.T) {
	reg := tools.NewRegistry(0)
	executed := 0
	reg.Register(&tools.Tool{
		Name:        "search_web",
		Description: "search",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			executed++
			if args["query"] != "weather tokyo" {
				t.Errorf("query = %q", args["query"])
			}
			return "sunny, 28C", nil
		},
	})

	client := &scriptedClient{responses: []string{
		"<call>search_web: weather tokyo</call>",
		"東京は晴れ、28度だって。",
	}}
	s, _, _ := testSession(t, client, reg)

	got, err := s.Respond(context.Background(), "alice", "天気調べて")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "東京は晴れ、28度だって。" {
		t.Errorf("got %q", got)
	}
	if executed != 1 {
		t.Errorf("tool executed %d times", executed)
	}

	// Second backend call sees the tool result in a reflection turn.
	second := client.calls[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleUser || !strings.Contains(last.Content, "sunny, 28C") {
		t.Errorf("reflection turn = %+v", last)
	}
}

func TestRespondUnknownToolStaysInLoop(t *testing.T) {
	reg := tools.NewRegistry(0)
	client := &scriptedClient{responses: []string{
		"<call>nonexistent: whatever</call>",
		"ごめん、それはできないや。",
	}}
	s, _, _ := testSession(t, client, reg)

	got, err := s.Respond(context.Background(), "alice", "do the thing")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "ごめん、それはできないや。" {
		t.Errorf("got %q", got)
	}

	second := client.calls[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "unknown tool") {
		t.Errorf("error result not fed back: %q", last.Content)
	}
}

func TestRespondTurnBudgetExhausted(t *testing.T) {
	reg := tools.NewRegistry(0)
	reg.Register(&tools.Tool{
		Name: "search_web", Description: "search",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			return "result", nil
		},
	})

	// Every response asks for another tool call; the loop must stop
	// at the budget and salvage the last text.
	client := &scriptedClient{responses: []string{
		"まだ調べる。<call>search_web: one</call>",
		"もう少し。<call>search_web: two</call>",
		"これで最後。<call>search_web: three</call>",
	}}
	s, _, _ := testSession(t, client, reg)

	got, err := s.Respond(context.Background(), "alice", "調べて")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(client.calls) != DefaultMaxTurns {
		t.Errorf("backend called %d times, want %d", len(client.calls), DefaultMaxTurns)
	}
	if got != "これで最後。" {
		t.Errorf("got %q", got)
	}
}

func TestRespondBackendError(t *testing.T) {
	backendErr := &llm.BackendError{Provider: "ollama", Err: errors.New("connection refused")}
	client := &scriptedClient{err: backendErr}
	s, _, _ := testSession(t, client, nil)

	_, err := s.Respond(context.Background(), "alice", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	var be *llm.BackendError
	if !errors.As(err, &be) {
		t.Errorf("error %v does not wrap BackendError", err)
	}
}

func TestRespondAppliesThoughtTags(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"<thought>嬉しい。<memory>Alice likes matcha</memory><emotion>mood+5, affection+2</emotion></thought>いいね、抹茶。",
	}}
	s, mem, emo := testSession(t, client, nil)

	got, err := s.Respond(context.Background(), "alice", "抹茶が好き")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "いいね、抹茶。" {
		t.Errorf("tags leaked into output: %q", got)
	}

	if len(mem.recs) != 1 || mem.recs[0].Content != "Alice likes matcha" {
		t.Errorf("memory recs = %+v", mem.recs)
	}
	if mem.recs[0].UserID != "alice" {
		t.Errorf("memory user = %q", mem.recs[0].UserID)
	}

	if len(emo.deltas) != 1 {
		t.Fatalf("deltas = %+v", emo.deltas)
	}
	if d := emo.deltas[0]; d.Mood != 5 || d.Affection != 2 {
		t.Errorf("delta = %+v", d)
	}
}

func TestRespondInjectsRecalledMemories(t *testing.T) {
	client := &scriptedClient{responses: []string{"覚えてるよ。"}}
	s, mem, _ := testSession(t, client, nil)
	mem.recs = []memory.Record{
		{UserID: "alice", Keywords: []string{"matcha"}, Content: "Alice likes matcha"},
	}

	if _, err := s.Respond(context.Background(), "alice", "matcha また飲みたいな"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	msgs := client.calls[0]
	userTurn := msgs[len(msgs)-1]
	if !strings.Contains(userTurn.Content, "Alice likes matcha") {
		t.Errorf("memory not injected: %q", userTurn.Content)
	}
}

func TestRespondMemoryFailureDegrades(t *testing.T) {
	client := &scriptedClient{responses: []string{"平気だよ。"}}
	s, mem, _ := testSession(t, client, nil)
	mem.searchErr = memory.ErrPersistence

	got, err := s.Respond(context.Background(), "alice", "hi")
	if err != nil {
		t.Fatalf("Respond should survive memory failure: %v", err)
	}
	if got != "平気だよ。" {
		t.Errorf("got %q", got)
	}
}

func TestRespondReportsLostMemoryWrite(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"<thought><memory>Alice likes matcha</memory></thought>覚えた。",
	}}
	s, mem, _ := testSession(t, client, nil)
	mem.appendErr = fmt.Errorf("%w: disk full", memory.ErrPersistence)

	got, err := s.Respond(context.Background(), "alice", "抹茶が好き")
	if got != "覚えた。" {
		t.Fatalf("reply should survive a lost write, got %q", got)
	}
	if !errors.Is(err, memory.ErrPersistence) {
		t.Errorf("err = %v, want memory.ErrPersistence", err)
	}
}

func TestRespondReportsLostEmotionUpdate(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"<thought><emotion>mood+5</emotion></thought>嬉しいな。",
	}}
	s, _, emo := testSession(t, client, nil)
	emo.applyErr = fmt.Errorf("%w: database locked", emotion.ErrPersistence)

	got, err := s.Respond(context.Background(), "alice", "いいことあった")
	if got != "嬉しいな。" {
		t.Fatalf("reply should survive a lost update, got %q", got)
	}
	if !errors.Is(err, emotion.ErrPersistence) {
		t.Errorf("err = %v, want emotion.ErrPersistence", err)
	}
}

func TestRespondToolCacheReuse(t *testing.T) {
	reg := tools.NewRegistry(0)
	executed := 0
	reg.Register(&tools.Tool{
		Name: "search_web", Description: "search",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			executed++
			return "cached payload", nil
		},
	})

	client := &scriptedClient{responses: []string{
		"<call>search_web: same query</call>", "answer one",
		"<call>search_web: same query</call>", "answer two",
	}}
	s, _, _ := testSession(t, client, reg)

	if _, err := s.Respond(context.Background(), "alice", "q1"); err != nil {
		t.Fatalf("first Respond: %v", err)
	}
	if _, err := s.Respond(context.Background(), "alice", "q2"); err != nil {
		t.Fatalf("second Respond: %v", err)
	}
	if executed != 1 {
		t.Errorf("tool executed %d times, want 1 (cache)", executed)
	}
}

func TestRespondEmptyOutputFallsBack(t *testing.T) {
	client := &scriptedClient{responses: []string{"<thought>何も言うことがない</thought>"}}
	s, _, _ := testSession(t, client, nil)

	got, err := s.Respond(context.Background(), "alice", "…")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got == "" {
		t.Error("empty output should fall back to a canned reply")
	}
}

func TestRespondKeepsHistory(t *testing.T) {
	client := &scriptedClient{responses: []string{"一回目。", "二回目。"}}
	s, _, _ := testSession(t, client, nil)

	s.Respond(context.Background(), "alice", "最初")
	s.Respond(context.Background(), "alice", "次")

	// The second call's context must contain the first exchange.
	msgs := client.calls[1]
	var sawFirst bool
	for _, m := range msgs {
		if m.Content == "一回目。" {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Error("first exchange missing from second context")
	}

	s.ClearHistory("alice")
	s.Respond(context.Background(), "alice", "三回目")
	msgs = client.calls[2]
	for _, m := range msgs {
		if m.Content == "一回目。" {
			t.Error("history survived ClearHistory")
		}
	}
}

func TestInitiateTalk(t *testing.T) {
	client := &scriptedClient{responses: []string{"<thought>話したい</thought>ねえ、聞いてよ。"}}
	s, _, _ := testSession(t, client, nil)

	got, err := s.InitiateTalk(context.Background(), "alice")
	if err != nil {
		t.Fatalf("InitiateTalk: %v", err)
	}
	if got != "ねえ、聞いてよ。" {
		t.Errorf("got %q", got)
	}

	// The spoken line enters history.
	client.responses = []string{"続きだよ。"}
	s.Respond(context.Background(), "alice", "何？")
	msgs := client.calls[len(client.calls)-1]
	var saw bool
	for _, m := range msgs {
		if m.Content == "ねえ、聞いてよ。" {
			saw = true
		}
	}
	if !saw {
		t.Error("initiated line missing from history")
	}
}

func TestInitiateTalkSilence(t *testing.T) {
	client := &scriptedClient{responses: []string{"<thought>特にない</thought>"}}
	s, _, _ := testSession(t, client, nil)

	got, err := s.InitiateTalk(context.Background(), "alice")
	if err != nil {
		t.Fatalf("InitiateTalk: %v", err)
	}
	if got != "" {
		t.Errorf("expected silence, got %q", got)
	}
}

func TestHistoryCompression(t *testing.T) {
	// With a window of two turns, the third exchange is the first
	// whose context has dropped turns to summarize.
	client := &scriptedClient{responses: []string{
		"了解。",       // exchange 1
		"了解。",       // exchange 2
		"これが要約。", // exchange 3: summarizer call
		"最終返事。",   // exchange 3: reply
	}}
	s := NewSession(Options{
		Client:        client,
		HistoryWindow: 2,
	})

	for i := 0; i < 2; i++ {
		if _, err := s.Respond(context.Background(), "alice", "message"); err != nil {
			t.Fatalf("Respond: %v", err)
		}
	}

	start := len(client.calls)
	got, err := s.Respond(context.Background(), "alice", "続き")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "最終返事。" {
		t.Errorf("got %q", got)
	}
	if len(client.calls)-start != 2 {
		t.Fatalf("expected summarize + exchange calls, got %d", len(client.calls)-start)
	}

	// The exchange context carries the summary as a system turn.
	exchange := client.calls[len(client.calls)-1]
	var sawSummary bool
	for _, m := range exchange {
		if m.Role == llm.RoleSystem && strings.Contains(m.Content, "これが要約。") {
			sawSummary = true
		}
	}
	if !sawSummary {
		t.Error("summary missing from exchange context")
	}
}

func TestCreatorContext(t *testing.T) {
	client := &scriptedClient{responses: []string{"おかえり。"}}
	s, _, _ := testSession(t, client, nil)

	s.Respond(context.Background(), "mikan1111", "ただいま")
	system := client.calls[0][0].Content
	if !strings.Contains(system, "Creator/Partner") {
		t.Error("creator role missing from system prompt")
	}
}

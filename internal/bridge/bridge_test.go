package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikan1111/mafuyu/internal/config"
)

// fakeResponder records calls and echoes a fixed reply.
type fakeResponder struct {
	mu        sync.Mutex
	responses []string
	initiated []string
	reply     string
	initiate  string
}

func (f *fakeResponder) Respond(ctx context.Context, userID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, userID+"|"+text)
	return f.reply, nil
}

func (f *fakeResponder) InitiateTalk(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, userID)
	return f.initiate, nil
}

func (f *fakeResponder) respondCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.responses)
}

func (f *fakeResponder) response(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses[i]
}

// fakeGateway is an in-process websocket gateway.
type fakeGateway struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
	sent []Outbound
}

func (g *fakeGateway) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var auth authMessage
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	reply := "auth_ok"
	if auth.Token != "good-token" {
		reply = "auth_invalid"
	}
	conn.WriteJSON(authReply{Type: reply})
	if reply != "auth_ok" {
		conn.Close()
		return
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	for {
		var out Outbound
		if err := conn.ReadJSON(&out); err != nil {
			return
		}
		g.mu.Lock()
		g.sent = append(g.sent, out)
		g.mu.Unlock()
	}
}

func (g *fakeGateway) push(t *testing.T, in Inbound) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		conn := g.conn
		g.mu.Unlock()
		if conn != nil {
			in.Type = "message"
			if err := conn.WriteJSON(in); err != nil {
				t.Fatalf("push: %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("gateway never connected")
}

func (g *fakeGateway) outbound() []Outbound {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Outbound(nil), g.sent...)
}

func startBridge(t *testing.T, cfg config.BridgeConfig, resp *fakeResponder) (*fakeGateway, func()) {
	t.Helper()

	gw := &fakeGateway{}
	ts := httptest.NewServer(http.HandlerFunc(gw.handler))

	client := NewClient(ts.URL, "good-token", nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	b := New(client, resp, cfg, nil)
	go b.Start(ctx)

	return gw, func() {
		cancel()
		client.Close()
		ts.Close()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestBridgeRoutesDM(t *testing.T) {
	resp := &fakeResponder{reply: "やあ。"}
	gw, stop := startBridge(t, config.BridgeConfig{AllowedDMUser: "mikan.1111"}, resp)
	defer stop()

	gw.push(t, Inbound{Channel: "dm-1", Sender: "mikan.1111", SenderName: "mikan", DM: true, Content: "hello"})

	waitFor(t, func() bool { return len(gw.outbound()) == 1 })
	out := gw.outbound()[0]
	if out.Channel != "dm-1" || out.Content != "やあ。" {
		t.Errorf("outbound = %+v", out)
	}
	if resp.response(0) != "mikan|hello" {
		t.Errorf("responder got %q", resp.response(0))
	}
}

func TestBridgeIgnoresForeignDM(t *testing.T) {
	resp := &fakeResponder{reply: "x"}
	gw, stop := startBridge(t, config.BridgeConfig{AllowedDMUser: "mikan.1111"}, resp)
	defer stop()

	gw.push(t, Inbound{Channel: "dm-2", Sender: "stranger", DM: true, Content: "hi"})
	gw.push(t, Inbound{Channel: "dm-1", Sender: "mikan.1111", DM: true, Content: "hi"})

	waitFor(t, func() bool { return resp.respondCount() == 1 })
	if resp.response(0) != "mikan.1111|hi" {
		t.Errorf("wrong message processed: %q", resp.response(0))
	}
}

func TestBridgeChannelRequiresMention(t *testing.T) {
	resp := &fakeResponder{reply: "x"}
	gw, stop := startBridge(t, config.BridgeConfig{FreeChatChannels: []string{"lounge"}}, resp)
	defer stop()

	gw.push(t, Inbound{Channel: "general", Sender: "bob", Content: "ignored chatter"})
	gw.push(t, Inbound{Channel: "general", Sender: "bob", Mention: true, Content: "@mafuyu hey"})
	gw.push(t, Inbound{Channel: "lounge", Sender: "bob", Content: "free chat works"})

	waitFor(t, func() bool { return resp.respondCount() == 2 })
	if resp.response(0) != "bob|hey" {
		t.Errorf("mention not stripped: %q", resp.response(0))
	}
	if resp.response(1) != "bob|free chat works" {
		t.Errorf("free chat message = %q", resp.response(1))
	}
}

func TestBridgeAuthFailure(t *testing.T) {
	gw := &fakeGateway{}
	ts := httptest.NewServer(http.HandlerFunc(gw.handler))
	defer ts.Close()

	client := NewClient(ts.URL, "wrong-token", nil)
	if err := client.Connect(context.Background()); err == nil {
		t.Error("expected auth failure")
		client.Close()
	}
}

func TestRateLimit(t *testing.T) {
	b := New(nil, nil, config.BridgeConfig{RateLimit: 2}, nil)
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	now := base
	b.now = func() time.Time { return now }

	if !b.allowSender("bob") || !b.allowSender("bob") {
		t.Fatal("first two messages should pass")
	}
	if b.allowSender("bob") {
		t.Error("third message within the window should be limited")
	}
	if !b.allowSender("alice") {
		t.Error("other senders are unaffected")
	}

	now = base.Add(61 * time.Second)
	if !b.allowSender("bob") {
		t.Error("window should have expired")
	}
}

func TestStripMention(t *testing.T) {
	tests := []struct{ in, want string }{
		{"@mafuyu hello", "hello"},
		{"@mafuyu @again hi", "hi"},
		{"no mention here", "no mention here"},
		{"  @mafuyu  ", ""},
	}
	for _, tt := range tests {
		if got := stripMention(tt.in); got != tt.want {
			t.Errorf("stripMention(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShouldSpeak(t *testing.T) {
	idle := config.IdleConfig{MinGapMin: 60, QuietStartHour: 0, QuietEndHour: 7}
	day := func(h int) time.Time { return time.Date(2026, 7, 1, h, 0, 0, 0, time.UTC) }

	if shouldSpeak(day(12), time.Time{}, "", idle) {
		t.Error("no target channel: must stay quiet")
	}
	if shouldSpeak(day(12), day(11).Add(30*time.Minute), "dm-1", idle) {
		t.Error("inside min gap: must stay quiet")
	}
	if !shouldSpeak(day(12), day(10), "dm-1", idle) {
		t.Error("gap passed, daytime: should speak")
	}
	if shouldSpeak(day(3), day(1), "dm-1", idle) {
		t.Error("quiet hours: must stay quiet")
	}
}

func TestInQuietHours(t *testing.T) {
	tests := []struct {
		hour, start, end int
		want             bool
	}{
		{3, 0, 7, true},
		{7, 0, 7, false},
		{23, 0, 7, false},
		{23, 22, 6, true},
		{5, 22, 6, true},
		{12, 22, 6, false},
		{12, 5, 5, false},
	}
	for _, tt := range tests {
		if got := inQuietHours(tt.hour, tt.start, tt.end); got != tt.want {
			t.Errorf("inQuietHours(%d, %d, %d) = %v", tt.hour, tt.start, tt.end, got)
		}
	}
}

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mikan1111/mafuyu/internal/llm"
	"github.com/mikan1111/mafuyu/internal/tools"
)

func TestExtract(t *testing.T) {
	raw := `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
<nav>Navigation stuff</nav>
<script>var x = 1;</script>
<style>.foo { color: red; }</style>
<main>
<h1>Hello World</h1>
<p>This is a test paragraph with <strong>bold text</strong>.</p>
</main>
<footer>Footer stuff</footer>
</body>
</html>`

	title, text := Extract(raw)

	if title != "Test Page" {
		t.Errorf("title = %q, want 'Test Page'", title)
	}
	if !strings.Contains(text, "Hello World") {
		t.Errorf("text missing heading: %q", text)
	}
	if !strings.Contains(text, "bold text") {
		t.Errorf("text missing inline content: %q", text)
	}
	if strings.Contains(text, "var x = 1") {
		t.Error("text contains script body")
	}
	if strings.Contains(text, "Navigation stuff") {
		t.Error("text contains nav content")
	}
	if strings.Contains(text, "Footer stuff") {
		t.Error("text contains footer content")
	}
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Mafuyu/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello from test server</p></body></html>`))
	}))
	defer ts.Close()

	f := New()
	page, err := f.Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Title != "Test" {
		t.Errorf("title = %q", page.Title)
	}
	if !strings.Contains(page.Text, "Hello from test server") {
		t.Errorf("text = %q", page.Text)
	}
	if page.StatusCode != 200 {
		t.Errorf("status = %d", page.StatusCode)
	}
}

func TestFetchPlainText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Just plain text content"))
	}))
	defer ts.Close()

	f := New()
	page, err := f.Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Text != "Just plain text content" {
		t.Errorf("text = %q", page.Text)
	}
}

func TestFetchTruncation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer ts.Close()

	f := New()
	page, err := f.Fetch(context.Background(), ts.URL, 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !page.Truncated {
		t.Error("expected Truncated")
	}
	if got := len([]rune(page.Text)); got > 100 {
		t.Errorf("text length = %d runes, want <= 100", got)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	f := New()
	if _, err := f.Fetch(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	input := "  Hello   world  \n\n\n\n  Second line  \n\n\n Third  "
	got := collapseWhitespace(input)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("triple newline survived: %q", got)
	}
	if !strings.Contains(got, "Hello world") {
		t.Errorf("inner spaces not collapsed: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	s := "Héllo wörld café"
	got := truncateRunes(s, 5)
	if n := len([]rune(got)); n > 5 {
		t.Errorf("got %d runes: %q", n, got)
	}
}

// chatFunc adapts a function to the llm.Client interface for tests.
type chatFunc func(ctx context.Context, msgs []llm.Message) (string, error)

func (f chatFunc) Chat(ctx context.Context, msgs []llm.Message) (string, error) { return f(ctx, msgs) }
func (f chatFunc) Ping(ctx context.Context) error                               { return nil }

func TestReadURLTool(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Tool Test</title></head><body><p>Content here</p></body></html>`))
	}))
	defer ts.Close()

	reg := tools.NewRegistry(0)
	RegisterTool(reg, New(), nil)

	res := reg.Execute(context.Background(), "read_url", map[string]string{"url": ts.URL})
	if !res.OK() {
		t.Fatalf("tool error: %s", res.Payload)
	}
	if !strings.Contains(res.Payload, "Tool Test") || !strings.Contains(res.Payload, "Content here") {
		t.Errorf("payload = %q", res.Payload)
	}
}

func TestReadURLToolMissingURL(t *testing.T) {
	reg := tools.NewRegistry(0)
	RegisterTool(reg, New(), nil)

	res := reg.Execute(context.Background(), "read_url", map[string]string{})
	if res.OK() {
		t.Error("expected error result for missing url")
	}
}

func TestReadURLToolSummarizesLongPages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("long article text ", 1000)))
	}))
	defer ts.Close()

	called := false
	client := chatFunc(func(ctx context.Context, msgs []llm.Message) (string, error) {
		called = true
		return "condensed summary", nil
	})

	reg := tools.NewRegistry(0)
	RegisterTool(reg, New(), client)

	res := reg.Execute(context.Background(), "read_url", map[string]string{"url": ts.URL})
	if !res.OK() {
		t.Fatalf("tool error: %s", res.Payload)
	}
	if !called {
		t.Error("summarizer was not invoked")
	}
	if !strings.Contains(res.Payload, "condensed summary") {
		t.Errorf("payload = %q", res.Payload)
	}
}

func TestReadURLToolSummarizerFailureFallsBack(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("body ", 2000)))
	}))
	defer ts.Close()

	client := chatFunc(func(ctx context.Context, msgs []llm.Message) (string, error) {
		return "", errors.New("backend down")
	})

	reg := tools.NewRegistry(0)
	RegisterTool(reg, New(), client)

	res := reg.Execute(context.Background(), "read_url", map[string]string{"url": ts.URL})
	if !res.OK() {
		t.Fatalf("tool error: %s", res.Payload)
	}
	if !strings.Contains(res.Payload, "body") {
		t.Errorf("payload should contain raw text: %q", res.Payload)
	}
}

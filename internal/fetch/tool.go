package fetch

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/mikan1111/mafuyu/internal/llm"
	"github.com/mikan1111/mafuyu/internal/tools"
)

// summarizeThreshold is the extracted-text length above which the
// page is condensed by the model before being handed to the agent.
const summarizeThreshold = 6000

// RegisterTool adds the read_url tool. When client is non-nil, pages
// longer than summarizeThreshold runes are summarized instead of
// returned raw, so long articles fit in the result payload.
func RegisterTool(reg *tools.Registry, f *Fetcher, client llm.Client) {
	reg.Register(&tools.Tool{
		Name:        "read_url",
		Description: "Fetch a web page and return its readable text. Args: url (required), max_chars.",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			rawURL := args["url"]
			maxChars := 0
			if mc, err := strconv.Atoi(args["max_chars"]); err == nil && mc > 0 {
				maxChars = mc
			}

			page, err := f.Fetch(ctx, rawURL, maxChars)
			if err != nil {
				return "", err
			}

			text := page.Text
			if client != nil && utf8.RuneCountInString(text) > summarizeThreshold {
				if summary, err := summarize(ctx, client, page); err == nil && summary != "" {
					text = summary
				}
			}

			if page.Title != "" {
				return fmt.Sprintf("Title: %s\n\n%s", page.Title, text), nil
			}
			return text, nil
		},
	})
}

func summarize(ctx context.Context, client llm.Client, page *Page) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following web page in a few paragraphs, keeping concrete facts, names, and numbers.\n\nURL: %s\nTitle: %s\n\n%s",
		page.URL, page.Title, page.Text)
	return client.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
}

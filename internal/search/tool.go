package search

import (
	"context"
	"errors"
	"strconv"

	"github.com/mikan1111/mafuyu/internal/tools"
)

// RegisterTool adds the search_web tool backed by the manager's
// primary provider.
func RegisterTool(reg *tools.Registry, m *Manager) {
	reg.Register(&tools.Tool{
		Name:        "search_web",
		Description: "Search the web. Args: query (required), count, language.",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			query := args["query"]
			if query == "" {
				return "", errors.New("search_web: query is required")
			}
			if !m.Configured() {
				return "", errors.New("search_web: no search provider configured")
			}

			var opts Options
			if c, err := strconv.Atoi(args["count"]); err == nil && c > 0 {
				opts.Count = c
			}
			opts.Language = args["language"]

			results, err := m.Search(ctx, query, opts)
			if err != nil {
				return "", err
			}
			return FormatResults(results), nil
		},
	})
}

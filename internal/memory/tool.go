package memory

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/mikan1111/mafuyu/internal/tools"
)

// RegisterTool adds the recall_memory tool, which lets the model
// search its own long-term memory mid-conversation.
func RegisterTool(reg *tools.Registry, store Store) {
	reg.Register(&tools.Tool{
		Name:        "recall_memory",
		Description: "Search long-term memory by keywords. Args: user (required), keywords (required), limit.",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			userID := args["user"]
			if userID == "" {
				return "", errors.New("recall_memory: user is required")
			}
			keywords := Tokenize(args["keywords"])
			if len(keywords) == 0 {
				return "", errors.New("recall_memory: keywords are required")
			}

			limit := 0
			if n, err := strconv.Atoi(args["limit"]); err == nil && n > 0 {
				limit = n
			}

			recs, err := store.Search(userID, keywords, limit)
			if err != nil {
				return "", err
			}
			if len(recs) == 0 {
				return "No matching memories.", nil
			}

			var b strings.Builder
			for i, r := range recs {
				if i > 0 {
					b.WriteByte('\n')
				}
				b.WriteString(r.Timestamp.Format("2006-01-02"))
				b.WriteString(": ")
				b.WriteString(r.Content)
			}
			return b.String(), nil
		},
	})
}

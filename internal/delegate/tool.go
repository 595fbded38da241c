package delegate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikan1111/mafuyu/internal/tools"
)

// RegisterTools adds the delegation tools: start a coding job, poll
// its log tail, and stop it.
func RegisterTools(reg *tools.Registry, r *Runner) {
	reg.Register(&tools.Tool{
		Name:        "delegate_task",
		Description: "Hand a coding task to the external coding CLI as a background job. Args: prompt (required).",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			id, err := r.Start(args["prompt"])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Job %s started. Check progress with delegate_status.", id), nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "delegate_status",
		Description: "Check a delegated job's state and recent output. Args: job (optional, defaults to latest).",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			st, err := r.Status(args["job"])
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(st)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	})

	reg.Register(&tools.Tool{
		Name:        "delegate_stop",
		Description: "Stop a delegated job. Args: job (optional, defaults to latest).",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			if err := r.Stop(args["job"]); err != nil {
				return "", err
			}
			return "Job stopped.", nil
		},
	})
}

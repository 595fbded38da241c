// Package tools defines the capabilities available to the agent and the
// registry that normalizes their results.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// DefaultMaxPayload is the default cap on a tool result payload, in runes.
const DefaultMaxPayload = 2000

// Status reports whether a tool invocation succeeded.
type Status string

// Invocation statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Tool represents a callable capability.
type Tool struct {
	Name        string
	Description string
	// Handler executes the capability. Side effects are the tool's own
	// business; the registry only normalizes the outcome.
	Handler func(ctx context.Context, args map[string]string) (string, error)
}

// Result is the normalized outcome of a tool invocation. The payload is
// always capped by the registry, never by the tool.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Payload string `json:"payload"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

// Registry holds available tools and enforces the result contract.
type Registry struct {
	tools      map[string]*Tool
	maxPayload int
}

// NewRegistry creates a tool registry. maxPayload caps result payloads
// in runes; zero or negative uses DefaultMaxPayload.
func NewRegistry(maxPayload int) *Registry {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Registry{
		tools:      make(map[string]*Tool),
		maxPayload: maxPayload,
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns a prompt-ready listing of every tool and its description.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, name := range r.Names() {
		fmt.Fprintf(&b, "- %s: %s\n", name, r.tools[name].Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Execute runs a tool by name and normalizes any outcome into a Result.
// An unknown tool or a handler failure yields a StatusError result, never
// an error: the reasoning loop feeds these back to the model rather than
// aborting the exchange.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]string) Result {
	tool := r.tools[name]
	if tool == nil {
		return Result{
			Name:    name,
			Status:  StatusError,
			Payload: fmt.Sprintf("unknown tool %q (available: %s)", name, strings.Join(r.Names(), ", ")),
		}
	}

	payload, err := tool.Handler(ctx, args)
	if err != nil {
		return Result{
			Name:    name,
			Status:  StatusError,
			Payload: r.cap(err.Error()),
		}
	}

	return Result{
		Name:    name,
		Status:  StatusOK,
		Payload: r.cap(payload),
	}
}

// MaxPayload returns the configured payload cap in runes.
func (r *Registry) MaxPayload() int {
	return r.maxPayload
}

// cap truncates s to exactly maxPayload runes when it exceeds the cap.
func (r *Registry) cap(s string) string {
	runes := []rune(s)
	if len(runes) <= r.maxPayload {
		return s
	}
	return string(runes[:r.maxPayload])
}

// Package tools provides code execution capabilities for the agent.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// PythonExec runs python snippets as a subprocess. Disabled by default.
type PythonExec struct {
	enabled        bool
	python         string
	defaultTimeout time.Duration
	maxOutputBytes int
}

// PythonExecConfig configures the python executor.
type PythonExecConfig struct {
	Enabled        bool
	Python         string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// NewPythonExec creates a python snippet executor.
func NewPythonExec(cfg PythonExecConfig) *PythonExec {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 100 * 1024
	}
	return &PythonExec{
		enabled:        cfg.Enabled,
		python:         cfg.Python,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutputBytes: cfg.MaxOutputBytes,
	}
}

// Enabled reports whether code execution is available.
func (p *PythonExec) Enabled() bool {
	return p.enabled
}

// ExecResult contains the result of a snippet execution.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Exec runs a python snippet with a timeout and captured output.
func (p *PythonExec) Exec(ctx context.Context, code string) (*ExecResult, error) {
	if !p.enabled {
		return nil, fmt.Errorf("python execution is disabled")
	}
	if code == "" {
		return nil, fmt.Errorf("run_python: code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.python, "-c", code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: truncateOutput(stdout.String(), p.maxOutputBytes),
		Stderr: truncateOutput(stderr.String(), p.maxOutputBytes),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run python: %w", err)
		}
	}

	return result, nil
}

// truncateOutput truncates output to maxBytes, adding a note if truncated.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n\n[... output truncated ...]"
}

// RegisterPythonExec adds the run_python capability to a registry.
func RegisterPythonExec(r *Registry, p *PythonExec) {
	r.Register(&Tool{
		Name:        "run_python",
		Description: "Execute a python snippet and return its output. Args: code.",
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			result, err := p.Exec(ctx, args["code"])
			if err != nil {
				return "", err
			}
			out := result.Stdout
			if result.Stderr != "" {
				out += "\n[stderr]\n" + result.Stderr
			}
			if result.TimedOut {
				out += "\n[timed out]"
			}
			if out == "" {
				out = fmt.Sprintf("(no output, exit code %d)", result.ExitCode)
			}
			return out, nil
		},
	})
}

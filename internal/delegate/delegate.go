// Package delegate hands long coding tasks to an external coding CLI
// running as a background job. The agent starts a job, polls its log
// tail, and stops it when asked; the job outlives the exchange that
// started it.
package delegate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for job IDs the runner does not know.
var ErrNotFound = errors.New("delegate: job not found")

// ErrDisabled is returned when delegation is not configured.
var ErrDisabled = errors.New("delegate: disabled")

// JobState is the lifecycle state of a job.
type JobState string

const (
	StateRunning JobState = "running"
	StateDone    JobState = "done"
)

// Status is a point-in-time view of a job.
type Status struct {
	JobID     string   `json:"job_id"`
	State     JobState `json:"state"`
	ExitCode  int      `json:"exit_code"`
	LastLines []string `json:"last_lines,omitempty"`
}

type job struct {
	id      string
	prompt  string
	logPath string
	logFile *os.File
	cmd     *exec.Cmd

	mu       sync.Mutex
	done     bool
	exitCode int
}

// Runner starts and tracks coding-CLI jobs.
type Runner struct {
	logger    *slog.Logger
	command   []string
	workDir   string
	logDir    string
	tailLines int

	mu     sync.Mutex
	jobs   map[string]*job
	latest string
}

// NewRunner creates a runner. command is the full CLI invocation
// (e.g. "codex -a never"); the prompt is appended as the final
// argument. An empty command disables delegation.
func NewRunner(logger *slog.Logger, command, workDir, logDir string, tailLines int) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if tailLines <= 0 {
		tailLines = 80
	}
	if logDir == "" {
		logDir = "logs"
	}
	return &Runner{
		logger:    logger,
		command:   strings.Fields(command),
		workDir:   workDir,
		logDir:    logDir,
		tailLines: tailLines,
		jobs:      make(map[string]*job),
	}
}

// Enabled reports whether a coding CLI is configured.
func (r *Runner) Enabled() bool {
	return len(r.command) > 0
}

// Start launches a job for the prompt and returns its ID. The job's
// output streams to a log file under the runner's log directory.
func (r *Runner) Start(prompt string) (string, error) {
	if !r.Enabled() {
		return "", ErrDisabled
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("delegate: prompt is required")
	}

	id := uuid.NewString()[:8]
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return "", fmt.Errorf("delegate: create log dir: %w", err)
	}
	logPath := filepath.Join(r.logDir, fmt.Sprintf("delegate_%s.log", id))
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("delegate: create log file: %w", err)
	}

	args := append(append([]string(nil), r.command[1:]...), prompt)
	cmd := exec.Command(r.command[0], args...)
	cmd.Dir = r.workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		os.Remove(logPath)
		return "", fmt.Errorf("delegate: start job: %w", err)
	}

	j := &job{
		id:      id,
		prompt:  prompt,
		logPath: logPath,
		logFile: logFile,
		cmd:     cmd,
	}

	r.mu.Lock()
	r.jobs[id] = j
	r.latest = id
	r.mu.Unlock()

	go r.wait(j)

	r.logger.Info("delegate job started", "job", id, "log", logPath)
	return id, nil
}

// wait reaps the process and records its exit code.
func (r *Runner) wait(j *job) {
	err := j.cmd.Wait()

	j.mu.Lock()
	j.done = true
	j.exitCode = j.cmd.ProcessState.ExitCode()
	j.mu.Unlock()

	j.logFile.Close()

	if err != nil {
		r.logger.Warn("delegate job exited", "job", j.id, "error", err)
	} else {
		r.logger.Info("delegate job finished", "job", j.id)
	}
}

// lookup resolves a job ID; an empty ID means the latest job.
func (r *Runner) lookup(jobID string) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if jobID == "" {
		jobID = r.latest
	}
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, jobID)
	}
	return j, nil
}

// Status returns the job's state and the tail of its log.
func (r *Runner) Status(jobID string) (Status, error) {
	j, err := r.lookup(jobID)
	if err != nil {
		return Status{}, err
	}

	j.mu.Lock()
	st := Status{JobID: j.id, State: StateRunning}
	if j.done {
		st.State = StateDone
		st.ExitCode = j.exitCode
	}
	j.mu.Unlock()

	st.LastLines = tailLines(j.logPath, r.tailLines)
	return st, nil
}

// Stop terminates a running job, escalating to kill after a grace
// period.
func (r *Runner) Stop(jobID string) error {
	j, err := r.lookup(jobID)
	if err != nil {
		return err
	}

	j.mu.Lock()
	running := !j.done
	j.mu.Unlock()
	if !running {
		return nil
	}

	if err := j.cmd.Process.Signal(os.Interrupt); err != nil {
		return j.cmd.Process.Kill()
	}

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return j.cmd.Process.Kill()
		case <-tick.C:
			j.mu.Lock()
			done := j.done
			j.mu.Unlock()
			if done {
				return nil
			}
		}
	}
}

// tailLines reads the last n lines of the log file.
func tailLines(path string, n int) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Mafuyu is a conversational agent with a persistent personality.
//
// She keeps per-user emotional state and long-term memory, reasons in
// a bounded act-reflect loop with tool access, and talks over an HTTP
// API, a chat-gateway websocket bridge, or an interactive CLI.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	mafuyu serve               Start the API server (and bridge, when configured)
//	mafuyu chat                Talk interactively on the terminal
//	mafuyu ask <question>      Ask a single question (for testing)
//	mafuyu ingest <file.md>    Import a markdown journal into memory
//	mafuyu init [dir]          Initialize a working directory with defaults
//	mafuyu version             Print version and build information
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mikan1111/mafuyu/internal/agent"
	"github.com/mikan1111/mafuyu/internal/api"
	"github.com/mikan1111/mafuyu/internal/bridge"
	"github.com/mikan1111/mafuyu/internal/buildinfo"
	"github.com/mikan1111/mafuyu/internal/config"
	"github.com/mikan1111/mafuyu/internal/delegate"
	"github.com/mikan1111/mafuyu/internal/emotion"
	"github.com/mikan1111/mafuyu/internal/fetch"
	"github.com/mikan1111/mafuyu/internal/ingest"
	"github.com/mikan1111/mafuyu/internal/llm"
	"github.com/mikan1111/mafuyu/internal/memory"
	"github.com/mikan1111/mafuyu/internal/search"
	"github.com/mikan1111/mafuyu/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// and delegates immediately to [run] so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the mafuyu command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface is small enough that manual parsing is clearer
// than bringing in a CLI framework.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var user string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-user" && i+1 < len(args):
			user = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-user="):
			user = strings.TrimPrefix(args[i], "-user=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}
	if user == "" {
		user = "mikan"
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, stdin, stdout, configPath, user)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: mafuyu ask <question>")
		}
		return runAsk(ctx, stdout, configPath, user, strings.Join(cmdArgs, " "))
	case "ingest":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: mafuyu ingest <file.md>")
		}
		return runIngest(stdout, configPath, user, cmdArgs[0])
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Mafuyu - Conversational Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: mafuyu [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve         Start the API server (and bridge, when configured)")
	fmt.Fprintln(w, "  chat          Talk interactively on the terminal")
	fmt.Fprintln(w, "  ask           Ask a single question (for testing)")
	fmt.Fprintln(w, "  ingest        Import a markdown journal into memory")
	fmt.Fprintln(w, "  init [dir]    Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -user <id>        User identity for chat/ask/ingest (default: mikan)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

// app bundles everything a running command needs, with a single Close.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *agent.Session
	mem     memory.Store
	emo     emotion.Store
}

func (a *app) Close() {
	a.mem.Close()
	a.emo.Close()
}

// buildApp loads config and wires up the stores, tools, backend client
// and session that every conversational command shares.
func buildApp(stdout io.Writer, configPath string) (*app, error) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		if level, err = config.ParseLogLevel(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	logger := newLogger(stdout, level)
	logger.Info("config loaded", "path", cfgPath, "model", cfg.Models.Default, "provider", cfg.Models.Provider)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	mem, err := memory.NewSQLiteStore(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	emo, err := emotion.NewSQLiteStore(filepath.Join(cfg.DataDir, "emotion.db"))
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("open emotion database: %w", err)
	}

	client := createLLMClient(cfg, logger)
	registry := buildRegistry(cfg, logger, client, mem)

	session := agent.NewSession(agent.Options{
		Logger:        logger,
		Client:        client,
		Tools:         registry,
		Memory:        mem,
		Emotion:       emo,
		PersonaFile:   cfg.PersonaFile,
		FewshotFile:   cfg.FewshotFile,
		MaxTurns:      cfg.Session.MaxTurns,
		HistoryWindow: cfg.Session.HistoryWindow,
		MemoryHits:    cfg.Session.MemoryHits,
	})

	return &app{cfg: cfg, logger: logger, session: session, mem: mem, emo: emo}, nil
}

// createLLMClient picks the completion backend from config. Ollama is
// the default; Anthropic is used when selected and an API key is set.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	if cfg.Models.Provider == "anthropic" && cfg.Anthropic.APIKey != "" {
		logger.Info("Anthropic backend configured", "model", cfg.Models.Default)
		return llm.NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Models.Default, logger)
	}
	return llm.NewOllamaClient(cfg.Models.OllamaURL, cfg.Models.Default)
}

// buildRegistry registers every enabled tool.
func buildRegistry(cfg *config.Config, logger *slog.Logger, client llm.Client, mem memory.Store) *tools.Registry {
	reg := tools.NewRegistry(cfg.Session.ToolResultMaxChars)

	if cfg.Workspace.Path != "" {
		tools.RegisterFileTools(reg, tools.NewFileTools(cfg.Workspace.Path))
		logger.Info("file tools enabled", "workspace", cfg.Workspace.Path)
	}

	if cfg.PythonExec.Enabled {
		tools.RegisterPythonExec(reg, tools.NewPythonExec(tools.PythonExecConfig{
			Enabled:        true,
			Python:         cfg.PythonExec.Python,
			DefaultTimeout: time.Duration(cfg.PythonExec.TimeoutSec) * time.Second,
		}))
		logger.Info("python exec enabled", "python", cfg.PythonExec.Python)
	}

	if cfg.Search.SearXNG != "" || cfg.Search.BraveKey != "" {
		mgr := search.NewManager(cfg.Search.Primary)
		if cfg.Search.SearXNG != "" {
			mgr.Register(search.NewSearXNG(cfg.Search.SearXNG))
		}
		if cfg.Search.BraveKey != "" {
			mgr.Register(search.NewBrave(cfg.Search.BraveKey))
		}
		search.RegisterTool(reg, mgr)
		logger.Info("web search enabled", "primary", cfg.Search.Primary)
	} else {
		logger.Warn("web search disabled (no providers configured)")
	}

	fetch.RegisterTool(reg, fetch.New(), client)
	memory.RegisterTool(reg, mem)

	if cfg.Delegate.Enabled {
		runner := delegate.NewRunner(logger, cfg.Delegate.Command, cfg.Delegate.WorkDir,
			filepath.Join(cfg.DataDir, "logs"), cfg.Delegate.LogTailLines)
		delegate.RegisterTools(reg, runner)
		logger.Info("delegation enabled", "command", cfg.Delegate.Command)
	}

	return reg
}

// runServe handles the "mafuyu serve" subcommand: API server plus the
// optional chat-gateway bridge, until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	a, err := buildApp(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	logger.Info("starting Mafuyu", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.cfg.Bridge.Enabled {
		client := bridge.NewClient(a.cfg.Bridge.URL, a.cfg.Bridge.Token, logger)
		if err := client.Connect(ctx); err != nil {
			logger.Error("gateway connection failed, bridge disabled", "error", err)
		} else {
			defer client.Close()
			b := bridge.New(client, a.session, a.cfg.Bridge, logger)
			go b.Start(ctx)
		}
	}

	server := api.NewServer(logger, a.cfg.Listen.Address, a.cfg.Listen.Port, a.session, a.mem, a.emo)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Mafuyu stopped")
	return nil
}

// runChat handles the "mafuyu chat" subcommand: an interactive REPL on
// the terminal. "/clear" resets the conversation, "/exit" quits.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, configPath, user string) error {
	a, err := buildApp(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(stdout, "Mafuyu CLI (user=%s). /clear resets history, /exit quits.\n", user)

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/clear":
			a.session.ClearHistory(user)
			fmt.Fprintln(stdout, "(history cleared)")
			continue
		}

		reply, err := a.session.Respond(ctx, user, line)
		if err != nil && reply == "" {
			fmt.Fprintf(stdout, "error: %s\n", err)
			continue
		}
		if err != nil {
			fmt.Fprintf(stdout, "warning: %s\n", err)
		}
		fmt.Fprintln(stdout, reply)
	}
}

// runAsk handles the "mafuyu ask <question>" subcommand: one exchange,
// then exit. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath, user, question string) error {
	a, err := buildApp(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	reply, err := a.session.Respond(ctx, user, question)
	if err != nil && reply == "" {
		return fmt.Errorf("ask: %w", err)
	}
	if err != nil {
		fmt.Fprintf(stdout, "warning: %s\n", err)
	}
	fmt.Fprintln(stdout, reply)
	return nil
}

// runIngest handles the "mafuyu ingest <file.md>" subcommand. It
// imports a markdown journal into the memory store under -user.
func runIngest(stdout io.Writer, configPath, user, filePath string) error {
	a, err := buildApp(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := ingest.NewImporter(a.mem, user).IngestFile(filePath)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	a.logger.Info("ingestion complete", "records", count, "file", filePath, "user", user)
	fmt.Fprintf(stdout, "Imported %d memories from %s\n", count, filePath)
	return nil
}

// newLogger creates a structured text logger writing to w. All log
// output goes through slog; this helper standardizes the handler
// configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

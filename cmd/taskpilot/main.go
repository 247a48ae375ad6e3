package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/taskpilot/internal/config"
	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/engine/protocol"
	"github.com/ChamsBouzaiene/taskpilot/internal/project"
	"github.com/ChamsBouzaiene/taskpilot/internal/providers"
	"github.com/ChamsBouzaiene/taskpilot/internal/sandbox"
	"github.com/ChamsBouzaiene/taskpilot/internal/store"
	"github.com/ChamsBouzaiene/taskpilot/internal/telemetry"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitUsage     = 2
	exitAwaiting  = 3
	exitCancelled = 130
)

// stringList is a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

type runOptions struct {
	task          string
	criteriaCmd   string
	criteriaFiles stringList
	attempts      int
	repo          string
	pauseForInput bool
	eventsDB      string
	jsonMode      bool
	provider      string
	model         string
	sandboxMode   string
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "history" {
		os.Exit(runHistory(ctx, args[1:]))
	}
	os.Exit(runTask(ctx, args))
}

func parseRunFlags(args []string) (runOptions, error) {
	var o runOptions
	fs := flag.NewFlagSet("taskpilot", flag.ContinueOnError)
	fs.StringVar(&o.task, "task", "", "Task prompt (required)")
	fs.StringVar(&o.criteriaCmd, "criteria-cmd", "", "Shell command that must exit 0 for the task to succeed")
	fs.Var(&o.criteriaFiles, "criteria-file", "File that must exist for the task to succeed (repeatable)")
	fs.IntVar(&o.attempts, "attempts", 0, "Maximum goal-mode attempts (default from config, 1)")
	fs.StringVar(&o.repo, "repo", "", "Repository root (default: current directory)")
	fs.BoolVar(&o.pauseForInput, "pause-for-input", false, "Stop and report when the model asks a clarifying question")
	fs.StringVar(&o.eventsDB, "events-db", "", "SQLite file to persist events in")
	fs.BoolVar(&o.jsonMode, "json", false, "Emit NDJSON events on stdout and read pause/resume/cancel commands from stdin")
	fs.StringVar(&o.provider, "provider", "", "LLM provider (anthropic, openai, ...)")
	fs.StringVar(&o.model, "model", "", "Model name")
	fs.StringVar(&o.sandboxMode, "sandbox", "", "Command sandbox: host, docker or auto")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.task == "" && fs.NArg() > 0 {
		o.task = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(o.task) == "" {
		return o, errors.New("-task is required")
	}
	if o.attempts < 0 {
		return o, errors.New("-attempts must not be negative")
	}
	return o, nil
}

func runTask(ctx context.Context, args []string) int {
	opts, err := parseRunFlags(args)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "taskpilot: %v\n", err)
		}
		return exitUsage
	}
	// Keep stdout clean for the protocol.
	log.SetOutput(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("❌ %v", err)
		return exitUsage
	}

	repoRoot, err := resolveRepo(opts.repo)
	if err != nil {
		log.Printf("❌ %v", err)
		return exitUsage
	}
	log.Printf("📁 Repository root: %s", repoRoot)

	projCfg, err := project.LoadConfig(repoRoot)
	if err != nil {
		log.Printf("❌ %v", err)
		return exitUsage
	}
	rules, err := project.LoadRules(repoRoot)
	if err != nil {
		log.Printf("⚠️  %v", err)
	}
	applyProject(cfg, &opts, projCfg)
	applyFlags(cfg, opts)

	shutdown, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "taskpilot", ServiceVersion: version, OTLPEndpoint: cfg.Telemetry.OTLPEndpoint})
	if err != nil {
		log.Printf("⚠️  Tracing disabled: %v", err)
	} else {
		defer shutdown(context.WithoutCancel(ctx))
	}

	llm, model, err := providers.NewLLMClient(providers.Settings{
		Provider: cfg.Provider.Name,
		Model:    cfg.Provider.Model,
		APIKey:   cfg.Provider.APIKey,
		BaseURL:  cfg.Provider.BaseURL,
	})
	if err != nil {
		log.Printf("❌ %v", err)
		return exitUsage
	}

	sbCfg := sandbox.DefaultConfig()
	sbCfg.Mode = sandbox.ParseMode(cfg.Sandbox.Mode)
	if d := cfg.SandboxTimeout(); d > 0 {
		sbCfg.CmdTimeout = d
	}
	runner := sandbox.NewRunner(ctx, sbCfg)
	if closer, ok := runner.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	sinks := engine.Sinks{engine.LoggerSink{L: log.Default()}}
	if cfg.Events.DBPath != "" {
		es, err := store.Open(ctx, cfg.Events.DBPath)
		if err != nil {
			log.Printf("❌ %v", err)
			return exitFailed
		}
		defer es.Close()
		sinks = append(sinks, es)
	}
	if opts.jsonMode {
		sinks = append(sinks, protocol.NewWriter(os.Stdout))
	}

	task := engine.NewTask(opts.task)
	task.MaxAttempts = cfg.Goal.MaxAttempts
	if opts.criteriaCmd != "" || len(opts.criteriaFiles) > 0 {
		task.SuccessCriteria = &engine.SuccessCriteria{Command: opts.criteriaCmd, Files: opts.criteriaFiles}
	}

	exec, err := engine.NewExecutorBuilder().
		WithConfig(cfg.ExecutorConfig(model)).
		WithLLM(llm).
		WithToolRegistry(tools.NewToolRegistry(repoRoot, runner, tools.DefaultToolSet())).
		WithPauseForInput(opts.pauseForInput).
		WithRules(rules).
		WithSinks(sinks...).
		WithCommandRunner(sandbox.CommandRunner{Runner: runner, Dir: repoRoot, Timeout: sbCfg.CmdTimeout}).
		WithFileChecker(engine.OSFileChecker{Root: repoRoot}).
		Build(task)
	if err != nil {
		log.Printf("❌ %v", err)
		return exitUsage
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.jsonMode {
		go serveCommands(runCtx, os.Stdin, exec, cancel)
	}

	err = exec.Execute(runCtx)
	usage := exec.Usage()
	log.Printf("📊 Usage: %d turns, %d iterations, %d input / %d output tokens, $%.4f",
		usage.Turns, usage.Iterations, usage.InputTokens, usage.OutputTokens, usage.CostUSD)

	code := exitCodeFor(task.Status, err)
	switch code {
	case exitOK:
		log.Printf("✅ Task %s completed", task.ID)
	case exitAwaiting:
		var q *engine.AwaitingInputError
		if errors.As(err, &q) {
			fmt.Fprintln(os.Stderr, q.Question)
		}
		log.Printf("❓ Task %s is awaiting input", task.ID)
	case exitCancelled:
		log.Printf("🛑 Task %s cancelled", task.ID)
	default:
		log.Printf("❌ Task %s failed: %v", task.ID, err)
	}
	return code
}

func exitCodeFor(status engine.TaskStatus, err error) int {
	switch {
	case err == nil:
		return exitOK
	case status == engine.TaskAwaitingInput || errors.Is(err, engine.ErrAwaitingInput):
		return exitAwaiting
	case status == engine.TaskCancelled || errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitFailed
	}
}

func loadConfig() (*config.Config, error) {
	m, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	return m.Load()
}

// applyProject fills settings the flags left unset from the repository's
// .taskpilot/config.toml.
func applyProject(cfg *config.Config, o *runOptions, pc *project.ProjectConfig) {
	if pc == nil {
		return
	}
	if o.criteriaCmd == "" && len(o.criteriaFiles) == 0 {
		o.criteriaCmd = pc.CriteriaCommand
		o.criteriaFiles = append(stringList(nil), pc.CriteriaFiles...)
	}
	if pc.MaxAttempts > 0 {
		cfg.Goal.MaxAttempts = pc.MaxAttempts
	}
	if pc.Sandbox != "" {
		cfg.Sandbox.Mode = pc.Sandbox
	}
}

// applyFlags lets command-line flags override the loaded configuration.
func applyFlags(cfg *config.Config, o runOptions) {
	if o.provider != "" {
		cfg.Provider.Name = o.provider
	}
	if o.model != "" {
		cfg.Provider.Model = o.model
	}
	if o.attempts > 0 {
		cfg.Goal.MaxAttempts = o.attempts
	}
	if o.eventsDB != "" {
		cfg.Events.DBPath = o.eventsDB
	}
	if o.sandboxMode != "" {
		cfg.Sandbox.Mode = o.sandboxMode
	}
}

func resolveRepo(repo string) (string, error) {
	if repo == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		repo = wd
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("repository path is not a valid directory: %s", abs)
	}
	return abs, nil
}

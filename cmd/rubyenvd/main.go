package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/rubyenvd/rubyenvd/internal/api"
	"github.com/rubyenvd/rubyenvd/internal/auth"
	"github.com/rubyenvd/rubyenvd/internal/config"
	"github.com/rubyenvd/rubyenvd/internal/doctor"
	"github.com/rubyenvd/rubyenvd/internal/lock"
	"github.com/rubyenvd/rubyenvd/internal/log"
	"github.com/rubyenvd/rubyenvd/internal/manager"
	"github.com/rubyenvd/rubyenvd/internal/probe"
	"github.com/rubyenvd/rubyenvd/internal/registry"
	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
	"github.com/rubyenvd/rubyenvd/internal/store"
	"github.com/rubyenvd/rubyenvd/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "resolve":
		if hasHelpFlag(args) {
			printResolveHelp()
			return 0
		}
		return runResolve(args)
	case "config":
		return runConfigNoun(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`rubyenvd - Workspace-scoped Ruby environment resolution daemon

Usage:
  rubyenvd <command> [flags]

Commands:
  serve             Run the daemon in the foreground
  resolve           Resolve a workspace's ruby environment once and exit
  config check      Validate configuration and probe environment
  config show       Show the full resolved configuration
  watch             Real-time workspace monitoring TUI
  doctor            Alias for config check

General:
  --version         Show version information
  version           Show version information
  help              Show this help message
`)
}

func printServeHelp() {
	fmt.Println("Usage: rubyenvd serve [--config PATH]")
	fmt.Println()
	fmt.Println("Runs the resolution daemon in the foreground: registers configured")
	fmt.Println("workspaces, probes their rubies, and serves the HTTP API when enabled.")
	fmt.Println("SIGHUP reloads configuration and re-resolves every workspace.")
}

func printResolveHelp() {
	fmt.Println("Usage: rubyenvd resolve [--config PATH] [--workspace DIR] [--json]")
	fmt.Println()
	fmt.Println("Resolves the ruby environment for one workspace folder (or the")
	fmt.Println("no-folder default context) and prints the result. Exits non-zero")
	fmt.Println("when the probe fails.")
}

func printWatchHelp() {
	fmt.Println("Usage: rubyenvd watch [flags]")
	fmt.Println()
	fmt.Println("Real-time monitoring TUI. Shows daemon health, workspace rubies,")
	fmt.Println("and the change stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Daemon API URL (default: http://localhost:7879)")
	fmt.Println("  --api-key KEY    API Bearer Token (or RUBYENVD_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate workspaces")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: rubyenvd config check [--config PATH] [--format human|json]")
	fmt.Println("Validate configuration syntax and the probe environment.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: rubyenvd config show [--config PATH] [--json]")
	fmt.Println("Show the full resolved configuration with defaults applied.")
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: rubyenvd config <check|show> [flags]")
		return 1
	}

	if isHelpToken(args[0]) {
		fmt.Println("Usage: rubyenvd config <check|show> [flags]")
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

// --- ACTION IMPLEMENTATIONS ---

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("rubyenvd starting", "version", version)

	stateDir := filepath.Dir(cfg.State.Path)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		logger.Error("failed to create state directory", "dir", stateDir, "error", err)
		return 1
	}

	pidLockPath := filepath.Join(stateDir, "rubyenvd.lock")
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	scriptPath, err := probe.EnsureScript(stateDir)
	if err != nil {
		logger.Error("failed to materialize activation script", "dir", stateDir, "error", err)
		return 1
	}

	bus := rubyenv.NewBus()
	reg, err := registry.New(bus, store.NewKV(db), scriptPath, settingsFromConfig(cfg))
	if err != nil {
		logger.Error("failed to build workspace registry", "error", err)
		return 1
	}

	reg.ActivateAll(ctx, cfg.Workspaces)

	errCh := make(chan error, 2)

	if cfg.API.Enabled {
		reload := func(ctx context.Context) error {
			fresh, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			return reg.Reload(ctx, settingsFromConfig(fresh))
		}
		apiServer := api.New(apiConfigFromConfig(cfg), reg, bus, reload, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	logger.Info("rubyenvd running (press Ctrl+C to stop)")

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, reloading configuration")
				fresh, err := config.LoadOrDefault(*configPath)
				if err != nil {
					logger.Error("reload failed, keeping previous configuration", "error", err)
					continue
				}
				if err := reg.Reload(ctx, settingsFromConfig(fresh)); err != nil {
					logger.Error("reload failed, keeping previous configuration", "error", err)
				}
				continue
			}
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
			logger.Info("rubyenvd stopped")
			return 0
		case err := <-errCh:
			logger.Error("component failed", "error", err)
			cancel()
			return 1
		}
	}
}

func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	workspaceDir := fs.String("workspace", "", "Workspace folder to resolve (default: no-folder context)")
	jsonOut := fs.Bool("json", false, "Output the definition as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup("error", cfg.Service.LogFormat)

	ctx := context.Background()

	stateDir := filepath.Dir(cfg.State.Path)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create state directory: %v\n", err)
		return 1
	}

	db, err := store.Open(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	scriptPath, err := probe.EnsureScript(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to materialize activation script: %v\n", err)
		return 1
	}

	reg, err := registry.New(rubyenv.NewBus(), store.NewKV(db), scriptPath, settingsFromConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build workspace registry: %v\n", err)
		return 1
	}

	ws := rubyenv.DefaultWorkspaceContext()
	if *workspaceDir != "" {
		ws, err = rubyenv.NewWorkspaceContext(*workspaceDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid workspace dir: %v\n", err)
			return 1
		}
	}

	resolver := reg.EnsureContext(ctx, ws)
	def := resolver.Current()

	if *jsonOut {
		data, err := json.MarshalIndent(struct {
			Workspace  rubyenv.WorkspaceContext `json:"workspace"`
			Definition rubyenv.Definition       `json:"definition"`
		}{resolver.Workspace(), def}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		printDefinition(resolver.Workspace(), def)
	}

	if def.Kind == rubyenv.KindError {
		return 1
	}
	return 0
}

func printDefinition(ws rubyenv.WorkspaceContext, def rubyenv.Definition) {
	fmt.Printf("workspace: %s\n", ws.Name)
	fmt.Printf("state:     %s\n", def.Kind)
	if def.Kind != rubyenv.KindResolved {
		return
	}
	fmt.Printf("ruby:      %s\n", def.Version)
	if len(def.Capabilities) > 0 {
		tags := make([]string, 0, len(def.Capabilities))
		for _, c := range def.Capabilities {
			tags = append(tags, string(c))
		}
		fmt.Printf("jit:       %s\n", strings.Join(tags, ","))
	}
	for _, p := range def.GemPaths {
		fmt.Printf("gem path:  %s\n", p)
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	format := fs.String("format", "human", "Output format: human or json")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch *format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON instead of YAML")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render YAML: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:7879", "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("RUBYENVD_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or RUBYENVD_API_KEY env var.")
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- CONFIG ADAPTERS ---

func settingsFromConfig(cfg *config.Config) registry.Settings {
	shell := cfg.Ruby.Shell
	if shell == "" {
		shell = probe.DefaultShell()
	}
	// Manager validity is checked at config load.
	id, _ := manager.ParseID(cfg.Ruby.Manager)
	return registry.Settings{
		RubyPath:     cfg.Ruby.Path,
		Manager:      id,
		Shell:        shell,
		ProbeTimeout: cfg.Ruby.ProbeTimeout,
	}
}

func apiConfigFromConfig(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	return api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.Auth.APIKey,
		Tokens: tokens,
	}
}

// --- VERSION ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: rubyenvd version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("rubyenvd %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" && resolvedCommit != "unknown" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if resolvedBuildTime != "" && resolvedBuildTime != "unknown" {
		info.BuildTime = resolvedBuildTime
	}

	return info
}

func readBuildSetting(key string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func shortenCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

// --- HELPERS ---

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if isHelpToken(a) {
			return true
		}
	}
	return false
}

func isHelpToken(arg string) bool {
	switch arg {
	case "help", "--help", "-h":
		return true
	}
	return false
}

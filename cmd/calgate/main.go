// ABOUTME: Entry point for the calgate bot
// ABOUTME: Wires the Telegram dialogue, OAuth callback receiver, and handoff dispatcher under one lifecycle

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/calgate/calgate/internal/callback"
	"github.com/calgate/calgate/internal/config"
	"github.com/calgate/calgate/internal/correlate"
	"github.com/calgate/calgate/internal/engine"
	"github.com/calgate/calgate/internal/gcal"
	"github.com/calgate/calgate/internal/handoff"
	"github.com/calgate/calgate/internal/store"
	"github.com/calgate/calgate/internal/telegram"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _         _
  ___ __ _| |__ _ __ _| |_ ___
 / __/ _' | / _' |/ _' | __/ _ \
| (_| (_| | \ (_| | (_| | ||  __/
 \___\__,_|_|\__, |\__,_|\__\___|
             |___/
`

const shutdownTimeout = 10 * time.Second

// getConfigPath returns the path to the config file.
// Priority: CALGATE_CONFIG env var > XDG_CONFIG_HOME/calgate/calgate.yaml > ~/.config/calgate/calgate.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CALGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "calgate.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "calgate", "calgate.yaml")
}

// getDataPath returns the path to the data directory.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "calgate")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: calgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the bot and the authorization callback server")
		fmt.Println("  init      Create a new config file interactively")
		fmt.Println("  health    Check the callback server health")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Callback: %s\n", cfg.Callback.ListenAddr)
	fmt.Println()

	logger.Info("starting calgate",
		"config", configPath,
		"callback_addr", cfg.Callback.ListenAddr,
		"workers", cfg.Engine.Workers,
	)

	credStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer credStore.Close()

	gateway, err := gcal.NewGoogle(cfg.Google.ClientSecretFile, cfg.Google.RedirectURL, credStore, logger)
	if err != nil {
		return fmt.Errorf("creating calendar gateway: %w", err)
	}

	bot, err := telegram.New(cfg.Telegram.Token, logger)
	if err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}

	tokens := correlate.New(logger)
	queue := handoff.NewQueue(16)
	conv := engine.New(bot, gateway, credStore, tokens, logger)
	dispatcher := handoff.NewDispatcher(queue, tokens, credStore, bot, logger)
	receiver := callback.New(cfg.Callback.ListenAddr, gateway, queue, logger)
	pump := telegram.NewPump(conv, bot, cfg.Engine.Workers, logger)

	// Server component failures land here and trigger the shutdown path.
	errCh := make(chan error, 1)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := receiver.ListenAndServe(); err != nil {
			select {
			case errCh <- fmt.Errorf("callback server: %w", err):
			default:
			}
		}
	}()

	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	updates := bot.UpdatesChan(int(cfg.Telegram.PollTimeout.Seconds()))
	wg.Add(1)
	go func() {
		defer wg.Done()
		pump.Run(ctx, updates)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server component failed", "error", serveErr)
	}

	// Teardown order: stop taking updates and drain the HTTP listener first,
	// so an in-flight authorization can still enqueue its outcome. The
	// sentinel goes in only after the listener is closed; anything queued
	// behind it would be lost.
	bot.StopUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := receiver.Shutdown(shutdownCtx); err != nil {
		logger.Error("callback server shutdown failed", "error", err)
	}
	queue.Shutdown()

	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		logger.Error("dispatcher did not stop in time")
	}
	wg.Wait()

	logger.Info("calgate stopped")
	return serveErr
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Callback.ListenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("calgate configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "calgate.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Telegram Configuration ---")
	token := prompt(reader, "Bot token (or ${TELEGRAM_TOKEN})", "${TELEGRAM_TOKEN}")
	pollTimeout := prompt(reader, "Long-poll timeout", "30s")

	fmt.Println("\n--- Google Configuration ---")
	clientSecret := prompt(reader, "OAuth2 client secret file", filepath.Join(defaultDataPath, "client_secret.json"))
	redirectURL := prompt(reader, "Authorization redirect URL", "https://example.com/oauth2callback")

	fmt.Println("\n--- Callback Server ---")
	listenAddr := prompt(reader, "Listen address", config.DefaultListenAddr)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# calgate configuration\n")
	cfg.WriteString("# Generated by calgate init\n\n")

	cfg.WriteString("telegram:\n")
	cfg.WriteString(fmt.Sprintf("  token: \"%s\"\n", token))
	cfg.WriteString(fmt.Sprintf("  poll_timeout: \"%s\"\n", pollTimeout))
	cfg.WriteString("\n")

	cfg.WriteString("google:\n")
	cfg.WriteString(fmt.Sprintf("  client_secret_file: \"%s\"\n", clientSecret))
	cfg.WriteString(fmt.Sprintf("  redirect_url: \"%s\"\n", redirectURL))
	cfg.WriteString("\n")

	cfg.WriteString("callback:\n")
	cfg.WriteString(fmt.Sprintf("  listen_addr: \"%s\"\n", listenAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("engine:\n")
	cfg.WriteString(fmt.Sprintf("  workers: %d\n", config.DefaultWorkers))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the bot:")
	fmt.Printf("  calgate serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

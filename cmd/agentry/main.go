// ABOUTME: Entry point for the agentry authority server
// ABOUTME: Manages entity records, connectivity, and message routing for agents

package main

import (
	"context"
	"errors"
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

	"github.com/ikailo/agentry/internal/api"
	"github.com/ikailo/agentry/internal/auth"
	"github.com/ikailo/agentry/internal/capability"
	"github.com/ikailo/agentry/internal/config"
	"github.com/ikailo/agentry/internal/credential"
	"github.com/ikailo/agentry/internal/entity"
	"github.com/ikailo/agentry/internal/registry"
	"github.com/ikailo/agentry/internal/router"
	"github.com/ikailo/agentry/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                        _
  __ _  __ _  ___ _ __ | |_ _ __ _   _
 / _' |/ _' |/ _ \ '_ \| __| '__| | | |
| (_| | (_| |  __/ | | | |_| |  | |_| |
 \__,_|\__, |\___|_| |_|\__|_|   \__, |
       |___/                     |___/
`

// getConfigPath returns the path to the config file.
// Priority: AGENTRY_CONFIG env var > XDG_CONFIG_HOME/agentry/config.yaml > ~/.config/agentry/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AGENTRY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "agentry", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: agentry <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the authority server")
		fmt.Println("  bootstrap --name NAME  Create the first person and print a token")
		fmt.Println("  host --name NAME --owner ID  Register a host and print its secret")
		fmt.Println("  health                 Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "bootstrap":
		err = runBootstrap(ctx)
	case "host":
		err = runHost(ctx)
	case "health":
		err = runHealth(ctx)
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

	relay := router.NewLogRelay(nil)
	logger := setupLogger(cfg.Logging, relay)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting agentry",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stores := store.NewStores(db)

	reg := registry.New(logger)
	defer reg.Close()

	resolver := credential.NewResolver(stores, logger)

	caps := capability.NewRegistry(resolver, logger)
	registerBuiltins(caps)

	loopback := router.NewLoopback(nil, logger)
	rt := router.New(reg, loopback, cfg.Router.PromptTimeout, logger)
	loopback.BindReplies(rt.HandleReply)

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}
	mw := auth.NewMiddleware(issuer, stores.Persons, logger)

	apiServer := api.New(stores, reg, rt, resolver, caps, relay, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           apiServer.Routes(mw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	relay.Close()
	return nil
}

// registerBuiltins installs the in-process capability handlers.
func registerBuiltins(caps *capability.Registry) {
	caps.Register("echo", func(_ context.Context, _ string, args map[string]string) (string, error) {
		return args["text"], nil
	})
	caps.Register("clock", func(_ context.Context, _ string, _ map[string]string) (string, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	})
}

func setupLogger(cfg config.LoggingConfig, relay *router.LogRelay) *slog.Logger {
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

	return slog.New(router.NewRelayHandler(handler, relay))
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

// runBootstrap creates the first person and prints an API token.
func runBootstrap(ctx context.Context) error {
	name, err := flagValue(os.Args[2:], "--name", "-n")
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("--name flag is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("name exceeds maximum length of 100 characters")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stores := store.NewStores(db)

	first, last := splitName(name)
	person, err := stores.Persons.Create(ctx, &entity.Person{
		FirstName: first,
		LastName:  last,
	})
	if err != nil {
		return fmt.Errorf("creating person: %w", err)
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}
	token, err := issuer.Mint(person.ID)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Println("✓ Person created")
	fmt.Print("  ID:    ")
	cyan.Println(person.ID)
	fmt.Print("  Token: ")
	cyan.Println(token)
	return nil
}

// runHost registers a host for a person and prints the generated secret.
// The secret is shown exactly once; only its hash is stored.
func runHost(ctx context.Context) error {
	name, err := flagValue(os.Args[2:], "--name", "-n")
	if err != nil {
		return err
	}
	ownerID, err := flagValue(os.Args[2:], "--owner", "-o")
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("--name and --owner flags are required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stores := store.NewStores(db)

	secret, hash, err := auth.GenerateHostSecret()
	if err != nil {
		return err
	}

	host := &entity.Host{SecretHash: hash}
	host.Name = strings.TrimSpace(name)
	host.OwnerID = strings.TrimSpace(ownerID)
	host, err = stores.Hosts.Create(ctx, host)
	if err != nil {
		return fmt.Errorf("creating host: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	green.Println("✓ Host registered")
	fmt.Print("  ID:     ")
	cyan.Println(host.ID)
	fmt.Print("  Secret: ")
	cyan.Println(secret)
	yellow.Println("  Store the secret now; it cannot be recovered.")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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

// flagValue extracts one flag from args, supporting "--flag value" and
// "--flag=value" forms.
func flagValue(args []string, long, short string) (string, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == long || arg == short:
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", long)
			}
			return args[i+1], nil
		case strings.HasPrefix(arg, long+"="):
			return strings.TrimPrefix(arg, long+"="), nil
		case strings.HasPrefix(arg, short+"="):
			return strings.TrimPrefix(arg, short+"="), nil
		}
	}
	return "", nil
}

func splitName(name string) (first, last string) {
	parts := strings.SplitN(name, " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/api"
	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/config"
	"github.com/erazemk/sosed/internal/db"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/live"
	"github.com/erazemk/sosed/internal/messaging"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/profile"
	"github.com/erazemk/sosed/internal/store"
	"github.com/erazemk/sosed/internal/web"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. If logPath is non-empty, all
// levels are also written to that file. The returned cleanup closes it.
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

const usage = `Usage: sosed [flags]

Flags:
  -d, -db <path>          SQLite database path (default: sosed.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -e, -env <path>         dotenv file with SOSED_* settings (default: .env)
  -cookie-secure          mark session cookies Secure (behind HTTPS)
  -recent-limit <n>       items on the home page (default: 8)
  -h, -help               show this help and exit

Every flag can also be set as SOSED_<NAME> in the environment or the env file,
e.g. SOSED_ADDR=:9000 or SOSED_RECENT_LIMIT=12.
`

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"db":            "db",
	"d":             "db",
	"addr":          "addr",
	"a":             "addr",
	"user":          "admin_user",
	"u":             "admin_user",
	"log":           "log",
	"l":             "log",
	"cookie-secure": "cookie_secure",
	"recent-limit":  "recent_limit",
}

// parseFlags parses args and returns the env file path and the values of
// the flags that were given explicitly, keyed by configuration key.
func parseFlags(args []string, output io.Writer) (string, map[string]any, error) {
	fs := flag.NewFlagSet("sosed", flag.ContinueOnError)
	fs.SetOutput(output)

	defaults := config.Defaults()

	var dbPath string
	fs.StringVar(&dbPath, "db", defaults["db"].(string), "")
	fs.StringVar(&dbPath, "d", defaults["db"].(string), "")

	var addr string
	fs.StringVar(&addr, "addr", defaults["addr"].(string), "")
	fs.StringVar(&addr, "a", defaults["addr"].(string), "")

	var adminUser string
	fs.StringVar(&adminUser, "user", defaults["admin_user"].(string), "")
	fs.StringVar(&adminUser, "u", defaults["admin_user"].(string), "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var envFile string
	fs.StringVar(&envFile, "env", ".env", "")
	fs.StringVar(&envFile, "e", ".env", "")

	fs.Bool("cookie-secure", false, "")
	fs.Int("recent-limit", defaults["recent_limit"].(int), "")

	fs.Usage = func() { fmt.Fprint(output, usage) }

	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return "", nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.(flag.Getter).Get()
		}
	})
	return envFile, overrides, nil
}

func main() {
	envFile, overrides, err := parseFlags(os.Args[1:], os.Stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(envFile, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.DB); os.IsNotExist(err) {
		database, password, err := initDatabase(cfg.DB, cfg.AdminUser)
		if err != nil {
			slog.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		database.Close()

		printInitResult(cfg.DB, cfg.AdminUser, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	users, err := store.CountUsers(context.Background(), database)
	if err != nil {
		slog.Error("failed to count users", "error", err)
		os.Exit(1)
	}
	if users == 0 {
		slog.Warn("database has no active users; remove it to create a new admin account", "path", cfg.DB)
	}
	slog.Info("database ready", "path", cfg.DB, "users", users)

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	st := store.New(database)
	cat := catalog.New(st)
	cat.RecentLimit = cfg.RecentLimit
	led := ledger.New(st)
	hub := live.NewHub()
	msgs := messaging.New(st, hub)
	accounts := &auth.Accounts{DB: database, JWTSecret: jwtSecret}
	profiles := &profile.Aggregator{Users: st, Items: cat, Requests: led, Conversations: msgs}

	apiRouter := api.NewRouter(api.Deps{
		DB:        database,
		Accounts:  accounts,
		Catalog:   cat,
		Ledger:    led,
		Messaging: msgs,
		Profiles:  profiles,
	})
	webRouter, err := web.NewRouter(&web.Server{
		DB:           database,
		Accounts:     accounts,
		Catalog:      cat,
		Ledger:       led,
		Messaging:    msgs,
		Profiles:     profiles,
		Hub:          hub,
		CookieSecure: cfg.CookieSecure,
	})
	if err != nil {
		slog.Error("failed to set up web router", "error", err)
		os.Exit(1)
	}

	// Combine: API routes take priority, web routes handle the rest.
	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/", webRouter)

	handler := api.LoggingMiddleware(metrics.Middleware(mux))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing database")
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(path, adminUsername string) (*sqlx.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sqlx.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fail(err)
	}

	ctx := context.Background()
	if _, err := store.CreateUser(ctx, database, adminUsername, adminUsername, hash, model.RoleAdmin); err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/erazemk/lostfound/internal/api"
	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/blob"
	"github.com/erazemk/lostfound/internal/config"
	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/scheduler"
	"github.com/erazemk/lostfound/internal/store"
	"github.com/erazemk/lostfound/internal/workflow"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	level  slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.level
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. If logPath is non-empty, all
// levels are also written to that file. Returns a cleanup function that
// closes the log file (if opened).
func setupLogger(logPath, level string) (func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	cleanup := func() {}

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
		level:  lvl,
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

const usage = `Usage: lostfound [flags] [command]

Commands:
  serve     run the HTTP server (default)
  cleanup   delete unsurrendered found reports once and exit
  token     mint a bearer token for local testing

Flags:
`

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, args, err := config.Load(os.Args[1:], os.LookupEnv)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprint(os.Stdout, usage+config.Usage())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(cfg)
	case "cleanup":
		err = cleanupOnce(cfg)
	case "token":
		err = mintToken(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage+config.Usage())
		os.Exit(1)
	}
	if err != nil {
		slog.Error(command+" failed", "error", err)
		os.Exit(1)
	}
}

// openDatabase opens the database and applies pending migrations.
func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", path)
	return database, nil
}

// jwtSecret returns the configured secret, or the one stored in the
// database, generating it on first run.
func jwtSecret(ctx context.Context, cfg *config.Config, database *sql.DB) (string, error) {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret, nil
	}
	return store.EnsureSecret(ctx, database, store.SettingJWTSecret)
}

func openImages(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "s3":
		return blob.NewS3(ctx, cfg.S3)
	default:
		return blob.NewLocal(cfg.Dir)
	}
}

func newNotifier(ctx context.Context, cfg config.NotifyConfig) (notify.Notifier, error) {
	switch cfg.Backend {
	case "smtp":
		return notify.NewSMTPNotifier(cfg.SMTP)
	case "ses":
		return notify.NewSESNotifier(ctx, cfg.SES)
	default:
		return &notify.LogNotifier{Logger: slog.Default()}, nil
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	secret, err := jwtSecret(ctx, cfg, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	images, err := openImages(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening image store: %w", err)
	}

	notifier, err := newNotifier(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}
	dispatcher := notify.NewDispatcher(notifier, notify.DispatcherOptions{
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
	})
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	machine := workflow.New(database, workflow.Options{Publisher: dispatcher, Images: images})

	cleanup, err := scheduler.New(machine, scheduler.Config{
		Schedule:   cfg.Cleanup.Schedule,
		MaxAge:     cfg.Cleanup.MaxAge,
		RetryDelay: cfg.Cleanup.RetryDelay,
		RunOnStart: true,
	}, nil, nil)
	if err != nil {
		return err
	}
	// The cleanup loop must stop before the dispatcher and database close.
	waitCleanup := background(func() { cleanup.Run(ctx) })
	defer func() {
		stop()
		waitCleanup()
	}()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(database, machine, images, secret)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "images", cfg.Blob.Backend, "notify", cfg.Notify.Backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	slog.Info("server stopped, draining notifications")
	return nil
}

// background runs fn in its own goroutine and returns a function that
// blocks until fn has returned.
func background(fn func()) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return func() { <-done }
}

func cleanupOnce(cfg *config.Config) error {
	ctx := context.Background()
	database, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	images, err := openImages(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening image store: %w", err)
	}

	machine := workflow.New(database, workflow.Options{Images: images})
	cleanup, err := scheduler.New(machine, scheduler.Config{MaxAge: cfg.Cleanup.MaxAge}, nil, nil)
	if err != nil {
		return err
	}

	n, err := cleanup.RunOnce(ctx)
	fmt.Printf("Removed %d unsurrendered report(s).\n", n)
	return err
}

func mintToken(cfg *config.Config, args []string) error {
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	var id auth.Identity
	flagSet.StringVar(&id.UserID, "sub", "", "user id (token subject)")
	flagSet.StringVar(&id.Email, "email", "", "institutional email address")
	flagSet.StringVar(&id.Name, "name", "", "display name")
	flagSet.StringVar(&id.Role, "role", model.RoleRequestor, "requestor or admin")
	ttl := flagSet.Duration("ttl", auth.TokenExpiry, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if id.UserID == "" {
		id.UserID = strings.SplitN(id.Email, "@", 2)[0]
	}

	ctx := context.Background()
	database, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	secret, err := jwtSecret(ctx, cfg, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	tok, err := auth.GenerateToken(secret, id, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

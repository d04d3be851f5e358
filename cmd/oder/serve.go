package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/oder/internal/api"
	"github.com/erazemk/oder/internal/auth"
	"github.com/erazemk/oder/internal/store"
)

const serveUsage = `Usage: oder serve [flags]

Flags:
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -c, -config <path>      YAML config file
  -d, -db <path>          SQLite database path (default: oder.sqlite3)
  -l, -log <path>         log file path
  -h, -help               show this help and exit
`

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var g globals
	g.register(fs)

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var adminUser string
	fs.StringVar(&adminUser, "user", "", "")
	fs.StringVar(&adminUser, "u", "", "")

	if err := parse(fs, args, serveUsage, false); err != nil {
		return err
	}

	cfg, closeLog, err := g.load()
	if err != nil {
		return err
	}
	defer closeLog()
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if adminUser != "" {
		cfg.Auth.AdminUser = adminUser
	}

	// Create the database and the admin account on first run.
	if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
		database, password, err := initDatabase(cfg.Database.Path, cfg.Auth.AdminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.Database.Path, cfg.Auth.AdminUser, password)
		fmt.Println()
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database ready", "path", cfg.Database.Path)

	ctx := context.Background()
	svc, closeBackend, err := openService(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer closeBackend()

	// Load the JWT secret from the database unless one is configured.
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if secret, err = store.GetJWTSecret(ctx, database); err != nil {
			return fmt.Errorf("getting JWT secret: %w", err)
		}
	}
	tokens := auth.NewIssuer(secret, cfg.Auth.TokenTTL)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(database, svc, tokens))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go purgeRevocations(janitorCtx, database, time.Hour)

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr, "backend", cfg.Database.Driver)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// purgeRevocations drops expired token revocations every interval until ctx
// is done.
func purgeRevocations(ctx context.Context, db store.DBTX, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.PurgeRevokedTokens(ctx, db, now)
			if err != nil {
				slog.Error("purging revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("revoked tokens purged", "count", n)
			}
		}
	}
}

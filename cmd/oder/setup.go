package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oder/internal/config"
	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/db"
	"github.com/erazemk/oder/internal/model"
	"github.com/erazemk/oder/internal/store"
	"github.com/erazemk/oder/internal/store/mongostore"
)

// openDatabase opens the SQLite file and brings its schema up to date.
func openDatabase(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

// openService builds the custody service on the configured backend. The
// returned func releases the backend.
func openService(ctx context.Context, cfg *config.Config, database *sql.DB) (*custody.Service, func(), error) {
	var (
		backend custody.Store
		closer  = func() {}
	)
	switch cfg.Database.Driver {
	case config.DriverMongo:
		ms, err := mongostore.Open(ctx, cfg.Database.MongoURI, cfg.Database.MongoName)
		if err != nil {
			return nil, nil, fmt.Errorf("opening mongo backend: %w", err)
		}
		backend = ms
		closer = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Close(ctx); err != nil {
				slog.Error("closing mongo backend", "error", err)
			}
		}
	default:
		backend = store.NewLedger(database)
	}

	svc := custody.NewService(backend,
		custody.WithPolicy(cfg.Policy()),
		custody.WithRetry(cfg.RetryPolicy()),
		custody.WithLogger(slog.Default()),
	)
	return svc, closer, nil
}

// initDatabase creates a new database, migrates the schema, and creates the admin user.
func initDatabase(path, adminUsername string) (*sql.DB, string, error) {
	database, err := openDatabase(path)
	if err != nil {
		os.Remove(path)
		return nil, "", err
	}

	fail := func(format string, err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf(format, err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail("hashing password: %w", err)
	}

	if _, err := store.CreateUser(context.Background(), database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail("creating admin user: %w", err)
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

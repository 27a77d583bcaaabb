// Command migrate applies the embedded customer_projects schema.
//
//	migrate              apply all pending migrations
//	migrate down [n]     roll back n migrations (default 1)
//	migrate force <v>    mark version v as applied without running it
//	migrate version      print the current version
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/webklar/booking-platform/internal/config"
	appmigrations "github.com/webklar/booking-platform/migrations"
	"github.com/webklar/booking-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("migrate")

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	m, closeFn, err := openMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}
	err = run(m, os.Args[1:], os.Stdout)
	closeFn()
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

// openMigrator wires the embedded SQL files to a pgx-backed database/sql handle.
func openMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	target, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "booking_schema_migrations"})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("postgres driver: %w", err)
	}
	source, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("embedded source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("new migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func intArg(args []string, i, fallback int) (int, error) {
	if len(args) <= i {
		return fallback, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", args[i])
	}
	return n, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func run(m migrator, args []string, out io.Writer) error {
	if len(args) == 0 {
		args = []string{"up"}
	}

	switch args[0] {
	case "up":
		if err := ignoreNoChange(m.Up()); err != nil {
			return fmt.Errorf("up: %w", err)
		}
		fmt.Fprintln(out, "schema up to date")
	case "down":
		n, err := intArg(args, 1, 1)
		if err != nil {
			return fmt.Errorf("down: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("down: step count must be positive, got %d", n)
		}
		if err := ignoreNoChange(m.Steps(-n)); err != nil {
			return fmt.Errorf("down: %w", err)
		}
		fmt.Fprintf(out, "rolled back %d migration(s)\n", n)
	case "force":
		if len(args) < 2 {
			return errors.New("force: version required")
		}
		v, err := intArg(args, 1, 0)
		if err != nil {
			return fmt.Errorf("force: %w", err)
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force: %w", err)
		}
		fmt.Fprintf(out, "forced version %d\n", v)
	case "version":
		v, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			fmt.Fprintln(out, "no migrations applied")
		case err != nil:
			return fmt.Errorf("version: %w", err)
		default:
			fmt.Fprintf(out, "version %d dirty=%t\n", v, dirty)
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

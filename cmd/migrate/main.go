package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/feesettle/backend/internal/infrastructure/config"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/feesettle/backend/internal/infrastructure/migration"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	defaultMigrationsDir = "migrations"
	pingTimeout          = 10 * time.Second
)

// env carries what a subcommand may touch. migrator is nil for commands
// that only read the migrations directory.
type env struct {
	dir      string
	log      *zap.Logger
	migrator *migration.Migrator
}

type command struct {
	name    string
	args    string
	help    string
	offline bool
	run     func(e *env, args []string) error
}

var commands = []command{
	{name: "up", help: "Apply all pending migrations", run: func(e *env, _ []string) error {
		return e.migrator.Up()
	}},
	{name: "rollback", args: "[n]", help: "Roll back the last n migrations (default 1)", run: runRollback},
	{name: "goto", args: "<version>", help: "Migrate up or down to a version", run: runGoTo},
	{name: "status", help: "Show the applied version and pending migrations", run: runStatus},
	{name: "force", args: "<version>", help: "Record a version without running it (dirty state repair)", run: runForce},
	{name: "create", args: "<name> [desc]", help: "Scaffold a new up/down file pair", offline: true, run: runCreate},
	{name: "list", help: "List migrations found on disk", offline: true, run: runList},
}

func main() {
	dirFlag := flag.String("path", "", "Migrations directory (default ./migrations)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	envFile := flag.String("env", ".env", "Dotenv file loaded before reading the environment")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := lookup(flag.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", Output: "stderr", TimeFormat: time.DateTime})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cmd, flag.Args()[1:], *dirFlag, *envFile, log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", cmd.name), zap.Error(err))
	}
}

func run(cmd command, args []string, dirFlag, envFile string, log *zap.Logger) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Ignoring unreadable env file", zap.String("file", envFile), zap.Error(err))
	}

	dir, err := migrationsDir(dirFlag)
	if err != nil {
		return err
	}
	e := &env{dir: dir, log: log}
	log.Debug("Running migration command", zap.String("command", cmd.name), zap.String("dir", dir))

	if cmd.offline {
		return cmd.run(e, args)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if e.migrator, err = migration.New(db, dir, log); err != nil {
		return err
	}
	defer func() {
		if err := e.migrator.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return cmd.run(e, args)
}

func openDatabase() (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("reach %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}
	return db, nil
}

func runRollback(e *env, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		steps = n
	}
	return e.migrator.Rollback(steps)
}

func runGoTo(e *env, args []string) error {
	version, err := versionArg(args)
	if err != nil {
		return err
	}
	return e.migrator.GoTo(uint(version))
}

func runForce(e *env, args []string) error {
	version, err := versionArg(args)
	if err != nil {
		return err
	}
	return e.migrator.Force(int(version))
}

func versionArg(args []string) (uint64, error) {
	if len(args) == 0 {
		return 0, errors.New("version argument required")
	}
	v, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return v, nil
}

func runStatus(e *env, _ []string) error {
	st, err := e.migrator.Status()
	if err != nil {
		return err
	}
	e.log.Info("Schema status",
		zap.Uint("version", st.Version),
		zap.Bool("dirty", st.Dirty),
		zap.Int("pending", len(st.Pending)),
	)
	for _, p := range st.Pending {
		fmt.Printf("pending  %d  %s\n", p.Version, p.Name)
	}
	return nil
}

func runCreate(e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("migration name required")
	}
	desc := strings.Join(args[1:], " ")
	created, err := migration.Scaffold(e.dir, args[0], desc, time.Now())
	if err != nil {
		return err
	}
	e.log.Info("Migration created",
		zap.Uint64("version", created.Version),
		zap.String("up", created.UpPath),
		zap.String("down", created.DownPath),
	)
	return nil
}

func runList(e *env, _ []string) error {
	found, err := migration.ListMigrations(e.dir)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		e.log.Info("No migrations found", zap.String("dir", e.dir))
	}
	for _, m := range found {
		fmt.Printf("%d  %s\n", m.Version, m.Name)
	}
	return nil
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// migrationsDir prefers the flag, then ./migrations, then the repository
// layout relative to a binary in bin/<name>
func migrationsDir(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}
	if _, err := os.Stat(defaultMigrationsDir); err == nil {
		return filepath.Abs(defaultMigrationsDir)
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "..", "..", defaultMigrationsDir)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}
	return "", fmt.Errorf("no %s directory found; pass -path", defaultMigrationsDir)
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintln(w, "Fee settlement schema migrations")
	fmt.Fprintln(w, "\nUsage:\n  migrate [flags] <command> [arguments]\n\nCommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-24s %s\n", strings.TrimSpace(c.name+" "+c.args), c.help)
	}
	fmt.Fprintln(w, "\nFlags:")
	flag.PrintDefaults()
	fmt.Fprintf(w, "\nDatabase settings come from %s_DATABASE_* variables or config.yaml.\n", config.EnvPrefix)
}

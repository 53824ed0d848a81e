package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"stackagent/internal/infra/external/openai"
	infraPostgres "stackagent/internal/infra/postgres"
	"stackagent/internal/platform/config"
	"stackagent/internal/platform/database"
	"stackagent/internal/platform/logger"
	"stackagent/internal/platform/migration"
	"stackagent/internal/platform/telemetry"
	usecaseAPIKey "stackagent/internal/usecase/api_key"
)

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		slog.Error("admin command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		printUsage()
		return fmt.Errorf("missing command")
	}
	switch args[1] {
	case "keys":
		return runKeys(ctx, args[2:])
	case "migrate":
		return runMigrate(ctx, args[2:])
	case "providers":
		return runProviders(ctx, args[2:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[1])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  admin keys mint --name 'CI key' --description '...' --ttl 720h")
	fmt.Fprintln(os.Stderr, "  admin keys list")
	fmt.Fprintln(os.Stderr, "  admin keys revoke --id <uuid> --yes")
	fmt.Fprintln(os.Stderr, "  admin migrate up|down|version")
	fmt.Fprintln(os.Stderr, "  admin providers check")
}

func runKeys(ctx context.Context, args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("missing keys subcommand")
	}
	switch args[0] {
	case "mint":
		return runKeysMint(ctx, args[1:])
	case "list":
		return runKeysList(ctx, args[1:])
	case "revoke":
		return runKeysRevoke(ctx, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown keys subcommand: %s", args[0])
	}
}

func runKeysMint(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keys mint", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "key name (optional)")
	description := fs.String("description", "", "key description (optional)")
	ttl := fs.Duration("ttl", 0, "key lifetime, 0 means no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, service, closeAll, sentryEnabled, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	if sentryEnabled {
		defer telemetry.Recover()
	}

	params := usecaseAPIKey.GenerateParams{}
	if *name != "" {
		params.Name = name
	}
	if *description != "" {
		params.Description = description
	}
	effectiveTTL := *ttl
	if effectiveTTL == 0 {
		effectiveTTL = cfg.App.APIKeyTTL
	}
	if effectiveTTL > 0 {
		expiry := time.Now().UTC().Add(effectiveTTL)
		params.ExpiresAt = &expiry
	}

	generated, err := service.GenerateAPIKey(ctx, params)
	if err != nil {
		return fmt.Errorf("mint api key: %w", err)
	}

	// The plaintext is printed once and cannot be recovered afterwards.
	fmt.Printf("id:  %s\n", generated.ID)
	fmt.Printf("key: %s\n", generated.Key)
	if generated.ExpiresAt != nil {
		fmt.Printf("expires: %s\n", generated.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func runKeysList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keys list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, service, closeAll, sentryEnabled, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	if sentryEnabled {
		defer telemetry.Recover()
	}

	keys, err := service.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tEXPIRES\tSTATUS")
	now := time.Now().UTC()
	for _, key := range keys {
		name := "-"
		if key.Name != nil {
			name = *key.Name
		}
		expires := "-"
		if key.ExpiresAt != nil {
			expires = key.ExpiresAt.Format(time.RFC3339)
		}
		status := "active"
		if key.Expired(now) {
			status = "expired"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			key.ID, name, key.CreatedAt.Format(time.RFC3339), expires, status)
	}
	return w.Flush()
}

func runKeysRevoke(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keys revoke", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	idStr := fs.String("id", "", "key id (required)")
	yes := fs.Bool("yes", false, "required confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("--yes is required")
	}
	id, err := uuid.Parse(*idStr)
	if err != nil {
		return fmt.Errorf("--id must be a UUID: %w", err)
	}

	_, service, closeAll, sentryEnabled, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	if sentryEnabled {
		defer telemetry.Recover()
	}

	if err := service.RevokeAPIKey(ctx, id); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	fmt.Printf("revoked %s\n", id)
	return nil
}

func runMigrate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("missing migrate subcommand")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{
		Level:  logger.Level(cfg.App.LogLevel),
		Format: logger.Format(cfg.App.LogFormat),
	})
	logger.SetDefault(log)

	runner, err := migration.New(migration.Config{
		DatabaseURL:    cfg.Database.ConnectionString(),
		MigrationsPath: "file://migrations",
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("create migration runner: %w", err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			log.Error("failed to close migration runner", "error", err)
		}
	}()

	switch args[0] {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version: %d dirty: %v\n", version, dirty)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown migrate subcommand: %s", args[0])
	}
}

func runProviders(ctx context.Context, args []string) error {
	if len(args) < 1 || args[0] != "check" {
		printUsage()
		return fmt.Errorf("providers supports only 'check'")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Providers.OpenAIAPIKey == "" {
		fmt.Println("openai: not configured")
		return nil
	}

	client := openai.NewClient(openai.ClientConfig{APIKey: cfg.Providers.OpenAIAPIKey})
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := client.CheckCredentials(checkCtx); err != nil {
		return fmt.Errorf("openai credential check failed: %w", err)
	}
	fmt.Println("openai: ok")
	return nil
}

func connect(ctx context.Context) (*config.Config, *usecaseAPIKey.Service, func(), bool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, func() {}, false, fmt.Errorf("load config: %w", err)
	}

	sentryEnabled, err := telemetry.InitSentry(cfg.Sentry)
	if err != nil {
		return nil, nil, func() {}, false, fmt.Errorf("init sentry: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  logger.Level(cfg.App.LogLevel),
		Format: logger.Format(cfg.App.LogFormat),
	})
	if sentryEnabled {
		log = logger.WrapWithSentry(log)
	}
	logger.SetDefault(log)

	db, err := database.New(ctx, database.Config{
		ConnectionString: cfg.Database.ConnectionString(),
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		ConnectTimeout:   cfg.Database.ConnectTimeout,
	}, log)
	if err != nil {
		if sentryEnabled {
			telemetry.Flush(2 * time.Second)
		}
		return nil, nil, func() {}, sentryEnabled, fmt.Errorf("connect database: %w", err)
	}

	closeAll := func() {
		db.Close()
		if sentryEnabled {
			telemetry.Flush(2 * time.Second)
		}
	}

	service := usecaseAPIKey.NewService(usecaseAPIKey.Config{
		Repo:      infraPostgres.NewAPIKeyRepository(db.Pool),
		KeyPrefix: cfg.App.APIKeyPrefix,
		Logger:    log,
	})

	return cfg, service, closeAll, sentryEnabled, nil
}

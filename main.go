package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	_ "github.com/dataforge-io/profiler-engine/pkg/adapters/datasource/mssql"
	_ "github.com/dataforge-io/profiler-engine/pkg/adapters/datasource/postgres"
	"github.com/dataforge-io/profiler-engine/pkg/config"
	"github.com/dataforge-io/profiler-engine/pkg/database"
	"github.com/dataforge-io/profiler-engine/pkg/llm"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/repositories"
	"github.com/dataforge-io/profiler-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const usage = `profiler-engine <command> [flags]

Commands:
  profile         profile every table in the target database
  generate-rules  ask the AI collaborator for rule candidates over one table
  execute-rules   run approved rule candidates for one table
  migrate         apply pending engine store migrations and exit
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, logger, os.Args[2:]); err != nil {
		logger.Fatal("command failed",
			zap.String("command", command),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, command string, cfg *config.Config, logger *zap.Logger, args []string) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if command == "migrate" {
		return nil // openStore already migrated
	}

	reader, err := datasource.Open(ctx, cfg.Target.Type, cfg.Target.AdapterConfig())
	if err != nil {
		return fmt.Errorf("failed to open target database: %w", err)
	}
	defer reader.Close() //nolint:errcheck

	provider := llm.ProviderConfig{
		Provider:    cfg.AI.Provider,
		Endpoint:    cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		APIKey:      cfg.AI.APIKey,
		Temperature: cfg.AI.Temperature,
		Timeout:     time.Duration(cfg.AI.TimeoutSecs) * time.Second,
	}

	switch command {
	case "profile":
		svc := services.NewProfileRunService(reader, repositories.NewMetricRepository(store), cfg.Profiler, logger)
		result, err := svc.Run(ctx, nil)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "generate-rules":
		flags := flag.NewFlagSet("generate-rules", flag.ExitOnError)
		profileID := flags.String("profile", "", "profile run ID the candidates belong to")
		schema := flags.String("schema", "public", "target schema")
		table := flags.String("table", "", "target table")
		if err := flags.Parse(args); err != nil {
			return err
		}
		id, err := parseProfileID(*profileID)
		if err != nil {
			return err
		}
		if *table == "" {
			return fmt.Errorf("-table is required")
		}
		svc := newRuleService(reader, store, provider, cfg, logger)
		result, err := svc.GenerateCandidates(ctx, id, *schema, *table)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "execute-rules":
		flags := flag.NewFlagSet("execute-rules", flag.ExitOnError)
		profileID := flags.String("profile", "", "profile run ID the candidates belong to")
		schema := flags.String("schema", "public", "target schema")
		table := flags.String("table", "", "target table")
		if err := flags.Parse(args); err != nil {
			return err
		}
		id, err := parseProfileID(*profileID)
		if err != nil {
			return err
		}
		if *table == "" {
			return fmt.Errorf("-table is required")
		}
		svc := newRuleService(reader, store, provider, cfg, logger)
		outcomes, err := svc.ExecuteApproved(ctx, id, *schema, *table)
		if err != nil {
			return err
		}
		return printJSON(outcomes)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	connStr := cfg.Database.ConnString()
	store, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine store: %w", err)
	}

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func newRuleService(reader datasource.Reader, store *database.DB, provider llm.ProviderConfig, cfg *config.Config, logger *zap.Logger) services.RuleService {
	return services.NewRuleService(
		reader,
		llm.NewAdvisor(logger),
		repositories.NewRuleCandidateRepository(store),
		repositories.NewCustomRuleVersionRepository(store),
		repositories.NewExecutionRepository(store),
		provider,
		cfg.Profiler,
		logger,
	)
}

func parseProfileID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid -profile ID: %w", err)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/repository"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "payslipctl",
		Short:         "Operational commands for the payslips backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(logger), healthCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func openPool(ctx context.Context, logger *slog.Logger) (*pgxpool.Pool, func(), error) {
	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		return nil, nil, fmt.Errorf("DB_URL env var is required")
	}
	p, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { repository.Close(p, logger) }, nil
}

func migrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, cleanup, err := openPool(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := repository.Migrate(ctx, pool, logger); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func healthCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the database and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, cleanup, err := openPool(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
				return fmt.Errorf("database health: %w", err)
			}
			fmt.Println("database health OK")
			return nil
		},
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/llm/anthropic"
	"github.com/paysliphq/payslips-backend/internal/pipeline"
	"github.com/paysliphq/payslips-backend/internal/repository"
	"github.com/paysliphq/payslips-backend/internal/review"
	"github.com/paysliphq/payslips-backend/internal/server"
	"github.com/paysliphq/payslips-backend/internal/split"
	"github.com/paysliphq/payslips-backend/internal/validate"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, pool, logger); err != nil {
		logger.Error("applying migrations", "error", err)
		os.Exit(1)
	}

	batches := repository.NewBatchRepository(pool, logger)
	files := repository.NewFileRepository(pool, logger)
	records := repository.NewRecordRepository(pool, logger)
	employees := repository.NewEmployeeRepository(pool, logger)
	payrolls := repository.NewPayrollRepository(pool, logger)

	client := anthropic.NewClient(anthropic.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	}, logger)

	splitter := split.New(logger)
	engine := validate.NewEngine(client, logger)
	orchestrator := pipeline.NewOrchestrator(
		batches, files, records, payrolls,
		splitter, client, engine, cfg.LLM.Timeout, logger,
	)
	reviews := review.NewService(records, payrolls, logger)

	health := func(ctx context.Context) error {
		return repository.HealthCheck(ctx, pool, 3*time.Second, logger)
	}
	srv := server.NewServer(batches, files, records, employees, payrolls,
		orchestrator, reviews, splitter, health, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("stopped")
}

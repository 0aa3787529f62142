// Command upstream runs a local, deliberately unreliable payments API for
// exercising the settlement service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/acme/settlement/internal/config"
	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/logging"
	"github.com/acme/settlement/internal/repository"
	"github.com/acme/settlement/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	logger.Info("initializing database", "path", cfg.Upstream.DBPath)
	db, err := repository.InitDB(cfg.Upstream.DBPath)
	if err != nil {
		logger.Error("init db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	merchantRepo := repository.NewMerchantRepo(db)
	txnRepo := repository.NewTransactionRepo(db)

	count, err := merchantRepo.Count()
	if err != nil {
		logger.Error("count merchants", "error", err)
		os.Exit(1)
	}
	if count == 0 {
		logger.Info("database is empty, seeding from testdata")
		if err := seed(logger, merchantRepo, txnRepo); err != nil {
			logger.Warn("seeding failed", "error", err)
		}
	} else {
		logger.Info("database already seeded, skipping", "merchants", count)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort("", strconv.Itoa(cfg.Upstream.Port))
	server := &http.Server{
		Addr:    addr,
		Handler: upstream.NewRouter(merchantRepo, txnRepo, cfg.Upstream.PageSize, upstream.Chaos{Rate: cfg.Upstream.FailureRate}, logger),
	}

	go func() {
		logger.Info("payments API simulator listening", "addr", addr, "failure_rate", cfg.Upstream.FailureRate, "page_size", cfg.Upstream.PageSize)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func seed(logger *slog.Logger, merchants *repository.MerchantRepo, txns *repository.TransactionRepo) error {
	var ms []domain.Merchant
	if err := loadTestdata(logger, "merchants.json", &ms); err != nil {
		return err
	}
	n, err := merchants.BulkInsert(ms)
	if err != nil {
		return fmt.Errorf("insert merchants: %w", err)
	}
	logger.Info("seeded merchants", "inserted", n, "in_file", len(ms))

	// Kept raw so malformed records reach clients unchanged.
	var records []json.RawMessage
	if err := loadTestdata(logger, "transactions.json", &records); err != nil {
		return err
	}
	n, err = txns.BulkInsert(records)
	if err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	logger.Info("seeded transactions", "inserted", n, "in_file", len(records))
	return nil
}

func loadTestdata(logger *slog.Logger, name string, v any) error {
	candidates := []string{filepath.Join("testdata", name)}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", name),
			filepath.Join(dir, "..", "..", "testdata", name),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			logger.Info("loaded seed file", "path", path)
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find %s in any candidate path: %w", name, loadErr)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

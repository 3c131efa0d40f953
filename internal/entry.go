// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/intentmarket/internal/api"
	"github.com/starford/intentmarket/internal/ledger"
	"github.com/starford/intentmarket/internal/mcpserver"
	"github.com/starford/intentmarket/internal/sse"
	"github.com/starford/intentmarket/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger installs a structured JSON logger on w as the default and
// returns it with its level variable.
func newLogger(w io.Writer, level slog.Level) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(level)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv}))
	slog.SetDefault(logger)
	return logger, lv
}

// OpenLedger opens the configured store and builds a Ledger over it. The
// caller closes the returned store.
func OpenLedger(ctx context.Context, cfg *Config, logger *slog.Logger, extra ...ledger.Option) (*ledger.Ledger, storage.Provider, error) {
	programID, err := cfg.Ledger.ProgramPubkey()
	if err != nil {
		return nil, nil, fmt.Errorf("program id: %w", err)
	}
	store, err := storage.Open(ctx, cfg.Storage.Options())
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	opts := append([]ledger.Option{
		ledger.WithProgramID(programID),
		ledger.WithMatchOwner(cfg.Ledger.Policy()),
		ledger.WithLogger(logger),
	}, extra...)
	return ledger.New(store, opts...), store, nil
}

// publishReceipts forwards committed transactions to the SSE broker.
func publishReceipts(broker *sse.Broker) ledger.Notifier {
	return func(r ledger.Receipt) {
		broker.PublishLedgerEvent(sse.LedgerEvent{
			Type:      r.Event.Type,
			Address:   r.Event.Address.String(),
			Slot:      r.Slot,
			Signature: r.Signature,
			Record:    r.Event.Record,
		})
	}
}

// NewHTTPHandler builds the root router: health checks plus the API
// mounted under /api.
func NewHTTPHandler(l *ledger.Ledger, store storage.Provider, auth api.AuthSettings, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		slot, err := store.LastSlot(req.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "slot": slot})
	})

	// Mount API routes under /api; the SSE stream shares the API's auth.
	r.Mount("/api", api.NewRouter(l, auth, events))

	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, level := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("match_owner", cfg.Ledger.MatchOwner),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.Events.Throttle)
	defer broker.Close()

	l, store, err := OpenLedger(ctx, cfg, logger, ledger.WithNotifier(publishReceipts(broker)))
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("Ledger ready", slog.String("program_id", l.ProgramID().String()))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           NewHTTPHandler(l, store, cfg.Auth.Settings(), broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Apply log level changes from the config file.
	if app.configPath != "" {
		g.Go(func() error {
			if err := WatchConfig(gCtx, app.configPath, level, logger); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Closing the broker ends open SSE streams so Shutdown can drain.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group's context so the watcher stops with the
// server.
var errShutdown = errors.New("shutdown")

// ServeMCP serves the MCP tools over stdio. Logs go to stderr because
// stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, _ := newLogger(os.Stderr, app.config.App.LogLevel)

	l, store, err := OpenLedger(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("MCP server starting", slog.String("program_id", l.ProgramID().String()))
	return mcpserver.New(l, app.version).ServeStdio()
}

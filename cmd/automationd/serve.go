package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/automation/internal/api"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
	"github.com/gyaneshwarpardhi/automation/internal/config"
	"github.com/gyaneshwarpardhi/automation/internal/engine"
	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/execlog"
	"github.com/gyaneshwarpardhi/automation/internal/host"
	"github.com/gyaneshwarpardhi/automation/internal/kv"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

// prefUnits is the preference key for the display units.
const prefUnits = "units"

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addrOverride string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loader, cfg, err := loadConfig(opts, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log.SlogLevel())
	if addrOverride != "" {
		cfg.HTTP.Addr = addrOverride
	}

	// ── Collaborators ─────────────────────────────────────────────────────────
	bus := event.NewBus(cfg.Engine.BusBuffer, logger)
	defer bus.Close()

	kvs, err := kv.Open(ctx, kv.Config{Backend: cfg.Storage.Backend, Path: cfg.Storage.Path, Logger: logger})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kvs.Close()

	st := store.New(bus)
	execLog := execlog.New()
	initial := host.DefaultState()
	initial.Units = condition.Units(cfg.Preferences.Units)
	hostState := host.NewMemory(initial, logger)

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(engine.Deps{
		Store:       st,
		Log:         execLog,
		Bus:         bus,
		KV:          kvs,
		Env:         hostState,
		Services:    hostState,
		Loop:        hostState.Loop(),
		Pump:        hostState.Pump(),
		Constraints: hostState,
		Location:    host.NewLoggingLocation(logger),
		Logger:      logger,
	}, engine.Config{
		Interval:     cfg.Engine.Interval,
		SettleDelay:  cfg.Engine.SettleDelay,
		PostRunDelay: cfg.Engine.PostRunDelay,
		QueueDepth:   cfg.Engine.PassQueueDepth,
		LogKeep:      cfg.Engine.LogKeep,
		Key:          cfg.Storage.Key,
	})
	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	logger.Info("rules loaded", "count", st.Size(), "backend", cfg.Storage.Backend)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	if loader != nil {
		loader.OnChange(onPreferencesChanged(hostState, bus, logger))
		stopWatch, err := loader.Watch()
		if err != nil {
			logger.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.New(api.Deps{
			Engine: eng,
			Store:  st,
			Log:    execLog,
			Bus:    bus,
			Host:   hostState,
			Logger: logger,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	eng.Start(gctx)

	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down…")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		eng.Shutdown()
		return err
	})

	err = g.Wait()
	logger.Info("goodbye")
	return err
}

// onPreferencesChanged applies changed preferences to the host and announces
// each changed key on the bus.
func onPreferencesChanged(hostState *host.Memory, bus *event.Bus, logger *slog.Logger) func(old, cur *config.Config) {
	return func(old, cur *config.Config) {
		for _, key := range config.ChangedPreferences(old, cur) {
			logger.Info("preference changed", "key", key)
			if key == prefUnits {
				hostState.Update(func(s *host.State) { s.Units = condition.Units(cur.Preferences.Units) })
			}
			bus.Publish(event.New(event.KindPreferenceChanged, event.PreferenceChange{Key: key}))
		}
	}
}

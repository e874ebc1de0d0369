package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/metrics"
	"github.com/sandeepkv93/remindd/internal/update"
)

func runCmd() *cobra.Command {
	var headless bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reminder engine with the alert console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !headless {
				// the console owns the terminal; only errors reach stderr
				logger = logger.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))
			}
			feed := update.NewNarrativeFeed(16)
			a, err := buildApp(ctx, cfg, logger, wireOptions{console: !headless, onNarrative: feed.Push})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.shutdown(); err != nil {
					logger.Warn("shutdown", zap.Error(err))
				}
			}()

			srv := serveMetrics(cfg.MetricsAddr, a.metrics)
			if srv != nil {
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}

			if err := a.engine.Load(ctx); err != nil {
				logger.Warn("initial load failed", zap.Error(err))
			}
			a.engine.Start(ctx)
			logger.Info("engine started", zap.Duration("poll_interval", cfg.PollInterval), zap.String("permission", string(a.emitter.RequestPermission())))

			if headless {
				<-ctx.Done()
				return nil
			}

			model := update.NewModel(a.engine, a.emitter.Alerts(), feed.C(), update.RuntimeConfigFromEnv(update.DefaultRuntimeConfig())).WithContext(ctx)
			program := tea.NewProgram(model, tea.WithContext(ctx))
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the alert console")
	return cmd
}

// serveMetrics exposes /metrics on addr. An empty addr disables it.
func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

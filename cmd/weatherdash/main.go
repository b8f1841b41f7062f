package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mbeverdam/weatherdash/internal/config"
	"github.com/mbeverdam/weatherdash/internal/dashboard"
	"github.com/mbeverdam/weatherdash/internal/gateway"
	"github.com/mbeverdam/weatherdash/internal/httpapi"
	"github.com/mbeverdam/weatherdash/internal/observability"
	"github.com/mbeverdam/weatherdash/internal/provider"
	"github.com/mbeverdam/weatherdash/internal/radar"
	"github.com/mbeverdam/weatherdash/internal/scheduler"
	"github.com/mbeverdam/weatherdash/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "weatherdash",
		Short: "Freshness-aware weather dashboard with an offline caching gateway",
	}
	root.AddCommand(serveCmd(), fetchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the constructed components plus their closers.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	dash      *dashboard.Dashboard
	cachePing func() error
	closers   []func() error
}

func (a *app) close() {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			a.logger.Error("close", zap.Error(err))
		}
	}
}

// buildApp constructs the dashboard and its dependencies from config.
func buildApp(logger *zap.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	var primary store.Medium
	switch cfg.StoreBackend {
	case "memcached":
		mc := store.NewMemcachedMedium(cfg.MemcachedAddrs, cfg.MemcachedTimeout, 2)
		a.cachePing = mc.Ping
		a.closers = append(a.closers, mc.Close)
		primary = mc
		logger.Info("store backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		fm, err := store.NewFileMedium(cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("file medium: %w", err)
		}
		primary = fm
		logger.Info("store backend: file", zap.String("dir", cfg.StoreDir))
	}
	secondary := store.NewCookieMedium(cfg.CookiePath, 0)
	st := store.New(primary, secondary, logger, store.WithTTL(cfg.StoreTTL))

	var adapter provider.Adapter
	switch cfg.Provider {
	case "buienradar":
		adapter = provider.NewBuienradarAdapter(cfg.ProviderBaseURL, cfg.ProviderTimeout)
	default:
		adapter = provider.NewWttrAdapter(cfg.ProviderBaseURL, cfg.ProviderTimeout)
	}
	logger.Info("weather provider", zap.String("name", adapter.Name()))

	radarClient := radar.NewClient(cfg.RadarURL, cfg.RadarTimeout)

	dash, err := dashboard.New(st, adapter, radarClient, cfg.Locations, logger,
		dashboard.WithLoadTimeout(cfg.LoadTimeout))
	if err != nil {
		return nil, err
	}
	if cfg.DefaultLocation != "" {
		if err := dash.SelectLocation(cfg.DefaultLocation); err != nil {
			return nil, fmt.Errorf("default location: %w", err)
		}
	}
	a.dash = dash
	return a, nil
}

// buildGateway constructs and activates the interception gateway.
func buildGateway(ctx context.Context, a *app) (*gateway.Gateway, error) {
	var partitions gateway.PartitionStore
	switch a.cfg.GatewayBackend {
	case "redis":
		rs, err := gateway.NewRedisPartitionStore(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("redis partition store: %w", err)
		}
		a.closers = append(a.closers, rs.Close)
		partitions = rs
		a.logger.Info("gateway backend: redis", zap.String("addr", a.cfg.RedisAddr))
	default:
		partitions = gateway.NewMemoryPartitionStore()
		a.logger.Info("gateway backend: memory")
	}

	classifier := gateway.NewClassifier(a.cfg.StaticAssets, a.cfg.WeatherPatterns)
	gw, err := gateway.New(gateway.Options{
		Store:           partitions,
		Version:         a.cfg.GatewayVersion,
		WeatherTTL:      a.cfg.GatewayWeatherTTL,
		Origin:          a.cfg.GatewayOrigin,
		StartPage:       a.cfg.GatewayStartPage,
		DefaultLocation: a.cfg.DefaultLocationModel(),
		Logger:          a.logger,
	}, classifier)
	if err != nil {
		return nil, err
	}
	if err := gw.Activate(ctx); err != nil {
		return nil, fmt.Errorf("gateway activation: %w", err)
	}
	return gw, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API and caching gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observability.NewLogger()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(logger)
			if err != nil {
				return err
			}
			defer a.close()

			var gw http.Handler
			if a.cfg.GatewayEnabled {
				g, err := buildGateway(cmd.Context(), a)
				if err != nil {
					return err
				}
				gw = g
			}

			sched := scheduler.New(a.dash, a.cfg.RefreshInterval, logger)
			if err := sched.Start(); err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			defer sched.Stop()

			limiter := rate.NewLimiter(rate.Limit(a.cfg.RateLimitRPS), a.cfg.RateLimitBurst)
			handler := httpapi.NewHandler(a.dash, logger, a.cachePing)
			router := httpapi.NewRouter(handler, gw, logger, limiter, a.cfg.RequestTimeout)

			srv := &http.Server{
				Addr:    ":" + a.cfg.ServerPort,
				Handler: router,
			}

			go func() {
				logger.Info("server starting", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("server", zap.Error(err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			logger.Info("graceful shutdown triggered")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown", zap.Error(err))
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the current weather view once and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observability.NewLogger()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(logger)
			if err != nil {
				return err
			}
			defer a.close()

			view := a.dash.Init(cmd.Context())
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/wormhole-keeper/keeper-app/config"
	apisrv "github.com/compose-network/wormhole-keeper/server/api"
	"github.com/compose-network/wormhole-keeper/x/finality"
	"github.com/compose-network/wormhole-keeper/x/keeper"
	keeperhttp "github.com/compose-network/wormhole-keeper/x/keeper/http"
	"github.com/compose-network/wormhole-keeper/x/l1"
	"github.com/compose-network/wormhole-keeper/x/lock"
	periodrunner "github.com/compose-network/wormhole-keeper/x/period-runner"
	"github.com/compose-network/wormhole-keeper/x/starknet"
)

// App wires the L1 and L2 clients, the finality monitor and the keeper.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	registry *prometheus.Registry
	metrics  *keeper.Metrics
	keeper   *keeper.Keeper

	shutdownFns []func() error
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:      cfg,
		log:      log.With().Str("component", "app").Logger(),
		registry: prometheus.NewRegistry(),
	}

	if err := app.initialize(ctx, log); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return app, nil
}

func (a *App) initialize(ctx context.Context, log zerolog.Logger) error {
	kcfg, err := a.cfg.KeeperConfig()
	if err != nil {
		return err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = keeper.NewMetricsWith(a.registry)

	l2Client, err := starknet.NewClient(a.cfg.L2, log)
	if err != nil {
		return fmt.Errorf("failed to create L2 client: %w", err)
	}

	l1Client, err := l1.Dial(ctx, a.cfg.L1, log)
	if err != nil {
		return fmt.Errorf("failed to create L1 client: %w", err)
	}
	a.shutdownFns = append(a.shutdownFns, func() error {
		l1Client.Close()
		return nil
	})

	monitor := finality.NewMonitor(l2Client, finality.Config{
		PollInterval: a.cfg.Keeper.PollInterval,
		Timeout:      a.cfg.Keeper.FinalityTimeout,
	}, a.metrics, log)

	locker, err := a.initializeLocker(ctx, log)
	if err != nil {
		return err
	}

	k, err := keeper.New(kcfg, l2Client, l1Client, monitor, log,
		keeper.WithLocker(locker),
		keeper.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create keeper: %w", err)
	}
	a.keeper = k

	a.log.Info().
		Str("network", a.cfg.Network).
		Str("domain", kcfg.Domain.Name()).
		Stringer("policy", kcfg.Policy).
		Uint64("flush_delay_blocks", kcfg.FlushDelayBlocks).
		Bool("require_message_delivered", kcfg.RequireMessageDelivered).
		Str("l1_gateway", l1Client.GatewayAddress().Hex()).
		Msg("Keeper initialized")
	return nil
}

// initializeLocker returns the Redis lock when configured, the no-op lock otherwise.
func (a *App) initializeLocker(ctx context.Context, log zerolog.Logger) (lock.Locker, error) {
	if a.cfg.Lock.URL == "" {
		return lock.NewNoop(), nil
	}
	rl, err := lock.NewRedis(ctx, a.cfg.Lock, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create domain lock: %w", err)
	}
	a.shutdownFns = append(a.shutdownFns, rl.Close)
	return rl, nil
}

// Keeper exposes the engine to the one-shot commands.
func (a *App) Keeper() *keeper.Keeper { return a.keeper }

// Run starts the status API and drives Cycle every run interval until ctx is
// cancelled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := keeperhttp.NewHandler(a.keeper, a.cfg.Domain, a.cfg.Keeper.StatusTimeout, a.log)

	api := apisrv.NewServer(a.cfg.API, a.log)
	handler.RegisterMux(api.Router)

	servers := []*apisrv.Server{api}
	if a.cfg.Metrics.Enabled {
		if a.cfg.Metrics.Port > 0 {
			mcfg := apisrv.DefaultConfig()
			mcfg.ListenAddr = fmt.Sprintf(":%d", a.cfg.Metrics.Port)
			mcfg.MetricsPath = a.cfg.Metrics.Path
			msrv := apisrv.NewServer(mcfg, a.log)
			msrv.HandleMetrics(a.registry)
			servers = append(servers, msrv)
		} else {
			api.HandleMetrics(a.registry)
		}
	}

	runner := periodrunner.NewLocalPeriodRunner(periodrunner.PeriodRunnerConfig{
		Interval: a.cfg.Keeper.RunInterval,
		Logger:   a.log.With().Str("component", "period-runner").Logger(),
		Handler: func(ctx context.Context, info periodrunner.PeriodInfo) error {
			a.log.Info().Uint64("period_id", info.PeriodID).Msg("Starting keeper cycle")
			res, err := a.keeper.Cycle(ctx)
			handler.RecordCycle(res, err)
			return err
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error { return srv.Start(gctx) })
	}
	if err := runner.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runner.Stop(stopCtx); err != nil {
			a.log.Warn().Err(err).Msg("Keeper cycle still running at shutdown")
		}
		return nil
	})

	a.log.Info().
		Dur("run_interval", a.cfg.Keeper.RunInterval).
		Str("api_addr", a.cfg.API.ListenAddr).
		Msg("Keeper running")

	err := g.Wait()
	if cerr := a.Close(); cerr != nil {
		a.log.Warn().Err(cerr).Msg("Shutdown finished with errors")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.shutdownFns) - 1; i >= 0; i-- {
		if err := a.shutdownFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdownFns = nil
	return errors.Join(errs...)
}

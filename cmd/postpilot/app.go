package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/entrhq/postpilot/pkg/browser"
	"github.com/entrhq/postpilot/pkg/config"
	"github.com/entrhq/postpilot/pkg/coordinator"
	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/metrics"
	"github.com/entrhq/postpilot/pkg/pageagent"
	"github.com/entrhq/postpilot/pkg/status"
)

// app wires the components one invocation needs.
type app struct {
	cfg *config.Config
	log *logging.Logger

	store    status.Store
	redis    *redis.Client
	bus      *status.Bus
	relay    *status.Relay
	registry *prometheus.Registry
	metrics  *metrics.Collector

	manager *browser.Manager
	tabs    *browser.Tabs
	coord   *coordinator.Coordinator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newApp builds the status channel and, when withBrowser is set, launches
// the browser and the coordinator on top of it.
func newApp(ctx context.Context, cfg *config.Config, withBrowser bool) (*app, error) {
	level, err := logging.ParseVerbosity(cfg.Logging.Verbosity)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)

	a := &app{cfg: cfg}
	a.log, err = logging.NewLogger("cli")
	if err != nil {
		a.log.Warnf("Failed to initialize cli logger, using stderr fallback: %v", err)
	}
	a.log.Infof("Session %s started (verbosity %s)", logging.GetSessionID(), cfg.Logging.Verbosity)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewCollector("postpilot", a.registry)

	a.bus = status.NewBus(status.WithDropHook(a.metrics.EventDropped))
	a.relay = status.NewRelay(a.store, a.bus)

	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.goRun(func() { status.NewSweeper(a.store, cfg.Status.SweepInterval).Run(bg) })

	if cfg.Metrics.Addr != "" {
		a.goRun(func() {
			if err := metrics.Serve(bg, cfg.Metrics.Addr, a.registry); err != nil {
				a.log.Errorf("Metrics server stopped: %v", err)
			}
		})
	}

	if withBrowser {
		if err := a.startBrowser(); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Status.Backend {
	case config.BackendRedis:
		client, err := status.DialRedis(ctx, a.cfg.Status.Redis)
		if err != nil {
			return err
		}
		a.redis = client
		a.store = status.NewRedisStore(client, a.cfg.Status.Redis.Prefix, a.cfg.Status.Retention)
	default:
		a.store = status.NewMemoryStore(a.cfg.Status.Retention)
	}
	return nil
}

func (a *app) startBrowser() error {
	loader, err := a.cfg.Loader()
	if err != nil {
		return err
	}

	a.manager = browser.NewManager(a.cfg.BrowserOptions())
	if err := a.manager.Start(); err != nil {
		return err
	}

	tabs, err := browser.NewTabs(a.manager, a.cfg.Site.TargetURL, a.cfg.Site.PagePatterns, a.relay.Emit,
		browser.WithAgentOptions(
			pageagent.WithTimings(a.cfg.Workflow),
			pageagent.WithLoader(loader),
			pageagent.WithObserver(a.metrics),
		),
	)
	if err != nil {
		return err
	}
	a.tabs = tabs

	a.coord = coordinator.New(tabs, a.relay,
		coordinator.WithLoadTimeout(a.cfg.Site.LoadTimeout),
		coordinator.WithTargetURL(a.cfg.Site.TargetURL),
	)
	return nil
}

// Close stops background work, the browser and the store connection.
func (a *app) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	var errs []error
	if a.manager != nil {
		if err := a.manager.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

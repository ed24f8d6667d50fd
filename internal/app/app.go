package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/classify"
	"offline_gateway/internal/config"
	"offline_gateway/internal/control"
	"offline_gateway/internal/gateway"
	"offline_gateway/internal/lifecycle"
	"offline_gateway/internal/limits"
	"offline_gateway/internal/notify"
	"offline_gateway/internal/obs"
	"offline_gateway/internal/server"
	"offline_gateway/internal/strategy"
	"offline_gateway/internal/syncq"
	"offline_gateway/internal/transport"
)

// App wires the gateway together: storage, classifier, strategies,
// lifecycle, sync queue, notification bridge, control surface and the two
// listeners.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *obs.Metrics

	storage    cache.Storage
	queue      *syncq.Queue
	replayer   *syncq.Replayer
	controller *lifecycle.Controller
	dynamic    cache.Bucket
	apiEntry   func(key string) bool

	main    *server.Server
	control *server.Server

	cancel context.CancelFunc
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	storage, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	staticName := cache.StaticBucketName(cfg.AppName, cfg.Version)
	dynamicName := cache.DynamicBucketName(cfg.AppName, cfg.Version)
	videosName := cache.OfflineVideosBucketName(cfg.AppName)

	staticBucket, err := storage.Open(staticName)
	if err != nil {
		return nil, fmt.Errorf("open static bucket: %w", err)
	}
	dynamicBucket, err := storage.Open(dynamicName)
	if err != nil {
		return nil, fmt.Errorf("open dynamic bucket: %w", err)
	}
	videosBucket, err := storage.Open(videosName)
	if err != nil {
		return nil, fmt.Errorf("open videos bucket: %w", err)
	}

	forwarder, err := gateway.NewForwarder(cfg.Origin, transport.DefaultOptions())
	if err != nil {
		return nil, err
	}

	classifier := classify.NewClassifier(classify.Config{
		SelfHost:          cfg.SelfHost,
		AllowedOrigins:    cfg.AllowedOrigins,
		APIPrefixes:       cfg.APIPrefixes,
		StaticExtensions:  cfg.StaticExtensions,
		CriticalResources: cfg.CriticalResources,
	})

	metrics := obs.NewMetrics()

	// Expiry sweeps cover only API entries; static assets cached at
	// runtime live in the same dynamic bucket but have no TTL.
	apiEntry := func(key string) bool {
		return classifier.IsAPIPath(cache.KeyPath(key))
	}

	// Pinned videos survive activation even if the operator overrides the
	// configured preserve prefixes.
	preserve := append([]string{cache.OfflineVideosPrefix(cfg.AppName)}, cfg.PreservePrefixes...)

	controller := lifecycle.NewController(lifecycle.Config{
		Storage:           storage,
		Fetcher:           forwarder,
		StaticBucketName:  staticName,
		DynamicBucketName: dynamicName,
		KeepBuckets:       []string{videosName},
		PreservePrefixes:  preserve,
		CriticalResources: cfg.CriticalResources,
		FetchTimeout:      cfg.FetchTimeout(),
		OnTransition: func(state lifecycle.State) {
			metrics.RecordLifecycleTransition(state.String())
			logger.Info("lifecycle transition", "state", state.String())
		},
	})

	queue, err := syncq.Open(cfg.Sync.Path)
	if err != nil {
		return nil, err
	}
	replayer := syncq.NewReplayer(syncq.ReplayerConfig{
		Queue:        queue,
		Fetcher:      forwarder,
		FetchTimeout: cfg.FetchTimeout(),
		BackoffBase:  time.Duration(cfg.Sync.BackoffBaseMS) * time.Millisecond,
		BackoffCap:   time.Duration(cfg.Sync.BackoffCapMS) * time.Millisecond,
		MaxAttempts:  cfg.Sync.MaxAttempts,
		Interval:     time.Duration(cfg.Sync.IntervalMS) * time.Millisecond,
		Logger:       logger,
		OnReplay: func(ok bool) {
			metrics.RecordSyncReplay(ok)
			if depth, err := queue.Len(); err == nil {
				metrics.SetSyncQueueDepth(depth)
			}
		},
	})

	bridge := notify.NewBridge(notify.BridgeConfig{
		Presenter: notify.LogPresenter{Logger: logger},
		Opener:    notify.LogOpener{Logger: logger},
		Logger:    logger,
	})

	handler := &gateway.Handler{
		Classifier: classifier,
		Lifecycle:  controller,
		Forwarder:  forwarder,
		NetworkFirst: &strategy.NetworkFirst{
			Fetcher:           forwarder,
			Bucket:            dynamicBucket,
			CacheablePatterns: cfg.CompiledAPICachePatterns(),
			Timeout:           cfg.FetchTimeout(),
		},
		CacheFirst: &strategy.CacheFirst{
			Fetcher: forwarder,
			Lookup:  []cache.Bucket{staticBucket, dynamicBucket},
			Store:   dynamicBucket,
			Timeout: cfg.FetchTimeout(),
		},
		Navigation: &strategy.NavigationFallback{
			Fetcher:    forwarder,
			Lookup:     []cache.Bucket{staticBucket, dynamicBucket},
			OfflineDoc: cfg.OfflineDocument,
			Timeout:    cfg.FetchTimeout(),
		},
		Queue:        queue,
		Metrics:      metrics,
		FetchTimeout: cfg.FetchTimeout(),
	}

	controlHandler := control.NewHandler(control.HandlerConfig{
		Token:         cfg.ControlToken,
		Version:       cfg.Version,
		Lifecycle:     controller,
		DynamicBucket: dynamicBucket,
		VideosBucket:  videosBucket,
		APIMaxAge:     cfg.APIMaxAge(),
		Fetcher:       forwarder,
		FetchTimeout:  cfg.FetchTimeout(),
		SweepMatch:    apiEntry,
		Replayer:      replayer,
		Queue:         queue,
		Bridge:        bridge,
		Metrics:       metrics,
		Logger:        logger,
	})

	limitConfig, err := limits.FromConfig(cfg.Limits)
	if err != nil {
		return nil, err
	}

	mainServer, err := server.Start(handler, cfg.ListenAddr, server.Options{Limits: limitConfig})
	if err != nil {
		return nil, err
	}

	controlMux := http.NewServeMux()
	controlMux.Handle("/metrics", metrics.Handler())
	controlMux.Handle("/-/", controlHandler)
	controlServer, err := server.Start(controlMux, cfg.ControlAddr, server.Options{Limits: limitConfig})
	if err != nil {
		_ = mainServer.Shutdown()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		storage:    storage,
		queue:      queue,
		replayer:   replayer,
		controller: controller,
		dynamic:    dynamicBucket,
		apiEntry:   apiEntry,
		main:       mainServer,
		control:    controlServer,
	}, nil
}

func openStorage(cfg *config.Config) (cache.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return cache.NewMemoryStorage(cfg.Storage.MaxObjectBytes), nil
	case "disk":
		return cache.OpenDiskStorage(cfg.Storage.Path, cfg.Storage.MaxObjectBytes)
	case "redis":
		return cache.OpenRedisStorage(cache.RedisConfig{
			URL:    cfg.Storage.RedisURL,
			Prefix: cfg.Storage.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Run drives install/activate, then keeps the janitor and sync replayer
// going until the context is cancelled. An install failure is logged, not
// fatal: the gateway keeps forwarding network-only.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("gateway listening", "addr", a.main.Addr, "control", a.control.Addr,
		"origin", a.cfg.Origin, "version", a.cfg.Version)

	if err := a.controller.Run(ctx); err != nil {
		a.logger.Error("lifecycle failed, serving network-only", "error", err)
	}

	go a.replayer.Run(ctx)
	go a.janitor(ctx)

	<-ctx.Done()
}

// janitor periodically sweeps expired API entries out of the dynamic
// bucket, the scheduled counterpart to the CLEAN_CACHE message.
func (a *App) janitor(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.JanitorInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := cache.SweepOlderThan(a.dynamic, a.cfg.APIMaxAge(), time.Now(), a.apiEntry)
			if err != nil {
				a.logger.Error("janitor sweep", "error", err)
				continue
			}
			a.metrics.RecordSweepDeleted(deleted)
			if deleted > 0 {
				a.logger.Info("janitor sweep", "deleted", deleted)
			}
		}
	}
}

func (a *App) Shutdown() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	_ = a.main.Shutdown()
	_ = a.control.Shutdown()
	_ = a.queue.Close()
	_ = a.storage.Close()
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Annas82200/mizan-backend-sub010/internal/analytics"
	"github.com/Annas82200/mizan-backend-sub010/internal/api"
	"github.com/Annas82200/mizan-backend-sub010/internal/chain"
	"github.com/Annas82200/mizan-backend-sub010/internal/circuitbreaker"
	"github.com/Annas82200/mizan-backend-sub010/internal/condition"
	"github.com/Annas82200/mizan-backend-sub010/internal/config"
	"github.com/Annas82200/mizan-backend-sub010/internal/dispatch"
	"github.com/Annas82200/mizan-backend-sub010/internal/engine"
	"github.com/Annas82200/mizan-backend-sub010/internal/leaderelection"
	"github.com/Annas82200/mizan-backend-sub010/internal/metrics"
	"github.com/Annas82200/mizan-backend-sub010/internal/modules"
	"github.com/Annas82200/mizan-backend-sub010/internal/reconciler"
	"github.com/Annas82200/mizan-backend-sub010/internal/registry"
	"github.com/Annas82200/mizan-backend-sub010/internal/resolve"
	"github.com/Annas82200/mizan-backend-sub010/internal/store/memory"
	"github.com/Annas82200/mizan-backend-sub010/internal/store/postgres"
	"github.com/Annas82200/mizan-backend-sub010/internal/transport/channel"

	_ "github.com/lib/pq"
)

// executionStore is the union of store surfaces the service wires up.
// Both the Postgres and the in-memory store satisfy it.
type executionStore interface {
	dispatch.Store
	reconciler.Store
	api.Store
	HasExecution(ctx context.Context, triggerID, snapshotID uuid.UUID, generation int) (bool, error)
}

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`triggerd - Mizan cross-module trigger engine

Usage:
  triggerd <command>

Commands:
  serve      Start the trigger engine (API, dispatcher, sweeper)
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  STORE_MODE                Execution log backend: "postgres" or "memory" (default: "postgres")
  DATABASE_URL              PostgreSQL connection string (required in postgres mode)
  TRIGGERS_FILE             YAML trigger definitions file (required in memory mode)
  REDIS_ADDR                Redis address for dispatch analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  LOG_LEVEL                 Log level: trace|debug|info|warn|error (default: "info")

  EVAL_WORKERS              Concurrent condition evaluations per snapshot (default: "4")
  DISPATCH_WORKERS          Concurrent module dispatches (default: "4")
  BUS_BUFFER_SIZE           Dispatch bus buffer size (default: "100")
  HANDLER_TIMEOUT           Per-dispatch module handler timeout (default: "30s")
  MAX_GENERATION            Trigger chain depth cap (default: "5")
  REGISTRY_REFRESH          Definition refresh interval, max 60s (default: "30s")

  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  DISPATCH_DRAIN_TIMEOUT    Dispatcher drain timeout on shutdown (default: "30s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  SWEEP_ENABLED             Enable stale pending execution sweeper (default: "false")
  SWEEP_INTERVAL            How often the sweeper runs (default: "5m")
  SWEEP_THRESHOLD           Age before a pending execution is stale (default: "10m")
  SWEEP_BATCH_SIZE          Max executions swept per cycle (default: "100")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures to open a module breaker, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Breaker open duration before a probe (default: "2m")

  LEADER_LOCK_KEY           Advisory lock key shared by all instances (default: "651204")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection heartbeat (default: "2s")`)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	log := newLogger(cfg.LogLevel)

	var store executionStore
	var defStore *postgres.Store
	var db *sql.DB

	switch cfg.StoreMode {
	case "postgres":
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("open database")
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

		if err := db.Ping(); err != nil {
			log.Error().Err(err).Msg("connect to database")
			return exitRuntimeError
		}

		pg := postgres.New(db)
		store = pg
		defStore = pg
		log.Info().
			Int("max_open", cfg.DBMaxOpenConns).
			Int("max_idle", cfg.DBMaxIdleConns).
			Msg("db pool configured")

	case "memory":
		store = memory.New()
		log.Warn().Msg("memory store: executions are lost on restart")
	}

	// Definition sources: the YAML file seeds, the table (when present)
	// overrides per scope.
	var sources []registry.Source
	if cfg.TriggersFile != "" {
		sources = append(sources, registry.NewFileSource(cfg.TriggersFile))
	}
	if defStore != nil {
		sources = append(sources, registry.NewStoreSource(defStore))
	}
	source := registry.Source(registry.NewMultiSource(sources...))

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	reg, err := registry.New(rootCtx, source, cfg.RegistryRefresh, log)
	if err != nil {
		log.Error().Err(err).Msg("load trigger definitions")
		return exitRuntimeError
	}

	// Metrics sink (optional).
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, log)
		log.Info().Str("path", cfg.MetricsPath).Msg("metrics enabled")
	} else {
		log.Info().Msg("METRICS_ENABLED not set; metrics disabled")
	}

	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewBus(cfg.BusBufferSize, busOpts...)

	evaluator := condition.New()

	handlers := modules.NewRegistry()
	if err := modules.RegisterBuiltins(handlers); err != nil {
		log.Error().Err(err).Msg("register module handlers")
		return exitRuntimeError
	}
	if err := handlers.Register(modules.ModuleWebhook, modules.NewWebhookHandler()); err != nil {
		log.Error().Err(err).Msg("register webhook handler")
		return exitRuntimeError
	}

	chainResolver := chain.New(reg, evaluator, bus, log).
		WithMaxGeneration(cfg.MaxGeneration)
	if metricsSink != nil {
		chainResolver = chainResolver.WithMetrics(metricsSink)
	}

	disp := dispatch.New(store, handlers, log).
		WithChain(chainResolver).
		WithTimeout(cfg.HandlerTimeout).
		WithWorkers(cfg.DispatchWorkers).
		WithDrainTimeout(cfg.DispatchDrainTimeout)
	if metricsSink != nil {
		disp = disp.WithMetrics(metricsSink)
	}
	if cfg.CircuitBreakerThreshold > 0 {
		disp = disp.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Info().
			Int("threshold", cfg.CircuitBreakerThreshold).
			Dur("cooldown", cfg.CircuitBreakerCooldown).
			Msg("module circuit breaker enabled")
	}

	// Dispatch analytics if Redis is configured.
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		disp = disp.WithAnalytics(analytics.NewRedisSink(redisClient, log))
		log.Info().Str("redis", cfg.RedisAddr).Msg("dispatch analytics enabled")
	} else {
		log.Info().Msg("REDIS_ADDR not set; analytics disabled")
	}

	eng := engine.New(reg, evaluator, resolve.New(store, log), bus, log).
		WithWorkers(cfg.EvalWorkers)
	if metricsSink != nil {
		eng = eng.WithMetrics(metricsSink)
	}

	apiHandler := api.NewHandler(eng, store, reg, log)
	if db != nil {
		apiHandler = apiHandler.WithHealthChecker(db)
	}

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server")
		}
	}()

	// Separate contexts per component for phase-ordered shutdown.
	registryCtx, cancelRegistry := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())

	var registryWg, dispatcherWg, sweeperWg sync.WaitGroup
	var cancelSweeper context.CancelFunc

	registryWg.Add(1)
	go func() {
		defer registryWg.Done()
		reg.Run(registryCtx)
	}()

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		disp.Run(dispatcherCtx, bus.Channel())
	}()

	// The sweeper runs on at most one instance. With Postgres, leader
	// election picks that instance; in memory mode there is only one.
	if cfg.SweepEnabled {
		sweeper := reconciler.New(
			reconciler.Config{
				Interval:  cfg.SweepInterval,
				Threshold: cfg.SweepThreshold,
				BatchSize: cfg.SweepBatchSize,
			},
			store,
			log,
		)
		if metricsSink != nil {
			sweeper = sweeper.WithMetrics(metricsSink)
		}

		var sweeperCtx context.Context
		sweeperCtx, cancelSweeper = context.WithCancel(context.Background())

		if db != nil {
			elector := leaderelection.New(
				db,
				cfg.LeaderLockKey,
				cfg.LeaderRetryInterval,
				cfg.LeaderHeartbeatInterval,
				func(leaderCtx context.Context) { sweeper.Run(leaderCtx) },
				func() {},
				log,
			)
			sweeperWg.Add(1)
			go func() {
				defer sweeperWg.Done()
				elector.Run(sweeperCtx)
			}()
		} else {
			sweeperWg.Add(1)
			go func() {
				defer sweeperWg.Done()
				sweeper.Run(sweeperCtx)
			}()
		}
		log.Info().
			Dur("interval", cfg.SweepInterval).
			Dur("threshold", cfg.SweepThreshold).
			Msg("sweeper enabled")
	} else {
		log.Info().Msg("SWEEP_ENABLED not set; sweeper disabled")
	}

	log.Info().
		Str("store", cfg.StoreMode).
		Str("http", cfg.HTTPAddr).
		Int("max_generation", cfg.MaxGeneration).
		Msg("triggerd started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Info().Stringer("signal", received).Msg("shutting down")

	// Phase 1: stop accepting snapshots so no new dispatches are scheduled.
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	log.Info().Msg("http server stopped")

	// Phase 2: stop the sweeper before the dispatcher so it cannot fail
	// executions the drain is still finishing.
	if cancelSweeper != nil {
		cancelSweeper()
		sweeperWg.Wait()
		log.Info().Msg("sweeper stopped")
	}

	// Phase 3: stop the dispatcher; it drains buffered requests first.
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Info().Msg("dispatcher stopped")

	// Phase 4: stop the registry refresh loop.
	cancelRegistry()
	registryWg.Wait()
	log.Info().Msg("registry stopped")

	log.Info().Msg("stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("triggerd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}

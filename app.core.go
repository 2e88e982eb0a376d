package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/boltdb/bolt"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger      *zap.Logger
	config      *Config
	server      *http.Server
	redisClient *redis.Client
	cleanups    []func() error
	workers     []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	clock := NewClock(config.IsProduction)
	tickClock := NewTickClock(clock)

	// ensure the logs folder exists and setup the logging module.
	if err = os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, tickClock)

	app := &App{
		logger:   logger,
		config:   config,
		cleanups: []func() error{logWriter.Close, flusher},
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Postgres.PingTimeout)
	defer cancel()

	// Setup the connection to postgres, redis and boltDB servers.
	pgClient, err := GetPostgresClient(ctx, config)
	if err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to connect to postgres server: %s", err)
	}
	app.cleanups = append(app.cleanups, pgClient.Close)

	if err = EnsureSchema(ctx, pgClient); err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to apply database schema: %s", err)
	}

	redisClient, err := GetRedisClient(ctx, config)
	if err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to connect to redis server: %s", err)
	}
	app.redisClient = redisClient

	boltDBClient, err := GetBoltDBClient(config)
	if err != nil {
		_ = redisClient.Close()
		app.Clean()
		return nil, fmt.Errorf("failed to connect to boltDB server: %s", err)
	}
	app.cleanups = append(app.cleanups, boltDBClient.Close)

	router, limiter := buildRouter(logger, config, clock, tickClock, pgClient, redisClient, boltDBClient, app)

	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
		ConnContext:    SaveConnInContext,
	}
	app.workers = append(app.workers, limiter.Cleanup)

	return app, nil
}

// buildRouter wires the storages, the queue consumers and the services
// behind the api handler then returns the configured router.
func buildRouter(
	logger *zap.Logger,
	config *Config,
	clock Clocker,
	tickClock TickerClocker,
	pgClient *sql.DB,
	redisClient *redis.Client,
	boltDBClient *bolt.DB,
	app *App,
) (*httprouter.Router, *RateLimiter) {
	bookStorage := NewPostgresBookStorage(logger, pgClient)
	userStorage := NewPostgresUserStorage(logger, pgClient)
	bookBackup := NewBoltBookBackup(logger, &config.BoltDB, boltDBClient)

	queue := NewRedisQueue(redisClient)
	boltDBConsumer := NewBoltDBConsumer(logger, queue, bookBackup)
	mailConsumer := NewMailConsumer(logger, queue, NewMailer(logger, &config.Mail))
	app.workers = append(app.workers,
		func(ctx context.Context) error {
			return boltDBConsumer.Consume(ctx, BookCreateQueue, BookUpdateQueue, BookDeleteQueue)
		},
		func(ctx context.Context) error {
			return mailConsumer.Consume(ctx, MailVerifyQueue)
		},
	)

	tokens := NewJWTManager(config.Auth.JWTSecret, config.Auth.TokenTTL, clock)
	bookService := NewBookService(logger, config, clock, bookStorage, queue)
	authService := NewAuthService(logger, userStorage, queue, tokens)
	limiter := NewRateLimiter(logger, tickClock, config.Auth.RateLimit, config.Auth.RateBurst)

	stats := &Statistics{
		version:   config.GitTag,
		container: IsAppRunningInDocker(),
		started:   clock.Now(),
		runtime:   runtime.Version(),
		platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		stats.version = config.GitCommit
	}

	api := NewAPIHandler(logger, config, stats, clock, NewIDsHandler(), limiter, bookService, authService)
	return api.SetupRoutes(httprouter.New(), api.NewMiddlewareMap()), limiter
}

// Run starts the api web server, the background workers and a goroutine
// which is responsible to stop them all.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	for _, work := range app.workers {
		work := work
		g.Go(func() error {
			return work(gCtx)
		})
	}
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions in reverse order.
func (app *App) Clean() {
	for i := len(app.cleanups) - 1; i >= 0; i-- {
		if err := app.cleanups[i](); err != nil {
			fmt.Println("cleanup error:", err)
		}
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// A brutal shutdown follows when the graceful one did not complete. It returns
// nil so that the errorgroup only reports the `Serve` result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		// unblocks the consumers waiting on BLPOP.
		_ = app.redisClient.Close()
		return nil
	}
}

package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/parking/config"
	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/database/memory"
	repository "github.com/ds124wfegd/parking/internal/database/postgres"
	redisCache "github.com/ds124wfegd/parking/internal/database/redis"
	"github.com/ds124wfegd/parking/internal/events"
	"github.com/ds124wfegd/parking/internal/service"
	"github.com/ds124wfegd/parking/internal/transport"
	"github.com/ds124wfegd/parking/internal/worker"
	"github.com/ds124wfegd/parking/pkg/kafka"
	"github.com/ds124wfegd/parking/pkg/lock"
	"github.com/ds124wfegd/parking/pkg/postgres"
	"github.com/ds124wfegd/parking/pkg/rabbitMQ"
	"github.com/ds124wfegd/parking/pkg/redis"
	"github.com/ds124wfegd/parking/pkg/retry"
	"github.com/ds124wfegd/parking/pkg/telegram"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // запрет устаревших версий TLS
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // ошибки сервера пишем в stderr
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// App holds everything built from the configuration. Close releases it in
// reverse order of construction.
type App struct {
	Handler    http.Handler
	Services   *service.Services
	Sweeper    *worker.ExpirySweeper
	Dispatcher *events.Dispatcher

	closers []func()
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewApp wires storage, locking, events, services, the expiry sweeper and the
// HTTP router. Background workers are not started.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}
	now := time.Now

	// Initialize redis, он нужен кэшу отчетов и распределенной блокировке
	var redisClient *goredis.Client
	if cfg.Redis.Enabled || cfg.Lock.Driver == "redis" {
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			app.Close()
			return nil, err
		}
		redisClient = client
		app.onClose(func() { closeLogged("redis", client.Close) })
	}

	// Initialize repositories
	repos, err := newRepositories(ctx, cfg, app, now)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Initialize locker
	locker, err := newLocker(cfg, redisClient)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Без redis кэш отчетов живет в памяти процесса
	var reportCache database.ReportCache
	if redisClient != nil {
		reportCache = redisCache.NewReportCache(redisClient, cfg.Report.CacheTTL)
		logrus.Info("Report cache: redis")
	} else {
		reportCache = memory.NewReportCache(cfg.Report.CacheTTL, now)
		logrus.Info("Report cache: in-process")
	}

	// Initialize event dispatcher
	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	var publisher service.EventPublisher = service.NopPublisher
	if dispatcher != nil {
		if redisClient != nil {
			// Недоставленные события сохраняем в redis
			dispatcher.WithDeadLetters(redisCache.NewDeadLetters(redisClient))
		}
		app.Dispatcher = dispatcher
		app.onClose(dispatcher.Close)
		publisher = dispatcher
	}

	// Initialize services
	authService := service.NewAuthService(repos.Users, cfg.JWT.Secret, cfg.JWT.Expiration, now)
	app.Services = &service.Services{
		Inventory: service.NewInventoryService(repos, locker),
		Bookings:  service.NewBookingService(repos, reportCache, locker, publisher, now),
		Reports:   service.NewReportService(repos.Bookings, reportCache, now),
		Auth:      authService,
	}

	if cfg.Auth.AdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	// Initialize expiry sweeper, запускается в NewServer
	app.Sweeper = worker.NewExpirySweeper(app.Services.Bookings, cfg.Worker.SweepInterval, now)
	app.onClose(app.Sweeper.Stop)

	// Initialize handlers
	app.Handler = transport.InitRoutes(transport.RouterConfig{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestTimeout:    cfg.Server.RequestTimeout,
		BookingsPerSecond: cfg.RateLimit.BookingsPerSecond,
		BookingBurst:      cfg.RateLimit.Burst,
	}, transport.NewHandlers(app.Services), authService)

	return app, nil
}

func newRepositories(ctx context.Context, cfg *config.Config, app *App, now func() time.Time) (*database.Repositories, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logrus.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(now).Repositories(), nil
	case "postgres", "":
		db, err := postgres.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		app.onClose(func() { closeLogged("postgres", db.Close) })

		if err := runMigrations(ctx, db); err != nil {
			return nil, err
		}
		return repository.NewRepositories(db, now), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func newLocker(cfg *config.Config, client *goredis.Client) (lock.Locker, error) {
	switch cfg.Lock.Driver {
	case "local", "":
		return lock.NewKeyedMutex(cfg.Lock.Wait), nil
	case "redis":
		return redis.NewLocker(client, cfg.Lock.TTL, cfg.Lock.Wait), nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
	}
}

// newDispatcher returns nil when no sink is configured.
func newDispatcher(cfg *config.Config) (*events.Dispatcher, error) {
	var sinks []events.Sink

	switch cfg.Events.Driver {
	case "none", "":
	case "kafka":
		sinks = append(sinks, events.NewKafkaSink(kafka.NewProducer(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)))
	case "rabbitmq":
		rabbit, err := rabbitMQ.NewRabbitMQ(rabbitMQ.Config{
			URL:       cfg.Events.Rabbit.URL,
			QueueName: cfg.Events.Rabbit.QueueName,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, events.NewRabbitSink(rabbit))
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
	}

	if cfg.Events.Telegram.Enabled {
		if cfg.Events.Telegram.BotToken == "" || cfg.Events.Telegram.ChatID == "" {
			logrus.Warn("Telegram bot token or chat id not provided, notifications disabled")
		} else {
			sinks = append(sinks, events.NewTelegramSink(telegram.NewBot(cfg.Events.Telegram.BotToken), cfg.Events.Telegram.ChatID))
			logrus.Info("Telegram notifications enabled")
		}
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	retryManager := retry.NewManager(cfg.Events.MaxRetries, cfg.Events.BaseDelay)
	return events.NewDispatcher(cfg.Events.Buffer, retryManager, sinks...), nil
}

func closeLogged(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logrus.WithError(err).Errorf("Failed to close %s", name)
	}
}

func NewServer(cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	}

	if cfg.IsProduction() || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Close()

	if app.Dispatcher != nil {
		app.Dispatcher.Start(ctx)
		logrus.Info("Event dispatcher started")
	}

	// Start expiry sweeper
	app.Sweeper.Start(ctx)

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, app.Handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("addr", cfg.GetServerAddress()).Print("App Started")

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	// Дожидаемся текущего прохода очистки до остановки HTTP сервера
	app.Sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}

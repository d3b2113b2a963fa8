package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/field-reservation/internal/config"   // Internal config loader
	"github.com/iliyamo/field-reservation/internal/database" // DB connection and schema
	"github.com/iliyamo/field-reservation/internal/logging"
	"github.com/iliyamo/field-reservation/internal/metrics"
	"github.com/iliyamo/field-reservation/internal/queue"
	"github.com/iliyamo/field-reservation/internal/repository"
	"github.com/iliyamo/field-reservation/internal/router" // Internal router setup
	"github.com/iliyamo/field-reservation/internal/service"
	"github.com/iliyamo/field-reservation/internal/worker"
)

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins

	cfg := config.Load() // Load environment config
	log := logging.New(cfg.Logging, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database connection failed")
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
	}
	if cfg.AdminEmail != "" {
		admin, err := repository.NewUserRepo(db).EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("bootstrap admin failed")
		}
		log.Info().Uint64("user_id", admin.ID).Str("email", admin.Email).Msg("admin account ready")
	}

	metrics.Register()
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	var wg sync.WaitGroup
	var events service.Publisher = service.NopPublisher{}
	var async *service.Async
	if cfg.AMQPURL != "" {
		async = service.NewAsync(service.NewAMQPPublisher(cfg.AMQPURL, cfg.QueueName, *log), 5*time.Second, *log)
		events = async
		consumer := &queue.Consumer{
			URL:    cfg.AMQPURL,
			Queue:  cfg.QueueName,
			LogDir: cfg.EventLogDir,
			Retry:  queue.DefaultRetryPolicy,
			Log:    log.With().Str("component", "consumer").Logger(),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	sweeper := &worker.CompletionSweeper{
		Store:    repository.NewReservationRepo(db),
		Events:   events,
		Interval: cfg.SweepInterval,
		Location: cfg.Location,
		Log:      log.With().Str("component", "sweeper").Logger(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	e := router.NewServer(router.Deps{
		Cfg:       cfg,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		DB:        db,
		Redis:     rdb,
		Events:    events,
		Log:       *log,
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	wg.Wait()
	if async != nil {
		async.Close()
	}
}

func openDB(cfg config.Config) (*sql.DB, error) {
	if cfg.DBDriver == database.DriverSQLite {
		return database.OpenSQLite(cfg.DBPath)
	}
	return database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

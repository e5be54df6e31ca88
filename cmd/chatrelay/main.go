package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/config"
	"github.com/ageniuscoder/chatrelay/backend/internal/mailer"
	"github.com/ageniuscoder/chatrelay/backend/internal/otp"
	"github.com/ageniuscoder/chatrelay/backend/internal/relay"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage/postgres"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage/sqlite"
	"github.com/ageniuscoder/chatrelay/backend/internal/tasks"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type database interface {
	DB() *storage.DB
	Ping(ctx context.Context) error
	Migrate() error
	Close() error
}

func openDatabase(cfg config.Config) (database, error) {
	switch cfg.DBDriver {
	case "postgres":
		if cfg.PostgresDsn == "" {
			return nil, errors.New("POSTGRES_DSN is required for the postgres driver")
		}
		pg, err := postgres.New(cfg.PostgresDsn)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "sqlite", "":
		lite, err := sqlite.New(cfg.SQLITEDsn)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, errors.New("unknown DB_DRIVER " + cfg.DBDriver)
	}
}

func main() {
	migrate := flag.Bool("migrate", false, "run migrations and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg := config.MustLoad()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open database")
	}
	defer conn.Close()

	if *migrate {
		if err := conn.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migration completed")
		return
	}

	var otpStore otp.Store = otp.SQLStore{DB: conn.DB()}
	if cfg.OTPStore == "redis" {
		rdb, err := otp.InitRedis(cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		otpStore = otp.RedisStore{Redis: rdb}
	}

	sender, err := mailer.FromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure mailer")
	}

	cleaner := tasks.NewOTPCleaner(otpStore, cfg.OTPCleanupCron)
	if err := cleaner.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule otp cleanup")
	}
	defer cleaner.Stop()

	registry := relay.NewRegistry()
	router := newRouter(deps{
		DB:              conn.DB(),
		Ping:            conn.Ping,
		OTPStore:        otpStore,
		Mailer:          sender,
		OTPDigits:       cfg.OTPDigits,
		OTPTTL:          cfg.OTPTTL(),
		JWTSecret:       cfg.JWTSecret,
		JWTTTL:          cfg.JWTTTL(),
		WSAllowedOrigin: cfg.WSAllowedOrigin,
		Registry:        registry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("env", cfg.Env).Msg("chatrelay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown initiated")
	// Shutdown ignores hijacked connections, so hang up sockets first.
	closed := registry.CloseAll()
	log.Info().Int("connections", closed).Msg("closed websocket connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return
	}
	log.Info().Msg("server exited gracefully")
}

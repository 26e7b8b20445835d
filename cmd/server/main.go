package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-livechat/internal/api"
	"github.com/npezzotti/go-livechat/internal/bridge"
	"github.com/npezzotti/go-livechat/internal/config"
	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/logging"
	"github.com/npezzotti/go-livechat/internal/server"
	"github.com/npezzotti/go-livechat/internal/stats"
	"github.com/rs/zerolog"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	logLevel       string
	typingTimeout  time.Duration
	runMigrations  bool
	redisAddr      string
	redisPassword  string
	redisDB        int
	redisPrefix    string
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.DurationVar(&typingTimeout, "typing-timeout", config.DefaultTypingTimeout, "quiet interval before a typing indicator is cleared")
	flag.BoolVar(&runMigrations, "migrate", false, "apply database migrations on startup")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for cross-instance relays (disabled when empty)")
	flag.StringVar(&redisPassword, "redis-password", "", "redis password")
	flag.IntVar(&redisDB, "redis-db", 0, "redis database number")
	flag.StringVar(&redisPrefix, "redis-prefix", "livechat:", "redis channel prefix")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.NewConfig(config.Options{
		ServerAddr:     addr,
		DatabaseDSN:    dsn,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		LogLevel:       logLevel,
		TypingTimeout:  typingTimeout,
		RunMigrations:  runMigrations,
		RedisAddr:      redisAddr,
		RedisPassword:  redisPassword,
		RedisDB:        redisDB,
		RedisPrefix:    redisPrefix,
	})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("config")
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("logger")
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	if cfg.RunMigrations {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal().Err(err).Msg("db migrate")
		}
		logger.Info().Msg("database migrations applied")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer := server.NewChatServer(logger, dbConn, statsUpdater, server.Options{
		TypingTimeout: cfg.TypingTimeout,
	})

	var relay *bridge.RedisBridge
	if cfg.Redis.Enabled() {
		relay = bridge.NewRedisBridge(cfg.Redis, chatServer, logger)
		if err := relay.Start(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis bridge")
		}
		chatServer.SetBridge(relay)
	}

	srv := api.NewLiveChatApp(mux, logger, chatServer, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down chat server")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown")
	}

	if relay != nil {
		if err := relay.Stop(); err != nil {
			logger.Error().Err(err).Msg("redis bridge stop")
		}
	}

	logger.Info().Msg("shutdown complete")
}

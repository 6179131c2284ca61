package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/studycircle/studycircle/internal/api"
	"github.com/studycircle/studycircle/internal/config"
	"github.com/studycircle/studycircle/internal/database"
	"github.com/studycircle/studycircle/internal/server"
	"github.com/studycircle/studycircle/internal/stats"
)

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
	skipMigrations bool
)

func main() {
	logger := log.New(os.Stderr, "[studycircle] ", log.LstdFlags)

	envAddr, envDsn, envSigningKey, envOrigins, err := config.FromEnv()
	if err != nil {
		logger.Fatal("config:", err)
	}

	flag.StringVar(&addr, "addr", envAddr, "server address")
	flag.StringVar(&dsn, "dsn", envDsn, "database connection string")
	flag.StringVar(&signingKey, "signing-key", envSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.BoolVar(&skipMigrations, "skip-migrations", false, "do not run database migrations on startup")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = envOrigins
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgStudyCircleRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if !skipMigrations {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("db migrate:", err)
		}
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer := server.NewChatServer(logger, dbConn, statsUpdater)

	srv := api.NewStudyCircleApp(mux, logger, chatServer, dbConn, statsUpdater, cfg)

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
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

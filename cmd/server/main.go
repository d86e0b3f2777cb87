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
	"github.com/npezzotti/go-meetrelay/internal/api"
	"github.com/npezzotti/go-meetrelay/internal/broker"
	"github.com/npezzotti/go-meetrelay/internal/config"
	"github.com/npezzotti/go-meetrelay/internal/database"
	"github.com/npezzotti/go-meetrelay/internal/relay"
	"github.com/npezzotti/go-meetrelay/internal/stats"
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
	brokerURL      string
	signingSecret  string
	historyLimit   int
	allowedOrigins stringSliceFlag
)

func main() {
	logger := log.New(os.Stderr, "[meetrelay] ", log.LstdFlags)

	env, err := config.FromEnv()
	if err != nil {
		logger.Fatal("env:", err)
	}

	flag.StringVar(&addr, "addr", env.ServerAddr, "server address")
	flag.StringVar(&dsn, "dsn", env.DatabaseDSN, "database connection string")
	flag.StringVar(&brokerURL, "broker-url", env.BrokerURL, "pub/sub broker URL (empty for in-process)")
	flag.StringVar(&signingSecret, "signing-secret", env.SigningSecret, "base64 encoded identity token key")
	flag.IntVar(&historyLimit, "history-limit", env.HistoryLimit, "default message history limit")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = stringSliceFlag(env.AllowedOrigins)
	}

	cfg, err := config.NewConfig(addr, dsn, brokerURL, signingSecret, allowedOrigins, historyLimit)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgRelayRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	var bus broker.PubSub
	if cfg.BrokerURL != "" {
		bus, err = broker.NewNatsPubSub(cfg.BrokerURL, logger)
		if err != nil {
			logger.Fatal("broker connect:", err)
		}
	} else {
		logger.Println("no broker URL configured, using in-process pub/sub")
		bus = broker.NewMemoryPubSub()
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Println("broker close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	relayServer, err := relay.NewRelayServer(logger, dbConn, bus, statsUpdater, cfg.HistoryLimit)
	if err != nil {
		logger.Fatal("new relay server:", err)
	}

	srv := api.NewRelayApp(mux, logger, relayServer, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

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

	logger.Println("shutting down relay server...")
	if err := relayServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("relay server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

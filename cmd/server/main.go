/*
main.go - Application entry point

PURPOSE:
  Starts the me-pague ledger server: a single-user credit-card spending
  tracker backed by a SQLite document store.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the SQLite store
  3. Build the engine + aggregator for the configured user
  4. Configure the HTTP router
  5. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: mepague.db)
           Use ":memory:" for an in-memory database
  -user    User id owning the data partition (default: "local")
  -demo    Seed demo data on startup (use with an empty database)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/Caiozmartins/me-pague-App/api"
	"github.com/Caiozmartins/me-pague-App/ledger"
	"github.com/Caiozmartins/me-pague-App/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "mepague.db", "SQLite database path (\":memory:\" for in-memory)")
	userID := flag.String("user", "local", "user id owning the data partition")
	demo := flag.Bool("demo", false, "seed demo data on startup")
	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	st, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("failed to open store", "db", *dbPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	clock := ledger.SystemClock{}
	eng := ledger.NewEngine(st, clock, *userID)
	agg := ledger.NewAggregator(st, clock, *userID)

	if *demo {
		if err := api.LoadDemoData(context.Background(), eng); err != nil {
			log.Error("failed to seed demo data", "err", err)
			os.Exit(1)
		}
		log.Info("demo data seeded")
	}

	handler := api.NewHandler(eng, agg, clock, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", srv.Addr, "db", *dbPath, "user", *userID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "err", err)
	}
}

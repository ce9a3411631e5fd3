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

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"quadarena/sim"
)

func main() {
	defaults := sim.DefaultParams()

	addr := flag.String("addr", ":8080", "HTTP listen address")
	clientDir := flag.String("client", "", "Path to static client directory (empty: API and websocket only)")
	dbPath := flag.String("db", "", "SQLite file for arena history and analytics (empty: no persistence)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	tickRate := flag.Int("tick-rate", DefaultTickRate, "Simulation ticks per second")
	flag.IntVar(&defaults.Bodies, "bodies", defaults.Bodies, "Default number of bodies per arena")
	flag.Float64Var(&defaults.Width, "width", defaults.Width, "Arena width")
	flag.Float64Var(&defaults.Height, "height", defaults.Height, "Arena height")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("bad -log-level: %v", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := defaults.Validate(); err != nil {
		log.Fatalf("bad arena parameters: %v", err)
	}
	if *tickRate <= 0 || *tickRate > 240 {
		log.Fatalf("bad -tick-rate %d", *tickRate)
	}

	var db *DB
	var analytics *Analytics
	if *dbPath != "" {
		db, err = OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		analytics = NewAnalytics(db)
	}

	arenas := NewArenaManager(defaults, *tickRate, db, analytics)
	hub := NewHub(arenas, db, analytics)
	server := &http.Server{Addr: *addr, Handler: SetupRoutes(hub, *clientDir)}

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		arenas.RunReaper(ctx)
		return nil
	})
	g.Go(func() error {
		log.WithFields(log.Fields{
			"addr":      *addr,
			"client":    *clientDir,
			"db":        *dbPath,
			"tick_rate": *tickRate,
		}).Info("server starting")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down...")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	arenas.StopAll()
	analytics.Stop()
	if db != nil {
		db.Close()
	}
	if err != nil {
		log.Errorf("server: %v", err)
		os.Exit(1)
	}
}

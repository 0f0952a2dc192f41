package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxhall.org/internal/access"
	"voxhall.org/internal/httpapi"
	"voxhall.org/internal/obs"
	"voxhall.org/internal/store/pg"
	"voxhall.org/internal/stream"
)

var version = "0.3.0"

func main() {
	obs.Init()

	events := stream.New()

	// With a DSN configured the domain stores run on Postgres and /readyz
	// pings the database.
	var db *sql.DB
	if dsn := os.Getenv("VOXHALL_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()

		registry, err := access.NewRegistry(store, events)
		if err != nil {
			log.Fatalf("wire registry: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := registry.DefaultRole(ctx); errors.Is(err, access.ErrDefaultRoleMissing) {
			log.Printf("warning: default role missing; run migrate provision")
		}
		cancel()
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, events)

	addr := os.Getenv("VOXHALL_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting voxhall-cored %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

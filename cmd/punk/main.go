package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/onetwotrip/punk/internal/app"
	"github.com/onetwotrip/punk/internal/audit"
	"github.com/onetwotrip/punk/internal/config"
	"github.com/onetwotrip/punk/internal/deliver"
	"github.com/onetwotrip/punk/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	meiliStore := store.NewMeili(cfg.StoreURL(), cfg.StoreAPIKey, cfg.StoreIndex, cfg.StoreSourceField, cfg.StoreLogRequests)
	defer meiliStore.Close()

	var fetcher store.Fetcher = meiliStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis document cache (ttl %s)", cfg.CacheTTL)
		cache, err := store.NewCache(cfg.RedisURL, meiliStore, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		fetcher = cache
	}

	sink := deliver.NewWebhook(cfg.ChatWebhookURL)
	if !sink.IsConfigured() {
		log.Printf("WARNING: chat webhook not configured, replies will fail")
	}

	var service *app.Service
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := audit.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := audit.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("audit schema failed: %v", err)
		}
		log.Printf("Recording query audit log to Postgres")
		service = app.NewWithAudit(fetcher, sink, audit.NewLog(db))
	} else {
		service = app.New(fetcher, sink)
	}

	httpServer := app.NewHTTPServer(service, cfg.CommandToken)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("punk listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

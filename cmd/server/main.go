package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/lib/pq"

	"phones/internal/phone/events"
	phonehandler "phones/internal/phone/handler"
	"phones/internal/phone/loader"
	phonemetrics "phones/internal/phone/metrics"
	"phones/internal/phone/service"
	"phones/internal/phone/store"
	"phones/internal/platform/config"
	"phones/internal/platform/httpserver"
	"phones/internal/platform/kafka"
	"phones/internal/platform/logger"
	platformredis "phones/internal/platform/redis"
	httptransport "phones/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal/phone packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.DatabaseURL == "" {
		log.Error("PHONES_DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}

	kafkaClient, err := kafka.New(cfg.Kafka)
	if err != nil {
		log.Error("connect kafka", "error", err)
		os.Exit(1)
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
	}

	phoneStore := store.NewPostgres(db)
	phoneMetrics := phonemetrics.New()
	phoneService := service.New(phoneStore,
		service.WithLogger(log),
		service.WithMetrics(phoneMetrics),
		service.WithEvents(events.NewPublisher(kafkaClient, cfg.Kafka.Topic, log)),
		service.WithDefaultCountry(cfg.DefaultCountry),
	)

	// One-shot registry reconciliation: exactly once per process, before the
	// server accepts traffic.
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := phoneService.RebaseTypes(seedCtx, cfg.EntityTypes); err != nil {
		cancelSeed()
		log.Error("seed type registry", "error", err)
		os.Exit(1)
	}
	cancelSeed()

	loaderOpts := []loader.Option{
		loader.WithLogger(log),
		loader.WithMetrics(phoneMetrics),
	}
	if redisClient != nil {
		defer redisClient.Close()
		loaderOpts = append(loaderOpts, loader.WithCache(redisClient.Client, cfg.Redis.ViewTTL))
	}
	phoneLoader := loader.New(phoneService, loaderOpts...)

	handler := phonehandler.New(phoneService, phoneLoader, log)
	router := httptransport.NewRouter(handler, db, cfg.AdminToken, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting phones service", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

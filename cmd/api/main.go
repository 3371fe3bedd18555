package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hotspot/api/internal/app"
	"hotspot/api/internal/config"
	"hotspot/api/internal/layoutcache"
	"hotspot/api/internal/logger"
	"hotspot/api/internal/objectstore"
	"hotspot/api/internal/store"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
	if err != nil {
		log.Fatal("migrations failed", "dir", cfg.MigrationsDir, "error", err)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "versions", applied)
	}

	caps, err := store.DetectCapabilities(ctx, db)
	if err != nil {
		log.Fatal("schema capability detection failed", "error", err)
	}
	log.Info("schema capabilities",
		"legacy_room_type", caps.LegacyRoomType,
		"item_sizes", caps.ItemSizes,
		"item_images", caps.ItemImages,
		"item_sort_order", caps.ItemSortOrder,
	)

	dataStore := store.NewPostgresStore(db, caps)
	service, err := app.New(cfg, dataStore, caps, log)
	if err != nil {
		log.Fatal("service init failed", "error", err)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := layoutcache.NewRedisCache(cfg.RedisURL, dataStore, cfg.LayoutCacheTTL, log)
		if err != nil {
			log.Fatal("redis connection failed", "error", err)
		}
		defer cache.Close()
		service.SetLayoutSource(cache)
		log.Info("layout cache enabled", "ttl", cfg.LayoutCacheTTL.String())
	} else {
		log.Info("layout cache disabled, reading layouts from postgres")
	}

	if cfg.ObjectStore.Enabled() {
		objects, err := objectstore.NewMinioStore(cfg.ObjectStore)
		if err != nil {
			log.Fatal("object store init failed", "endpoint", cfg.ObjectStore.Endpoint, "error", err)
		}
		service.SetAssetRemover(objects)
		log.Info("sign asset cleanup enabled", "bucket", cfg.ObjectStore.Bucket)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("hotspot api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}

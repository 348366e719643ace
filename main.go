package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"mediagrab/api"
	"mediagrab/config"
	"mediagrab/queue"
	"mediagrab/server"
	"mediagrab/services"
	"mediagrab/worker"
)

func main() {
	log.Println("Starting media download service...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	registry := services.NewJobRegistry(cfg.JobTTL)
	sessions := services.NewSessionStore(cfg.SessionTTL)
	limiter := services.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.RateLimitStale)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	var q queue.Queue
	switch cfg.QueueBackend {
	case config.QueueBackendRedis:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Printf("Dispatching through Redis queue %s", cfg.PendingQueue)
		q = queue.NewRedisQueue(redisClient, cfg.PendingQueue)
	default:
		q = queue.NewMemoryQueue(cfg.QueueCapacity)
	}

	reaper := services.NewReaper(registry, sessions, limiter)
	pool := worker.NewPool(cfg, q, registry)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pool.StartWorker(ctx, workerID)
		}(i)
	}
	log.Printf("Started %d download workers", cfg.WorkerCount)

	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx, cfg.CleanupInterval)
	}()

	svc := api.NewService(sessions, limiter, registry, q, reaper)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(svc, cfg).Handler(),
	}
	go func() {
		log.Printf("Listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Output directory: %s", cfg.OutputDir)
	log.Println("Service is ready to process downloads")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping workers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	// In-flight downloads run to completion; bound the wait instead of
	// killing the external process.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}

	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Download service stopped")
}

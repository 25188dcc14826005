package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"bountyhunter/internal/api"
	"bountyhunter/internal/bloom"
	"bountyhunter/internal/config"
	"bountyhunter/internal/queue"
	"bountyhunter/internal/ratelimit"
	"bountyhunter/internal/registry"
	"bountyhunter/internal/sched"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	reg := registry.New(registry.Options{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Retention: cfg.RetentionTTL,
	})
	defer reg.Close()
	if err := reg.Ping(ctx); err != nil {
		log.Fatalf("connect redis: %v", err)
	}

	filter := bloom.New(cfg.BloomSize, cfg.BloomHashes)
	scheduler := sched.New(sched.WithUrgency(cfg.UrgencyWindow, cfg.UrgencyBonus))
	mgr := queue.NewManager(filter, reg, scheduler)
	if err := mgr.Restore(ctx); err != nil {
		log.Fatalf("restore filter: %v", err)
	}

	redisLimiter := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisLimiter.Close()
	limiter := ratelimit.NewSourceLimiter(redisLimiter, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(mgr, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bountyhunter/internal/artifact"
	"bountyhunter/internal/bloom"
	"bountyhunter/internal/collect"
	"bountyhunter/internal/config"
	"bountyhunter/internal/ledger"
	"bountyhunter/internal/lifecycle"
	"bountyhunter/internal/models"
	"bountyhunter/internal/notify"
	"bountyhunter/internal/pipeline"
	"bountyhunter/internal/queue"
	"bountyhunter/internal/registry"
	"bountyhunter/internal/sched"
	"bountyhunter/internal/telemetry"
)

// payoutChecker confirms payment against the registry's payout set, which a
// reconciliation job or operator fills in as funds land.
type payoutChecker struct {
	reg *registry.Registry
}

func (c payoutChecker) Confirmed(ctx context.Context, b models.Bounty) (bool, error) {
	return c.reg.PayoutConfirmed(ctx, b.Fingerprint())
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
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

	var revenue pipeline.RevenueRecorder
	var archiver pipeline.TransitionArchiver
	if cfg.PostgresDSN != "" {
		led, err := ledger.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer led.Close()
		if err := led.RunMigrations(ctx); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		revenue = led
		archiver = led
	}

	var artifacts pipeline.ArtifactStore
	if cfg.S3Bucket != "" {
		s3Store, err := artifact.NewS3Store(ctx, artifact.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatalf("init s3 store: %v", err)
		}
		artifacts = s3Store
	} else {
		artifacts = artifact.NewLocalStore(cfg.ArtifactDir)
	}

	hooks := lifecycle.NewHooks()
	if cfg.TelegramToken != "" {
		notifier := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, "")
		hooks.On(models.StatusClaimed, notifier.ClaimedHook)
		hooks.On(models.StatusPaid, notifier.PaidHook)
	}

	retry := pipeline.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries
	retry.BackoffInitial = cfg.BackoffInitial
	retry.BackoffMax = cfg.BackoffMax
	platforms := pipeline.NewPlatforms()
	if cfg.GitHubToken != "" {
		gh := pipeline.NewGitHubPlatform(cfg.GitHubToken, "")
		platforms.RegisterClaimer("github", gh)
		platforms.RegisterSubmitter("github", gh)
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("hunter-%d", os.Getpid())
		}
	}
	work := pipeline.NewDraftWorkProvider(workerID)

	stages := []pipeline.Stage{
		pipeline.NewAnalysisStage(pipeline.AnalysisConfig{
			MinScore:     cfg.MinAnalysisScore,
			MinRewardUSD: cfg.MinRewardUSD,
		}),
		pipeline.NewClaimStage(platforms, retry),
		pipeline.NewSubmitStage(platforms, work, artifacts, retry),
		pipeline.NewPaymentStage(payoutChecker{reg: reg}, revenue, retry),
	}
	executor := pipeline.NewExecutor(mgr, stages, pipeline.Options{
		Width:        cfg.Concurrency,
		PollInterval: cfg.PollInterval,
		Hooks:        hooks,
		Archiver:     archiver,
	})

	client := collect.NewClient(collect.ClientOptions{MaxRetries: cfg.MaxRetries})
	var collectors []collect.Collector
	if len(cfg.GitHubOrgs) > 0 {
		collectors = append(collectors, collect.NewGitHubCollector(client, collect.GitHubOptions{
			Token: cfg.GitHubToken,
			Orgs:  cfg.GitHubOrgs,
			Label: cfg.GitHubLabel,
		}))
	}
	if cfg.BoardURL != "" {
		collectors = append(collectors, collect.NewBoardCollector(client, collect.BoardOptions{
			Source: cfg.BoardSource,
			URL:    cfg.BoardURL,
		}))
	}
	if len(collectors) > 0 {
		orch := collect.NewOrchestrator(collectors, mgr, cfg.DiscoveryInterval)
		go func() {
			if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("discovery stopped: %v", err)
			}
		}()
	} else {
		log.Printf("no collectors configured, relying on API intake only")
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("hunter %s started width=%d poll=%s", workerID, cfg.Concurrency, cfg.PollInterval)
	if err := executor.Run(ctx); err != nil {
		log.Printf("hunter stopped: %v", err)
	}
}

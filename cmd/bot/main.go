package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ClassFund/internal/config"
	"ClassFund/internal/fund"
	"ClassFund/internal/notifier"
	"ClassFund/internal/reconcile"
	"ClassFund/internal/recorder"
	"ClassFund/internal/scheduler"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config validation: %v", err)
	}

	log := config.NewLogger(cfg)
	log.Info("ClassFund starting...")

	seed, _ := cfg.Seed()
	policy, _ := cfg.Policy()
	loc, _ := cfg.Location()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init store
	if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	store, err := recorder.NewSQLiteStore(cfg.Database.SQLitePath, cfg.Database.OpTimeout, log.WithField("component", "store"))
	if err != nil {
		log.Fatalf("init sqlite store: %v", err)
	}
	defer store.Close()

	for _, m := range cfg.Members {
		if err := store.UpsertMember(ctx, m.Member()); err != nil {
			log.Fatalf("seed member %s: %v", m.ID, err)
		}
	}

	// Init fund manager
	fm, err := fund.NewManager(ctx, store, seed, log.WithField("component", "fund"))
	if err != nil {
		log.Fatalf("init fund manager: %v", err)
	}

	alloc := fund.NewAllocator(fm, store, policy, log.WithField("component", "allocator"))
	status := reconcile.NewService(fm, store, store, log.WithField("component", "reconcile"))

	// Init notifier
	var tn *notifier.TelegramNotifier
	var events scheduler.EventSink = notifier.NewNoopNotifier()
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log.WithField("component", "telegram"))
		events = tn
	} else {
		log.Warn("telegram not configured, archive events will not be delivered")
	}

	arch := &scheduler.Archiver{
		Config:        fm,
		Ledger:        store,
		Members:       store,
		Archive:       store,
		Events:        events,
		Location:      loc,
		RunTimeout:    cfg.Schedule.RunTimeout,
		MemberTimeout: cfg.Schedule.MemberTimeout,
		Now:           time.Now,
		Log:           log.WithField("component", "archiver"),
	}

	// Optional cross-process run guard
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warnf("redis unreachable, archival runs are guarded in-process only: %v", err)
		} else {
			arch.Lock = scheduler.NewRedisLock(rdb, cfg.Redis.LockTTL)
			log.Infof("archival run lock: redis %s", cfg.Redis.Address)
		}
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, arch, status, alloc, fm, store, log.WithField("component", "scheduler"))
	if err := sched.RegisterAll(cfg.Schedule.ArchiveCron); err != nil {
		log.Fatalf("register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("Telegram polling started")
	}

	// Optional: archive the previous month immediately
	if os.Getenv("ARCHIVE_ON_START") == "true" {
		log.Info("ARCHIVE_ON_START enabled, archiving previous month now")
		go sched.RunArchiveNow()
	}

	log.Infof("ClassFund is running (archive cron %q, %s). Press Ctrl+C to stop.", cfg.Schedule.ArchiveCron, loc)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping...")
	cancel()
	log.Info("ClassFund stopped")
}


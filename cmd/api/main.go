package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/veloura/marketplace/internal/config"
	"github.com/veloura/marketplace/internal/httpx"
	"github.com/veloura/marketplace/internal/inventory"
	kafkax "github.com/veloura/marketplace/internal/kafka"
	"github.com/veloura/marketplace/internal/lifecycle"
	"github.com/veloura/marketplace/internal/orders"
	"github.com/veloura/marketplace/internal/postgres"
	"github.com/veloura/marketplace/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when a DSN is configured, in-process otherwise.
	var items inventory.Store
	var repo orders.Repo
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		items = &inventory.PGStore{DB: db}
		repo = &orders.PGRepo{DB: db}
		log.Printf("storage: postgres")
	} else {
		items = inventory.NewMemoryStore()
		repo = orders.NewMemoryRepo()
		log.Printf("storage: in-memory")
	}

	// Redis
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
	}

	// Kafka event bus
	var sink orders.EventSink
	var bus *kafkax.Bus
	if len(cfg.KafkaBrokers) > 0 {
		bus = kafkax.NewBus(cfg.KafkaBrokers, 1024)
		bus.Start(ctx)
		sink = bus
	}

	mgr := lifecycle.NewManager(items, repo, lifecycle.Config{
		Events:        sink,
		TakeRateBps:   func(string) int { return cfg.DefaultTakeRateBps },
		DisputeWindow: cfg.DisputeWindow,
		PayoutHold:    cfg.PayoutHold,
		Service:       cfg.ServiceName,
	})

	// Expiry sweeper
	sweeper := inventory.NewSweeper(items, sink, cfg.SweepInterval, cfg.ServiceName)
	go sweeper.Run(ctx)

	// HTTP
	router := httpx.NewRouter()
	h := &httpx.Handler{
		Items:          items,
		Manager:        mgr,
		Redis:          rdb,
		Events:         sink,
		Service:        cfg.ServiceName,
		ReservationTTL: cfg.ReservationTTL,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	if bus != nil {
		bus.WaitClosed()
	}
}

// The payout job watches delivered orders and announces the ones whose funds
// have cleared the hold period with no live dispute. It consumes
// order.delivered to build its candidate set and re-checks eligibility on a
// fixed interval; disbursement itself happens downstream of payout.eligible.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/veloura/marketplace/internal/config"
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

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required for the payout job")
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	bus := kafkax.NewBus(cfg.KafkaBrokers, 256)
	bus.Start(ctx)

	repo := &orders.PGRepo{DB: db}
	mgr := lifecycle.NewManager(&inventory.PGStore{DB: db}, repo, lifecycle.Config{
		PayoutHold: cfg.PayoutHold,
		Service:    cfg.ServiceName + "-payout",
	})

	job := &payoutJob{
		redis:   rdb,
		manager: mgr,
		bus:     bus,
		service: cfg.ServiceName + "-payout",
	}

	// Candidate feed: every delivered order becomes a payout candidate.
	group := getenv("PAYOUT_GROUP", "payout-job")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderDelivered, 4)
	go func() {
		log.Printf("payout consumer started: group=%s topic=%s", group, orders.TopicOrderDelivered)
		if err := cons.Start(ctx, job.handleDelivered); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// Periodic eligibility check.
	interval := getdur("PAYOUT_CHECK_INTERVAL", time.Hour)
	go job.run(ctx, interval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down payout job...")
	cancel()
	bus.WaitClosed()
}

type payoutJob struct {
	redis   *redis.Client
	manager *lifecycle.Manager
	bus     *kafkax.Bus
	service string
}

func (j *payoutJob) handleDelivered(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderDelivered {
		return nil
	}

	// dedup on event id
	dkey := fmt.Sprintf(redisx.KeyDedup, "payout", env.EventID)
	if exists, _ := redisx.Exists(ctx, j.redis, dkey); exists {
		return nil
	}
	_ = j.redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderStatusPayload](env.Payload)
	if err != nil {
		return err
	}
	return j.redis.SAdd(ctx, redisx.KeyPayoutCandidates, p.OrderID).Err()
}

func (j *payoutJob) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("payout check started: interval=%s", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.check(ctx); err != nil {
				log.Printf("payout check failed: %v", err)
			}
		}
	}
}

const backfillLimit = 500

func (j *payoutJob) check(ctx context.Context) error {
	// Seed candidates from storage as well as from the event feed: orders
	// delivered before the consumer joined still need a payout.
	backfill, err := j.manager.PayoutBackfill(ctx, backfillLimit)
	if err != nil {
		log.Printf("payout backfill: %v", err)
	}
	for _, o := range backfill {
		_ = j.redis.SAdd(ctx, redisx.KeyPayoutCandidates, o.ID).Err()
	}

	ids, err := j.redis.SMembers(ctx, redisx.KeyPayoutCandidates).Result()
	if err != nil {
		return err
	}
	for _, orderID := range ids {
		o, eligible, err := j.manager.CheckPayout(ctx, orderID)
		if err != nil {
			log.Printf("check payout %s: %v", orderID, err)
			continue
		}
		if o.Status != orders.OrderDelivered {
			// refunded or otherwise out of the running; drop the candidate
			_ = j.redis.SRem(ctx, redisx.KeyPayoutCandidates, orderID).Err()
			continue
		}
		if !eligible {
			continue // still in the hold period or disputed; keep for next pass
		}

		env := orders.Envelope{
			EventID:       uuid.NewString(),
			EventType:     orders.EventPayoutEligible,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      j.service,
			CorrelationID: orderID,
			Payload: kafkax.MustMarshal(orders.PayoutEligiblePayload{
				OrderID:     orderID,
				StoreID:     o.StoreID,
				PayoutCents: orders.SellerPayout(o),
				DeliveredAt: *o.Shipping.DeliveredAt,
			}),
		}
		j.bus.Emit(ctx, orders.TopicPayoutEligible, orders.PartitionKey(orderID), env)
		_ = j.redis.SRem(ctx, redisx.KeyPayoutCandidates, orderID).Err()
		log.Printf("order %s eligible for payout: %d cents", orderID, orders.SellerPayout(o))
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/internal/snowflake"
	"github.com/questline/fedi/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// DeliveryKey is the redis list holding queued deliveries.
const DeliveryKey = "fedi:deliveries"

type deliveryJob struct {
	LocalActorID snowflake.ID   `json:"local_actor_id,string"`
	Activity     map[string]any `json:"activity"`
}

// RedisQueue queues deliveries on a redis list. Jobs are pushed on the
// left and popped from the right.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) EnqueueDeliverActivity(ctx context.Context, activity map[string]any, localActorID snowflake.ID) error {
	b, err := json.Marshal(deliveryJob{LocalActorID: localActorID, Activity: activity})
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, DeliveryKey, b).Err()
}

// NewRedisDeliveryProcessor returns a worker that pops jobs from
// DeliveryKey and hands them to d. Jobs whose sender cannot be found are
// logged and dropped.
func NewRedisDeliveryProcessor(rdb *redis.Client, db *gorm.DB, d Deliverer, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger.Info("redis delivery processor started")
		defer logger.Info("redis delivery processor stopped")

		for {
			res, err := rdb.BRPop(ctx, 5*time.Second, DeliveryKey).Result()
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, redis.Nil):
				continue
			case err != nil:
				return err
			}
			// res is [key, value].
			if err := deliverJob(ctx, db, d, []byte(res[1])); err != nil {
				logger.Warn("dropping delivery job", "err", err)
			}
		}
	}
}

func deliverJob(ctx context.Context, db *gorm.DB, d Deliverer, payload []byte) error {
	var job deliveryJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return err
	}
	sender, err := models.NewLocalActors(db.WithContext(ctx)).FindByID(job.LocalActorID)
	if err != nil {
		return fmt.Errorf("local actor %v: %w", job.LocalActorID, err)
	}
	d.Deliver(context.WithoutCancel(ctx), job.Activity, sender)
	return nil
}

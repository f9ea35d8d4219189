package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"github.com/questline/fedi/models"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// Queue accepts activities for background delivery.
type Queue interface {
	EnqueueDeliverActivity(ctx context.Context, activity map[string]any, localActorID snowflake.ID) error
}

// Deliverer delivers an activity to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, activity map[string]any, sender *models.LocalActor)
}

// DBQueue queues deliveries in the delivery_requests table.
type DBQueue struct {
	db *gorm.DB
}

func NewDBQueue(db *gorm.DB) *DBQueue {
	return &DBQueue{db: db}
}

func (q *DBQueue) EnqueueDeliverActivity(ctx context.Context, activity map[string]any, localActorID snowflake.ID) error {
	return models.NewDeliveryRequests(q.db.WithContext(ctx)).Enqueue(localActorID, activity)
}

// NewDeliveryProcessor returns a worker that polls the delivery_requests
// table every interval and hands each request to d.
func NewDeliveryProcessor(db *gorm.DB, d Deliverer, logger *slog.Logger, interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger.Info("delivery processor started")
		defer logger.Info("delivery processor stopped")

		for {
			if _, err := ProcessDeliveries(ctx, db, d, logger); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
				// continue
			}
		}
	}
}

// ProcessDeliveries makes one pass through the queued delivery requests.
// A pass, once started, is not cancelled when ctx is.
func ProcessDeliveries(ctx context.Context, db *gorm.DB, d Deliverer, logger *slog.Logger) (int, error) {
	ctx = context.WithoutCancel(ctx)
	return pass(db.WithContext(ctx), deliveryScope, func(tx *gorm.DB, request *models.DeliveryRequest) error {
		if request.LocalActor == nil {
			return fmt.Errorf("delivery request %d: local actor %v not found", request.ID, request.LocalActorID)
		}
		logger.Debug("delivering", "request", request.ID, "activity", request.Activity["id"], "sender", request.LocalActor.ActivityPubID)
		d.Deliver(ctx, request.Activity, request.LocalActor)
		return nil
	})
}

func deliveryScope(db *gorm.DB) *gorm.DB {
	return pending(db).Preload("LocalActor")
}

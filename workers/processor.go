// Package workers runs the background jobs that deliver queued activities.
package workers

import (
	"time"

	"github.com/questline/fedi/models"
	"gorm.io/gorm"
)

const (
	// maxAttempts is the number of times a request is tried before it is
	// left in its table for inspection.
	maxAttempts = 3

	batchSize = 100
)

// pass makes one pass through the requests matching scope, calling fn for
// each one. A request for which fn succeeds is deleted; otherwise its
// attempt counters are updated and the pass continues. pass returns the
// number of requests seen.
func pass[T any](db *gorm.DB, scope func(*gorm.DB) *gorm.DB, fn func(*gorm.DB, T) error) (int, error) {
	var requests []T
	seen := 0
	err := db.Scopes(scope).FindInBatches(&requests, batchSize, func(tx *gorm.DB, _ int) error {
		for _, request := range requests {
			seen++
			start := time.Now()
			if err := fn(tx, request); err != nil {
				if err := markFailed(tx, request, start, err); err != nil {
					return err
				}
				continue
			}
			if err := tx.Delete(request).Error; err != nil {
				return err
			}
		}
		return nil
	}).Error
	return seen, err
}

func markFailed(db *gorm.DB, request any, at time.Time, cause error) error {
	return db.Model(request).UpdateColumns(map[string]any{
		"attempts":     gorm.Expr("attempts + 1"),
		"last_attempt": at,
		"last_result":  cause.Error(),
	}).Error
}

// pending selects requests that have not exhausted their attempts.
func pending(db *gorm.DB) *gorm.DB {
	return db.Where("attempts < ?", maxAttempts)
}

// PurgeExhaustedDeliveries deletes delivery requests that have used all
// their attempts.
func PurgeExhaustedDeliveries(db *gorm.DB) (int64, error) {
	res := db.Where("attempts >= ?", maxAttempts).Delete(&models.DeliveryRequest{})
	return res.RowsAffected, res.Error
}

package main

import (
	"fmt"
	"time"

	"github.com/questline/fedi/models"
	"github.com/questline/fedi/workers"
	"gorm.io/gorm"
)

type HouseKeepingCmd struct {
	NotificationAge time.Duration `help:"Delete read notifications older than this." default:"720h"`
}

func (c *HouseKeepingCmd) Run(ctx *Context) error {
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		n, err := workers.PurgeExhaustedDeliveries(tx)
		if err != nil {
			return err
		}
		fmt.Println("deleted", n, "exhausted delivery requests")

		res := tx.Where("read_at IS NOT NULL AND read_at < ?", time.Now().Add(-c.NotificationAge)).Delete(&models.Notification{})
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "read notifications")
		return nil
	})
}

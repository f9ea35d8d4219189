//go:build postgres

package main

// postgres support

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newDialector(dsn string) gorm.Dialector {
	return postgres.New(postgres.Config{
		DSN: dsn,
	})
}

func configureDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}

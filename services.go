package main

import (
	"context"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/questline/fedi/delivery"
	"github.com/questline/fedi/directory"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/workers"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// QueueFlags configure discovery, delivery and the delivery queue.
type QueueFlags struct {
	Queue              string        `help:"Delivery queue backend (db, redis)." enum:"db,redis" default:"db" env:"FEDI_QUEUE"`
	RedisAddr          string        `help:"Address of the redis server used by --queue=redis." default:"localhost:6379" env:"FEDI_REDIS_ADDR"`
	MemcacheAddr       string        `help:"Share the discovery cache through memcached at this address." env:"FEDI_MEMCACHE_ADDR"`
	DiscoveryCacheSize int           `help:"Entries in the process local discovery cache." default:"512" env:"FEDI_DISCOVERY_CACHE_SIZE"`
	DeliveryWorkers    int           `help:"Concurrent POSTs per delivered activity." default:"4" env:"FEDI_DELIVERY_WORKERS"`
	PollInterval       time.Duration `help:"How often the db queue is polled." default:"5s" env:"FEDI_POLL_INTERVAL"`
}

type services struct {
	store     *models.Store
	directory *directory.Directory
	delivery  *delivery.Engine
	queue     workers.Queue
	// worker drains queue until its context is cancelled.
	worker func(context.Context) error
}

func (q *QueueFlags) services(ctx *Context, db *gorm.DB, domain string) *services {
	store := models.NewStore(db)
	var cache directory.Cache = directory.NewLRU(q.DiscoveryCacheSize)
	if q.MemcacheAddr != "" {
		cache = directory.NewMemcache(memcache.New(q.MemcacheAddr), time.Hour)
	}
	dir := directory.New(store,
		directory.WithCache(cache),
		directory.WithLogger(ctx.Logger.With("component", "directory")),
	)
	engine := delivery.New(delivery.Config{
		Domain:    domain,
		Store:     store,
		Directory: dir,
		Workers:   q.DeliveryWorkers,
		Logger:    ctx.Logger.With("component", "delivery"),
	})
	svc := &services{
		store:     store,
		directory: dir,
		delivery:  engine,
	}
	logger := ctx.Logger.With("component", "worker")
	switch q.Queue {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: q.RedisAddr})
		svc.queue = workers.NewRedisQueue(rdb)
		svc.worker = workers.NewRedisDeliveryProcessor(rdb, db, engine, logger)
	default:
		svc.queue = workers.NewDBQueue(db)
		svc.worker = workers.NewDeliveryProcessor(db, engine, logger, q.PollInterval)
	}
	return svc
}

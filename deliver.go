package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/questline/fedi/internal/group"
)

type DeliverCmd struct {
	QueueFlags `embed:""`
}

func (d *DeliverCmd) Run(ctx *Context) error {
	domain, err := ctx.domain()
	if err != nil {
		return err
	}
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	svc := d.services(ctx, db, domain)

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g := group.New(sigctx)
	g.AddContext(svc.worker)
	return g.Wait()
}

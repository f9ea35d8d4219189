package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/questline/fedi/models"
	"github.com/questline/fedi/outbox"
)

type FollowCmd struct {
	Object     string `arg:"" help:"IRI of the actor to follow."`
	As         string `required:"" help:"Username of the local actor to follow with."`
	QueueFlags `embed:""`
}

func (f *FollowCmd) Run(ctx *Context) error {
	domain, err := ctx.domain()
	if err != nil {
		return err
	}
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	svc := f.services(ctx, db, domain)
	builder := outbox.New(domain)

	var actor *models.LocalActor
	var follow map[string]any
	err = svc.store.Do(context.Background(), func(uow models.UnitOfWork) error {
		actor, err = uow.LocalActors().FindByUsername(f.As)
		if err != nil {
			return fmt.Errorf("local actor %q: %w", f.As, err)
		}
		follow = builder.BuildFollow(actor, f.Object)
		_, err = uow.Outbox().Append(actor, follow, time.Now())
		return err
	})
	if err != nil {
		return err
	}
	fmt.Println("queued", follow["id"])
	return svc.queue.EnqueueDeliverActivity(context.Background(), follow, actor.ID)
}

type UnfollowCmd struct {
	Object     string `arg:"" help:"IRI of the actor to unfollow."`
	As         string `required:"" help:"Username of the local actor that follows."`
	QueueFlags `embed:""`
}

func (u *UnfollowCmd) Run(ctx *Context) error {
	domain, err := ctx.domain()
	if err != nil {
		return err
	}
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	svc := u.services(ctx, db, domain)
	builder := outbox.New(domain)

	var actor *models.LocalActor
	var undo map[string]any
	err = svc.store.Do(context.Background(), func(uow models.UnitOfWork) error {
		actor, err = uow.LocalActors().FindByUsername(u.As)
		if err != nil {
			return fmt.Errorf("local actor %q: %w", u.As, err)
		}
		follow, err := lastFollow(uow, actor, u.Object)
		if err != nil {
			return err
		}
		undo = builder.BuildUndo(actor, follow)
		if _, err := uow.Outbox().Append(actor, undo, time.Now()); err != nil {
			return err
		}
		return uow.Following().Remove(actor, u.Object)
	})
	if err != nil {
		return err
	}
	fmt.Println("queued", undo["id"])
	return svc.queue.EnqueueDeliverActivity(context.Background(), undo, actor.ID)
}

// lastFollow returns the most recent Follow of target in actor's outbox.
func lastFollow(uow models.UnitOfWork, actor *models.LocalActor, target string) (map[string]any, error) {
	recs, err := uow.Outbox().ForLocalActor(actor)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Type == outbox.FOLLOW && rec.Activity["object"] == target {
			return rec.Activity, nil
		}
	}
	return nil, errors.New(actor.ActivityPubID + " has not followed " + target)
}

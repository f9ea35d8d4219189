package main

import (
	"context"
	"fmt"
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/outbox"
)

type PublishCmd struct {
	Submission uint64 `arg:"" help:"Id of the submission to publish."`
	QueueFlags `embed:""`
}

func (p *PublishCmd) Run(ctx *Context) error {
	return appendAndEnqueue(ctx, &p.QueueFlags, func(uow models.UnitOfWork, builder *outbox.Builder, domain string) (*models.LocalActor, map[string]any, error) {
		return publishSubmission(uow, builder, snowflake.ID(p.Submission))
	})
}

type LikeCmd struct {
	Submission uint64 `arg:"" help:"Id of the submission to like."`
	As         string `required:"" help:"Username of the liking actor, created if it does not exist."`
	QueueFlags `embed:""`
}

func (l *LikeCmd) Run(ctx *Context) error {
	return appendAndEnqueue(ctx, &l.QueueFlags, func(uow models.UnitOfWork, builder *outbox.Builder, domain string) (*models.LocalActor, map[string]any, error) {
		return reactToSubmission(uow, builder, domain, l.As, snowflake.ID(l.Submission), "")
	})
}

type ReplyCmd struct {
	Submission uint64 `arg:"" help:"Id of the submission to reply to."`
	Text       string `arg:"" help:"Markdown text of the reply."`
	As         string `required:"" help:"Username of the replying actor, created if it does not exist."`
	QueueFlags `embed:""`
}

func (r *ReplyCmd) Run(ctx *Context) error {
	return appendAndEnqueue(ctx, &r.QueueFlags, func(uow models.UnitOfWork, builder *outbox.Builder, domain string) (*models.LocalActor, map[string]any, error) {
		return reactToSubmission(uow, builder, domain, r.As, snowflake.ID(r.Submission), r.Text)
	})
}

// appendAndEnqueue runs build in a unit of work and queues the resulting
// activity for delivery once it has committed.
func appendAndEnqueue(ctx *Context, q *QueueFlags, build func(models.UnitOfWork, *outbox.Builder, string) (*models.LocalActor, map[string]any, error)) error {
	domain, err := ctx.domain()
	if err != nil {
		return err
	}
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	svc := q.services(ctx, db, domain)
	builder := outbox.New(domain)

	var actor *models.LocalActor
	var activity map[string]any
	err = svc.store.Do(context.Background(), func(uow models.UnitOfWork) error {
		actor, activity, err = build(uow, builder, domain)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Println("queued", activity["id"])
	return svc.queue.EnqueueDeliverActivity(context.Background(), activity, actor.ID)
}

// publishSubmission appends a Create of the submission to its owner's outbox.
func publishSubmission(uow models.UnitOfWork, builder *outbox.Builder, id snowflake.ID) (*models.LocalActor, map[string]any, error) {
	sub, err := uow.Submissions().FindByID(id)
	if err != nil {
		return nil, nil, fmt.Errorf("submission %v: %w", id, err)
	}
	create, err := builder.BuildCreateFromSubmission(uow, sub, sub.Owner, sub.Quest)
	return sub.Owner, create, err
}

// reactToSubmission likes the submission, or replies to it when text is
// not empty, as the local actor named as. The actor is created the first
// time it federates.
func reactToSubmission(uow models.UnitOfWork, builder *outbox.Builder, domain, as string, id snowflake.ID, text string) (*models.LocalActor, map[string]any, error) {
	actor, err := uow.LocalActors().FindOrCreate(as, domain)
	if err != nil {
		return nil, nil, fmt.Errorf("local actor %q: %w", as, err)
	}
	sub, err := uow.Submissions().FindByID(id)
	if err != nil {
		return nil, nil, fmt.Errorf("submission %v: %w", id, err)
	}
	var activity map[string]any
	if text == "" {
		activity = builder.BuildLikeFromSubmission(actor, sub, sub.Owner.ActivityPubID)
	} else {
		activity = builder.BuildReplyFromSubmission(actor, sub, sub.Owner.ActivityPubID, text)
	}
	if _, err := uow.Outbox().Append(actor, activity, time.Now()); err != nil {
		return nil, nil, err
	}
	return actor, activity, nil
}

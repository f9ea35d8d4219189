package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/directory"
	"github.com/questline/fedi/models"
)

type FetchActorCmd struct {
	Actor string `arg:"" help:"IRI of the actor to fetch."`
}

func (f *FetchActorCmd) Run(ctx *Context) error {
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	dir := directory.New(models.NewStore(db), directory.WithLogger(ctx.Logger))
	fa, err := dir.Resolve(context.Background(), f.Actor)
	if err != nil {
		return fmt.Errorf("failed to fetch actor: %w", err)
	}
	if _, err := dir.ResolvePublicKey(context.Background(), fa.URI()); err != nil {
		return fmt.Errorf("failed to fetch key: %w", err)
	}
	if fa, err = models.NewForeignActors(db).FindByID(fa.ID); err != nil {
		return err
	}
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{
		Indent: "\t", // indent for readability
	}, os.Stdout, fa)
}

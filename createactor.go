package main

import (
	"fmt"

	"github.com/questline/fedi/models"
)

type CreateActorCmd struct {
	Username string `required:"" help:"Username of the actor to create."`
}

func (c *CreateActorCmd) Run(ctx *Context) error {
	domain, err := ctx.domain()
	if err != nil {
		return err
	}
	db, err := ctx.openDB()
	if err != nil {
		return err
	}
	actor, token, err := models.NewLocalActors(db).Create(c.Username, domain)
	if err != nil {
		return fmt.Errorf("create actor: %w", err)
	}
	fmt.Println("created", actor.ActivityPubID)
	// the token is stored hashed and cannot be shown again.
	fmt.Println("token:", token)
	return nil
}

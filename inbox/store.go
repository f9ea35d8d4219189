package inbox

import (
	"context"

	"github.com/questline/fedi/internal/snowflake"
	"github.com/questline/fedi/models"
)

// StoreNotifier is a Notifier that stores models.Notifications.
type StoreNotifier struct {
	store *models.Store
}

func NewStoreNotifier(store *models.Store) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (n *StoreNotifier) EmitNotification(ctx context.Context, userID snowflake.ID, typ string, payload map[string]any) error {
	return n.store.Do(ctx, func(uow models.UnitOfWork) error {
		return uow.Notifications().Add(userID, typ, payload)
	})
}

// StoreUsers is a LocalUsers backed by the local_actors table.
type StoreUsers struct {
	store *models.Store
}

func NewStoreUsers(store *models.Store) *StoreUsers {
	return &StoreUsers{store: store}
}

func (u *StoreUsers) ResolveLocalUserByActivityPubID(ctx context.Context, iri string) (*models.LocalActor, error) {
	var actor *models.LocalActor
	err := u.store.Do(ctx, func(uow models.UnitOfWork) error {
		var err error
		actor, err = uow.LocalActors().FindByActivityPubID(iri)
		return err
	})
	return actor, err
}

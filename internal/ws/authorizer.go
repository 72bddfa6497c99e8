package ws

import "context"

// Authorizer decides whether a principal may follow an entity topic.
type Authorizer interface {
	CanSubscribe(ctx context.Context, p Principal, class EntityClass, entityID string) (bool, error)
}

type AuthorizerFunc func(ctx context.Context, p Principal, class EntityClass, entityID string) (bool, error)

func (f AuthorizerFunc) CanSubscribe(ctx context.Context, p Principal, class EntityClass, entityID string) (bool, error) {
	return f(ctx, p, class, entityID)
}

// AllowAll grants every entity subscription to every admitted connection.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context, Principal, EntityClass, string) (bool, error) {
		return true, nil
	})
}

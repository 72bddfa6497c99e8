package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"office-realtime/internal/ws"
)

// AccessStore answers whether a user holds an assignment for an entity.
type AccessStore interface {
	HasAssignment(ctx context.Context, userID, entityClass, entityID string) (bool, error)
}

// AccessCache keeps recent access decisions.
type AccessCache interface {
	GetAccess(ctx context.Context, userID, entityClass, entityID string) (allowed, found bool, err error)
	SetAccess(ctx context.Context, userID, entityClass, entityID string, allowed bool, ttl time.Duration) error
	InvalidateAccess(ctx context.Context, userID string) error
}

// AccessPolicy authorizes entity subscriptions. Privileged roles see every
// practice and client; everyone else needs an assignment in the store. With
// no store configured non-privileged users are denied.
type AccessPolicy struct {
	privileged map[string]struct{}
	store      AccessStore
	cache      AccessCache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

var _ ws.Authorizer = (*AccessPolicy)(nil)

func NewAccessPolicy(privilegedRoles []string, store AccessStore, cache AccessCache, cacheTTL time.Duration, logger *slog.Logger) *AccessPolicy {
	privileged := make(map[string]struct{}, len(privilegedRoles))
	for _, role := range privilegedRoles {
		privileged[strings.ToUpper(strings.TrimSpace(role))] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessPolicy{
		privileged: privileged,
		store:      store,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger.With(slog.String("component", "access_policy")),
	}
}

func (p *AccessPolicy) CanSubscribe(ctx context.Context, principal ws.Principal, class ws.EntityClass, entityID string) (bool, error) {
	if _, ok := p.privileged[strings.ToUpper(principal.Role)]; ok {
		return true, nil
	}
	if p.store == nil {
		return false, nil
	}

	if p.cache != nil {
		allowed, found, err := p.cache.GetAccess(ctx, principal.UserID, string(class), entityID)
		if err != nil {
			p.logger.Warn("Access cache read failed", "userID", principal.UserID, "error", err)
		} else if found {
			return allowed, nil
		}
	}

	allowed, err := p.store.HasAssignment(ctx, principal.UserID, string(class), entityID)
	if err != nil {
		return false, err
	}

	if p.cache != nil && p.cacheTTL > 0 {
		if err := p.cache.SetAccess(ctx, principal.UserID, string(class), entityID, allowed, p.cacheTTL); err != nil {
			p.logger.Warn("Access cache write failed", "userID", principal.UserID, "error", err)
		}
	}
	return allowed, nil
}

// Invalidate forgets the cached decisions of userID so the next subscribe
// request reads the store again.
func (p *AccessPolicy) Invalidate(ctx context.Context, userID string) error {
	if p.cache == nil {
		return nil
	}
	if err := p.cache.InvalidateAccess(ctx, userID); err != nil {
		return fmt.Errorf("invalidate access of %s: %w", userID, err)
	}
	return nil
}

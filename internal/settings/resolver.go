package settings

import (
	"context"
	"log/slog"
)

// Store is the read side the resolver depends on.
type Store interface {
	Get(ctx context.Context, userID string) (*GenerationSettings, error)
}

// Resolver produces validated settings for a user. A missing row or a
// failing store yields defaults, never a request failure.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a settings resolver. A nil store resolves
// everyone to defaults.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: logger.With("component", "settings"),
	}
}

// Resolve returns fully-populated, in-range settings for the user.
func (r *Resolver) Resolve(ctx context.Context, userID string) GenerationSettings {
	if r.store == nil {
		return Defaults()
	}

	stored, err := r.store.Get(ctx, userID)
	if err != nil {
		r.logger.Warn("settings lookup failed, using defaults", "user_id", userID, "error", err)
		return Defaults()
	}
	if stored == nil {
		return Defaults()
	}
	return stored.Normalize()
}

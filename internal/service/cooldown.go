// Package service provides the incident evaluation and response pipeline.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CooldownGate decides whether an entity may alert. A gate without a store
// always allows, so the detector works without auxiliary infrastructure.
type CooldownGate struct {
	store    CooldownStore
	cooldown time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewCooldownGate creates a gate. store may be nil to disable deduplication.
// timeout bounds each store call; zero means no extra bound.
func NewCooldownGate(store CooldownStore, cooldown, timeout time.Duration, logger zerolog.Logger) *CooldownGate {
	return &CooldownGate{
		store:    store,
		cooldown: cooldown,
		timeout:  timeout,
		logger:   logger.With().Str("component", "cooldown-gate").Logger(),
	}
}

// Enabled reports whether deduplication is active.
func (g *CooldownGate) Enabled() bool {
	return g != nil && g.store != nil
}

// Allow reports whether entityID may alert at now. A true result has already
// reserved the alert in the store; callers must not check again.
// If the store fails, the alert is allowed.
func (g *CooldownGate) Allow(ctx context.Context, entityID string, now time.Time) bool {
	if !g.Enabled() {
		return true
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	allowed, err := g.store.Reserve(ctx, entityID, now, g.cooldown)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("entity", entityID).
			Msg("cooldown store unavailable, allowing alert")
		return true
	}

	if !allowed {
		g.logger.Debug().
			Str("entity", entityID).
			Dur("cooldown", g.cooldown).
			Msg("alert suppressed by cooldown")
	}
	return allowed
}

// Package engine implements the submission and moderation workflow: intake
// with deduplication and cooldown, moderation status transitions, archival
// folding and the derived listing view. It owns the transition rules; the
// store owns durable state.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/doggywatch/doggywatch/internal/ratelimit"
	"github.com/doggywatch/doggywatch/internal/store"
)

// Notifier fans a message out to notification subscribers, excluding the
// listed identities. Delivery is best effort; implementations log their own
// failures and never return them here.
type Notifier interface {
	Notify(ctx context.Context, message string, exclude []int64)
}

type Engine struct {
	store    store.Store
	limiter  ratelimit.Limiter
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Engine)

// WithClock substitutes the engine's clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(s store.Store, limiter ratelimit.Limiter, notifier Notifier, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		limiter:  limiter,
		notifier: notifier,
		log:      log.With().Str("component", "engine").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rights is the privilege level of an identity.
type Rights int

const (
	RightsNone Rights = iota
	RightsModerator
	RightsAdministrator // moderator with can-add-mods
)

func (r Rights) String() string {
	switch r {
	case RightsAdministrator:
		return "Administrator"
	case RightsModerator:
		return "Moderator"
	default:
		return "None"
	}
}

// CheckRights resolves an identity's privilege level.
func (e *Engine) CheckRights(ctx context.Context, uid int64) (Rights, error) {
	mod, err := e.store.GetModerator(ctx, uid)
	if err != nil {
		return RightsNone, storeErr("get moderator", err)
	}
	switch {
	case mod == nil:
		return RightsNone, nil
	case mod.CanAddMods:
		return RightsAdministrator, nil
	default:
		return RightsModerator, nil
	}
}

// BootstrapAdministrators upserts the configured administrator identities
// as moderators with can-add-mods set. Called once at startup.
func (e *Engine) BootstrapAdministrators(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := e.store.EnsureAdministrator(ctx, id); err != nil {
			return storeErr("ensure administrator", err)
		}
	}
	return nil
}

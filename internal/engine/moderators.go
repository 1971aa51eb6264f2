package engine

import (
	"context"
	"errors"

	"github.com/doggywatch/doggywatch/internal/store"
)

// EnrollModerator creates a moderator row for target with default flags
// (notify on, can-add-mods off). The actor must hold can-add-mods; the
// caller is responsible for verifying the target's channel subscription
// first.
func (e *Engine) EnrollModerator(ctx context.Context, actor, target int64) error {
	if err := e.requireCanAddMods(ctx, actor); err != nil {
		return err
	}

	err := e.store.CreateModerator(ctx, &store.Moderator{ID: target, Notify: true})
	if errors.Is(err, store.ErrConflict) {
		return ErrAlreadyEnrolled
	}
	if err != nil {
		return storeErr("create moderator", err)
	}
	return nil
}

// RemoveModerator deletes target's moderator row, reporting whether a row
// was actually removed. The actor must hold can-add-mods.
func (e *Engine) RemoveModerator(ctx context.Context, actor, target int64) (bool, error) {
	if err := e.requireCanAddMods(ctx, actor); err != nil {
		return false, err
	}

	removed, err := e.store.DeleteModerator(ctx, target)
	if err != nil {
		return false, storeErr("delete moderator", err)
	}
	return removed, nil
}

// ToggleNotify inverts a moderator's notification flag and returns the
// updated row.
func (e *Engine) ToggleNotify(ctx context.Context, id int64) (*store.Moderator, error) {
	mod, err := e.store.GetModerator(ctx, id)
	if err != nil {
		return nil, storeErr("get moderator", err)
	}
	if mod == nil {
		return nil, ErrNotFound
	}

	updated, err := e.store.SetModeratorNotify(ctx, id, !mod.Notify)
	if err != nil {
		return nil, storeErr("set moderator notify", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	return updated, nil
}

// Moderators lists every enrolled moderator.
func (e *Engine) Moderators(ctx context.Context) ([]*store.Moderator, error) {
	mods, err := e.store.ListModerators(ctx)
	if err != nil {
		return nil, storeErr("list moderators", err)
	}
	return mods, nil
}

func (e *Engine) requireCanAddMods(ctx context.Context, actor int64) error {
	mod, err := e.store.GetModerator(ctx, actor)
	if err != nil {
		return storeErr("get moderator", err)
	}
	if mod == nil || !mod.CanAddMods {
		return ErrNotPermitted
	}
	return nil
}

package engine

import (
	"context"

	"github.com/doggywatch/doggywatch/internal/store"
)

// Status is the derived display state of an open request. Higher values
// take precedence.
type Status int

const (
	StatusNew Status = iota
	StatusArchived
	StatusArchivedViewed
	StatusViewed
)

// ListItem annotates an open request for display.
type ListItem struct {
	Request      *store.Request
	Video        *store.Video
	Creator      *store.Action
	Contributors int64
	Status       Status
}

// ListOpen returns the open, non-banned requests with their derived status.
// The status is recomputed from the archive on every call; nothing is
// cached.
func (e *Engine) ListOpen(ctx context.Context, unviewedOnly bool) ([]*ListItem, error) {
	open, err := e.store.ListOpenRequests(ctx, unviewedOnly)
	if err != nil {
		return nil, storeErr("list open requests", err)
	}

	items := make([]*ListItem, 0, len(open))
	for _, or := range open {
		creator, err := e.store.FirstAction(ctx, or.Request.ID)
		if err != nil {
			return nil, storeErr("first action", err)
		}
		if creator == nil {
			e.log.Error().Int64("rid", or.Request.ID).Msg("open request without creator")
			return nil, ErrInvariantViolation
		}

		contributors, err := e.store.CountActions(ctx, or.Request.ID)
		if err != nil {
			return nil, storeErr("count actions", err)
		}

		status, err := e.deriveStatus(ctx, or)
		if err != nil {
			return nil, err
		}

		items = append(items, &ListItem{
			Request:      or.Request,
			Video:        or.Video,
			Creator:      creator,
			Contributors: contributors,
			Status:       status,
		})
	}
	return items, nil
}

func (e *Engine) deriveStatus(ctx context.Context, or *store.OpenRequest) (Status, error) {
	if or.Request.ViewedAt != nil {
		return StatusViewed, nil
	}

	viewedTimes, err := e.store.CountArchived(ctx, or.Request.YtID, true)
	if err != nil {
		return StatusNew, storeErr("count archived viewed", err)
	}
	if viewedTimes != 0 {
		return StatusArchivedViewed, nil
	}

	archivedTimes, err := e.store.CountArchived(ctx, or.Request.YtID, false)
	if err != nil {
		return StatusNew, storeErr("count archived", err)
	}
	if archivedTimes != 0 {
		return StatusArchived, nil
	}
	return StatusNew, nil
}

package engine

import (
	"context"
	"time"

	"github.com/doggywatch/doggywatch/internal/store"
)

// SetViewed marks or unmarks a request as viewed and returns its video.
// Idempotent; does not trigger archival.
func (e *Engine) SetViewed(ctx context.Context, rid int64, viewed bool) (*store.Video, error) {
	var ts *time.Time
	if viewed {
		at := e.now().UTC()
		ts = &at
	}

	req, err := e.store.SetRequestViewed(ctx, rid, ts)
	if err != nil {
		return nil, storeErr("set request viewed", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	video, err := e.store.GetVideo(ctx, req.YtID)
	if err != nil {
		return nil, storeErr("get video", err)
	}
	if video == nil {
		e.log.Error().Int64("rid", rid).Str("ytid", req.YtID).Msg("request without video")
		return nil, ErrInvariantViolation
	}
	return video, nil
}

// SetBanned flips a video's banned flag and returns the updated row.
// Banning only affects future display and future submissions; existing
// requests and actions are untouched.
func (e *Engine) SetBanned(ctx context.Context, ytid string, banned bool) (*store.Video, error) {
	video, err := e.store.SetVideoBanned(ctx, ytid, banned)
	if err != nil {
		return nil, storeErr("set video banned", err)
	}
	if video == nil {
		return nil, ErrNotFound
	}
	return video, nil
}

// RequestInfo is the aggregate view of one open request.
type RequestInfo struct {
	Request      *store.Request
	Video        *store.Video
	Creator      *store.Action
	Contributors int64
}

// Info loads a request together with its video, creator and contributor
// count for display.
func (e *Engine) Info(ctx context.Context, rid int64) (*RequestInfo, error) {
	req, err := e.store.GetRequest(ctx, rid)
	if err != nil {
		return nil, storeErr("get request", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	video, err := e.store.GetVideo(ctx, req.YtID)
	if err != nil {
		return nil, storeErr("get video", err)
	}
	creator, err := e.store.FirstAction(ctx, req.ID)
	if err != nil {
		return nil, storeErr("first action", err)
	}
	if video == nil || creator == nil {
		e.log.Error().Int64("rid", rid).Msg("request missing video or creator")
		return nil, ErrInvariantViolation
	}

	contributors, err := e.store.CountActions(ctx, req.ID)
	if err != nil {
		return nil, storeErr("count actions", err)
	}

	return &RequestInfo{
		Request:      req,
		Video:        video,
		Creator:      creator,
		Contributors: contributors,
	}, nil
}

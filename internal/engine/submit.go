package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/doggywatch/doggywatch/internal/store"
)

// SubmitResult reports an accepted submission.
type SubmitResult struct {
	Video   *store.Video
	Request *store.Request

	// CreatedVideo is true when this submission saw the video id for the
	// first time.
	CreatedVideo bool
}

// Submit runs the intake workflow for one contribution: cooldown check,
// video lookup/creation, request reuse/creation, duplicate guard, action
// insert. The store mutations run in one transaction so a request is never
// observable without at least one action.
//
// Failure outcomes: ErrRateLimited, ErrBanned, *AlreadyViewedError,
// ErrDuplicateContribution, *StoreError.
func (e *Engine) Submit(ctx context.Context, ytid, title string, submitter int64) (*SubmitResult, error) {
	// Checked before any store mutation; refreshed only on success.
	if !e.limiter.Allow(submitter) {
		return nil, ErrRateLimited
	}

	var res SubmitResult
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		video, err := e.findOrCreateVideo(ctx, tx, ytid, title, &res)
		if err != nil {
			return err
		}
		if video.Banned {
			return ErrBanned
		}

		req, err := e.findOrCreateRequest(ctx, tx, ytid)
		if err != nil {
			return err
		}
		if req.ViewedAt != nil {
			return &AlreadyViewedError{ViewedAt: *req.ViewedAt}
		}

		if _, err := tx.CreateAction(ctx, req.ID, submitter); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateContribution
			}
			e.cleanupOrphan(ctx, tx, req.ID)
			return storeErr("create action", err)
		}

		res.Video = video
		res.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.limiter.Touch(submitter)

	// Reputation counter failures must not undo an accepted submission.
	if err := e.store.BumpContributions(ctx, submitter); err != nil {
		e.log.Error().Err(err).Int64("uid", submitter).Msg("failed to bump contribution counter")
	}

	if e.notifier != nil {
		msg := fmt.Sprintf("Добавленно новое видео: <b>%s</b>!", res.Video.Title)
		go e.notifier.Notify(context.WithoutCancel(ctx), msg, []int64{submitter})
	}

	return &res, nil
}

func (e *Engine) findOrCreateVideo(ctx context.Context, tx store.Store, ytid, title string, res *SubmitResult) (*store.Video, error) {
	video, err := tx.GetVideo(ctx, ytid)
	if err != nil {
		return nil, storeErr("get video", err)
	}
	if video != nil {
		return video, nil
	}

	video = &store.Video{YtID: ytid, Title: title}
	err = tx.CreateVideo(ctx, video)
	if err == nil {
		res.CreatedVideo = true
		return video, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, storeErr("create video", err)
	}

	// A concurrent submission created it first; use theirs.
	video, err = tx.GetVideo(ctx, ytid)
	if err != nil {
		return nil, storeErr("get video", err)
	}
	if video == nil {
		e.log.Error().Str("ytid", ytid).Msg("video vanished after create conflict")
		return nil, ErrInvariantViolation
	}
	return video, nil
}

func (e *Engine) findOrCreateRequest(ctx context.Context, tx store.Store, ytid string) (*store.Request, error) {
	req, err := tx.GetRequestByVideo(ctx, ytid)
	if err != nil {
		return nil, storeErr("get request", err)
	}
	if req != nil {
		return req, nil
	}

	req, err = tx.CreateRequest(ctx, ytid)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, storeErr("create request", err)
	}

	// Lost the race for the open request; reuse the winner's.
	req, err = tx.GetRequestByVideo(ctx, ytid)
	if err != nil {
		return nil, storeErr("get request", err)
	}
	if req == nil {
		e.log.Error().Str("ytid", ytid).Msg("request vanished after create conflict")
		return nil, ErrInvariantViolation
	}
	return req, nil
}

// cleanupOrphan removes a request left with zero actions after a failed
// insert. Its own failures are logged so they never mask the insert error
// being reported to the submitter.
func (e *Engine) cleanupOrphan(ctx context.Context, tx store.Store, rid int64) {
	count, err := tx.CountActions(ctx, rid)
	if err != nil {
		e.log.Error().Err(err).Int64("rid", rid).Msg("orphan check failed")
		return
	}
	if count != 0 {
		return
	}
	if err := tx.DeleteRequest(ctx, rid); err != nil {
		e.log.Error().Err(err).Int64("rid", rid).Msg("orphan cleanup failed")
	}
}

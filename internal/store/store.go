package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when an insert violates a uniqueness constraint:
// a second open request for the same video, a duplicate (request, user)
// action, or an already-enrolled moderator. Callers translate it into their
// own taxonomy.
var ErrConflict = errors.New("store: conflict")

// Store defines the interface for data persistence.
type Store interface {
	// Videos
	GetVideo(ctx context.Context, ytid string) (*Video, error)
	CreateVideo(ctx context.Context, video *Video) error
	SetVideoBanned(ctx context.Context, ytid string, banned bool) (*Video, error)

	// Requests
	GetRequest(ctx context.Context, id int64) (*Request, error)
	GetRequestByVideo(ctx context.Context, ytid string) (*Request, error)
	CreateRequest(ctx context.Context, ytid string) (*Request, error)
	SetRequestViewed(ctx context.Context, id int64, viewedAt *time.Time) (*Request, error)
	DeleteRequest(ctx context.Context, id int64) error
	ListOpenRequests(ctx context.Context, unviewedOnly bool) ([]*OpenRequest, error)
	ListRequestsWithActions(ctx context.Context, scope ArchiveScope) ([]*RequestWithActions, error)

	// Actions
	CreateAction(ctx context.Context, rid, uid int64) (*Action, error)
	CountActions(ctx context.Context, rid int64) (int64, error)
	FirstAction(ctx context.Context, rid int64) (*Action, error)

	// Archive
	FoldRequests(ctx context.Context, entries []*Archived, requestIDs []int64) error
	CountArchived(ctx context.Context, ytid string, viewedOnly bool) (int64, error)

	// Moderators
	GetModerator(ctx context.Context, id int64) (*Moderator, error)
	CreateModerator(ctx context.Context, mod *Moderator) error
	ListModerators(ctx context.Context) ([]*Moderator, error)
	DeleteModerator(ctx context.Context, id int64) (bool, error)
	SetModeratorNotify(ctx context.Context, id int64, notify bool) (*Moderator, error)
	EnsureAdministrator(ctx context.Context, id int64) error

	// Users
	GetUser(ctx context.Context, id int64) (*User, error)
	BumpContributions(ctx context.Context, id int64) error

	// WithTx runs fn against a transactional view of the store. Every store
	// call made through the argument shares one transaction; fn returning an
	// error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

package store

import "time"

// Video is a unique external video keyed by its platform id.
type Video struct {
	YtID   string `json:"ytid"`
	Title  string `json:"title"`
	Banned bool   `json:"banned"`
}

// Request is the open ticket for a video awaiting moderator attention.
// At most one exists per video; ViewedAt is nil until a moderator marks it.
type Request struct {
	ID       int64      `json:"id"`
	YtID     string     `json:"ytid"`
	ViewedAt *time.Time `json:"viewed_at,omitempty"`
}

// Action is one user's contribution to a request. The action with the
// lowest id is the request's creator.
type Action struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"rid"`
	UserID    int64     `json:"uid"`
	CreatedAt time.Time `json:"created_at"`
}

// Archived is the immutable folded record of a resolved request.
type Archived struct {
	ID           int64      `json:"id"`
	YtID         string     `json:"ytid"`
	ViewedAt     *time.Time `json:"viewed_at,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	Contributors int64      `json:"contributors"`
}

// Moderator is a privileged identity.
type Moderator struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Notify     bool      `json:"notify"`
	CanAddMods bool      `json:"can_add_mods"`
}

// User tracks how many submissions an identity has had accepted.
type User struct {
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Contributions int64     `json:"contributions"`
}

// OpenRequest pairs a request with its video for listing.
type OpenRequest struct {
	Request *Request
	Video   *Video
}

// RequestWithActions carries a request and all of its actions, ordered by
// action id ascending.
type RequestWithActions struct {
	Request *Request
	Actions []*Action
}

// ArchiveScope selects which requests an archival sweep folds.
type ArchiveScope int

const (
	ScopeViewed ArchiveScope = iota
	ScopeAll
)

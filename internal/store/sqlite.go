package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same statement
// helpers serve plain and transactional calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteStore struct {
	db *sql.DB
	tx *sql.Tx // non-nil inside WithTx
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		ytid TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		banned INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ytid TEXT NOT NULL,
		viewed_at DATETIME,
		FOREIGN KEY (ytid) REFERENCES videos(ytid) ON DELETE CASCADE,
		UNIQUE(ytid)
	);

	CREATE INDEX IF NOT EXISTS idx_requests_viewed_at ON requests(viewed_at);

	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rid INTEGER NOT NULL,
		uid INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (rid) REFERENCES requests(id) ON DELETE CASCADE,
		UNIQUE(rid, uid)
	);

	CREATE INDEX IF NOT EXISTS idx_actions_rid ON actions(rid);

	CREATE TABLE IF NOT EXISTS archived (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ytid TEXT NOT NULL,
		viewed_at DATETIME,
		created_by INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		contributors INTEGER NOT NULL,
		FOREIGN KEY (ytid) REFERENCES videos(ytid)
	);

	CREATE INDEX IF NOT EXISTS idx_archived_ytid ON archived(ytid);

	CREATE TABLE IF NOT EXISTS moderators (
		id INTEGER PRIMARY KEY,
		created_at DATETIME NOT NULL,
		notify INTEGER NOT NULL DEFAULT 1,
		can_add_mods INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		created_at DATETIME NOT NULL,
		contributions INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// q returns the active querier: the transaction inside WithTx, the pool
// otherwise.
func (s *SQLiteStore) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &SQLiteStore{db: s.db, tx: tx}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Videos

func (s *SQLiteStore) GetVideo(ctx context.Context, ytid string) (*Video, error) {
	row := s.q().QueryRowContext(ctx, `
		SELECT ytid, title, banned FROM videos WHERE ytid = ?
	`, ytid)

	var video Video
	var banned int
	err := row.Scan(&video.YtID, &video.Title, &banned)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	video.Banned = banned == 1
	return &video, nil
}

func (s *SQLiteStore) CreateVideo(ctx context.Context, video *Video) error {
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO videos (ytid, title, banned) VALUES (?, ?, ?)
	`, video.YtID, video.Title, boolToInt(video.Banned))
	return mapConflict(err)
}

func (s *SQLiteStore) SetVideoBanned(ctx context.Context, ytid string, banned bool) (*Video, error) {
	res, err := s.q().ExecContext(ctx, `
		UPDATE videos SET banned = ? WHERE ytid = ?
	`, boolToInt(banned), ytid)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, nil
	}
	return s.GetVideo(ctx, ytid)
}

// Requests

func (s *SQLiteStore) GetRequest(ctx context.Context, id int64) (*Request, error) {
	row := s.q().QueryRowContext(ctx, `
		SELECT id, ytid, viewed_at FROM requests WHERE id = ?
	`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func (s *SQLiteStore) GetRequestByVideo(ctx context.Context, ytid string) (*Request, error) {
	row := s.q().QueryRowContext(ctx, `
		SELECT id, ytid, viewed_at FROM requests WHERE ytid = ?
	`, ytid)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func (s *SQLiteStore) CreateRequest(ctx context.Context, ytid string) (*Request, error) {
	res, err := s.q().ExecContext(ctx, `
		INSERT INTO requests (ytid) VALUES (?)
	`, ytid)
	if err != nil {
		return nil, mapConflict(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, YtID: ytid}, nil
}

func (s *SQLiteStore) SetRequestViewed(ctx context.Context, id int64, viewedAt *time.Time) (*Request, error) {
	res, err := s.q().ExecContext(ctx, `
		UPDATE requests SET viewed_at = ? WHERE id = ?
	`, nullTime(viewedAt), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, nil
	}
	return s.GetRequest(ctx, id)
}

func (s *SQLiteStore) DeleteRequest(ctx context.Context, id int64) error {
	_, err := s.q().ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListOpenRequests(ctx context.Context, unviewedOnly bool) ([]*OpenRequest, error) {
	query := `
		SELECT r.id, r.ytid, r.viewed_at, v.title, v.banned
		FROM requests r
		JOIN videos v ON v.ytid = r.ytid
		WHERE v.banned = 0
	`
	if unviewedOnly {
		query += ` AND r.viewed_at IS NULL`
	}
	query += ` ORDER BY r.id`

	rows, err := s.q().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*OpenRequest
	for rows.Next() {
		var req Request
		var viewedAt sql.NullTime
		var video Video
		var banned int
		if err := rows.Scan(&req.ID, &req.YtID, &viewedAt, &video.Title, &banned); err != nil {
			return nil, err
		}
		if viewedAt.Valid {
			req.ViewedAt = &viewedAt.Time
		}
		video.YtID = req.YtID
		video.Banned = banned == 1
		out = append(out, &OpenRequest{Request: &req, Video: &video})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListRequestsWithActions(ctx context.Context, scope ArchiveScope) ([]*RequestWithActions, error) {
	query := `
		SELECT r.id, r.ytid, r.viewed_at, a.id, a.uid, a.created_at
		FROM requests r
		LEFT JOIN actions a ON a.rid = r.id
	`
	if scope == ScopeViewed {
		query += ` WHERE r.viewed_at IS NOT NULL`
	}
	query += ` ORDER BY r.id, a.id`

	rows, err := s.q().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RequestWithActions
	var current *RequestWithActions
	for rows.Next() {
		var req Request
		var viewedAt sql.NullTime
		var actionID, uid sql.NullInt64
		var createdAt sql.NullTime
		if err := rows.Scan(&req.ID, &req.YtID, &viewedAt, &actionID, &uid, &createdAt); err != nil {
			return nil, err
		}
		if viewedAt.Valid {
			req.ViewedAt = &viewedAt.Time
		}

		if current == nil || current.Request.ID != req.ID {
			current = &RequestWithActions{Request: &req}
			out = append(out, current)
		}
		if actionID.Valid {
			current.Actions = append(current.Actions, &Action{
				ID:        actionID.Int64,
				RequestID: req.ID,
				UserID:    uid.Int64,
				CreatedAt: createdAt.Time,
			})
		}
	}
	return out, rows.Err()
}

// Actions

func (s *SQLiteStore) CreateAction(ctx context.Context, rid, uid int64) (*Action, error) {
	now := time.Now().UTC()
	res, err := s.q().ExecContext(ctx, `
		INSERT INTO actions (rid, uid, created_at) VALUES (?, ?, ?)
	`, rid, uid, now)
	if err != nil {
		return nil, mapConflict(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Action{ID: id, RequestID: rid, UserID: uid, CreatedAt: now}, nil
}

func (s *SQLiteStore) CountActions(ctx context.Context, rid int64) (int64, error) {
	var count int64
	err := s.q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM actions WHERE rid = ?
	`, rid).Scan(&count)
	return count, err
}

func (s *SQLiteStore) FirstAction(ctx context.Context, rid int64) (*Action, error) {
	row := s.q().QueryRowContext(ctx, `
		SELECT id, rid, uid, created_at FROM actions
		WHERE rid = ? ORDER BY id ASC LIMIT 1
	`, rid)

	var action Action
	err := row.Scan(&action.ID, &action.RequestID, &action.UserID, &action.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// Archive

func (s *SQLiteStore) FoldRequests(ctx context.Context, entries []*Archived, requestIDs []int64) error {
	return s.WithTx(ctx, func(txs Store) error {
		tx := txs.(*SQLiteStore)
		for _, entry := range entries {
			_, err := tx.q().ExecContext(ctx, `
				INSERT INTO archived (ytid, viewed_at, created_by, created_at, contributors)
				VALUES (?, ?, ?, ?, ?)
			`, entry.YtID, nullTime(entry.ViewedAt), entry.CreatedBy, entry.CreatedAt, entry.Contributors)
			if err != nil {
				return err
			}
		}

		if len(requestIDs) == 0 {
			return nil
		}
		placeholders := strings.Repeat("?,", len(requestIDs))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, len(requestIDs))
		for i, id := range requestIDs {
			args[i] = id
		}
		_, err := tx.q().ExecContext(ctx,
			`DELETE FROM requests WHERE id IN (`+placeholders+`)`, args...)
		return err
	})
}

func (s *SQLiteStore) CountArchived(ctx context.Context, ytid string, viewedOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM archived WHERE ytid = ?`
	if viewedOnly {
		query += ` AND viewed_at IS NOT NULL`
	}
	var count int64
	err := s.q().QueryRowContext(ctx, query, ytid).Scan(&count)
	return count, err
}

// Moderators

func (s *SQLiteStore) GetModerator(ctx context.Context, id int64) (*Moderator, error) {
	row := s.q().QueryRowContext(ctx, `
		SELECT id, created_at, notify, can_add_mods FROM moderators WHERE id = ?
	`, id)
	mod, err := scanModerator(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return mod, err
}

func (s *SQLiteStore) CreateModerator(ctx context.Context, mod *Moderator) error {
	if mod.CreatedAt.IsZero() {
		mod.CreatedAt = time.Now().UTC()
	}
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO moderators (id, created_at, notify, can_add_mods)
		VALUES (?, ?, ?, ?)
	`, mod.ID, mod.CreatedAt, boolToInt(mod.Notify), boolToInt(mod.CanAddMods))
	return mapConflict(err)
}

func (s *SQLiteStore) ListModerators(ctx context.Context) ([]*Moderator, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT id, created_at, notify, can_add_mods FROM moderators ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []*Moderator
	for rows.Next() {
		var mod Moderator
		var notify, canAddMods int
		if err := rows.Scan(&mod.ID, &mod.CreatedAt, &notify, &canAddMods); err != nil {
			return nil, err
		}
		mod.Notify = notify == 1
		mod.CanAddMods = canAddMods == 1
		mods = append(mods, &mod)
	}
	return mods, rows.Err()
}

func (s *SQLiteStore) DeleteModerator(ctx context.Context, id int64) (bool, error) {
	res, err := s.q().ExecContext(ctx, `DELETE FROM moderators WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n != 0, err
}

func (s *SQLiteStore) SetModeratorNotify(ctx context.Context, id int64, notify bool) (*Moderator, error) {
	res, err := s.q().ExecContext(ctx, `
		UPDATE moderators SET notify = ? WHERE id = ?
	`, boolToInt(notify), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, nil
	}
	return s.GetModerator(ctx, id)
}

func (s *SQLiteStore) EnsureAdministrator(ctx context.Context, id int64) error {
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO moderators (id, created_at, notify, can_add_mods)
		VALUES (?, ?, 1, 1)
		ON CONFLICT(id) DO UPDATE SET can_add_mods = 1
	`, id, time.Now().UTC())
	return err
}

// Users

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.q().QueryRowContext(ctx, `
		SELECT id, created_at, contributions FROM users WHERE id = ?
	`, id)

	var user User
	err := row.Scan(&user.ID, &user.CreatedAt, &user.Contributions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteStore) BumpContributions(ctx context.Context, id int64) error {
	_, err := s.q().ExecContext(ctx, `
		INSERT INTO users (id, created_at, contributions)
		VALUES (?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET contributions = contributions + 1
	`, id, time.Now().UTC())
	return err
}

// Helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func scanRequest(row *sql.Row) (*Request, error) {
	var req Request
	var viewedAt sql.NullTime
	if err := row.Scan(&req.ID, &req.YtID, &viewedAt); err != nil {
		return nil, err
	}
	if viewedAt.Valid {
		req.ViewedAt = &viewedAt.Time
	}
	return &req, nil
}

func scanModerator(row *sql.Row) (*Moderator, error) {
	var mod Moderator
	var notify, canAddMods int
	if err := row.Scan(&mod.ID, &mod.CreatedAt, &notify, &canAddMods); err != nil {
		return nil, err
	}
	mod.Notify = notify == 1
	mod.CanAddMods = canAddMods == 1
	return &mod, nil
}

// mapConflict translates sqlite constraint violations into ErrConflict so
// callers do not depend on the driver.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// Package session tracks per-chat conversation state between updates.
package session

import (
	"context"
	"sync"
	"time"
)

// State is what the bot is waiting for in a given chat. A chat with no
// stored state is idle.
type State interface {
	sessionState()
}

// AwaitingAccept waits for the submitter to confirm or abandon a
// recognized video before anything is persisted. UID pins the submission
// to whoever sent the link, not whoever presses the button.
type AwaitingAccept struct {
	YtID  string
	UID   int64
	Title string
}

// AwaitingForward waits for a forwarded message naming the user to enroll
// as a moderator.
type AwaitingForward struct{}

// AwaitingRemoveConfirm waits for a yes/no answer before removing the
// target moderator.
type AwaitingRemoveConfirm struct {
	Target int64
}

func (AwaitingAccept) sessionState()        {}
func (AwaitingForward) sessionState()       {}
func (AwaitingRemoveConfirm) sessionState() {}

type entry struct {
	state   State
	touched time.Time
}

// Manager holds conversation state in memory. Each entry lives for a
// fixed TTL from its last Set; reads do not extend it. Stale entries are
// dropped lazily on read and swept by the cleanup loop.
type Manager struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]entry
}

func NewManager(ttl time.Duration) *Manager {
	return NewManagerWithClock(ttl, time.Now)
}

func NewManagerWithClock(ttl time.Duration, now func() time.Time) *Manager {
	return &Manager{
		ttl:     ttl,
		now:     now,
		entries: make(map[int64]entry),
	}
}

// Get returns the live state for a chat, or nil when the chat is idle or
// its state has expired.
func (m *Manager) Get(chatID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[chatID]
	if !ok {
		return nil
	}
	if m.now().Sub(e.touched) >= m.ttl {
		delete(m.entries, chatID)
		return nil
	}
	return e.state
}

// Set replaces the chat's state and restarts its TTL.
func (m *Manager) Set(chatID int64, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[chatID] = entry{state: s, touched: m.now()}
}

// Clear returns the chat to idle.
func (m *Manager) Clear(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, chatID)
}

// Cleanup removes all expired entries.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, e := range m.entries {
		if now.Sub(e.touched) >= m.ttl {
			delete(m.entries, id)
		}
	}
}

// StartCleanup runs Cleanup on the given interval until ctx is done.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

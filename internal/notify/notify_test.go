package notify

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/doggywatch/doggywatch/internal/store"
)

type recordingMessenger struct {
	sent    []int64
	failFor int64
}

func (m *recordingMessenger) SendHTML(ctx context.Context, chatID int64, text string) error {
	if chatID == m.failFor {
		return errors.New("blocked by user")
	}
	m.sent = append(m.sent, chatID)
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "doggywatch-notify-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	s, err := store.NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile.Name())
	})
	return s
}

func TestNotifyFanOut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3, 4} {
		if err := s.CreateModerator(ctx, &store.Moderator{ID: id, Notify: true}); err != nil {
			t.Fatalf("create moderator: %v", err)
		}
	}
	// Moderator 3 opted out.
	if _, err := s.SetModeratorNotify(ctx, 3, false); err != nil {
		t.Fatalf("set notify: %v", err)
	}

	m := &recordingMessenger{}
	// Moderator 2 is excluded, 3 opted out; 1 and 4 receive the message.
	New(s, m, zerolog.Nop()).Notify(ctx, "hello", []int64{2})

	want := map[int64]bool{1: true, 4: true}
	if len(m.sent) != len(want) {
		t.Fatalf("expected %d deliveries, got %v", len(want), m.sent)
	}
	for _, id := range m.sent {
		if !want[id] {
			t.Errorf("unexpected recipient %d", id)
		}
	}
}

func TestNotifyContinuesPastFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := s.CreateModerator(ctx, &store.Moderator{ID: id, Notify: true}); err != nil {
			t.Fatalf("create moderator: %v", err)
		}
	}

	m := &recordingMessenger{failFor: 2}
	New(s, m, zerolog.Nop()).Notify(ctx, "hello", nil)

	if len(m.sent) != 2 {
		t.Errorf("delivery to remaining recipients should continue, got %v", m.sent)
	}
}

// Package notify fans messages out to moderators who opted in.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/doggywatch/doggywatch/internal/store"
)

// Messenger delivers a single HTML-formatted message to a chat.
type Messenger interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
}

// Service broadcasts to every moderator whose notify flag is on. Delivery
// is best effort; a recipient that blocked the bot must not stop the rest
// of the fan-out.
type Service struct {
	store     store.Store
	messenger Messenger
	log       zerolog.Logger
}

func New(s store.Store, m Messenger, log zerolog.Logger) *Service {
	return &Service{store: s, messenger: m, log: log}
}

// Notify sends message to all opted-in moderators except those in exclude.
func (n *Service) Notify(ctx context.Context, message string, exclude []int64) {
	mods, err := n.store.ListModerators(ctx)
	if err != nil {
		n.log.Error().Err(err).Msg("notify: failed to list moderators")
		return
	}

	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	for _, mod := range mods {
		if !mod.Notify || skip[mod.ID] {
			continue
		}
		if err := n.messenger.SendHTML(ctx, mod.ID, message); err != nil {
			n.log.Warn().Err(err).Int64("uid", mod.ID).Msg("notify: delivery failed")
		}
	}
}

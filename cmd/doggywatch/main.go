package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/doggywatch/doggywatch/internal/bot"
	"github.com/doggywatch/doggywatch/internal/config"
	"github.com/doggywatch/doggywatch/internal/engine"
	"github.com/doggywatch/doggywatch/internal/notify"
	"github.com/doggywatch/doggywatch/internal/ratelimit"
	"github.com/doggywatch/doggywatch/internal/session"
	"github.com/doggywatch/doggywatch/internal/store"
	"github.com/doggywatch/doggywatch/internal/telegram"
	"github.com/doggywatch/doggywatch/internal/youtube"
)

const version = "0.2.0"

const pollTimeout = 25 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("configuration error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	log.Info().Str("version", version).Msg("doggywatch starting")

	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer sqliteStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.NewCooldownLimiter(cfg.Cooldown)
	limiter.StartCleanup(5 * time.Minute)

	sessions := session.NewManager(cfg.SessionTTL)
	go sessions.StartCleanup(ctx, time.Minute)

	client := telegram.NewClientWithBaseURL(cfg.Token, telegramBaseURL())
	notifier := notify.New(sqliteStore, client, log)
	eng := engine.New(sqliteStore, limiter, notifier, log)

	if err := eng.BootstrapAdministrators(ctx, cfg.Administrators); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap administrators")
	}
	log.Info().Ints64("administrators", cfg.Administrators).Msg("administrators bootstrapped")

	b := bot.New(client, eng, sessions, youtube.NewClient(10*time.Second), cfg, version, log)

	runPollLoop(ctx, log, client, b)

	log.Info().Msg("doggywatch stopped")
}

// telegramBaseURL allows pointing the bot at a local API server in tests
// and self-hosted setups.
func telegramBaseURL() string {
	if v := os.Getenv("TELEGRAM_API_URL"); v != "" {
		return v
	}
	return "https://api.telegram.org"
}

// runPollLoop long-polls for updates and dispatches each on its own
// goroutine. Returns after ctx is done and in-flight handlers finish.
func runPollLoop(ctx context.Context, log zerolog.Logger, client *telegram.Client, b *bot.Bot) {
	var wg sync.WaitGroup
	var offset int64

	for {
		updates, err := client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var apiErr *telegram.APIError
			if errors.As(err, &apiErr) {
				log.Error().Err(err).Msg("poll rejected")
			} else {
				log.Warn().Err(err).Msg("poll failed")
			}
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			wg.Add(1)
			go func(upd telegram.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, upd)
			}(upd)
		}
	}

	wg.Wait()
}

package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"birdfeed/internal/transport"
	"birdfeed/internal/twitter"
	"birdfeed/pkg/logx"
)

// Subscriptions is the slice of the subscription manager the poller needs.
type Subscriptions interface {
	ListActive(ctx context.Context) ([]int64, error)
	Cursor(ctx context.Context, accountID int64) (*int64, error)
	AdvanceCursor(ctx context.Context, accountID, itemID int64) error
	TouchCursor(ctx context.Context, accountID int64) error
	UpdateDisplayName(ctx context.Context, accountID int64, name string) error
}

// Timeline fetches items newer than sinceID for one account, newest first.
type Timeline interface {
	UserTimeline(ctx context.Context, userID, sinceID int64, count int) ([]twitter.Tweet, error)
}

type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error
}

type Config struct {
	// Target is the chat channel notifications go to.
	Target transport.ChatTarget

	// PageSize bounds one timeline fetch.
	PageSize int

	// MediaOnly restricts notifications to items carrying attached media.
	MediaOnly bool
}

// Poller runs one polling cycle over all active subscriptions: fan out one
// fetch per account, decide novelty, notify, advance cursors, fan in.
type Poller struct {
	cfg    Config
	subs   Subscriptions
	feed   Timeline
	sender Sender
	log    logx.Logger
}

func New(cfg Config, subs Subscriptions, feed Timeline, sender Sender, log logx.Logger) *Poller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{cfg: cfg, subs: subs, feed: feed, sender: sender, log: log}
}

// RunCycle polls every currently active subscription once and returns after
// all per-account fetches finished or failed. A failure for one account
// never aborts the others; only a failure to list the active set does.
func (p *Poller) RunCycle(ctx context.Context) error {
	ids, err := p.subs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("poller: list active: %w", err)
	}
	if len(ids) == 0 {
		p.log.Debug("no active subscriptions")
		return nil
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		if ctx.Err() != nil {
			// Shutdown mid-cycle: drop un-started fetches, the started
			// ones observe cancellation themselves.
			break
		}
		wg.Add(1)
		go func(accountID int64) {
			defer wg.Done()
			p.pollAccount(ctx, accountID)
		}(id)
	}
	wg.Wait()
	return nil
}

func (p *Poller) pollAccount(ctx context.Context, accountID int64) {
	log := p.log.With(logx.Int64("account_id", accountID))

	cursor, err := p.subs.Cursor(ctx, accountID)
	if err != nil {
		log.Warn("cursor read failed", logx.Err(err))
		return
	}

	var since int64
	if cursor != nil {
		since = *cursor
	}

	tweets, err := p.feed.UserTimeline(ctx, accountID, since, p.cfg.PageSize)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Cursor stays put; the next cycle retries naturally.
		log.Warn("timeline fetch failed", logx.Err(err))
		return
	}

	if len(tweets) > 0 {
		if name := tweets[0].User.ScreenName; name != "" {
			if err := p.subs.UpdateDisplayName(ctx, accountID, name); err != nil {
				log.Warn("display name refresh failed", logx.Err(err))
			}
		}
	}

	maxID := since
	for _, t := range tweets {
		if t.ID > maxID {
			maxID = t.ID
		}
	}

	if cursor == nil {
		// First poll establishes the baseline; nothing is novel yet.
		if maxID > 0 {
			if err := p.subs.AdvanceCursor(ctx, accountID, maxID); err != nil {
				log.Warn("cursor advance failed", logx.Err(err))
				return
			}
		} else if err := p.subs.TouchCursor(ctx, accountID); err != nil {
			log.Warn("cursor touch failed", logx.Err(err))
			return
		}
		log.Debug("baseline established", logx.Int64("cursor", maxID))
		return
	}

	// Notify in chronological order (the API returns newest first).
	sent := 0
	for i := len(tweets) - 1; i >= 0; i-- {
		t := tweets[i]
		if t.ID <= *cursor {
			continue
		}
		if p.cfg.MediaOnly && !t.HasMedia() {
			continue
		}
		opt := &transport.SendOptions{ParseMode: "HTML"}
		if err := p.sender.SendText(ctx, p.cfg.Target, FormatTweet(t), opt); err != nil {
			// Sends are not retried; the cursor still advances.
			log.Warn("notification send failed", logx.Err(err), logx.Int64("item_id", t.ID))
			continue
		}
		sent++
	}

	// Exactly one cursor write per account per cycle. With no new items this
	// rewrites the same value, which doubles as the "we checked" marker.
	if err := p.subs.AdvanceCursor(ctx, accountID, maxID); err != nil {
		log.Warn("cursor advance failed", logx.Err(err))
		return
	}

	if len(tweets) > 0 {
		log.Debug("cycle done",
			logx.Int("fetched", len(tweets)),
			logx.Int("notified", sent),
			logx.Int64("cursor", maxID))
	}
}

package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"birdfeed/internal/transport"
	"birdfeed/internal/twitter"
	"birdfeed/pkg/logx"
)

type fakeSubs struct {
	mu       sync.Mutex
	ids      []int64
	cursors  map[int64]*int64
	advanced map[int64][]int64
	touched  map[int64]int
	names    map[int64]string
}

func newFakeSubs(ids ...int64) *fakeSubs {
	f := &fakeSubs{
		ids:      ids,
		cursors:  map[int64]*int64{},
		advanced: map[int64][]int64{},
		touched:  map[int64]int{},
		names:    map[int64]string{},
	}
	return f
}

func (f *fakeSubs) setCursor(id, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors[id] = &v
}

func (f *fakeSubs) ListActive(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ids...), nil
}

func (f *fakeSubs) Cursor(ctx context.Context, id int64) (*int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cursors[id]
	if c == nil {
		return nil, nil
	}
	v := *c
	return &v, nil
}

func (f *fakeSubs) AdvanceCursor(ctx context.Context, id, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced[id] = append(f.advanced[id], itemID)
	v := itemID
	f.cursors[id] = &v
	return nil
}

func (f *fakeSubs) TouchCursor(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id]++
	return nil
}

func (f *fakeSubs) UpdateDisplayName(ctx context.Context, id int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[id] = name
	return nil
}

type fakeTimeline struct {
	mu      sync.Mutex
	tweets  map[int64][]twitter.Tweet
	errs    map[int64]error
	fetched map[int64][]int64 // sinceIDs seen per account

	// block, when set, makes fetches wait for ctx cancellation.
	block bool
}

func (f *fakeTimeline) UserTimeline(ctx context.Context, userID, sinceID int64, count int) ([]twitter.Tweet, error) {
	f.mu.Lock()
	if f.fetched == nil {
		f.fetched = map[int64][]int64{}
	}
	f.fetched[userID] = append(f.fetched[userID], sinceID)
	block := f.block
	err := f.errs[userID]
	tweets := f.tweets[userID]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return tweets, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func tw(id int64, handle string, media bool) twitter.Tweet {
	t := twitter.Tweet{ID: id, User: twitter.User{ID: 1, ScreenName: handle}}
	if media {
		t.Entities.Media = []twitter.Media{{ID: id * 10}}
	}
	return t
}

func newTestPoller(subs Subscriptions, feed Timeline, sender Sender, mediaOnly bool) *Poller {
	return New(Config{
		Target:    transport.ChatTarget{ChatID: -100},
		PageSize:  200,
		MediaOnly: mediaOnly,
	}, subs, feed, sender, logx.Nop())
}

func TestFirstPollEstablishesBaselineOnly(t *testing.T) {
	subs := newFakeSubs(1)
	feed := &fakeTimeline{tweets: map[int64][]twitter.Tweet{
		1: {tw(5, "kedo48", true), tw(4, "kedo48", true), tw(3, "kedo48", true)},
	}}
	sender := &fakeSender{}

	p := newTestPoller(subs, feed, sender, true)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Fatalf("baseline cycle emitted notifications: %v", sender.sent)
	}
	if got := subs.advanced[1]; len(got) != 1 || got[0] != 5 {
		t.Fatalf("expected single advance to 5, got %v", got)
	}
}

func TestFirstPollNoItemsLeavesCursorNil(t *testing.T) {
	subs := newFakeSubs(1)
	feed := &fakeTimeline{}
	sender := &fakeSender{}

	p := newTestPoller(subs, feed, sender, true)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(subs.advanced[1]) != 0 {
		t.Fatalf("cursor advanced with nothing fetched: %v", subs.advanced[1])
	}
	if subs.touched[1] != 1 {
		t.Fatalf("expected one touch, got %d", subs.touched[1])
	}
	if subs.cursors[1] != nil {
		t.Fatalf("cursor should stay nil, got %d", *subs.cursors[1])
	}
}

// Mirrors the full two-cycle flow: baseline first, then novelty.
func TestTwoCycleScenario(t *testing.T) {
	subs := newFakeSubs(1)
	feed := &fakeTimeline{tweets: map[int64][]twitter.Tweet{
		1: {tw(5, "kedo48", true), tw(4, "kedo48", true), tw(3, "kedo48", true)},
	}}
	sender := &fakeSender{}
	p := newTestPoller(subs, feed, sender, true)

	// Cycle 1: cursor NULL, fetch [5,4,3] -> cursor 5, zero notifications.
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("cycle 1 notified: %v", sender.sent)
	}

	// Cycle 2: fetch [8,7,6], 8 and 6 carry media -> two notifications in
	// chronological order, cursor 8.
	feed.mu.Lock()
	feed.tweets[1] = []twitter.Tweet{tw(8, "kedo48", true), tw(7, "kedo48", false), tw(6, "kedo48", true)}
	feed.mu.Unlock()

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}

	want := []string{FormatTweet(tw(6, "kedo48", true)), FormatTweet(tw(8, "kedo48", true))}
	if diff := cmp.Diff(want, sender.sent); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
	if cur := subs.cursors[1]; cur == nil || *cur != 8 {
		t.Fatalf("expected cursor 8, got %v", cur)
	}

	// The second fetch must have used the first cycle's cursor.
	if got := feed.fetched[1]; len(got) != 2 || got[0] != 0 || got[1] != 5 {
		t.Fatalf("unexpected since ids: %v", got)
	}
}

func TestMediaOnlyDisabledNotifiesEverything(t *testing.T) {
	subs := newFakeSubs(1)
	subs.setCursor(1, 5)
	feed := &fakeTimeline{tweets: map[int64][]twitter.Tweet{
		1: {tw(7, "kedo48", false), tw(6, "kedo48", false)},
	}}
	sender := &fakeSender{}

	p := newTestPoller(subs, feed, sender, false)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %v", sender.sent)
	}
}

func TestZeroItemsStillRecordsCheck(t *testing.T) {
	subs := newFakeSubs(1)
	subs.setCursor(1, 42)
	feed := &fakeTimeline{}
	sender := &fakeSender{}

	p := newTestPoller(subs, feed, sender, true)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// Cursor rewritten with the same value: records "we checked".
	if got := subs.advanced[1]; len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected advance to 42, got %v", got)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("unexpected notifications: %v", sender.sent)
	}
}

func TestFetchFailureIsIsolated(t *testing.T) {
	subs := newFakeSubs(1, 2)
	subs.setCursor(1, 10)
	subs.setCursor(2, 10)
	feed := &fakeTimeline{
		tweets: map[int64][]twitter.Tweet{2: {tw(11, "other", true)}},
		errs:   map[int64]error{1: errors.New("timeline timeout")},
	}
	sender := &fakeSender{}

	p := newTestPoller(subs, feed, sender, true)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// Failed account: cursor untouched, retried next cycle.
	if len(subs.advanced[1]) != 0 {
		t.Fatalf("failed account advanced its cursor: %v", subs.advanced[1])
	}
	// Healthy account: unaffected.
	if got := subs.advanced[2]; len(got) != 1 || got[0] != 11 {
		t.Fatalf("healthy account not advanced: %v", got)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 notification, got %v", sender.sent)
	}
}

func TestSendFailureStillAdvancesCursor(t *testing.T) {
	subs := newFakeSubs(1)
	subs.setCursor(1, 5)
	feed := &fakeTimeline{tweets: map[int64][]twitter.Tweet{
		1: {tw(6, "kedo48", true)},
	}}
	sender := &fakeSender{err: errors.New("chat unavailable")}

	p := newTestPoller(subs, feed, sender, true)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// Sends are not retried; the cursor advances regardless.
	if got := subs.advanced[1]; len(got) != 1 || got[0] != 6 {
		t.Fatalf("cursor not advanced after failed send: %v", got)
	}
}

func TestShutdownCancelsInFlightFetches(t *testing.T) {
	subs := newFakeSubs(1, 2, 3)
	for _, id := range []int64{1, 2, 3} {
		subs.setCursor(id, 100)
	}
	feed := &fakeTimeline{block: true}
	sender := &fakeSender{}

	p := newTestPoller(subs, feed, sender, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.RunCycle(ctx) }()

	// Let the fan-out start, then trigger shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not drain after cancellation")
	}

	subs.mu.Lock()
	defer subs.mu.Unlock()
	for id, adv := range subs.advanced {
		if len(adv) != 0 {
			t.Fatalf("cancelled fetch advanced cursor for %d: %v", id, adv)
		}
	}
	if len(sender.sent) != 0 {
		t.Fatalf("cancelled cycle notified: %v", sender.sent)
	}
}

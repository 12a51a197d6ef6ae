package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"birdfeed/internal/command"
	"birdfeed/internal/transport"
	"birdfeed/internal/twitter"
	"birdfeed/pkg/logx"
)

// dispatchLoop drains the inbound message queue one message at a time and
// routes recognized commands to the subscription manager. Per-command
// failures are replied to and logged, never fatal for the loop.
func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-a.updates:
			a.handleMessage(ctx, msg)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, msg transport.Message) {
	intent := command.Parse(msg)
	if intent == nil {
		return
	}

	// Replies go back to the chat the command arrived on.
	reply := func(text string) {
		to := transport.ChatTarget{ChatID: msg.ChatID}
		opt := &transport.SendOptions{DisablePreview: true}
		if err := a.adapter.SendText(ctx, to, text, opt); err != nil {
			a.log.Warn("reply send failed", logx.Err(err), logx.Int64("chat_id", msg.ChatID))
		}
	}

	switch intent.Kind {
	case command.KindSubscribe:
		a.handleSubscribe(ctx, intent.Handle, reply)
	case command.KindUnsubscribe:
		a.handleUnsubscribe(ctx, intent.Handle, reply)
	case command.KindList:
		a.handleList(ctx, reply)
	}
}

func (a *App) handleSubscribe(ctx context.Context, handle string, reply func(string)) {
	user, err := a.feed.UserByScreenName(ctx, handle)
	if errors.Is(err, twitter.ErrNotFound) {
		reply(fmt.Sprintf("Couldn't find @%s.", handle))
		return
	}
	if err != nil {
		a.log.Error("account lookup failed", logx.String("handle", handle), logx.Err(err))
		reply(fmt.Sprintf("Couldn't look up @%s right now, try again later.", handle))
		return
	}

	if err := a.subs.Subscribe(ctx, user.ID, user.ScreenName); err != nil {
		a.log.Error("subscribe failed", logx.Int64("account_id", user.ID), logx.Err(err))
		reply(fmt.Sprintf("Couldn't subscribe to @%s, try again later.", user.ScreenName))
		return
	}
	reply(fmt.Sprintf("Subscribed to @%s.", user.ScreenName))
}

func (a *App) handleUnsubscribe(ctx context.Context, handle string, reply func(string)) {
	found, err := a.subs.Unsubscribe(ctx, handle)
	if err != nil {
		a.log.Error("unsubscribe failed", logx.String("handle", handle), logx.Err(err))
		reply(fmt.Sprintf("Couldn't unsubscribe from @%s, try again later.", handle))
		return
	}
	if !found {
		reply(fmt.Sprintf("Not subscribed to @%s.", handle))
		return
	}
	reply(fmt.Sprintf("Unsubscribed from @%s.", handle))
}

func (a *App) handleList(ctx context.Context, reply func(string)) {
	active, err := a.subs.ActiveSubscriptions(ctx)
	if err != nil {
		a.log.Error("listing subscriptions failed", logx.Err(err))
		reply("Couldn't list subscriptions, try again later.")
		return
	}
	if len(active) == 0 {
		reply("No active subscriptions.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subscribed to %d account(s):\n", len(active))
	for _, s := range active {
		fmt.Fprintf(&b, "- @%s\n", s.DisplayName)
	}
	reply(strings.TrimRight(b.String(), "\n"))
}

package transport

import "context"

// Message is one inbound chat message, normalized across adapters.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string

	// FromBot marks messages authored by a bot account, including this
	// bot's own confirmations echoed back on the inbound stream.
	FromBot bool
}

// ChatTarget addresses an outbound message.
type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the chat transport boundary.
//
// Start pushes inbound messages into out until ctx is canceled. The channel
// is owned by the caller; a full channel drops the update rather than
// blocking the adapter's poll loop.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

package config

// Config is the whole config file. Unknown keys are rejected so typos are
// caught at startup (or rejected on hot reload) instead of silently ignored.
//
// All durations are Go duration strings (e.g. "500ms", "45s", "2m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Twitter  TwitterConfig  `json:"twitter"`
	Storage  StorageConfig  `json:"storage"`
	Poll     PollConfig     `json:"poll"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// Chat is the channel tweet notifications are delivered to. Command
	// replies always go back to the chat the command arrived on.
	Chat int64 `json:"chat"`

	// PollTimeout is the long-poll timeout for receiving updates.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type TwitterConfig struct {
	ConsumerKey       string `json:"consumer_key"`
	ConsumerSecret    string `json:"consumer_secret"`
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`

	// MinRequestInterval spaces API calls; together with poll.every it
	// keeps one fetch per subscription per cycle under the request quota.
	MinRequestInterval string `json:"min_request_interval,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type PollConfig struct {
	// Every is the fixed period between polling cycles. A cycle that is
	// still draining when the next tick fires makes that tick a no-op.
	Every string `json:"every,omitempty"`

	// PageSize bounds one timeline fetch (max 200, the API page limit).
	PageSize int `json:"page_size,omitempty"`

	// MediaOnly restricts notifications to tweets with attached media.
	// Omitted means true.
	MediaOnly *bool `json:"media_only,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"` // omitted means true
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingChat mirrors warnings/errors into the notification chat.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

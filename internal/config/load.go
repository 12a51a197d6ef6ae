package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Load reads, strictly decodes and validates the config file. JSON and YAML
// are both accepted, keyed off the file extension.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(path, b)
}

func parse(path string, data []byte) (*Config, error) {
	jb, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks required credentials and that every duration parses.
// A config that fails here is fatal at startup and rejected on hot reload.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.Chat == 0 {
		return errors.New("telegram.chat is required")
	}

	tw := c.Twitter
	for _, f := range []struct{ name, v string }{
		{"twitter.consumer_key", tw.ConsumerKey},
		{"twitter.consumer_secret", tw.ConsumerSecret},
		{"twitter.access_token", tw.AccessToken},
		{"twitter.access_token_secret", tw.AccessTokenSecret},
	} {
		if strings.TrimSpace(f.v) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}

	for _, f := range []struct{ name, v string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"twitter.min_request_interval", c.Twitter.MinRequestInterval},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"poll.every", c.Poll.Every},
	} {
		if _, err := ParseDurationField(f.name, f.v); err != nil {
			return err
		}
	}

	if c.Poll.PageSize < 0 || c.Poll.PageSize > 200 {
		return errors.New("poll.page_size must be between 0 and 200")
	}
	return nil
}

// MediaOnly resolves the pointer field (omitted means true).
func (p PollConfig) MediaOnlyValue() bool {
	return p.MediaOnly == nil || *p.MediaOnly
}

// ConsoleValue resolves the pointer field (omitted means true).
func (l LoggingConfig) ConsoleValue() bool {
	return l.Console == nil || *l.Console
}

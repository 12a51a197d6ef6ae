package command

import (
	"regexp"

	"birdfeed/internal/transport"
)

type Kind int

const (
	KindSubscribe Kind = iota + 1
	KindUnsubscribe
	KindList
)

// Intent is a recognized command. Handle is empty for KindList.
type Intent struct {
	Kind   Kind
	Handle string
}

// Handles are alphanumeric/underscore, at most 15 chars (the platform's
// legal identifier charset). Anything longer simply fails to parse.
const handleExpr = `@?([A-Za-z0-9_]{1,15})`

// Ordered pattern list: first match wins, later patterns are more
// permissive fallbacks (pasting a profile URL instead of a bare handle).
var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindSubscribe, regexp.MustCompile(`(?i)^\s*subscribe\s+` + handleExpr + `\s*$`)},
	{KindSubscribe, regexp.MustCompile(`(?i)^\s*subscribe\s+\S*twitter\.com/` + handleExpr + `(?:[/?#]\S*)?\s*$`)},
	{KindUnsubscribe, regexp.MustCompile(`(?i)^\s*unsubscribe\s+` + handleExpr + `\s*$`)},
	{KindList, regexp.MustCompile(`(?i)^\s*(?:list|subscriptions)\s*$`)},
}

// Parse maps inbound chat text to an intent, or nil when the message is not
// a command. Messages without text and messages authored by a bot (our own
// confirmations come back on the same stream) never match.
func Parse(msg transport.Message) *Intent {
	if msg.FromBot || msg.Text == "" {
		return nil
	}
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(msg.Text)
		if m == nil {
			continue
		}
		intent := &Intent{Kind: p.kind}
		if len(m) > 1 {
			intent.Handle = m[1]
		}
		return intent
	}
	return nil
}

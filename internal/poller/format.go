package poller

import (
	"fmt"

	"birdfeed/internal/twitter"
)

// FormatTweet renders one qualifying item as Telegram HTML. Retweets are
// marked and link through to the original content.
func FormatTweet(t twitter.Tweet) string {
	author := handleLink(t.User.ScreenName)
	if t.IsRetweet() {
		return fmt.Sprintf("🔁 %s retweeted %s\n%s",
			author, handleLink(t.Retweeted.User.ScreenName), t.ContentURL())
	}
	return fmt.Sprintf("🐦 New tweet from %s\n%s", author, t.ContentURL())
}

func handleLink(screenName string) string {
	return fmt.Sprintf(`<a href="https://twitter.com/%s">@%s</a>`, screenName, screenName)
}

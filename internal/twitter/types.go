package twitter

import "fmt"

// User is the subset of a Twitter user object the bot cares about.
type User struct {
	ID         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
}

// Tweet is one timeline item. Retweeted is set when the tweet is a retweet,
// pointing at the original.
type Tweet struct {
	ID        int64    `json:"id"`
	User      User     `json:"user"`
	Entities  Entities `json:"entities"`
	Retweeted *Tweet   `json:"retweeted_status"`
}

type Entities struct {
	Media []Media `json:"media"`
}

type Media struct {
	ID int64 `json:"id"`
}

func (t Tweet) HasMedia() bool { return len(t.Entities.Media) > 0 }

func (t Tweet) IsRetweet() bool { return t.Retweeted != nil }

// ContentURL is the canonical URL of the content: the tweet itself, or the
// original tweet when this one is a retweet.
func (t Tweet) ContentURL() string {
	if t.Retweeted != nil {
		return t.Retweeted.ContentURL()
	}
	return fmt.Sprintf("https://twitter.com/%s/status/%d", t.User.ScreenName, t.ID)
}

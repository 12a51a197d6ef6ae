package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"golang.org/x/time/rate"

	"birdfeed/pkg/logx"
)

// ErrNotFound is returned when a screen name does not resolve to a user.
// Callers branch on it as ordinary logic, not as a failure.
var ErrNotFound = errors.New("twitter: user not found")

const defaultBaseURL = "https://api.twitter.com/1.1"

type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

type Config struct {
	Credentials Credentials

	// BaseURL overrides the API endpoint (tests).
	BaseURL string

	// MinRequestInterval spaces API calls so a full fan-out cycle stays
	// under the per-window quota. Zero means 1s.
	MinRequestInterval time.Duration

	// RequestTimeout bounds each HTTP call. Zero means 15s.
	RequestTimeout time.Duration
}

// Client talks to the Twitter v1.1 REST API with OAuth 1.0a user context.
// All calls go through a shared rate limiter.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	oc := oauth1.NewConfig(cfg.Credentials.ConsumerKey, cfg.Credentials.ConsumerSecret)
	token := oauth1.NewToken(cfg.Credentials.AccessToken, cfg.Credentials.AccessTokenSecret)
	hc := oc.Client(oauth1.NoContext, token)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc.Timeout = timeout

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}

	every := cfg.MinRequestInterval
	if every <= 0 {
		every = time.Second
	}

	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:    hc,
		base:    base,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		log:     log,
	}
}

// UserByScreenName resolves a handle to its account. The returned screen
// name carries the canonical casing, which may differ from the input.
func (c *Client) UserByScreenName(ctx context.Context, screenName string) (User, error) {
	q := url.Values{"screen_name": {screenName}}
	var u User
	if err := c.get(ctx, "/users/show.json", q, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// UserTimeline fetches up to count tweets newer than sinceID, newest first.
// A sinceID of 0 fetches the most recent page unconditionally.
func (c *Client) UserTimeline(ctx context.Context, userID, sinceID int64, count int) ([]Tweet, error) {
	q := url.Values{
		"user_id":     {strconv.FormatInt(userID, 10)},
		"count":       {strconv.Itoa(count)},
		"include_rts": {"true"},
		"tweet_mode":  {"extended"},
	}
	if sinceID > 0 {
		q.Set("since_id", strconv.FormatInt(sinceID, 10))
	}
	var tweets []Tweet
	if err := c.get(ctx, "/statuses/user_timeline.json", q, &tweets); err != nil {
		return nil, err
	}
	return tweets, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("twitter: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("twitter: %s: %s", path, apiErrorText(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("twitter: %s: decode: %w", path, err)
	}
	return nil
}

func apiErrorText(resp *http.Response) string {
	var body struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && len(body.Errors) > 0 {
		e := body.Errors[0]
		return fmt.Sprintf("%s (code=%d http=%d)", e.Message, e.Code, resp.StatusCode)
	}
	return fmt.Sprintf("http=%d", resp.StatusCode)
}

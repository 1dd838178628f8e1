package slack

import (
	"context"
	"net/http"
	"time"

	"SlackScheduler/internal/core"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	channelsPage   = 200
)

// Client talks to the Slack Web API on behalf of stored credentials.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

func (c *Client) api(token string) *slack.Client {
	opts := []slack.Option{slack.OptionHTTPClient(c.http)}
	if c.cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(c.cfg.APIURL))
	}
	return slack.New(token, opts...)
}

// Post sends text to channel with token and classifies the result. The call
// is bounded by the configured timeout; waiting on the outbound rate limiter
// counts against it.
func (c *Client) Post(ctx context.Context, token, channel, text string) core.Result {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return core.Result{Outcome: core.Transient, Reason: "rate limiter: " + err.Error()}
		}
	}

	_, ts, err := c.api(token).PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	res := classify(err)
	res.Ts = ts
	if !res.Delivered() {
		log.Debug().Err(err).Str("channel_id", channel).Str("outcome", res.Outcome.String()).Msg("slack post not delivered")
	}
	return res
}

// ListChannels returns every public and private channel visible to token.
func (c *Client) ListChannels(ctx context.Context, token string) ([]core.Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	api := c.api(token)
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           channelsPage,
	}
	out := []core.Channel{}
	for {
		page, next, err := api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, classify(err).Err()
		}
		for _, ch := range page {
			out = append(out, core.Channel{ID: ch.ID, Name: ch.Name, IsPrivate: ch.IsPrivate})
		}
		if next == "" {
			return out, nil
		}
		params.Cursor = next
	}
}

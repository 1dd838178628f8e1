package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"SlackScheduler/internal/core"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSlack(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIURL: srv.URL + "/", Timeout: 200 * time.Millisecond})
}

func TestPostClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome core.Outcome
		reason  string
	}{
		{"delivered", 200, `{"ok":true,"channel":"C1","ts":"1700000000.000100"}`, core.Delivered, ""},
		{"not in channel", 200, `{"ok":false,"error":"not_in_channel"}`, core.Rejected, "not_in_channel"},
		{"channel not found", 200, `{"ok":false,"error":"channel_not_found"}`, core.Rejected, "channel_not_found"},
		{"invalid auth", 200, `{"ok":false,"error":"invalid_auth"}`, core.AuthExpired, "invalid_auth"},
		{"token revoked", 200, `{"ok":false,"error":"token_revoked"}`, core.AuthExpired, "token_revoked"},
		{"slack internal error", 200, `{"ok":false,"error":"internal_error"}`, core.Transient, "internal_error"},
		{"server error", 503, `oops`, core.Transient, ""},
		{"bad request", 400, `nope`, core.Rejected, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotToken, gotChannel, gotText string
			c := fakeSlack(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat.postMessage", r.URL.Path)
				gotToken = r.FormValue("token")
				gotChannel = r.FormValue("channel")
				gotText = r.FormValue("text")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			res := c.Post(context.Background(), "xoxp-token", "C1", "hello there")
			assert.Equal(t, tt.outcome, res.Outcome, res.Reason)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, res.Reason)
			}
			assert.Equal(t, "xoxp-token", gotToken)
			assert.Equal(t, "C1", gotChannel)
			assert.Equal(t, "hello there", gotText)
			if tt.outcome == core.Delivered {
				assert.Equal(t, "1700000000.000100", res.Ts)
			}
		})
	}
}

func TestPostTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	c := fakeSlack(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		fmt.Fprint(w, `{"ok":true}`)
	})
	defer close(release)

	start := time.Now()
	res := c.Post(context.Background(), "tok", "C1", "slow")
	assert.Equal(t, core.Transient, res.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPostConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/"
	srv.Close()

	c := New(Config{APIURL: url, Timeout: time.Second})
	res := c.Post(context.Background(), "tok", "C1", "x")
	assert.Equal(t, core.Transient, res.Outcome)
}

func TestPostRateLimiterHonoursContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"ok":true,"channel":"C1","ts":"1.1"}`)
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL + "/", Timeout: 100 * time.Millisecond, RatePerSec: 0.5})
	require.True(t, c.Post(context.Background(), "tok", "C1", "first").Delivered())

	// The bucket is empty for two seconds, longer than the call timeout.
	res := c.Post(context.Background(), "tok", "C1", "second")
	assert.Equal(t, core.Transient, res.Outcome)
	assert.EqualValues(t, 1, calls.Load())
}

func TestListChannelsPages(t *testing.T) {
	c := fakeSlack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.list", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("cursor") == "" {
			fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C1","name":"general","is_private":false}],"response_metadata":{"next_cursor":"page2"}}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"channels":[{"id":"G1","name":"secret","is_private":true}],"response_metadata":{"next_cursor":""}}`)
	})

	chans, err := c.ListChannels(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []core.Channel{
		{ID: "C1", Name: "general", IsPrivate: false},
		{ID: "G1", Name: "secret", IsPrivate: true},
	}, chans)
}

func TestListChannelsError(t *testing.T) {
	c := fakeSlack(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"invalid_auth"}`)
	})
	_, err := c.ListChannels(context.Background(), "tok")
	require.ErrorIs(t, err, core.ErrAuthExpired)
}

func TestClassifyPlainErrors(t *testing.T) {
	assert.Equal(t, core.Transient, classify(context.DeadlineExceeded).Outcome)
	assert.Equal(t, core.Transient, classify(fmt.Errorf("post: %w", context.DeadlineExceeded)).Outcome)
	assert.Equal(t, core.Transient, classify(errors.New("connection reset")).Outcome)
	assert.Equal(t, core.Transient, classify(&slack.RateLimitedError{RetryAfter: time.Second}).Outcome)
	assert.Equal(t, core.AuthExpired, classify(slack.StatusCodeError{Code: 401, Status: "401 Unauthorized"}).Outcome)
}

func TestCredentialFromOAuth(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	resp := &slack.OAuthV2Response{AccessToken: "xoxb-1", RefreshToken: "xoxe-1", ExpiresIn: 43200}
	resp.AuthedUser.ID = "U1"
	resp.Team.ID = "T1"

	c, err := credentialFromOAuth(resp, now)
	require.NoError(t, err)
	assert.Equal(t, core.Owner{UserID: "U1", TeamID: "T1"}, c.Owner)
	assert.Equal(t, now.Add(12*time.Hour), c.ExpiresAt)
	assert.Equal(t, "xoxe-1", c.RefreshToken)

	resp.ExpiresIn = 0
	c, err = credentialFromOAuth(resp, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), c.ExpiresAt)

	_, err = credentialFromOAuth(&slack.OAuthV2Response{}, now)
	assert.Error(t, err)
}

func TestAuthorizeURL(t *testing.T) {
	c := New(Config{ClientID: "123.456", RedirectURI: "https://example.test/api/auth/slack/callback"})
	u := c.AuthorizeURL("st")
	assert.Contains(t, u, OAuthAuthorizeURL+"?")
	assert.Contains(t, u, "client_id=123.456")
	assert.Contains(t, u, "redirect_uri=https%3A%2F%2Fexample.test%2Fapi%2Fauth%2Fslack%2Fcallback")
	assert.Contains(t, u, "state=st")
}

func TestRefreshWithoutToken(t *testing.T) {
	c := New(Config{})
	_, err := c.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrNoRefreshToken)
}

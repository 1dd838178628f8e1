package slack

import (
	"context"
	"errors"
	"net/url"
	"time"

	"SlackScheduler/internal/core"

	"github.com/slack-go/slack"
)

const (
	OAuthAuthorizeURL   = "https://slack.com/oauth/v2/authorize"
	OAuthAuthorizeScope = "chat:write,channels:read,groups:read,im:read,mpim:read"

	// Slack omits expires_in for tokens without rotation; such tokens are
	// treated as valid for an hour.
	defaultTokenLifetime = time.Hour
)

// AuthorizeURL is where the install endpoint redirects users.
func (c *Client) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("scope", OAuthAuthorizeScope)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	if state != "" {
		q.Set("state", state)
	}
	return OAuthAuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a credential.
func (c *Client) ExchangeCode(ctx context.Context, code string) (core.Credential, error) {
	if code == "" {
		return core.Credential{}, core.Invalid("missing authorization code")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := slack.GetOAuthV2ResponseContext(ctx, c.http, c.cfg.ClientID, c.cfg.ClientSecret, code, c.cfg.RedirectURI)
	if err != nil {
		return core.Credential{}, classify(err).Err()
	}
	return credentialFromOAuth(resp, time.Now())
}

// Refresh renews a rotating token. The owner of the returned credential is
// left empty; the caller knows who it belongs to.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.Credential, error) {
	if refreshToken == "" {
		return core.Credential{}, core.ErrNoRefreshToken
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := slack.RefreshOAuthV2TokenContext(ctx, c.http, c.cfg.ClientID, c.cfg.ClientSecret, refreshToken)
	if err != nil {
		return core.Credential{}, classify(err).Err()
	}
	cred, err := credentialFromOAuth(resp, time.Now())
	if err != nil {
		return core.Credential{}, err
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

func credentialFromOAuth(resp *slack.OAuthV2Response, now time.Time) (core.Credential, error) {
	if resp == nil || resp.AccessToken == "" {
		return core.Credential{}, errors.New("slack oauth: response carries no access token")
	}
	lifetime := defaultTokenLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}
	return core.Credential{
		Owner:        core.Owner{UserID: resp.AuthedUser.ID, TeamID: resp.Team.ID},
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    now.Add(lifetime).UTC(),
	}, nil
}

package slack

import "time"

// Config configures the Slack Web API client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// APIURL overrides https://slack.com/api/ for tests and proxies. Must end in "/".
	APIURL     string
	Timeout    time.Duration
	RatePerSec float64
}

// Error codes that mean the token itself is no longer usable.
var authErrors = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"token_expired":    true,
	"token_revoked":    true,
	"account_inactive": true,
	"missing_scope":    true,
	"no_permission":    true,
}

// Error codes Slack documents as temporary.
var transientErrors = map[string]bool{
	"ratelimited":         true,
	"internal_error":      true,
	"fatal_error":         true,
	"service_unavailable": true,
	"request_timeout":     true,
}

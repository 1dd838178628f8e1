package slack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"SlackScheduler/internal/core"

	"github.com/slack-go/slack"
)

// classify maps the error returned by a Slack Web API call onto a delivery outcome.
func classify(err error) core.Result {
	if err == nil {
		return core.Result{Outcome: core.Delivered}
	}

	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		code := apiErr.Err
		switch {
		case authErrors[code]:
			return core.Result{Outcome: core.AuthExpired, Reason: code}
		case transientErrors[code]:
			return core.Result{Outcome: core.Transient, Reason: code}
		default:
			return core.Result{Outcome: core.Rejected, Reason: code}
		}
	}

	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return core.Result{Outcome: core.Transient, Reason: fmt.Sprintf("rate limited, retry after %s", rateErr.RetryAfter)}
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusUnauthorized:
			return core.Result{Outcome: core.AuthExpired, Reason: statusErr.Status}
		case statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests:
			return core.Result{Outcome: core.Transient, Reason: statusErr.Status}
		default:
			return core.Result{Outcome: core.Rejected, Reason: statusErr.Status}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.Result{Outcome: core.Transient, Reason: "timeout"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.Result{Outcome: core.Transient, Reason: "timeout"}
	}

	// Anything else never reached a Slack verdict: connection refused, DNS, TLS, cancellation.
	return core.Result{Outcome: core.Transient, Reason: err.Error()}
}

package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v62/github"

	"dipcp-go/internal/dip"
)

// defaultRetryAfter is used when a rate-limit response carries no reset time.
const defaultRetryAfter = time.Minute

// translateError maps a go-github error onto the dip error taxonomy.
// resp may be nil.
func translateError(op string, resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}

	var rl *gh.RateLimitError
	if errors.As(err, &rl) {
		return &dip.RateLimitError{Op: op, RetryAfter: untilReset(rl.Rate.Reset.Time), Err: err}
	}
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		wait := defaultRetryAfter
		if abuse.RetryAfter != nil {
			wait = *abuse.RetryAfter
		}
		return &dip.RateLimitError{Op: op, RetryAfter: wait, Err: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dip.NewError(dip.ErrTransientNetwork, op, err)
	}

	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return fromStatus(op, er.Response.StatusCode, resp, er.Message, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return dip.NewError(dip.ErrTransientNetwork, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// fromStatus classifies an HTTP status. message is the host's error text.
func fromStatus(op string, status int, resp *gh.Response, message string, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &dip.RateLimitError{Op: op, RetryAfter: retryAfter(resp), Err: err}
	case status == http.StatusForbidden && quotaExhausted(resp, message):
		return &dip.RateLimitError{Op: op, RetryAfter: retryAfter(resp), Err: err}
	case status == http.StatusUnauthorized:
		return dip.NewError(dip.ErrPermissionDenied, op, err).
			WithHint("the access token is missing or expired; run dip auth login")
	case status == http.StatusForbidden:
		return dip.NewError(dip.ErrPermissionDenied, op, err).
			WithHint("you need write access to the repository and issues enabled on it")
	case status == http.StatusNotFound:
		return dip.NewError(dip.ErrNotFound, op, err)
	case status == http.StatusConflict:
		return dip.NewError(dip.ErrConflictLikely, op, err)
	case status == http.StatusUnprocessableEntity:
		return dip.NewError(dip.ErrConflictLikely, op, err).
			WithHint("commits too close together or the branch moved; wait a moment and submit again")
	case status >= 500:
		return dip.NewError(dip.ErrTransientNetwork, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func quotaExhausted(resp *gh.Response, message string) bool {
	if resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining == 0 {
		return true
	}
	return strings.Contains(strings.ToLower(message), "rate limit")
}

func retryAfter(resp *gh.Response) time.Duration {
	if resp == nil {
		return defaultRetryAfter
	}
	if resp.Response != nil {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
				return d
			}
		}
	}
	return untilReset(resp.Rate.Reset.Time)
}

func untilReset(reset time.Time) time.Duration {
	if reset.IsZero() {
		return defaultRetryAfter
	}
	if d := time.Until(reset); d > 0 {
		return d
	}
	return time.Second
}

package callback

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"cds-backend/pkg/api"

	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 10 * time.Second

// Dispatcher posts terminal task notifications back to the caller. Delivery
// is best-effort: failures are logged and swallowed so a dead callback
// endpoint can never change the outcome of a finished task.
type Dispatcher struct {
	client       *resty.Client
	internalBase *url.URL
}

// NewDispatcher builds a dispatcher. internalBaseURL, when non-empty, is the
// scheme and host callbacks are rewritten to before delivery; callers behind
// a reverse proxy register their public URL, the worker reaches them on the
// cluster-internal address.
func NewDispatcher(internalBaseURL string, timeout time.Duration) (*Dispatcher, error) {
	var base *url.URL
	if internalBaseURL != "" {
		parsed, err := url.Parse(internalBaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid internal callback base url %s: %w", internalBaseURL, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("internal callback base url %s must include scheme and host", internalBaseURL)
		}
		base = parsed
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Dispatcher{
		client:       resty.New().SetTimeout(timeout),
		internalBase: base,
	}, nil
}

// ResolveURL swaps the scheme and host of callbackURL for the internal base,
// keeping path and query intact. Without an internal base the URL passes
// through unchanged.
func (d *Dispatcher) ResolveURL(callbackURL string) (string, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return "", fmt.Errorf("invalid callback url %s: %w", callbackURL, err)
	}

	if d.internalBase == nil {
		return parsed.String(), nil
	}

	parsed.Scheme = d.internalBase.Scheme
	parsed.Host = d.internalBase.Host
	return parsed.String(), nil
}

// Deliver posts the payload to the resolved callback URL. Always returns to
// the caller without error; delivery problems are logged.
func (d *Dispatcher) Deliver(ctx context.Context, callbackURL string, payload api.CallbackPayload) {
	resolved, err := d.ResolveURL(callbackURL)
	if err != nil {
		slog.Error("callback url could not be resolved, dropping notification", "job_id", payload.JobId, "url", callbackURL, "error", err)
		return
	}

	res, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(resolved)
	if err != nil {
		slog.Error("callback delivery failed", "job_id", payload.JobId, "url", resolved, "error", err)
		return
	}

	if res.IsError() {
		slog.Error("callback endpoint returned error status", "job_id", payload.JobId, "url", resolved, "status", res.StatusCode())
		return
	}

	slog.Info("callback delivered", "job_id", payload.JobId, "status", payload.Status)
}

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
)

const (
	// DefaultAttempts is how many times a webhook post is tried.
	DefaultAttempts = 3

	// DefaultDelay is the wait before the first retry. Later retries
	// double it.
	DefaultDelay = time.Second
)

// HTTPClient is the part of *http.Client the webhook uses.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is returned when the webhook answers with a non 2xx code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned %d %s", e.Code, http.StatusText(e.Code))
}

// Temporary reports whether a retry might succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// WebhookConfig holds the configuration for a WebhookDeliverer.
type WebhookConfig struct {
	URL      string
	Client   HTTPClient
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock
	Logger   logger.Logger
}

// Validate ensures that the config values are valid.
func (c WebhookConfig) Validate() error {
	if c.URL == "" {
		return errors.NotValidf("empty URL")
	}
	if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.NotValidf("URL %q", c.URL)
	}
	if c.Client == nil {
		return errors.NotValidf("nil Client")
	}
	if c.Attempts <= 0 {
		return errors.NotValidf("non-positive Attempts")
	}
	if c.Delay <= 0 {
		return errors.NotValidf("non-positive Delay")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// WebhookDeliverer posts notifications as JSON to a URL.
type WebhookDeliverer struct {
	config WebhookConfig
}

// NewWebhookDeliverer returns a WebhookDeliverer for the given config.
func NewWebhookDeliverer(config WebhookConfig) (*WebhookDeliverer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &WebhookDeliverer{config: config}, nil
}

type payload struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Label     string `json:"label"`
	Text      string `json:"text"`
}

// Deliver posts the notification, retrying server errors and transport
// failures. Client errors are not retried.
func (d *WebhookDeliverer) Deliver(ctx context.Context, n game.Notification) error {
	body, err := json.Marshal(payload{
		ID:        n.ID,
		Recipient: n.Recipient,
		Label:     n.Label,
		Text:      n.Text,
	})
	if err != nil {
		return errors.Trace(err)
	}

	err = retry.Call(retry.CallArgs{
		Func: func() error {
			return d.post(ctx, body)
		},
		IsFatalError: func(err error) bool {
			if ctx.Err() != nil {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return !statusErr.Temporary()
			}
			return false
		},
		NotifyFunc: func(err error, attempt int) {
			d.config.Logger.Debugf("posting %s, attempt %d: %v", n.ID, attempt, err)
		},
		Attempts:    d.config.Attempts,
		Delay:       d.config.Delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       d.config.Clock,
		Stop:        ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}
	return errors.Annotatef(err, "posting notification %s", n.ID)
}

func (d *WebhookDeliverer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.config.Client.Do(req)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is returned when a channel answers with a non-2xx status.
type StatusError struct {
	Channel    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Channel, e.StatusCode, e.Body)
}

// retryable reports whether a status is worth retrying.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// poster sends JSON payloads with bounded exponential retry. Client errors
// other than 429 are not retried.
type poster struct {
	channel    string
	client     *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func newPoster(channel string, maxRetries int) poster {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return poster{
		channel:    channel,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: uint64(maxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

func (p poster) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", p.channel, err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: create request: %w", p.channel, err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: send request: %w", p.channel, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		serr := &StatusError{Channel: p.channel, StatusCode: resp.StatusCode, Body: string(respBody)}
		if retryable(resp.StatusCode) {
			return serr
		}
		return backoff.Permanent(serr)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.maxRetries), ctx)
	return backoff.Retry(op, b)
}

package provider

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// sseRetryDelays are the backoff steps applied between retried attempts of
// the initial (pre-stream) HTTP request, before any body has been read.
var sseRetryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// httpRequestConfig bundles everything needed to issue one provider HTTP call.
type httpRequestConfig struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// trySend delivers an event unless the context is already cancelled,
// returning false when the caller should stop streaming.
func trySend(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// isTransientStatus reports whether an HTTP status is worth retrying the
// initial connection attempt for.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// sseAttempt performs one HTTP round trip and returns the readable response
// body on success, or a (fatal, retryable) error pair: fatalErr is non-nil
// for malformed-request/transport-construction errors that must not be
// retried; retryErr is non-nil when the caller should back off and retry.
func sseAttempt(ctx context.Context, client *http.Client, cfg httpRequestConfig) (io.ReadCloser, int, error, error) {
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, newBodyReader(cfg.Body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err), nil
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, resp.StatusCode, nil, nil
	}

	if isTransientStatus(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, resp.StatusCode, nil, fmt.Errorf("transient status %d", resp.StatusCode)
	}

	// Non-transient error status: caller classifies it, body kept open for
	// the caller to read the error payload.
	return resp.Body, resp.StatusCode, nil, nil
}

// httpDoSSE issues cfg against client, retrying transient failures with the
// configured backoff. It returns the response body (to be parsed as SSE or
// as a plain error payload) and the final HTTP status code.
func httpDoSSE(ctx context.Context, client *http.Client, cfg httpRequestConfig) (io.ReadCloser, int, error) {
	var lastErr error
	for attempt := 0; attempt <= len(sseRetryDelays); attempt++ {
		body, status, fatalErr, retryErr := sseAttempt(ctx, client, cfg)
		if fatalErr != nil {
			return nil, 0, fatalErr
		}
		if retryErr == nil {
			return body, status, nil
		}
		lastErr = retryErr
		if attempt == len(sseRetryDelays) {
			break
		}
		wait := sseRetryDelays[attempt]
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	return nil, 0, lastErr
}

func newBodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return &byteReader{b: body}
}

type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

func jitterMillis(n int) time.Duration {
	return time.Duration(rand.Intn(n)) * time.Millisecond
}

package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/mkravets/formgate/core/telegram/netutil"
)

const (
	apiClientTimeout = 30 * time.Second
	apiRetryAttempts = 3
	apiRetryBackoff  = 2 * time.Second
)

// BuildHTTPClient returns the client used for Bot API traffic. Timeouts
// are kept short on every stage so a stalled connection surfaces as a
// retryable error instead of hanging a sender worker.
func BuildHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout: apiClientTimeout,
		Transport: &retryTransport{
			base:    transport,
			retries: apiRetryAttempts,
			backoff: apiRetryBackoff,
		},
	}
}

// retryTransport replays transient transport failures with a linear
// backoff. Only requests whose body can be re-materialized are retried.
type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		attemptReq := req
		if attempt > 0 {
			if req.GetBody == nil && req.Body != nil {
				// body already consumed and not replayable
				return nil, lastErr
			}
			attemptReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attemptReq.Body = body
			}
		}

		resp, err := base.RoundTrip(attemptReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == t.retries {
			break
		}

		timer := time.NewTimer(t.backoff * time.Duration(attempt+1))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

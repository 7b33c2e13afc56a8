package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/backoff"
	"github.com/nova-repository/newsrepo/internal/ratelimit"
)

const defaultUserAgent = "newsrepo/1.0 (historical-newspaper-pipeline; research project)"

type httpDoer struct {
	client  *http.Client
	limiter *ratelimit.HostLimiter
	logger  *slog.Logger
	maxAttempts int
}

// do performs req, respecting the host's rate limiter and retrying
// transient failures (429/5xx) with backoff.
func (h *httpDoer) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", defaultUserAgent)
	host := req.URL.Host

	policy := backoff.Archive()
	maxAttempts := h.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := h.limiter.Wait(ctx, host); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "rate limiter wait", err)
		}

		resp, err := h.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = apperr.Wrap(apperr.TransientUpstream, "request failed", err)
			h.sleep(ctx, policy.Delay(attempt))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = apperr.Newf(apperr.TransientUpstream, "upstream returned %s: %s", resp.Status, string(body))

			delay := policy.Delay(attempt)
			if retryAfter > delay {
				delay = retryAfter
			}
			h.logger.Warn("retrying upstream request", "attempt", attempt, "status", resp.Status, "delay", delay)
			h.sleep(ctx, delay)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, apperr.Newf(apperr.PermanentUpstream, "upstream returned %s: %s", resp.Status, string(body))
		}

		return resp, nil
	}

	return nil, apperr.Wrap(apperr.PermanentUpstream, "exhausted retries", lastErr)
}

func (h *httpDoer) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func buildURL(base string, query url.Values) string {
	return fmt.Sprintf("%s?%s", base, query.Encode())
}

package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/domain/ports/adapter"
	"github.com/jmobrien1/mdraft/internal/infra/metrics"
)

var _ adapter.Notifier = (*WebhookNotifier)(nil)

// SignatureHeader carries the hex HMAC-SHA256 of the request body,
// prefixed with the algorithm name.
const SignatureHeader = "X-Signature"

const maxResponseBody = 4 << 10

// WebhookNotifier posts job lifecycle events to owner-supplied callback
// URLs. A 2xx answer counts as delivered and a 4xx as a permanent rejection;
// 5xx answers and transport errors are retried with doubling backoff.
type WebhookNotifier struct {
	secret      []byte
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	log         *zerolog.Logger
}

type Options struct {
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewWebhookNotifier(opts Options, logger *zerolog.Logger) *WebhookNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	whLog := logger.With().Str("component", "WebhookNotifier").Logger()
	var secret []byte
	if opts.Secret != "" {
		secret = []byte(opts.Secret)
	}
	return &WebhookNotifier{
		secret:      secret,
		client:      &http.Client{Timeout: opts.Timeout},
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		log:         &whLog,
	}
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Deliver posts {event, data} as JSON. It returns the last HTTP status seen
// (0 when no attempt produced a response) along with the response body.
func (n *WebhookNotifier) Deliver(ctx context.Context, url, event string, data any) (int, []byte, error) {
	body, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	var (
		lastStatus int
		lastBody   []byte
		lastErr    error
	)
	delay := n.baseDelay
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				metrics.ObserveWebhook("exhausted", attempt-1)
				return lastStatus, lastBody, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > n.maxDelay {
				delay = n.maxDelay
			}
		}

		lastStatus, lastBody, lastErr = n.post(ctx, url, body)
		switch {
		case lastErr != nil:
			n.log.Warn().Err(lastErr).Str("url", url).Int("attempt", attempt).Msg("webhook attempt failed")
		case lastStatus >= 200 && lastStatus < 300:
			metrics.ObserveWebhook("delivered", attempt)
			return lastStatus, lastBody, nil
		case lastStatus >= 400 && lastStatus < 500:
			// The receiver understood us and said no. Retrying won't change
			// its mind.
			metrics.ObserveWebhook("rejected", attempt)
			return lastStatus, lastBody, fmt.Errorf("webhook rejected with status %d", lastStatus)
		default:
			n.log.Warn().Str("url", url).Int("status", lastStatus).Int("attempt", attempt).Msg("webhook attempt bounced")
		}
	}

	metrics.ObserveWebhook("exhausted", n.maxAttempts)
	if lastErr == nil {
		lastErr = fmt.Errorf("webhook gave up after %d attempts, last status %d", n.maxAttempts, lastStatus)
	}
	return lastStatus, lastBody, lastErr
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(n.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, respBody, nil
}

// Sign computes the signature header value for a body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header against the body.
// Receivers can use it to authenticate callbacks end to end.
func VerifySignature(secret, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

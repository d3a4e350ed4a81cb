// Package transport delivers a Payload to the configured end point and
// classifies the outcome per the Retryable/NonRetryable taxonomy.
// Adapted from original_source/src/sender/strategies/http.rs and its
// http_error.rs, using hashicorp/go-retryablehttp purely as an HTTP
// transport (RetryMax is pinned to 0 here; retry scheduling itself belongs
// to the internal/retry package, not the client).
package transport

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/relaylogs/agent/internal/agenterrors"
	"github.com/relaylogs/agent/internal/payload"
)

// defaultTimeout bounds a single send attempt; it is independent of the
// retry backoff schedule in internal/retry.
const defaultTimeout = 10 * time.Second

// Sender delivers one Payload to its destination.
type Sender interface {
	Send(ctx context.Context, p payload.Payload) *agenterrors.HTTPError
}

// HTTPSender posts Payloads as JSON to a single fixed endpoint.
type HTTPSender struct {
	client   *http.Client
	endpoint string
	log      *logrus.Entry
}

// NewHTTPSender builds a Sender backed by a retryablehttp transport with its
// own retry loop disabled (RetryMax: 0) — only its connection reuse and
// sane transport defaults are wanted here.
func NewHTTPSender(endpoint string, log *logrus.Logger) *HTTPSender {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	rc.HTTPClient.Timeout = defaultTimeout

	return &HTTPSender{
		client:   rc.StandardClient(),
		endpoint: endpoint,
		log:      log.WithField("component", "transport"),
	}
}

// Send marshals p and POSTs it to endpoint, returning a classified
// *agenterrors.HTTPError on any failure and nil on a 2xx response.
func (s *HTTPSender) Send(ctx context.Context, p payload.Payload) *agenterrors.HTTPError {
	attemptID := uuid.NewString()
	log := s.log.WithField("attempt_id", attemptID)

	body, err := payload.Marshal(p)
	if err != nil {
		log.WithError(err).Error("failed to marshal payload")
		return agenterrors.NewHTTPError(agenterrors.HTTPNonRetryable, 0, errors.Wrap(err, "marshaling payload"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Error("failed to build request")
		return agenterrors.NewHTTPError(agenterrors.HTTPNonRetryable, 0, errors.Wrap(err, "building request"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		classified := classifyTransportErr(err)
		log.WithError(err).Warn("request failed")
		return classified
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode)
	}

	log.Debug("send succeeded")
	return nil
}

// classifyTransportErr handles failures before any response was received:
// timeouts and connection failures are retryable, everything else (request
// construction, TLS config, context cancellation) is not.
func classifyTransportErr(err error) *agenterrors.HTTPError {
	// Walk the whole chain: the outer *url.Error only reports Timeout() for
	// its direct cause, which is not the timeout when the transport wrapped it.
	for e := err; e != nil; e = errors.Unwrap(e) {
		if netErr, ok := e.(net.Error); ok && netErr.Timeout() {
			return agenterrors.NewHTTPError(agenterrors.HTTPRetryable, 0, err)
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return agenterrors.NewHTTPError(agenterrors.HTTPRetryable, 0, err)
	}

	return agenterrors.NewHTTPError(agenterrors.HTTPNonRetryable, 0, err)
}

// classifyStatus implements §7's status-code table: 5xx and 429 are
// retryable, every other non-2xx status is not.
func classifyStatus(status int) *agenterrors.HTTPError {
	if status == http.StatusTooManyRequests || (status >= 500 && status <= 599) {
		return agenterrors.NewHTTPError(agenterrors.HTTPRetryable, status, errors.Errorf("unexpected status %d", status))
	}
	return agenterrors.NewHTTPError(agenterrors.HTTPNonRetryable, status, errors.Errorf("unexpected status %d", status))
}

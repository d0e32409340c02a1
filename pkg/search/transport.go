package search

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

const (
	DefaultMaxRetries  = 10
	DefaultBackoffBase = 100 * time.Millisecond
	DefaultBackoffMax  = 5 * time.Second
)

var DefaultRetryStatusCodes = []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout}

// Policy configures how a single request is retried.
type Policy struct {
	// MaxRetries is the total number of attempts for one request.
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	RetryStatusCodes []int
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = DefaultBackoffMax
	}
	if p.RetryStatusCodes == nil {
		p.RetryStatusCodes = DefaultRetryStatusCodes
	}
	return p
}

type requestBuilder func(ctx context.Context) (*http.Request, error)

type transport struct {
	client    *http.Client
	creds     models.Credentials
	policy    Policy
	retryable sets.Set[int]
}

func newTransport(httpClient *http.Client, creds models.Credentials, policy Policy, insecure bool, timeout time.Duration) *transport {
	policy = policy.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
			},
			Timeout: timeout,
		}
	}
	return &transport{
		client:    httpClient,
		creds:     creds,
		policy:    policy,
		retryable: sets.New(policy.RetryStatusCodes...),
	}
}

// do sends the request built by build, rebuilding it for every attempt.
// Connection errors and retryable statuses are retried up to MaxRetries attempts.
func (t *transport) do(ctx context.Context, op, url string, build requestBuilder) ([]byte, error) {
	log := zap.S().Named("search")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.policy.BackoffBase
	b.MaxInterval = t.policy.BackoffMax

	attempts := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		req, err := build(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if t.creds.Username != "" || t.creds.Password != "" {
			req.SetBasicAuth(t.creds.Username, t.creds.Password)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, backoff.Permanent(ctxErr)
			}
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return raw, nil
		}

		statusErr := srvErrors.NewStatusError(op, url, resp.StatusCode, raw)
		if t.retryable.Has(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(t.policy.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnw("request failed, retrying", "op", op, "url", url, "attempt", attempts, "next", next, "error", err)
		}),
	)
	if err == nil {
		return body, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, srvErrors.NewTransportError(op, url, ctxErr)
	}

	var statusErr *srvErrors.TransportError
	if errors.As(err, &statusErr) && !t.retryable.Has(statusErr.StatusCode) {
		return nil, statusErr
	}

	log.Errorw("request failed", "op", op, "url", url, "attempts", attempts, "error", err)
	return nil, srvErrors.NewTransportError(op, url, fmt.Errorf("giving up after %d attempts: %w", attempts, err))
}

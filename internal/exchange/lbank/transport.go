package lbank

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/raeendev/portfolio-doctor/internal/domain"
	"github.com/raeendev/portfolio-doctor/pkg/retrier"
)

const (
	serverTimePath = "/v2/timestamp.do"

	signedTimeout = 10 * time.Second
	publicTimeout = 5 * time.Second
	timeTimeout   = 3 * time.Second

	transientRetryStep = 1 * time.Second
	rateLimitBaseWait  = 2 * time.Second

	defaultUserAgent = "PortfolioDoctor/1.0"
)

// Transport executes exchange HTTP calls with rate limiting, per-host
// retries and ordered multi-host failover. Two authenticated API families
// exist: the spot REST hosts take a signed form body, the contract hosts
// take the same signature in request headers.
type Transport struct {
	hosts         []string
	contractHosts []string
	limiter       *SlidingWindowLimiter
	httpClient    *http.Client
	userAgent     string
	logger        *zap.Logger

	// transient transport failures get a fixed-step retry; an
	// exchange-reported rate-limit error backs off exponentially instead
	transientRetry *retrier.Retrier
	rateLimitRetry *retrier.Retrier
}

// NewTransport wires a transport over the given host lists. The limiter is
// shared with every other caller hitting the same exchange.
func NewTransport(hosts, contractHosts []string, limiter *SlidingWindowLimiter, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		hosts:         hosts,
		contractHosts: contractHosts,
		limiter:       limiter,
		httpClient:    &http.Client{},
		userAgent:     defaultUserAgent,
		logger:        logger,
		transientRetry: retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithBackoff(retrier.BackoffConstant),
			retrier.WithInitialInterval(transientRetryStep),
			retrier.WithRetryIf(isTransient),
		),
		rateLimitRetry: retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithBackoff(retrier.BackoffExponential),
			retrier.WithInitialInterval(rateLimitBaseWait),
			retrier.WithRetryIf(isRateLimit),
		),
	}
}

func isTransient(err error) bool {
	var apiErr *APIError
	return !errors.As(err, &apiErr)
}

func isRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}

// PostSigned issues a signed POST against the spot REST hosts in order,
// returning the first decoded payload. Business errors abort the failover
// immediately; exhaustion of all hosts yields a HostsExhaustedError.
func (t *Transport) PostSigned(ctx context.Context, path string, creds domain.Credentials, extra map[string]string) (any, error) {
	return t.failover(ctx, "post "+path, t.hosts, func(ctx context.Context, host string) (any, error) {
		return t.withRetries(ctx, func(ctx context.Context) (any, error) {
			return t.postSignedForm(ctx, host, path, creds, extra)
		})
	})
}

// PostContract issues a header-signed POST against the contract API hosts,
// used only for futures account and position data.
func (t *Transport) PostContract(ctx context.Context, path string, creds domain.Credentials, extra map[string]string) (any, error) {
	return t.failover(ctx, "post "+path, t.contractHosts, func(ctx context.Context, host string) (any, error) {
		return t.withRetries(ctx, func(ctx context.Context) (any, error) {
			return t.postContractJSON(ctx, host, path, creds, extra)
		})
	})
}

// GetPublic issues an unauthenticated GET against a single host. Failover
// across hosts is the caller's concern (the price cache validates each
// host's payload before accepting it).
func (t *Transport) GetPublic(ctx context.Context, host, path string, query url.Values) (any, error) {
	return retrier.DoWithData(t.transientRetry, ctx, func(ctx context.Context) (any, error) {
		return t.getPublic(ctx, host, path, query)
	})
}

// withRetries layers the two retry policies: the inner loop absorbs
// transport-level failures with a fixed step, the outer one backs off on
// the exchange's rate-limit error code.
func (t *Transport) withRetries(ctx context.Context, call func(ctx context.Context) (any, error)) (any, error) {
	return retrier.DoWithData(t.rateLimitRetry, ctx, func(ctx context.Context) (any, error) {
		return retrier.DoWithData(t.transientRetry, ctx, call)
	})
}

func (t *Transport) failover(ctx context.Context, op string, hosts []string, call func(ctx context.Context, host string) (any, error)) (any, error) {
	failures := make([]HostFailure, 0, len(hosts))
	for _, host := range hosts {
		payload, err := call(ctx, host)
		if err == nil {
			return payload, nil
		}
		if IsBusinessError(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		t.logger.Warn("exchange host failed",
			zap.String("op", op),
			zap.String("host", host),
			zap.Error(err))
		failures = append(failures, HostFailure{Host: host, Err: err})
	}
	return nil, &HostsExhaustedError{Op: op, Failures: failures}
}

func (t *Transport) postSignedForm(ctx context.Context, host, path string, creds domain.Credentials, extra map[string]string) (any, error) {
	if err := t.limiter.Await(ctx); err != nil {
		return nil, err
	}

	params := signedParams(creds.APIKey, creds.APISecret, t.serverTime(ctx, host), extra)
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	reqCtx, cancel := context.WithTimeout(ctx, signedTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, host+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build signed request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	return t.roundTrip(req)
}

func (t *Transport) postContractJSON(ctx context.Context, host, path string, creds domain.Credentials, extra map[string]string) (any, error) {
	if err := t.limiter.Await(ctx); err != nil {
		return nil, err
	}

	params := signedParams(creds.APIKey, creds.APISecret, t.serverTime(ctx, host), extra)

	body := []byte("{}")
	if len(extra) > 0 {
		encoded, err := json.Marshal(extra)
		if err != nil {
			return nil, errors.Wrap(err, "encode contract request body")
		}
		body = encoded
	}

	reqCtx, cancel := context.WithTimeout(ctx, signedTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, host+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, errors.Wrap(err, "build contract request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	// the contract API family carries authentication in headers
	req.Header.Set("apiKey", params["api_key"])
	req.Header.Set("timestamp", params["timestamp"])
	req.Header.Set("signature_method", params["signature_method"])
	req.Header.Set("echostr", params["echostr"])
	req.Header.Set("sign", params["sign"])

	return t.roundTrip(req)
}

func (t *Transport) getPublic(ctx context.Context, host, path string, query url.Values) (any, error) {
	if err := t.limiter.Await(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, publicTimeout)
	defer cancel()

	target := host + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build public request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	return t.roundTrip(req)
}

func (t *Transport) roundTrip(req *http.Request) (any, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decode response body")
	}

	if apiErr := apiErrorFromPayload(payload); apiErr != nil {
		return nil, apiErr
	}
	return payload, nil
}

// serverTime fetches the exchange server time in milliseconds from the
// public endpoint, falling back to local wall-clock time when unreachable.
func (t *Transport) serverTime(ctx context.Context, host string) int64 {
	reqCtx, cancel := context.WithTimeout(ctx, timeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, host+serverTimePath, nil)
	if err != nil {
		return time.Now().UnixMilli()
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Debug("server time fetch failed", zap.String("host", host), zap.Error(err))
		return time.Now().UnixMilli()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Now().UnixMilli()
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return time.Now().UnixMilli()
	}

	for _, key := range []string{"timestamp", "data"} {
		if ts, ok := asInt64(payload[key]); ok && ts > 0 {
			return ts
		}
	}
	return time.Now().UnixMilli()
}

func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case string:
		parsed, err := json.Number(val).Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

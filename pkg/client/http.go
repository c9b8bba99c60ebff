package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/config"
	"github.com/eapache/go-resiliency/retrier"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const maxErrorBody = 512

// StatusError is a non-2xx answer from the log service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("log service returned HTTP %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// retryClassifier retries transport failures and temporary HTTP statuses, nothing else.
type retryClassifier struct{}

func (retryClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retrier.Fail
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Temporary() {
			return retrier.Retry
		}
		return retrier.Fail
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retrier.Retry
	}
	return retrier.Fail
}

// HTTPFetcher queries the log service endpoint with GET requests.
type HTTPFetcher struct {
	endpoint string
	token    string
	version  string
	http     *http.Client
	retrier  *retrier.Retrier
}

func NewHTTPFetcher(cfg config.Context, version string) (*HTTPFetcher, error) {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, errors.Wrapf(err, "invalid log service url %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := config.DefaultRetries
	if cfg.Retries != nil {
		retries = max(*cfg.Retries, 0)
	}
	return &HTTPFetcher{
		endpoint: cfg.URL,
		token:    cfg.Token,
		version:  version,
		http:     &http.Client{Timeout: timeout},
		retrier:  retrier.New(retrier.ExponentialBackoff(retries, 200*time.Millisecond), retryClassifier{}),
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, params Params) (*Response, error) {
	var resp *Response
	err := f.retrier.RunCtx(ctx, func(ctx context.Context) error {
		r, err := f.fetchOnce(ctx, params)
		if err != nil {
			log.Debug().Err(err).Str("trace_id", params.TraceID).Msg("log service request failed")
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, params Params) (*Response, error) {
	requestURL := f.endpoint + "?" + params.Values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "can't build log service request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "systemlogs-timeline/"+f.version)
	req.Header.Set("X-Request-ID", requestID)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	start := time.Now()
	httpResp, err := f.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "log service request")
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("can't close log service response")
		}
	}()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, &StatusError{Code: httpResp.StatusCode, Body: string(body)}
	}

	var out Response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "can't decode log service response")
	}
	log.Debug().
		Str("request_id", requestID).
		Bool("summary", params.Summary).
		Str("trace_id", params.TraceID).
		Int("summaries", len(out.Summaries)).
		Int("logs", len(out.Logs)).
		Dur("elapsed", time.Since(start)).
		Msg("log service response")
	return &out, nil
}

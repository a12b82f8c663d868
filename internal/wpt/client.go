// Package wpt is a client for the WebPageTest REST API.
package wpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethpandaops/wpt-action/internal/metric"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// DefaultHost is the public WebPageTest instance.
	DefaultHost = "www.webpagetest.org"

	defaultHTTPTimeout  = 60 * time.Second
	defaultRequestRate  = 5
	defaultRequestBurst = 10
	maxResponseBytes    = 64 << 20
	apiKeyHeader        = "X-WPT-API-KEY"
)

var (
	// ErrPollTimeout is returned by Wait when a test does not finish in time.
	ErrPollTimeout = errors.New("timed out waiting for test results")
	// ErrTestFailed is returned by Wait when the service reports a failed test.
	ErrTestFailed = errors.New("test failed")

	errMissingTestID = errors.New("response did not include a test id")
	errRateLimited   = errors.New("rate limited")
)

// Service submits tests and retrieves their results.
type Service interface {
	Submit(ctx context.Context, testURL string, opts Options) (*Submission, error)
	Wait(ctx context.Context, testID string, interval, timeout time.Duration) error
	Results(ctx context.Context, testID string) (*metric.Document, error)
	ResultURL(testID string) string
}

// Submission is the accepted test as returned by runtest.php.
type Submission struct {
	TestID  string
	JSONURL string
	UserURL string
}

// Config configures the client.
type Config struct {
	// Host is the WebPageTest host name or base URL.
	Host       string
	APIKey     string
	HTTPClient *http.Client
	// RequestsPerSecond bounds the request rate across all callers.
	RequestsPerSecond float64
}

// Client talks to a WebPageTest instance. It is safe for concurrent use; all
// requests share one rate limiter and one circuit breaker.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     logrus.FieldLogger
}

// envelope is the wrapper every WebPageTest JSON response comes in.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	StatusText string          `json:"statusText"`
	Data       json.RawMessage `json:"data"`
}

type submitData struct {
	TestID  string `json:"testId"`
	JSONURL string `json:"jsonUrl"`
	UserURL string `json:"userUrl"`
}

// statusError is a non-success status reported inside a response envelope.
type statusError struct {
	Code int
	Text string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webpagetest status %d: %s", e.Code, e.Text)
}

// httpError is a non-2xx HTTP response.
type httpError struct {
	Path string
	Code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("requesting %s: unexpected status %d", e.Path, e.Code)
}

// NewClient creates a WebPageTest client.
func NewClient(log logrus.FieldLogger, cfg Config) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}

	if !strings.Contains(host, "://") {
		host = "https://" + host
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parsing host %q: %w", cfg.Host, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestRate
	}

	log = log.WithField("component", "wpt_client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webpagetest",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Client errors are about the request, not the service.
			var he *httpError

			return err == nil || (errors.As(err, &he) && he.Code < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), defaultRequestBurst),
		breaker: breaker,
		log:     log,
	}, nil
}

// Host returns the host name of the instance.
func (c *Client) Host() string {
	return c.baseURL.Host
}

// ResultURL returns the human readable result page of a test.
func (c *Client) ResultURL(testID string) string {
	return c.endpoint("result/"+url.PathEscape(testID)+"/", nil)
}

// Submit starts a test for testURL.
func (c *Client) Submit(ctx context.Context, testURL string, opts Options) (*Submission, error) {
	q := opts.Query()
	q.Set("url", testURL)
	q.Set("f", "json")

	if c.apiKey != "" {
		q.Set("k", c.apiKey)
	}

	env, err := c.call(ctx, http.MethodPost, "runtest.php", q)
	if err != nil {
		return nil, fmt.Errorf("submitting test: %w", err)
	}

	if env.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("submitting test: %w", &statusError{Code: env.StatusCode, Text: env.StatusText})
	}

	var data submitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding submission: %w", err)
	}

	if data.TestID == "" {
		return nil, errMissingTestID
	}

	return &Submission{TestID: data.TestID, JSONURL: data.JSONURL, UserURL: data.UserURL}, nil
}

// Wait polls the test status every interval until the test completes, fails
// or timeout elapses.
func (c *Client) Wait(ctx context.Context, testID string, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := c.log.WithField("test_id", testID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		done, err := c.status(ctx, testID)
		switch {
		case err != nil && ctx.Err() == nil && !errors.Is(err, errRateLimited):
			return err
		case err == nil && done:
			log.WithField("polls", attempt).Debug("test complete")

			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrPollTimeout, timeout)
			}

			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// status reports whether the test finished. Pending states (1xx) are not
// errors; an error status (4xx/5xx) is.
func (c *Client) status(ctx context.Context, testID string) (bool, error) {
	q := url.Values{}
	q.Set("test", testID)
	q.Set("f", "json")

	env, err := c.call(ctx, http.MethodGet, "testStatus.php", q)
	if err != nil {
		return false, fmt.Errorf("polling test status: %w", err)
	}

	switch {
	case env.StatusCode == http.StatusOK:
		return true, nil
	case env.StatusCode >= 100 && env.StatusCode < 200:
		c.log.WithFields(logrus.Fields{
			"test_id": testID,
			"status":  env.StatusText,
		}).Debug("test pending")

		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", ErrTestFailed, &statusError{Code: env.StatusCode, Text: env.StatusText})
	}
}

// Results retrieves the full result document of a completed test.
func (c *Client) Results(ctx context.Context, testID string) (*metric.Document, error) {
	q := url.Values{}
	q.Set("test", testID)

	body, err := c.get(ctx, http.MethodGet, "jsonResult.php", q)
	if err != nil {
		return nil, fmt.Errorf("retrieving results: %w", err)
	}

	doc, err := metric.ParseDocument(body)
	if err != nil {
		return nil, fmt.Errorf("retrieving results: %w", err)
	}

	if code, ok := doc.Lookup("statusCode").Number(); ok && int(code) != http.StatusOK {
		return nil, fmt.Errorf("retrieving results: %w", &statusError{Code: int(code), Text: doc.Lookup("statusText").String()})
	}

	return doc, nil
}

func (c *Client) call(ctx context.Context, method, path string, q url.Values) (*envelope, error) {
	body, err := c.get(ctx, method, path, q)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", path, err)
	}

	return &env, nil
}

// get performs a rate limited request through the circuit breaker.
func (c *Client) get(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", errRateLimited, err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, path, q)
	})
	if err != nil {
		return nil, err
	}

	body, _ := out.([]byte)

	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, &httpError{Path: path, Code: resp.StatusCode}
	}

	return body, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + path

	if q != nil {
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// Compile-time interface compliance check
var _ Service = (*Client)(nil)

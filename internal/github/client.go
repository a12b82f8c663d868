package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	apiVersion       = "2022-11-28"
	defaultTimeout   = 30 * time.Second
	maxDownloadBytes = 32 << 20
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client is a minimal GitHub REST client.
type Client struct {
	baseURL *url.URL
	// api carries the token and does not follow redirects, so the token is
	// never forwarded to blob storage.
	api *http.Client
	// plain fetches redirect targets without credentials.
	plain *http.Client
	log   logrus.FieldLogger
}

// NewClient creates a client for apiURL authenticated with token. An empty
// token sends unauthenticated requests.
func NewClient(ctx context.Context, log logrus.FieldLogger, apiURL, token string) (*Client, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	base, err := url.Parse(strings.TrimSuffix(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api url %q: %w", apiURL, err)
	}

	transport := http.DefaultTransport
	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   http.DefaultTransport,
		}
	}

	return &Client{
		baseURL: base,
		api: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		plain: &http.Client{Timeout: defaultTimeout},
		log:   log.WithField("component", "github_client"),
	}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + "/" + strings.TrimPrefix(path, "/")

	if q != nil {
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// getJSON decodes the response of a GET into out.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	return c.send(ctx, http.MethodGet, path, q, nil, out)
}

// send performs a JSON request. body and out may be nil.
func (c *Client) send(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var reader io.Reader = http.NoBody

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return apiError(method, path, resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}

	return nil
}

// download fetches a binary resource, following a single redirect without
// credentials.
func (c *Client) download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, nil), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest {
		location := resp.Header.Get("Location")
		c.log.WithField("path", path).Debug("following download redirect")

		return c.fetch(ctx, location)
	}

	if resp.StatusCode/100 != 2 {
		return nil, apiError(http.MethodGet, path, resp)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func (c *Client) fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("downloading: unexpected status %d", resp.StatusCode) //nolint:err113 // Include status for debugging
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func apiError(method, path string, resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}

	return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: payload.Message}
}

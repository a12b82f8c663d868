package github

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethpandaops/wpt-action/internal/baseline"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marker = "# WebPageTest Test Results"

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), newTestLogger(), srv.URL, "token")
	require.NoError(t, err)

	return c
}

func envFunc(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func TestEventFromEnv(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"pull_request":{"number":42,"head":{"ref":"feature"}}}`), 0o600))

	tests := []struct {
		name    string
		env     map[string]string
		expect  Event
		target  Target
		wantErr bool
	}{
		{
			name: "pull request",
			env: map[string]string{
				"GITHUB_EVENT_NAME": "pull_request",
				"GITHUB_REPOSITORY": "acme/site",
				"GITHUB_SHA":        "abc123",
				"GITHUB_EVENT_PATH": payload,
			},
			expect: Event{
				Name: "pull_request", Repository: "acme/site", SHA: "abc123",
				Branch: "feature", Number: 42, APIURL: DefaultAPIURL,
			},
			target: TargetIssue,
		},
		{
			name: "push",
			env: map[string]string{
				"GITHUB_EVENT_NAME": "push",
				"GITHUB_REPOSITORY": "acme/site",
				"GITHUB_SHA":        "def456",
				"GITHUB_REF_NAME":   "dev",
				"GITHUB_API_URL":    "https://ghe.example.com/api/v3/",
			},
			expect: Event{
				Name: "push", Repository: "acme/site", SHA: "def456",
				Branch: "dev", APIURL: "https://ghe.example.com/api/v3",
			},
			target: TargetCommit,
		},
		{
			name: "schedule",
			env: map[string]string{
				"GITHUB_EVENT_NAME": "schedule",
				"GITHUB_REPOSITORY": "acme/site",
				"GITHUB_SHA":        "def456",
				"GITHUB_REF_NAME":   "dev",
			},
			expect: Event{
				Name: "schedule", Repository: "acme/site", SHA: "def456",
				Branch: "dev", APIURL: DefaultAPIURL,
			},
			target: TargetNone,
		},
		{
			name:    "missing repository",
			env:     map[string]string{"GITHUB_EVENT_NAME": "push"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := EventFromEnv(newTestLogger(), envFunc(tt.env))
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expect, *ev)
			assert.Equal(t, tt.target, ev.Target())
		})
	}
}

func TestEvent_Target(t *testing.T) {
	for name, target := range map[string]Target{
		"pull_request":        TargetIssue,
		"pull_request_target": TargetIssue,
		"issue_comment":       TargetIssue,
		"push":                TargetCommit,
		"workflow_dispatch":   TargetNone,
	} {
		assert.Equal(t, target, (&Event{Name: name}).Target(), name)
	}
}

func zipOf(t *testing.T, name string, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestArtifactTransport_Fetch(t *testing.T) {
	archive := zipOf(t, baseline.FileName, []byte(`{"TTFB":800}`))

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/site/actions/artifacts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, baseline.ArtifactName, r.URL.Query().Get("name"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		_, _ = io.WriteString(w, `{"total_count":3,"artifacts":[
			{"id":3,"name":"perf-metrics","expired":false,"workflow_run":{"head_branch":"feature"}},
			{"id":2,"name":"perf-metrics","expired":true,"workflow_run":{"head_branch":"dev"}},
			{"id":1,"name":"perf-metrics","expired":false,"workflow_run":{"head_branch":"dev"}}
		]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/repos/acme/site/actions/artifacts/1/zip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", srv.URL+"/blob/1")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/blob/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write(archive)
	})

	client, err := NewClient(context.Background(), newTestLogger(), srv.URL, "token")
	require.NoError(t, err)

	transport := NewArtifactTransport(newTestLogger(), client, "acme/site", t.TempDir())

	data, err := transport.Fetch(context.Background(), "dev")
	require.NoError(t, err)
	assert.JSONEq(t, `{"TTFB":800}`, string(data))

	_, err = transport.Fetch(context.Background(), "main")
	require.ErrorIs(t, err, baseline.ErrNotFound)
}

func TestArtifactTransport_FetchErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/site/actions/artifacts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"Resource not accessible by integration"}`)
	})

	transport := NewArtifactTransport(newTestLogger(), newTestClient(t, mux), "acme/site", t.TempDir())

	_, err := transport.Fetch(context.Background(), "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Resource not accessible by integration")
	assert.NotErrorIs(t, err, baseline.ErrNotFound)
}

func TestArtifactTransport_Store(t *testing.T) {
	dir := t.TempDir()
	transport := NewArtifactTransport(newTestLogger(), newTestClient(t, http.NewServeMux()), "acme/site", dir)

	require.NoError(t, transport.Store(context.Background(), "feature", []byte(`{"TTFB":600}`)))

	data, err := os.ReadFile(filepath.Join(dir, baseline.FileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"TTFB":600}`, string(data))
}

func TestFirstEntry(t *testing.T) {
	data, err := firstEntry(zipOf(t, "perf-metrics.json", []byte("{}")))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = firstEntry([]byte("not a zip"))
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, zip.NewWriter(&buf).Close())

	_, err = firstEntry(buf.Bytes())
	require.ErrorIs(t, err, baseline.ErrNotFound)
}

// commentServer is an in-memory comments API.
type commentServer struct {
	mu       sync.Mutex
	comments map[string][]comment
	updates  map[string]string
	created  map[string]string
}

func newCommentServer() *commentServer {
	return &commentServer{
		comments: map[string][]comment{},
		updates:  map[string]string{},
		created:  map[string]string{},
	}
}

func (s *commentServer) handler(t *testing.T) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var body commentBody
		if r.Body != nil && r.Method != http.MethodGet {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		}

		switch r.Method {
		case http.MethodGet:
			list := s.comments[r.URL.Path]
			if list == nil {
				list = []comment{}
			}

			require.NoError(t, json.NewEncoder(w).Encode(list))
		case http.MethodPatch:
			s.updates[r.URL.Path] = body.Body
			_, _ = io.WriteString(w, `{}`)
		case http.MethodPost:
			s.created[r.URL.Path] = body.Body
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":99}`)
		}
	}
}

func TestPublisher_Publish(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		existing map[string][]comment
		updated  string
		created  string
		wantErr  error
	}{
		{
			name:    "pull request creates",
			event:   Event{Name: "pull_request", Repository: "acme/site", Number: 7},
			created: "/repos/acme/site/issues/7/comments",
		},
		{
			name:  "pull request updates existing",
			event: Event{Name: "pull_request", Repository: "acme/site", Number: 7},
			existing: map[string][]comment{
				"/repos/acme/site/issues/7/comments": {
					{ID: 1, Body: "LGTM"},
					{ID: 2, Body: marker + "\n\nold"},
				},
			},
			updated: "/repos/acme/site/issues/comments/2",
		},
		{
			name:    "issue comment creates",
			event:   Event{Name: "issue_comment", Repository: "acme/site", Number: 8},
			created: "/repos/acme/site/issues/8/comments",
		},
		{
			name:    "push creates commit comment",
			event:   Event{Name: "push", Repository: "acme/site", SHA: "abc"},
			created: "/repos/acme/site/commits/abc/comments",
		},
		{
			name:  "push updates commit comment",
			event: Event{Name: "push", Repository: "acme/site", SHA: "abc"},
			existing: map[string][]comment{
				"/repos/acme/site/commits/abc/comments": {{ID: 5, Body: marker}},
			},
			updated: "/repos/acme/site/comments/5",
		},
		{
			name:    "unsupported event",
			event:   Event{Name: "schedule", Repository: "acme/site"},
			wantErr: ErrUnsupportedEvent,
		},
		{
			name:    "pull request without number",
			event:   Event{Name: "pull_request", Repository: "acme/site"},
			wantErr: errMissingNumber,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newCommentServer()
			if tt.existing != nil {
				server.comments = tt.existing
			}

			mux := http.NewServeMux()
			mux.Handle("/repos/", server.handler(t))

			ev := tt.event
			publisher := NewPublisher(newTestLogger(), newTestClient(t, mux), &ev, marker)

			body := marker + "\n\nnew"
			err := publisher.Publish(context.Background(), body)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, server.created)
				assert.Empty(t, server.updates)

				return
			}

			require.NoError(t, err)

			if tt.created != "" {
				assert.Equal(t, map[string]string{tt.created: body}, server.created)
				assert.Empty(t, server.updates)
			}

			if tt.updated != "" {
				assert.Equal(t, map[string]string{tt.updated: body}, server.updates)
				assert.Empty(t, server.created)
			}
		})
	}
}

func TestPublisher_Paginates(t *testing.T) {
	var pages []string

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/site/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			t.Errorf("unexpected create")

			return
		}

		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		list := make([]comment, 0, commentsPerPage)

		if page == "1" {
			for i := 0; i < commentsPerPage; i++ {
				list = append(list, comment{ID: int64(i + 1), Body: "noise"})
			}
		} else {
			list = append(list, comment{ID: 500, Body: marker})
		}

		require.NoError(t, json.NewEncoder(w).Encode(list))
	})
	mux.HandleFunc("/repos/acme/site/issues/comments/500", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_, _ = io.WriteString(w, `{}`)
	})

	publisher := NewPublisher(newTestLogger(), newTestClient(t, mux), &Event{Name: "pull_request", Repository: "acme/site", Number: 7}, marker)

	require.NoError(t, publisher.Publish(context.Background(), marker))
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestAPIError_IsNotFound(t *testing.T) {
	err := error(&APIError{Method: http.MethodGet, Path: "x", StatusCode: http.StatusNotFound, Message: "Not Found"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = &APIError{StatusCode: http.StatusForbidden}
	assert.NotErrorIs(t, err, ErrNotFound)
}

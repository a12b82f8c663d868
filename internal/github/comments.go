package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const commentsPerPage = 100

// ErrUnsupportedEvent is returned when a report cannot be published for the
// triggering event.
var ErrUnsupportedEvent = errors.New("unsupported event")

var errMissingNumber = errors.New("event has no pull request or issue number")

type comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

type commentBody struct {
	Body string `json:"body"`
}

// Publisher creates or updates the report comment for an event.
type Publisher struct {
	client *Client
	event  *Event
	marker string
	log    logrus.FieldLogger
}

// NewPublisher creates a publisher. An existing comment whose body starts with
// marker is updated instead of posting a new one.
func NewPublisher(log logrus.FieldLogger, client *Client, event *Event, marker string) *Publisher {
	return &Publisher{
		client: client,
		event:  event,
		marker: marker,
		log:    log.WithField("component", "comment_publisher"),
	}
}

// Publish posts body on the pull request or commit of the event.
func (p *Publisher) Publish(ctx context.Context, body string) error {
	var (
		listPath   string
		updatePath func(id int64) string
		createPath string
	)

	repo := "repos/" + p.event.Repository

	switch p.event.Target() {
	case TargetIssue:
		if p.event.Number == 0 {
			return errMissingNumber
		}

		n := strconv.Itoa(p.event.Number)
		listPath = repo + "/issues/" + n + "/comments"
		createPath = listPath
		updatePath = func(id int64) string { return fmt.Sprintf("%s/issues/comments/%d", repo, id) }
	case TargetCommit:
		listPath = repo + "/commits/" + p.event.SHA + "/comments"
		createPath = listPath
		updatePath = func(id int64) string { return fmt.Sprintf("%s/comments/%d", repo, id) }
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, p.event.Name)
	}

	existing, err := p.find(ctx, listPath)
	if err != nil {
		return err
	}

	log := p.log.WithField("event", p.event.Name)

	if existing != nil {
		if err := p.client.send(ctx, http.MethodPatch, updatePath(existing.ID), nil, commentBody{Body: body}, nil); err != nil {
			return fmt.Errorf("updating comment %d: %w", existing.ID, err)
		}

		log.WithField("comment_id", existing.ID).Info("updated report comment")

		return nil
	}

	var created comment
	if err := p.client.send(ctx, http.MethodPost, createPath, nil, commentBody{Body: body}, &created); err != nil {
		return fmt.Errorf("creating comment: %w", err)
	}

	log.WithField("comment_id", created.ID).Info("created report comment")

	return nil
}

// find pages through the comments at path and returns the first one that
// starts with the marker.
func (p *Publisher) find(ctx context.Context, path string) (*comment, error) {
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(commentsPerPage))
		q.Set("page", strconv.Itoa(page))

		var comments []comment
		if err := p.client.getJSON(ctx, path, q, &comments); err != nil {
			return nil, fmt.Errorf("listing comments: %w", err)
		}

		for i := range comments {
			if strings.HasPrefix(comments[i].Body, p.marker) {
				return &comments[i], nil
			}
		}

		if len(comments) < commentsPerPage {
			return nil, nil
		}
	}
}

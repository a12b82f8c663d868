// Package github integrates with the GitHub Actions runtime: the workflow
// event, the REST API, workflow artifacts and PR / commit comments.
package github

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DefaultAPIURL is used when GITHUB_API_URL is not set.
const DefaultAPIURL = "https://api.github.com"

var errMissingRepository = errors.New("GITHUB_REPOSITORY is not set")

// Target is where a report for an event is published.
type Target int

const (
	// TargetNone means the event has no comment target.
	TargetNone Target = iota
	// TargetIssue publishes on the pull request (or issue) conversation.
	TargetIssue
	// TargetCommit publishes on the pushed commit.
	TargetCommit
)

// Event describes the workflow run that invoked the action.
type Event struct {
	Name       string
	Repository string
	SHA        string
	// Branch is the branch the run is for: the PR head for pull requests.
	Branch string
	// Number is the pull request or issue number, 0 if there is none.
	Number    int
	APIURL    string
	Workspace string
}

// EventFromEnv reads the event from the standard GITHUB_* variables and the
// event payload. SHA and branch fall back to the git HEAD of the workspace.
func EventFromEnv(log logrus.FieldLogger, getenv func(string) string) (*Event, error) {
	log = log.WithField("component", "github_event")

	ev := &Event{
		Name:       getenv("GITHUB_EVENT_NAME"),
		Repository: getenv("GITHUB_REPOSITORY"),
		SHA:        getenv("GITHUB_SHA"),
		Branch:     getenv("GITHUB_HEAD_REF"),
		APIURL:     strings.TrimSuffix(getenv("GITHUB_API_URL"), "/"),
		Workspace:  getenv("GITHUB_WORKSPACE"),
	}

	if ev.Repository == "" {
		return nil, errMissingRepository
	}

	if ev.APIURL == "" {
		ev.APIURL = DefaultAPIURL
	}

	if ev.Branch == "" {
		ev.Branch = getenv("GITHUB_REF_NAME")
	}

	if path := getenv("GITHUB_EVENT_PATH"); path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("failed to read event payload")
		} else {
			ev.applyPayload(payload)
		}
	}

	if ev.SHA == "" || ev.Branch == "" {
		if err := ev.applyHead(ev.Workspace); err != nil {
			log.WithError(err).Debug("no git HEAD to fall back to")
		}
	}

	log.WithFields(logrus.Fields{
		"event":  ev.Name,
		"repo":   ev.Repository,
		"sha":    ev.SHA,
		"branch": ev.Branch,
		"number": ev.Number,
	}).Debug("resolved workflow event")

	return ev, nil
}

func (e *Event) applyPayload(payload []byte) {
	doc := gjson.ParseBytes(payload)

	for _, path := range []string{"pull_request.number", "issue.number", "number"} {
		if n := doc.Get(path).Int(); n > 0 {
			e.Number = int(n)

			break
		}
	}

	if e.Branch == "" {
		e.Branch = doc.Get("pull_request.head.ref").String()
	}

	if e.SHA == "" {
		e.SHA = doc.Get("after").String()
	}
}

func (e *Event) applyHead(dir string) error {
	if dir == "" {
		dir = "."
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}

	if e.SHA == "" {
		e.SHA = head.Hash().String()
	}

	if e.Branch == "" && head.Name().IsBranch() {
		e.Branch = head.Name().Short()
	}

	return nil
}

// Target returns where the report for this event is published.
func (e *Event) Target() Target {
	switch {
	case strings.HasPrefix(e.Name, "pull_request"), e.Name == "issue_comment":
		return TargetIssue
	case e.Name == "push":
		return TargetCommit
	default:
		return TargetNone
	}
}

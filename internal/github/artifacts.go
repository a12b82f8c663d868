package github

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/ethpandaops/wpt-action/internal/baseline"
	"github.com/sirupsen/logrus"
)

const artifactsPerPage = 100

type artifact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Expired     bool   `json:"expired"`
	WorkflowRun struct {
		HeadBranch string `json:"head_branch"`
	} `json:"workflow_run"`
}

type artifactList struct {
	TotalCount int        `json:"total_count"`
	Artifacts  []artifact `json:"artifacts"`
}

// ArtifactTransport reads baselines from the workflow artifacts of the
// repository. Writing hands the file to the local workspace, from where the
// workflow uploads it as the next artifact.
type ArtifactTransport struct {
	client *Client
	repo   string
	name   string
	local  *baseline.FileTransport
	log    logrus.FieldLogger
}

// NewArtifactTransport creates a transport for repo ("owner/name") that writes
// new baselines into workspace.
func NewArtifactTransport(log logrus.FieldLogger, client *Client, repo, workspace string) *ArtifactTransport {
	return &ArtifactTransport{
		client: client,
		repo:   repo,
		name:   baseline.ArtifactName,
		local:  baseline.NewFileTransport(workspace),
		log:    log.WithField("component", "artifact_transport"),
	}
}

// Fetch downloads the most recent baseline artifact produced on branch.
func (t *ArtifactTransport) Fetch(ctx context.Context, branch string) ([]byte, error) {
	q := url.Values{}
	q.Set("name", t.name)
	q.Set("per_page", strconv.Itoa(artifactsPerPage))

	var list artifactList
	if err := t.client.getJSON(ctx, "repos/"+t.repo+"/actions/artifacts", q, &list); err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	// Artifacts are listed newest first.
	var found *artifact

	for i := range list.Artifacts {
		a := &list.Artifacts[i]
		if a.Name == t.name && !a.Expired && a.WorkflowRun.HeadBranch == branch {
			found = a

			break
		}
	}

	if found == nil {
		return nil, fmt.Errorf("no %s artifact for branch %s: %w", t.name, branch, baseline.ErrNotFound)
	}

	t.log.WithFields(logrus.Fields{
		"artifact_id": found.ID,
		"branch":      branch,
	}).Debug("downloading baseline artifact")

	archive, err := t.client.download(ctx, fmt.Sprintf("repos/%s/actions/artifacts/%d/zip", t.repo, found.ID))
	if err != nil {
		return nil, fmt.Errorf("downloading artifact %d: %w", found.ID, err)
	}

	return firstEntry(archive)
}

// Store writes the baseline into the workspace.
func (t *ArtifactTransport) Store(ctx context.Context, branch string, data []byte) error {
	return t.local.Store(ctx, branch, data)
}

// firstEntry returns the contents of the first file in a zip archive.
func firstEntry(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening artifact archive: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		data, err := io.ReadAll(io.LimitReader(rc, maxDownloadBytes))
		rc.Close()

		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}

		return data, nil
	}

	return nil, fmt.Errorf("artifact archive is empty: %w", baseline.ErrNotFound)
}

// Compile-time interface compliance check
var _ baseline.Transport = (*ArtifactTransport)(nil)

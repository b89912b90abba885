package gitops

import (
	"context"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// PullRequestClient opens merge requests against a GitLab project.
type PullRequestClient struct {
	client *gitlab.Client
}

func NewPullRequestClient(token, baseURL string) (*PullRequestClient, error) {
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &PullRequestClient{client: client}, nil
}

// OpenPullRequestInput describes the merge request to open once a job's
// feature branch has been pushed.
type OpenPullRequestInput struct {
	ProjectPath  string // "owner/name"
	SourceBranch string
	TargetBranch string
	Title        string
	Body         string
}

// OpenPullRequest creates a merge request and returns its web URL.
func (c *PullRequestClient) OpenPullRequest(ctx context.Context, in OpenPullRequestInput) (string, error) {
	mr, _, err := c.client.MergeRequests.CreateMergeRequest(in.ProjectPath, &gitlab.CreateMergeRequestOptions{
		Title:        &in.Title,
		Description:  &in.Body,
		SourceBranch: &in.SourceBranch,
		TargetBranch: &in.TargetBranch,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating merge request: %w", err)
	}
	if mr == nil {
		return "", fmt.Errorf("merge request not returned")
	}
	return mr.WebURL, nil
}

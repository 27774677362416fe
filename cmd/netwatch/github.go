package main

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// createGitHubIssue files one issue on owner/repo, authenticating the same
// way the teacher's github-log-connector command does: a static OAuth2
// token sourced from the environment, wrapped into a github.Client.
func createGitHubIssue(ctx context.Context, token, owner, repo, title, body string) (string, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	issue, _, err := client.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title: &title,
		Body:  &body,
	})
	if err != nil {
		return "", fmt.Errorf("create github issue: %w", err)
	}

	return issue.GetHTMLURL(), nil
}

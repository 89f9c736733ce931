// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"fmt"
	"strings"
)

// Comment is a pull request (issue) comment.
type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// CreateComment posts a new comment on a pull request. The repo is the
// "owner/name" slug.
func (client *Client) CreateComment(ctx context.Context, repo string, number int, body string) (*Comment, error) {
	var comment Comment
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	if err := client.post(ctx, path, map[string]string{"body": body}, &comment); err != nil {
		return nil, fmt.Errorf("commenting on %s#%d: %w", repo, number, err)
	}
	return &comment, nil
}

// UpdateComment replaces the body of an existing comment.
func (client *Client) UpdateComment(ctx context.Context, repo string, commentID int64, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/comments/%d", repo, commentID)
	if err := client.patch(ctx, path, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("updating comment %d on %s: %w", commentID, repo, err)
	}
	return nil
}

// UpsertComment posts body as a comment on a pull request, replacing
// an existing comment that contains marker instead of stacking a new
// one. Re-runs of the same pipeline keep one comment per pull request
// this way. The marker must appear in body (conventionally an HTML
// comment, invisible when rendered).
func (client *Client) UpsertComment(ctx context.Context, repo string, number int, marker, body string) error {
	if !strings.Contains(body, marker) {
		return fmt.Errorf("upserting comment on %s#%d: body does not contain marker %q", repo, number, marker)
	}

	existing, err := client.findComment(ctx, repo, number, marker)
	if err != nil {
		return err
	}
	if existing != nil {
		return client.UpdateComment(ctx, repo, existing.ID, body)
	}
	_, err = client.CreateComment(ctx, repo, number, body)
	return err
}

// findComment pages through a pull request's comments looking for one
// containing marker. Returns nil when no comment matches.
func (client *Client) findComment(ctx context.Context, repo string, number int, marker string) (*Comment, error) {
	const perPage = 100
	for page := 1; ; page++ {
		var comments []Comment
		path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=%d&page=%d", repo, number, perPage, page)
		if err := client.get(ctx, path, &comments); err != nil {
			return nil, fmt.Errorf("listing comments on %s#%d: %w", repo, number, err)
		}
		for _, comment := range comments {
			if strings.Contains(comment.Body, marker) {
				return &comment, nil
			}
		}
		if len(comments) < perPage {
			return nil, nil
		}
	}
}

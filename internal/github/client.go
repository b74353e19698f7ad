// Copyright 2025 The Bootsync Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package github

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

// RetryConfig defines the retry behavior for API calls
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// githubReporter implements the Reporter interface using go-github
type githubReporter struct {
	client      *github.Client
	retryConfig *RetryConfig
}

// NewReporter creates a commit-status reporter with the provided token.
func NewReporter(token string) (Reporter, error) {
	var httpClient *http.Client
	if token != "" {
		transport := &github.BasicAuthTransport{
			Username: "token",
			Password: token,
		}
		httpClient = transport.Client()
	}

	return &githubReporter{
		client: github.NewClient(httpClient),
		retryConfig: &RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2.0,
		},
	}, nil
}

// SplitRepo splits an "owner/repo" reference into its parts.
func SplitRepo(ref string) (owner, repo string, err error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository reference %q, want owner/repo", ref)
	}
	return parts[0], parts[1], nil
}

// UpdateCommitStatus updates the status of a commit
func (c *githubReporter) UpdateCommitStatus(ctx context.Context, owner, repo, sha string, status *Status) error {
	repoStatus := &github.RepoStatus{
		State:       github.String(string(status.State)),
		TargetURL:   github.String(status.TargetURL),
		Description: github.String(status.Description),
		Context:     github.String(status.Context),
	}

	err := c.executeWithRetry(ctx, func() error {
		_, _, err := c.client.Repositories.CreateStatus(ctx, owner, repo, sha, repoStatus)
		return err
	})

	if err != nil {
		return fmt.Errorf("failed to update commit status: %w", err)
	}

	return nil
}

// executeWithRetry executes an operation with exponential backoff retry
func (c *githubReporter) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		// Check if context is cancelled before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()

		// Success
		if lastErr == nil {
			return nil
		}

		// Check if error is retryable
		if !c.isRetryableError(lastErr) {
			return lastErr
		}

		// Don't retry if we've exhausted attempts
		if attempt == c.retryConfig.MaxRetries {
			break
		}

		// Calculate backoff with jitter
		backoff := c.calculateBackoff(attempt)

		// Wait with context cancellation support
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			// Continue to next retry
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", c.retryConfig.MaxRetries, lastErr)
}

// isRetryableError determines if an error should trigger a retry
func (c *githubReporter) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Check for GitHub API errors
	if ghErr, ok := err.(*github.ErrorResponse); ok {
		switch ghErr.Response.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		case http.StatusForbidden:
			// Check if it's a rate limit error
			if ghErr.Message == "API rate limit exceeded" {
				return true
			}
		}
	}

	return false
}

// calculateBackoff calculates the backoff duration for a retry attempt
func (c *githubReporter) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff with jitter
	multiplier := 1 << uint(attempt) // 2^attempt
	base := float64(c.retryConfig.InitialBackoff) * float64(multiplier)

	// Add jitter (±20%)
	jitter := (rand.Float64() * 0.4) - 0.2 // -0.2 to +0.2
	backoff := time.Duration(base * (1 + jitter))

	// Cap at max backoff
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	return backoff
}

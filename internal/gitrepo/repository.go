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

// Package gitrepo is the version-controlled store of rendered desired-state
// documents. Commits happen only when the working tree actually changed, so
// re-running an unchanged configuration leaves history untouched, and a
// rejected push surfaces as ErrPublishConflict instead of overwriting the
// remote.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/bootsync/bootsync/internal/render"
)

// ErrPublishConflict reports a push rejected because the remote has
// diverged. The caller may Refresh and retry; the repository never
// force-overwrites the remote.
var ErrPublishConflict = errors.New("publish rejected: remote has diverged")

const (
	commitAuthorName  = "bootsync"
	commitAuthorEmail = "bootsync@noreply.local"
)

// Repository is a cloned working copy of the state repository.
type Repository struct {
	dir    string
	branch string
	repo   *git.Repository
	auth   transport.AuthMethod
}

// Options configures Clone.
type Options struct {
	URL      string
	Branch   string
	Dir      string
	Username string
	Token    string
}

// Clone checks out the state repository into opts.Dir. If the directory
// already holds a clone, it is opened and refreshed instead, which makes
// repeated runs against the same checkout directory safe.
func Clone(ctx context.Context, opts Options) (*Repository, error) {
	auth := authFor(opts.Username, opts.Token)
	r := &Repository{
		dir:    opts.Dir,
		branch: opts.Branch,
		auth:   auth,
	}

	if existing, err := git.PlainOpen(opts.Dir); err == nil {
		r.repo = existing
		if err := r.Refresh(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}

	repo, err := git.PlainCloneContext(ctx, opts.Dir, false, &git.CloneOptions{
		URL:           opts.URL,
		ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone state repository %s: %w", opts.URL, err)
	}
	r.repo = repo
	return r, nil
}

// EnsureCommitted writes the documents into the working tree, stages them,
// and commits only if something actually changed. Returns true when a new
// commit was created. Calling it repeatedly with identical documents is a
// no-op and produces no history entries.
func (r *Repository) EnsureCommitted(docs []render.Document, message string) (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to open worktree: %w", err)
	}

	for _, doc := range docs {
		target := filepath.Join(r.dir, filepath.FromSlash(doc.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return false, fmt.Errorf("failed to create directory for %s: %w", doc.Path, err)
		}
		if err := os.WriteFile(target, doc.Data, 0o644); err != nil {
			return false, fmt.Errorf("failed to write %s: %w", doc.Path, err)
		}
		if _, err := wt.Add(doc.Path); err != nil {
			return false, fmt.Errorf("failed to stage %s: %w", doc.Path, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		return false, nil
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// Publish pushes the local branch to the remote. A rejected non-fast-forward
// push returns ErrPublishConflict; the caller decides whether to Refresh and
// retry. An up-to-date remote is not an error.
func (r *Repository) Publish(ctx context.Context) error {
	err := r.repo.PushContext(ctx, &git.PushOptions{Auth: r.auth})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case isNonFastForward(err):
		return fmt.Errorf("%w: %s", ErrPublishConflict, err.Error())
	default:
		return fmt.Errorf("failed to push state repository: %w", err)
	}
}

// Refresh discards local history and resets the working tree to the
// remote branch head. After a publish conflict the caller re-applies its
// documents with EnsureCommitted and publishes again; unpublished local
// commits are intentionally dropped, re-rendering is the source of truth.
func (r *Repository) Refresh(ctx context.Context) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{Auth: r.auth})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch state repository: %w", err)
	}

	remoteRef, err := r.repo.Reference(plumbing.NewRemoteReferenceName("origin", r.branch), true)
	if err != nil {
		return fmt.Errorf("failed to resolve remote branch %s: %w", r.branch, err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: remoteRef.Hash()}); err != nil {
		return fmt.Errorf("failed to reset to remote head: %w", err)
	}
	return nil
}

// HeadSHA returns the commit hash the working tree currently points at.
func (r *Repository) HeadSHA() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// Dir returns the checkout directory.
func (r *Repository) Dir() string {
	return r.dir
}

func authFor(username, token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: username, Password: token}
}

func isNonFastForward(err error) bool {
	if errors.Is(err, git.ErrNonFastForwardUpdate) {
		return true
	}
	// go-git reports per-ref push rejections as plain errors carrying the
	// remote status message.
	return strings.Contains(err.Error(), "non-fast-forward")
}

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

package gitrepo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bootsync/bootsync/internal/render"
)

// newRemote builds a bare repository with one seed commit on master and
// returns its path, usable as a local clone URL.
func newRemote(t *testing.T) string {
	t.Helper()

	seedDir := t.TempDir()
	seed, err := git.PlainInit(seedDir, false)
	if err != nil {
		t.Fatalf("init seed repo: %v", err)
	}
	if err := os.WriteFile(filepath.Join(seedDir, "README.md"), []byte("state repository\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	wt, err := seed.Worktree()
	if err != nil {
		t.Fatalf("seed worktree: %v", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("stage seed file: %v", err)
	}
	if _, err := wt.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@test", When: time.Now()},
	}); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	remoteDir := t.TempDir()
	if _, err := git.PlainClone(remoteDir, true, &git.CloneOptions{URL: seedDir}); err != nil {
		t.Fatalf("create bare remote: %v", err)
	}
	return remoteDir
}

func cloneRemote(t *testing.T, remote string) *Repository {
	t.Helper()
	repo, err := Clone(context.Background(), Options{
		URL:    remote,
		Branch: "master",
		Dir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	return repo
}

func commitCount(t *testing.T, r *Repository) int {
	t.Helper()
	head, err := r.repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	count := 0
	if err := iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("iterate log: %v", err)
	}
	return count
}

func TestEnsureCommitted_CommitsOnChange(t *testing.T) {
	repo := cloneRemote(t, newRemote(t))

	docs := []render.Document{
		{Path: "applications/tekton.yaml", Data: []byte("kind: Application\n")},
		{Path: "tekton/subscription.yaml", Data: []byte("kind: Subscription\n")},
	}

	changed, err := repo.EnsureCommitted(docs, "register tekton")
	if err != nil {
		t.Fatalf("EnsureCommitted: %v", err)
	}
	if !changed {
		t.Fatal("EnsureCommitted reported no change for new documents")
	}
	if got := commitCount(t, repo); got != 2 {
		t.Errorf("commit count = %d, want 2 (seed + register)", got)
	}

	data, err := os.ReadFile(filepath.Join(repo.Dir(), "applications", "tekton.yaml"))
	if err != nil {
		t.Fatalf("read committed file: %v", err)
	}
	if string(data) != "kind: Application\n" {
		t.Errorf("committed content = %q", data)
	}
}

// Identical rendered output across two consecutive runs must produce zero
// new history entries.
func TestEnsureCommitted_IdempotentNoOp(t *testing.T) {
	repo := cloneRemote(t, newRemote(t))

	docs := []render.Document{
		{Path: "applications/awx.yaml", Data: []byte("kind: Application\n")},
	}

	if _, err := repo.EnsureCommitted(docs, "register awx"); err != nil {
		t.Fatalf("first EnsureCommitted: %v", err)
	}
	before := commitCount(t, repo)

	changed, err := repo.EnsureCommitted(docs, "register awx")
	if err != nil {
		t.Fatalf("second EnsureCommitted: %v", err)
	}
	if changed {
		t.Error("EnsureCommitted created a commit for identical input")
	}
	if after := commitCount(t, repo); after != before {
		t.Errorf("commit count changed %d -> %d on no-op", before, after)
	}
}

func TestPublish_PushesToRemote(t *testing.T) {
	remote := newRemote(t)
	repo := cloneRemote(t, remote)

	docs := []render.Document{{Path: "applications/tekton.yaml", Data: []byte("kind: Application\n")}}
	if _, err := repo.EnsureCommitted(docs, "register tekton"); err != nil {
		t.Fatalf("EnsureCommitted: %v", err)
	}
	if err := repo.Publish(context.Background()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// A fresh clone sees the published commit
	verify := cloneRemote(t, remote)
	if _, err := os.Stat(filepath.Join(verify.Dir(), "applications", "tekton.yaml")); err != nil {
		t.Errorf("published file not visible from fresh clone: %v", err)
	}
}

func TestPublish_UpToDateIsNotAnError(t *testing.T) {
	repo := cloneRemote(t, newRemote(t))

	if err := repo.Publish(context.Background()); err != nil {
		t.Fatalf("Publish with nothing to push: %v", err)
	}
}

func TestPublish_ConflictDetectedAndRecoverable(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)

	first := cloneRemote(t, remote)
	second := cloneRemote(t, remote)

	// First operator wins the race
	if _, err := first.EnsureCommitted([]render.Document{
		{Path: "applications/tekton.yaml", Data: []byte("revision: one\n")},
	}, "register tekton"); err != nil {
		t.Fatalf("first EnsureCommitted: %v", err)
	}
	if err := first.Publish(ctx); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	// Second operator pushes from a stale base and must be rejected
	docs := []render.Document{{Path: "applications/awx.yaml", Data: []byte("revision: two\n")}}
	if _, err := second.EnsureCommitted(docs, "register awx"); err != nil {
		t.Fatalf("second EnsureCommitted: %v", err)
	}
	err := second.Publish(ctx)
	if !errors.Is(err, ErrPublishConflict) {
		t.Fatalf("Publish error = %v, want ErrPublishConflict", err)
	}

	// Refresh + re-apply + publish recovers
	if err := second.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	changed, err := second.EnsureCommitted(docs, "register awx")
	if err != nil {
		t.Fatalf("EnsureCommitted after refresh: %v", err)
	}
	if !changed {
		t.Fatal("expected a fresh commit after refresh")
	}
	if err := second.Publish(ctx); err != nil {
		t.Fatalf("Publish after refresh: %v", err)
	}

	// Both documents are on the remote now
	verify := cloneRemote(t, remote)
	for _, f := range []string{"applications/tekton.yaml", "applications/awx.yaml"} {
		if _, err := os.Stat(filepath.Join(verify.Dir(), filepath.FromSlash(f))); err != nil {
			t.Errorf("file %s missing after conflict recovery: %v", f, err)
		}
	}
}

func TestHeadSHA(t *testing.T) {
	repo := cloneRemote(t, newRemote(t))

	sha, err := repo.HeadSHA()
	if err != nil {
		t.Fatalf("HeadSHA: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("HeadSHA = %q, want a 40-char hash", sha)
	}
}

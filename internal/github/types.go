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
)

// StatusContext is the commit-status check name bootsync reports under.
const StatusContext = "bootsync/convergence"

// Reporter publishes the outcome of a bootstrap run as a commit status on
// the state repository's head commit.
type Reporter interface {
	// UpdateCommitStatus sets the status of a commit
	UpdateCommitStatus(ctx context.Context, owner, repo, sha string, status *Status) error
}

// Status represents a commit status to be set on GitHub
type Status struct {
	State       StatusState // pending, success, error, failure
	TargetURL   string      // URL for more details
	Description string      // Short description of the status
	Context     string      // A unique name for this status check
}

// StatusState represents the state of a commit status
type StatusState string

const (
	// StatusStatePending indicates that the run is still in progress
	StatusStatePending StatusState = "pending"
	// StatusStateSuccess indicates that the run converged
	StatusStateSuccess StatusState = "success"
	// StatusStateError indicates that the run aborted on an error
	StatusStateError StatusState = "error"
	// StatusStateFailure indicates that the run failed to converge
	StatusStateFailure StatusState = "failure"
)

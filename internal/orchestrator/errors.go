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

package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bootsync/bootsync/internal/config"
	"github.com/bootsync/bootsync/internal/gitrepo"
	"github.com/bootsync/bootsync/internal/syncdriver"
)

// Exit codes returned by ExitCode. Each failure class gets its own code
// so wrapping automation can tell "fix your environment" from "the
// cluster would not converge".
const (
	ExitOK                 = 0
	ExitFailure            = 1
	ExitConfiguration      = 2
	ExitDependency         = 3
	ExitPublishConflict    = 4
	ExitRegistration       = 5
	ExitSync               = 6
	ExitConvergenceWarning = 7
)

// DependencyError reports a missing external prerequisite: the cluster
// API, the GitOps controller namespace, or the state repository remote.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// RegistrationError reports a failure to register a unit's Application
// after exhausting retries.
type RegistrationError struct {
	Unit string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register application for unit %q: %v", e.Unit, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// SyncError reports a unit that never converged: every attempt ended
// Diverged or TimedOut.
type SyncError struct {
	Unit     string
	State    syncdriver.State
	Attempts int
	// Diagnostics is the namespace snapshot captured on the last attempt
	Diagnostics string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("unit %q did not converge after %d attempt(s), last state %s", e.Unit, e.Attempts, e.State)
}

// ConvergenceWarning reports unexpected pods found after all units
// converged. It is advisory unless the run is configured to treat it as
// fatal.
type ConvergenceWarning struct {
	Namespaces []string
}

func (e *ConvergenceWarning) Error() string {
	return fmt.Sprintf("unexpected pods in namespace(s): %s", strings.Join(e.Namespaces, ", "))
}

// ExitCode maps an orchestration error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitConfiguration
	}
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return ExitDependency
	}
	if errors.Is(err, gitrepo.ErrPublishConflict) {
		return ExitPublishConflict
	}
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return ExitRegistration
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return ExitSync
	}
	var convWarn *ConvergenceWarning
	if errors.As(err, &convWarn) {
		return ExitConvergenceWarning
	}
	return ExitFailure
}

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

// Package orchestrator sequences one full bootstrap run: render the
// desired state, publish it to the state repository, register each
// unit's Application, drive it to convergence, and verify the resulting
// namespaces. Every step is idempotent, so re-running after a partial
// failure resumes instead of duplicating work.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bootsync/bootsync/internal/argocd"
	"github.com/bootsync/bootsync/internal/cleanup"
	"github.com/bootsync/bootsync/internal/config"
	"github.com/bootsync/bootsync/internal/github"
	"github.com/bootsync/bootsync/internal/gitrepo"
	"github.com/bootsync/bootsync/internal/render"
	"github.com/bootsync/bootsync/internal/syncdriver"
	"github.com/bootsync/bootsync/internal/verify"
)

// registrationAttempts bounds the retries for registering one unit's
// Application before the run aborts.
const registrationAttempts = 3

// Renderer produces the desired-state documents for the run's units.
type Renderer interface {
	RenderAll(units []config.Unit) ([]render.Document, error)
}

// StateRepo is the published store of rendered documents.
type StateRepo interface {
	EnsureCommitted(docs []render.Document, message string) (bool, error)
	Publish(ctx context.Context) error
	Refresh(ctx context.Context) error
	HeadSHA() (string, error)
}

// Registry registers and removes unit Applications.
type Registry interface {
	UpsertApplication(ctx context.Context, repoURL, targetRevision string, unit config.Unit) (*argocd.Application, error)
	DeleteApplication(ctx context.Context, name string) error
}

// Namespaces ensures destination namespaces exist.
type Namespaces interface {
	EnsureNamespace(ctx context.Context, name, unitName string) error
}

// Driver runs one bounded sync attempt for an application.
type Driver interface {
	Run(ctx context.Context, appName, destNamespace string) (*syncdriver.Result, error)
}

// Verifier inspects destination namespaces after convergence.
type Verifier interface {
	Verify(ctx context.Context, namespaces []string) ([]verify.Report, error)
}

// UnitResult records the outcome of driving one unit.
type UnitResult struct {
	Unit      string
	Converged bool
	// Attempts holds the terminal result of each sync attempt, in order
	Attempts []*syncdriver.Result
}

// RunReport summarizes a completed (or aborted) run.
type RunReport struct {
	// HeadSHA is the published state-repository commit the run acted on
	HeadSHA string
	// Committed is true when this run created a new state commit
	Committed bool
	Units     []UnitResult
	// Verification holds the post-convergence namespace reports; nil when
	// the run aborted before verification
	Verification []verify.Report
}

// Orchestrator wires the components of a run together.
type Orchestrator struct {
	cfg        *config.Config
	renderer   Renderer
	repo       StateRepo
	registry   Registry
	namespaces Namespaces
	driver     Driver
	verifier   Verifier
	// reporter may be nil when commit-status reporting is disabled
	reporter github.Reporter
}

// New assembles an orchestrator. reporter may be nil.
func New(cfg *config.Config, renderer Renderer, repo StateRepo, registry Registry,
	namespaces Namespaces, driver Driver, verifier Verifier, reporter github.Reporter) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		renderer:   renderer,
		repo:       repo,
		registry:   registry,
		namespaces: namespaces,
		driver:     driver,
		verifier:   verifier,
		reporter:   reporter,
	}
}

// Run executes one bootstrap run end to end. The returned report is
// valid even when err is non-nil; it describes how far the run got.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	log := logf.FromContext(ctx)
	report := &RunReport{}

	if err := o.publishState(ctx, report); err != nil {
		o.reportStatus(ctx, report.HeadSHA, github.StatusStateError, err.Error())
		return report, err
	}
	log.Info("state repository published", "sha", report.HeadSHA, "committed", report.Committed)

	o.reportStatus(ctx, report.HeadSHA, github.StatusStatePending, "bootstrap run in progress")

	if err := o.driveUnits(ctx, report); err != nil {
		o.failureCleanup(ctx)
		o.reportStatus(ctx, report.HeadSHA, github.StatusStateFailure, err.Error())
		return report, err
	}

	warn, err := o.verifyNamespaces(ctx, report)
	if err != nil {
		o.reportStatus(ctx, report.HeadSHA, github.StatusStateError, err.Error())
		return report, err
	}
	if warn != nil {
		if o.cfg.UnexpectedPodsFatal {
			o.failureCleanup(ctx)
			o.reportStatus(ctx, report.HeadSHA, github.StatusStateFailure, warn.Error())
			return report, warn
		}
		log.Info("convergence warning", "detail", warn.Error())
	}

	o.reportStatus(ctx, report.HeadSHA, github.StatusStateSuccess, "all units converged")
	return report, nil
}

// publishState renders the units and publishes them to the state
// repository. A publish conflict is resolved once by refreshing to the
// remote head and re-applying the rendered documents; a second conflict
// aborts the run.
func (o *Orchestrator) publishState(ctx context.Context, report *RunReport) error {
	docs, err := o.renderer.RenderAll(o.cfg.Units)
	if err != nil {
		return fmt.Errorf("failed to render desired state: %w", err)
	}

	message := fmt.Sprintf("bootsync: update desired state (%d units)", len(o.cfg.Units))
	committed, err := o.repo.EnsureCommitted(docs, message)
	if err != nil {
		return fmt.Errorf("failed to commit desired state: %w", err)
	}
	report.Committed = committed

	if err := o.repo.Publish(ctx); err != nil {
		if !errors.Is(err, gitrepo.ErrPublishConflict) {
			return err
		}
		// Someone else pushed since our clone. Re-apply on top of their
		// head; rendering is deterministic so the retry is safe.
		if err := o.repo.Refresh(ctx); err != nil {
			return err
		}
		if report.Committed, err = o.repo.EnsureCommitted(docs, message); err != nil {
			return fmt.Errorf("failed to re-commit desired state after refresh: %w", err)
		}
		if err := o.repo.Publish(ctx); err != nil {
			return err
		}
	}

	sha, err := o.repo.HeadSHA()
	if err != nil {
		return err
	}
	report.HeadSHA = sha
	return nil
}

// driveUnits registers and converges every unit in order, failing fast:
// a unit that exhausts its attempts aborts the run, leaving already
// converged units in place.
func (o *Orchestrator) driveUnits(ctx context.Context, report *RunReport) error {
	log := logf.FromContext(ctx)

	for _, unit := range o.cfg.Units {
		log.Info("processing unit", "unit", unit.Name, "namespace", unit.DestNamespace)

		if err := o.namespaces.EnsureNamespace(ctx, unit.DestNamespace, unit.Name); err != nil {
			return &RegistrationError{Unit: unit.Name, Err: err}
		}
		if err := o.registerApplication(ctx, unit); err != nil {
			return err
		}

		result := UnitResult{Unit: unit.Name}
		for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
			attemptResult, err := o.driver.Run(ctx, unit.Name, unit.DestNamespace)
			if err != nil {
				return err
			}
			result.Attempts = append(result.Attempts, attemptResult)

			if attemptResult.State == syncdriver.StateConverged {
				result.Converged = true
				break
			}

			log.Info("sync attempt failed", "unit", unit.Name, "attempt", attempt,
				"state", attemptResult.State, "sync", attemptResult.LastSync, "health", attemptResult.LastHealth)

			if attempt == o.cfg.MaxAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.RetryDelay):
			}
		}
		report.Units = append(report.Units, result)

		if !result.Converged {
			last := result.Attempts[len(result.Attempts)-1]
			return &SyncError{
				Unit:        unit.Name,
				State:       last.State,
				Attempts:    len(result.Attempts),
				Diagnostics: last.Diagnostics,
			}
		}
		log.Info("unit converged", "unit", unit.Name, "attempts", len(result.Attempts))
	}
	return nil
}

// registerApplication upserts a unit's Application, retrying transient
// API failures a bounded number of times.
func (o *Orchestrator) registerApplication(ctx context.Context, unit config.Unit) error {
	var lastErr error
	for attempt := 1; attempt <= registrationAttempts; attempt++ {
		_, lastErr = o.registry.UpsertApplication(ctx, o.cfg.RepoURL, o.cfg.Branch, unit)
		if lastErr == nil {
			return nil
		}
		if attempt == registrationAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.RetryDelay):
		}
	}
	return &RegistrationError{Unit: unit.Name, Err: lastErr}
}

// verifyNamespaces inspects each unit's destination namespace and turns
// unexpected pods into a ConvergenceWarning.
func (o *Orchestrator) verifyNamespaces(ctx context.Context, report *RunReport) (*ConvergenceWarning, error) {
	namespaces := make([]string, 0, len(o.cfg.Units))
	for _, unit := range o.cfg.Units {
		namespaces = append(namespaces, unit.DestNamespace)
	}

	reports, err := o.verifier.Verify(ctx, namespaces)
	if err != nil {
		return nil, fmt.Errorf("failed to verify namespaces: %w", err)
	}
	report.Verification = reports

	var flagged []string
	for _, r := range reports {
		if r.UnexpectedState {
			flagged = append(flagged, r.Namespace)
		}
	}
	if len(flagged) > 0 {
		return &ConvergenceWarning{Namespaces: flagged}, nil
	}
	return nil, nil
}

// failureCleanup deletes all registered Applications when automatic
// cleanup is enabled. Best effort: errors are logged, not returned.
func (o *Orchestrator) failureCleanup(ctx context.Context) {
	if !o.cfg.AutoCleanupOnFailure {
		return
	}
	cleaner := cleanup.NewCleaner(o.registry)
	if err := cleaner.RemoveAll(ctx, o.cfg.Units); err != nil {
		logf.FromContext(ctx).Error(err, "cleanup after failed run was incomplete")
	}
}

// reportStatus publishes a commit status for the run, if reporting is
// configured. Reporting failures never fail the run.
func (o *Orchestrator) reportStatus(ctx context.Context, sha string, state github.StatusState, description string) {
	if o.reporter == nil || o.cfg.CommitStatusRepo == "" || sha == "" {
		return
	}
	log := logf.FromContext(ctx)

	owner, repo, err := github.SplitRepo(o.cfg.CommitStatusRepo)
	if err != nil {
		log.Error(err, "invalid commit status repository", "repo", o.cfg.CommitStatusRepo)
		return
	}

	// Commit status descriptions are capped at 140 characters.
	if len(description) > 140 {
		description = description[:137] + "..."
	}

	status := &github.Status{
		State:       state,
		Description: description,
		Context:     github.StatusContext,
	}
	if err := o.reporter.UpdateCommitStatus(ctx, owner, repo, sha, status); err != nil {
		log.Error(err, "failed to update commit status", "sha", sha, "state", state)
	}
}

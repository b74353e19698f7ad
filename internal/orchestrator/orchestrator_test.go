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
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bootsync/bootsync/internal/argocd"
	"github.com/bootsync/bootsync/internal/config"
	"github.com/bootsync/bootsync/internal/github"
	"github.com/bootsync/bootsync/internal/gitrepo"
	"github.com/bootsync/bootsync/internal/render"
	"github.com/bootsync/bootsync/internal/syncdriver"
	"github.com/bootsync/bootsync/internal/verify"
)

type fakeRenderer struct {
	docs []render.Document
	err  error
}

func (f *fakeRenderer) RenderAll([]config.Unit) ([]render.Document, error) {
	return f.docs, f.err
}

type fakeRepo struct {
	commitCalls  int
	committed    bool
	publishErrs  []error
	publishCalls int
	refreshCalls int
	headSHA      string
}

func (f *fakeRepo) EnsureCommitted([]render.Document, string) (bool, error) {
	f.commitCalls++
	return f.committed, nil
}

func (f *fakeRepo) Publish(context.Context) error {
	f.publishCalls++
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		return err
	}
	return nil
}

func (f *fakeRepo) Refresh(context.Context) error {
	f.refreshCalls++
	return nil
}

func (f *fakeRepo) HeadSHA() (string, error) {
	return f.headSHA, nil
}

type fakeRegistry struct {
	upsertErrs  map[string][]error
	upserted    []string
	deleted     []string
	upsertCalls map[string]int
}

func (f *fakeRegistry) UpsertApplication(_ context.Context, _, _ string, unit config.Unit) (*argocd.Application, error) {
	if f.upsertCalls == nil {
		f.upsertCalls = make(map[string]int)
	}
	f.upsertCalls[unit.Name]++
	if errs := f.upsertErrs[unit.Name]; len(errs) > 0 {
		err := errs[0]
		f.upsertErrs[unit.Name] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.upserted = append(f.upserted, unit.Name)
	return &argocd.Application{}, nil
}

func (f *fakeRegistry) DeleteApplication(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

type fakeNamespaces struct {
	ensured []string
}

func (f *fakeNamespaces) EnsureNamespace(_ context.Context, name, _ string) error {
	f.ensured = append(f.ensured, name)
	return nil
}

// fakeDriver replays scripted per-unit attempt results.
type fakeDriver struct {
	results map[string][]*syncdriver.Result
	runs    []string
}

func (f *fakeDriver) Run(_ context.Context, appName, _ string) (*syncdriver.Result, error) {
	f.runs = append(f.runs, appName)
	scripted := f.results[appName]
	if len(scripted) == 0 {
		return nil, fmt.Errorf("no scripted result for %q", appName)
	}
	result := scripted[0]
	f.results[appName] = scripted[1:]
	return result, nil
}

type fakeVerifier struct {
	reports []verify.Report
	err     error
}

func (f *fakeVerifier) Verify(_ context.Context, namespaces []string) ([]verify.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.reports != nil {
		return f.reports, nil
	}
	out := make([]verify.Report, 0, len(namespaces))
	for _, ns := range namespaces {
		out = append(out, verify.Report{Namespace: ns})
	}
	return out, nil
}

type recordedStatus struct {
	sha   string
	state github.StatusState
}

type fakeReporter struct {
	statuses []recordedStatus
}

func (f *fakeReporter) UpdateCommitStatus(_ context.Context, _, _, sha string, status *github.Status) error {
	f.statuses = append(f.statuses, recordedStatus{sha: sha, state: status.State})
	return nil
}

func converged() *syncdriver.Result {
	return &syncdriver.Result{State: syncdriver.StateConverged, Polls: 2,
		LastSync: argocd.SyncStatusSynced, LastHealth: argocd.HealthStatusHealthy}
}

func timedOut() *syncdriver.Result {
	return &syncdriver.Result{State: syncdriver.StateTimedOut, Polls: 12,
		LastSync: argocd.SyncStatusSynced, LastHealth: argocd.HealthStatusProgressing,
		Diagnostics: "pod awx-web=Pending"}
}

var _ = Describe("Orchestrator", func() {
	var (
		cfg        *config.Config
		renderer   *fakeRenderer
		repo       *fakeRepo
		registry   *fakeRegistry
		namespaces *fakeNamespaces
		driver     *fakeDriver
		verifier   *fakeVerifier
		reporter   *fakeReporter
		ctx        context.Context
	)

	newOrchestrator := func() *Orchestrator {
		return New(cfg, renderer, repo, registry, namespaces, driver, verifier, reporter)
	}

	BeforeEach(func() {
		ctx = context.Background()
		cfg = &config.Config{
			RepoURL:          "https://example.com/state.git",
			Branch:           "main",
			MaxAttempts:      3,
			RetryDelay:       time.Millisecond,
			CommitStatusRepo: "acme/cluster-state",
			Units: []config.Unit{
				{Name: "tekton", SourcePath: "tekton", DestNamespace: "openshift-pipelines"},
				{Name: "awx", SourcePath: "awx", DestNamespace: "awx"},
			},
		}
		renderer = &fakeRenderer{docs: []render.Document{{Path: "applications/tekton.yaml", Data: []byte("x")}}}
		repo = &fakeRepo{committed: true, headSHA: "abc123"}
		registry = &fakeRegistry{}
		namespaces = &fakeNamespaces{}
		driver = &fakeDriver{results: map[string][]*syncdriver.Result{
			"tekton": {converged()},
			"awx":    {converged()},
		}}
		verifier = &fakeVerifier{}
		reporter = &fakeReporter{}
	})

	Context("when all units converge", func() {
		It("publishes state, drives every unit, and reports success", func() {
			report, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.HeadSHA).To(Equal("abc123"))
			Expect(report.Committed).To(BeTrue())
			Expect(report.Units).To(HaveLen(2))
			Expect(report.Units[0].Converged).To(BeTrue())
			Expect(report.Units[1].Converged).To(BeTrue())

			Expect(namespaces.ensured).To(Equal([]string{"openshift-pipelines", "awx"}))
			Expect(registry.upserted).To(Equal([]string{"tekton", "awx"}))
			Expect(driver.runs).To(Equal([]string{"tekton", "awx"}))

			Expect(reporter.statuses).To(HaveLen(2))
			Expect(reporter.statuses[0].state).To(Equal(github.StatusStatePending))
			Expect(reporter.statuses[1].state).To(Equal(github.StatusStateSuccess))
			Expect(reporter.statuses[1].sha).To(Equal("abc123"))
		})

		It("verifies every destination namespace", func() {
			report, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Verification).To(HaveLen(2))
			Expect(report.Verification[0].Namespace).To(Equal("openshift-pipelines"))
			Expect(report.Verification[1].Namespace).To(Equal("awx"))
		})
	})

	Context("when a unit needs more than one attempt", func() {
		It("retries up to the attempt budget and records each attempt", func() {
			driver.results["tekton"] = []*syncdriver.Result{timedOut(), converged()}

			report, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Units[0].Converged).To(BeTrue())
			Expect(report.Units[0].Attempts).To(HaveLen(2))
		})
	})

	Context("when a unit exhausts its attempts", func() {
		BeforeEach(func() {
			driver.results["tekton"] = []*syncdriver.Result{timedOut(), timedOut(), timedOut()}
		})

		It("fails fast with a SyncError and never drives later units", func() {
			report, err := newOrchestrator().Run(ctx)

			var syncErr *SyncError
			Expect(errors.As(err, &syncErr)).To(BeTrue())
			Expect(syncErr.Unit).To(Equal("tekton"))
			Expect(syncErr.Attempts).To(Equal(3))
			Expect(syncErr.State).To(Equal(syncdriver.StateTimedOut))
			Expect(syncErr.Diagnostics).To(ContainSubstring("awx-web=Pending"))

			Expect(driver.runs).To(Equal([]string{"tekton", "tekton", "tekton"}))
			Expect(report.Units).To(HaveLen(1))
			Expect(ExitCode(err)).To(Equal(ExitSync))
		})

		It("reports a failure commit status", func() {
			_, err := newOrchestrator().Run(ctx)
			Expect(err).To(HaveOccurred())
			last := reporter.statuses[len(reporter.statuses)-1]
			Expect(last.state).To(Equal(github.StatusStateFailure))
		})

		It("leaves applications in place when cleanup is disabled", func() {
			_, err := newOrchestrator().Run(ctx)
			Expect(err).To(HaveOccurred())
			Expect(registry.deleted).To(BeEmpty())
		})

		It("deletes all applications when cleanup on failure is enabled", func() {
			cfg.AutoCleanupOnFailure = true
			_, err := newOrchestrator().Run(ctx)
			Expect(err).To(HaveOccurred())
			Expect(registry.deleted).To(ConsistOf("tekton", "awx"))
		})
	})

	Context("when a later unit fails", func() {
		It("does not roll back units that already converged", func() {
			driver.results["awx"] = []*syncdriver.Result{timedOut(), timedOut(), timedOut()}

			report, err := newOrchestrator().Run(ctx)
			Expect(err).To(HaveOccurred())
			Expect(report.Units[0].Unit).To(Equal("tekton"))
			Expect(report.Units[0].Converged).To(BeTrue())
			Expect(registry.deleted).To(BeEmpty())
		})
	})

	Context("when the publish conflicts with a concurrent push", func() {
		It("refreshes, re-applies the documents, and publishes again", func() {
			repo.publishErrs = []error{gitrepo.ErrPublishConflict}

			_, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.refreshCalls).To(Equal(1))
			Expect(repo.commitCalls).To(Equal(2))
			Expect(repo.publishCalls).To(Equal(2))
		})

		It("aborts when the retry conflicts again", func() {
			repo.publishErrs = []error{gitrepo.ErrPublishConflict, gitrepo.ErrPublishConflict}

			_, err := newOrchestrator().Run(ctx)
			Expect(errors.Is(err, gitrepo.ErrPublishConflict)).To(BeTrue())
			Expect(ExitCode(err)).To(Equal(ExitPublishConflict))
			Expect(driver.runs).To(BeEmpty())
		})
	})

	Context("when registration keeps failing", func() {
		It("retries and then aborts with a RegistrationError", func() {
			apiDown := errors.New("connection refused")
			registry.upsertErrs = map[string][]error{
				"tekton": {apiDown, apiDown, apiDown},
			}

			_, err := newOrchestrator().Run(ctx)

			var regErr *RegistrationError
			Expect(errors.As(err, &regErr)).To(BeTrue())
			Expect(regErr.Unit).To(Equal("tekton"))
			Expect(registry.upsertCalls["tekton"]).To(Equal(3))
			Expect(ExitCode(err)).To(Equal(ExitRegistration))
		})
	})

	Context("when verification finds unexpected pods", func() {
		BeforeEach(func() {
			verifier.reports = []verify.Report{
				{Namespace: "openshift-pipelines"},
				{Namespace: "awx", UnexpectedState: true, Unexpected: []string{"rogue"}},
			}
		})

		It("warns without failing the run by default", func() {
			report, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Verification[1].Unexpected).To(ContainElement("rogue"))

			last := reporter.statuses[len(reporter.statuses)-1]
			Expect(last.state).To(Equal(github.StatusStateSuccess))
		})

		It("fails the run when unexpected pods are fatal", func() {
			cfg.UnexpectedPodsFatal = true

			_, err := newOrchestrator().Run(ctx)

			var warn *ConvergenceWarning
			Expect(errors.As(err, &warn)).To(BeTrue())
			Expect(warn.Namespaces).To(Equal([]string{"awx"}))
			Expect(ExitCode(err)).To(Equal(ExitConvergenceWarning))

			last := reporter.statuses[len(reporter.statuses)-1]
			Expect(last.state).To(Equal(github.StatusStateFailure))
		})
	})

	Context("when commit status reporting is disabled", func() {
		It("runs without touching the reporter", func() {
			cfg.CommitStatusRepo = ""

			_, err := newOrchestrator().Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(reporter.statuses).To(BeEmpty())
		})
	})
})

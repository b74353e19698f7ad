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

// Command bootsync runs one idempotent bootstrap pass: it renders the
// platform's desired state, publishes it to the state repository,
// registers each unit with the GitOps controller, and drives every unit
// to convergence. The exit code tells wrapping automation which failure
// class occurred.
package main

import (
	"context"
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bootsync/bootsync/internal/argocd"
	"github.com/bootsync/bootsync/internal/config"
	"github.com/bootsync/bootsync/internal/github"
	"github.com/bootsync/bootsync/internal/gitrepo"
	"github.com/bootsync/bootsync/internal/namespace"
	"github.com/bootsync/bootsync/internal/orchestrator"
	"github.com/bootsync/bootsync/internal/render"
	"github.com/bootsync/bootsync/internal/syncdriver"
	"github.com/bootsync/bootsync/internal/verify"
)

func main() {
	ctrl.SetLogger(zap.New(zap.UseDevMode(false)))

	err := run(ctrl.SetupSignalHandler())
	if err != nil {
		ctrl.Log.Error(err, "bootstrap run failed")
	}
	os.Exit(orchestrator.ExitCode(err))
}

func run(ctx context.Context) error {
	log := ctrl.Log.WithName("setup")

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return &orchestrator.DependencyError{Dependency: "kubeconfig", Err: err}
	}

	scheme := runtime.NewScheme()
	if err := corev1.AddToScheme(scheme); err != nil {
		return fmt.Errorf("failed to build scheme: %w", err)
	}
	if err := argocd.AddToScheme(scheme); err != nil {
		return fmt.Errorf("failed to build scheme: %w", err)
	}

	k8sClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return &orchestrator.DependencyError{Dependency: "cluster API", Err: err}
	}

	checkoutDir := cfg.CheckoutDir
	if checkoutDir == "" {
		checkoutDir, err = os.MkdirTemp("", "bootsync-state-")
		if err != nil {
			return fmt.Errorf("failed to create checkout directory: %w", err)
		}
		defer os.RemoveAll(checkoutDir)
	}

	log.Info("cloning state repository", "url", cfg.RepoURL, "branch", cfg.Branch, "dir", checkoutDir)
	repo, err := gitrepo.Clone(ctx, gitrepo.Options{
		URL:      cfg.RepoURL,
		Branch:   cfg.Branch,
		Dir:      checkoutDir,
		Username: cfg.GitUsername,
		Token:    cfg.GitToken,
	})
	if err != nil {
		return &orchestrator.DependencyError{Dependency: "state repository", Err: err}
	}

	allowlist := verify.DefaultAllowlist()
	if cfg.AllowlistFile != "" {
		if allowlist, err = verify.LoadAllowlist(cfg.AllowlistFile); err != nil {
			return &config.ConfigurationError{Variable: config.EnvAllowlistFile, Reason: err.Error()}
		}
	}

	var reporter github.Reporter
	if cfg.CommitStatusRepo != "" {
		if reporter, err = github.NewReporter(cfg.GitToken); err != nil {
			return fmt.Errorf("failed to create commit status reporter: %w", err)
		}
	}

	registry := argocd.NewRegistry(k8sClient, cfg.ArgocdNamespace, cfg.Project, cfg.DestServer)
	verifier := verify.NewVerifier(k8sClient, allowlist)
	driver := syncdriver.New(registry, syncdriver.Config{
		PollInterval: cfg.PollInterval,
		PollBudget:   cfg.PollBudget,
	}, verifier.Summarize)

	orch := orchestrator.New(cfg,
		render.NewRenderer(cfg),
		repo,
		registry,
		namespace.NewManager(k8sClient),
		driver,
		verifier,
		reporter,
	)

	report, err := orch.Run(ctx)
	if report != nil {
		for _, unit := range report.Units {
			log.Info("unit result", "unit", unit.Unit, "converged", unit.Converged, "attempts", len(unit.Attempts))
		}
	}
	return err
}

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

package argocd

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/bootsync/bootsync/internal/config"
)

const (
	managedByLabel = "bootsync"

	// UnitLabel marks an Application with the unit it was registered for
	UnitLabel = "bootsync.io/unit"
	// ManagedByLabel marks resources owned by a bootsync run
	ManagedByLabel = "bootsync.io/managed-by"

	// InClusterServer is the default in-cluster Kubernetes API server URL
	InClusterServer = "https://kubernetes.default.svc"
)

// StatusInfo is the observed sync and health state of an Application.
type StatusInfo struct {
	// Sync is the sync status ("Synced", "OutOfSync", "Unknown")
	Sync string
	// Health is the health status ("Healthy", "Degraded", "Progressing", "Missing", "Unknown")
	Health string
	// OperationPhase is the phase of the last requested operation, empty if none
	OperationPhase string
	// Message is an optional message with more details
	Message string
}

// BuildParams carries the source coordinates for BuildApplication.
type BuildParams struct {
	RepoURL        string
	TargetRevision string
	Namespace      string
	Project        string
	DestServer     string
}

// BuildApplication renders the declarative Application document for a unit.
// The output is deterministic: identical inputs yield an identical struct,
// which keeps the state repository's no-op commit behavior correct.
func BuildApplication(p BuildParams, unit config.Unit) *Application {
	syncOptions := []string{"ApplyOutOfSyncOnly=true"}
	if unit.Sync.CreateNamespace {
		syncOptions = append(syncOptions, "CreateNamespace=true")
	}

	return &Application{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "argoproj.io/v1alpha1",
			Kind:       "Application",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      unit.Name,
			Namespace: p.Namespace,
			Labels: map[string]string{
				UnitLabel:      unit.Name,
				ManagedByLabel: managedByLabel,
			},
		},
		Spec: ApplicationSpec{
			Source: &ApplicationSource{
				RepoURL:        p.RepoURL,
				Path:           unit.SourcePath,
				TargetRevision: p.TargetRevision,
			},
			Destination: ApplicationDestination{
				Server:    p.DestServer,
				Namespace: unit.DestNamespace,
			},
			Project: p.Project,
			SyncPolicy: &SyncPolicy{
				Automated: &SyncPolicyAutomated{
					Prune:    unit.Sync.Prune,
					SelfHeal: unit.Sync.SelfHeal,
				},
				SyncOptions: syncOptions,
				Retry: &RetryStrategy{
					Limit: 5,
					Backoff: &Backoff{
						Duration:    "5s",
						MaxDuration: "3m",
					},
				},
			},
		},
	}
}

// Registry registers desired-state sources with the GitOps controller and
// drives sync operations on the resulting Applications.
type Registry struct {
	client     client.Client
	namespace  string
	project    string
	destServer string
}

// NewRegistry creates a registry operating in the given ArgoCD namespace.
func NewRegistry(c client.Client, namespace, project, destServer string) *Registry {
	if destServer == "" {
		destServer = InClusterServer
	}
	return &Registry{
		client:     c,
		namespace:  namespace,
		project:    project,
		destServer: destServer,
	}
}

// UpsertApplication creates or updates the Application for a unit. Calling
// it again with an unchanged spec is a no-op; the existing Application is
// returned unchanged.
func (r *Registry) UpsertApplication(ctx context.Context, repoURL, targetRevision string, unit config.Unit) (*Application, error) {
	app := &Application{
		ObjectMeta: metav1.ObjectMeta{
			Name:      unit.Name,
			Namespace: r.namespace,
		},
	}

	_, err := controllerutil.CreateOrUpdate(ctx, r.client, app, func() error {
		desired := BuildApplication(BuildParams{
			RepoURL:        repoURL,
			TargetRevision: targetRevision,
			Namespace:      r.namespace,
			Project:        r.project,
			DestServer:     r.destServer,
		}, unit)

		app.Spec = desired.Spec

		if app.Labels == nil {
			app.Labels = make(map[string]string)
		}
		for k, v := range desired.Labels {
			app.Labels[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert Application for unit %q: %w", unit.Name, err)
	}
	return app, nil
}

// TriggerSync requests a sync operation on the named Application.
func (r *Registry) TriggerSync(ctx context.Context, name string, prune, force bool) error {
	app := &Application{}
	if err := r.client.Get(ctx, types.NamespacedName{Name: name, Namespace: r.namespace}, app); err != nil {
		return fmt.Errorf("failed to get Application %q: %w", name, err)
	}

	app.Operation = &Operation{
		Sync: &SyncOperation{
			Revision: app.Spec.Source.TargetRevision,
			Prune:    prune,
			SyncStrategy: &SyncStrategy{
				Apply: &SyncStrategyApply{Force: force},
			},
		},
	}
	if err := r.client.Update(ctx, app); err != nil {
		return fmt.Errorf("failed to trigger sync on Application %q: %w", name, err)
	}
	return nil
}

// TerminateOperation cancels any in-flight sync on the named Application.
// Applications with no pending operation are left untouched, so it is safe
// to call unconditionally before triggering a fresh sync.
func (r *Registry) TerminateOperation(ctx context.Context, name string) error {
	app := &Application{}
	if err := r.client.Get(ctx, types.NamespacedName{Name: name, Namespace: r.namespace}, app); err != nil {
		return fmt.Errorf("failed to get Application %q: %w", name, err)
	}

	inFlight := app.Operation != nil ||
		(app.Status.OperationState != nil && app.Status.OperationState.Phase == OperationRunning)
	if !inFlight {
		return nil
	}

	app.Operation = nil
	if app.Status.OperationState != nil {
		app.Status.OperationState.Phase = OperationTerminating
	}
	if err := r.client.Update(ctx, app); err != nil {
		return fmt.Errorf("failed to terminate operation on Application %q: %w", name, err)
	}
	return nil
}

// GetStatus retrieves the observed sync and health status of an Application.
func (r *Registry) GetStatus(ctx context.Context, name string) (*StatusInfo, error) {
	app := &Application{}
	if err := r.client.Get(ctx, types.NamespacedName{Name: name, Namespace: r.namespace}, app); err != nil {
		return nil, err
	}

	info := &StatusInfo{
		Sync:    app.Status.Sync.Status,
		Health:  app.Status.Health.Status,
		Message: app.Status.Health.Message,
	}
	if info.Sync == "" {
		info.Sync = SyncStatusUnknown
	}
	if info.Health == "" {
		info.Health = HealthStatusUnknown
	}
	if app.Status.OperationState != nil {
		info.OperationPhase = app.Status.OperationState.Phase
	}
	return info, nil
}

// DeleteApplication removes an Application by name.
// Returns nil if the Application doesn't exist (idempotent).
func (r *Registry) DeleteApplication(ctx context.Context, name string) error {
	app := &Application{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: r.namespace,
		},
	}

	err := r.client.Delete(ctx, app)
	if err != nil && !errors.IsNotFound(err) {
		return fmt.Errorf("failed to delete Application %s/%s: %w", r.namespace, name, err)
	}
	return nil
}

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

package syncdriver

import (
	"context"
	"fmt"
	"time"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bootsync/bootsync/internal/argocd"
)

// State is the driver's position in the per-unit state machine:
// Idle -> Syncing -> {Converged, Diverged, TimedOut}.
type State string

const (
	StateIdle      State = "Idle"
	StateSyncing   State = "Syncing"
	StateConverged State = "Converged"
	StateDiverged  State = "Diverged"
	StateTimedOut  State = "TimedOut"
)

// Registry is the slice of the application registry the driver needs.
type Registry interface {
	TriggerSync(ctx context.Context, name string, prune, force bool) error
	TerminateOperation(ctx context.Context, name string) error
	GetStatus(ctx context.Context, name string) (*argocd.StatusInfo, error)
}

// DiagnosticFunc captures a snapshot of the destination namespace (pod
// phases, recent events) for failure reporting. It must not block longer
// than one poll interval.
type DiagnosticFunc func(ctx context.Context, namespace string) string

// Config bounds a single sync attempt.
type Config struct {
	// PollInterval is the fixed delay between status polls
	PollInterval time.Duration
	// PollBudget is the maximum number of polls per attempt
	PollBudget int
}

// Result is the terminal outcome of one sync attempt.
type Result struct {
	State State
	// Polls is how many status polls the attempt used
	Polls int
	// LastSync and LastHealth are the final observed statuses
	LastSync   string
	LastHealth string
	// Diagnostics holds the one-shot namespace snapshot taken when the
	// application was synced but not yet healthy; empty otherwise
	Diagnostics string
}

// Driver forces a sync on a registered application and polls it to a
// terminal state within a bounded budget.
type Driver struct {
	registry Registry
	cfg      Config
	diagnose DiagnosticFunc
}

// New creates a driver. diagnose may be nil to skip diagnostic capture.
func New(registry Registry, cfg Config, diagnose DiagnosticFunc) *Driver {
	return &Driver{
		registry: registry,
		cfg:      cfg,
		diagnose: diagnose,
	}
}

// Run executes one sync attempt for the named application: terminate any
// stale in-flight operation, trigger a forced sync with prune, then poll
// until converged or the budget runs out. A sync the controller reports as
// failed is Diverged; budget exhaustion is TimedOut. Both are returned in
// the Result, not as errors — errors are reserved for mechanical failures
// talking to the registry.
func (d *Driver) Run(ctx context.Context, appName, destNamespace string) (*Result, error) {
	log := logf.FromContext(ctx).WithValues("application", appName)

	if err := d.registry.TerminateOperation(ctx, appName); err != nil {
		return nil, fmt.Errorf("failed to terminate stale operation on %q: %w", appName, err)
	}
	if err := d.registry.TriggerSync(ctx, appName, true, true); err != nil {
		return nil, fmt.Errorf("failed to trigger sync on %q: %w", appName, err)
	}

	result := &Result{State: StateSyncing}
	for poll := 1; poll <= d.cfg.PollBudget; poll++ {
		status, err := d.registry.GetStatus(ctx, appName)
		if err != nil {
			return nil, fmt.Errorf("failed to read status of %q: %w", appName, err)
		}
		result.Polls = poll
		result.LastSync = status.Sync
		result.LastHealth = status.Health

		log.V(1).Info("poll", "n", poll, "sync", status.Sync, "health", status.Health)

		if status.Sync == argocd.SyncStatusSynced && status.Health == argocd.HealthStatusHealthy {
			result.State = StateConverged
			return result, nil
		}

		if status.OperationPhase == argocd.OperationFailed || status.OperationPhase == argocd.OperationError {
			log.Info("sync operation reported failure", "phase", status.OperationPhase, "message", status.Message)
			result.State = StateDiverged
			return result, nil
		}

		// Synced but not healthy: capture one diagnostic snapshot for the
		// failure report, then keep polling within the same budget.
		if status.Sync == argocd.SyncStatusSynced && result.Diagnostics == "" && d.diagnose != nil {
			result.Diagnostics = d.diagnose(ctx, destNamespace)
		}

		if poll == d.cfg.PollBudget {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.cfg.PollInterval):
		}
	}

	result.State = StateTimedOut
	return result, nil
}

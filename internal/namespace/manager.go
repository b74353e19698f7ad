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

// Package namespace ensures the destination namespaces for units exist
// before their Applications are registered. Ensure is an explicit
// idempotent contract: already-exists is a non-error outcome.
package namespace

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/bootsync/bootsync/internal/argocd"
)

const managedByLabel = "bootsync"

// Manager handles destination-namespace lifecycle for units.
type Manager struct {
	client client.Client
}

// NewManager creates a new namespace manager.
func NewManager(c client.Client) *Manager {
	return &Manager{client: c}
}

// EnsureNamespace creates or updates the namespace a unit deploys into,
// labeling it with the owning unit. Safe to call repeatedly.
func (m *Manager) EnsureNamespace(ctx context.Context, name, unitName string) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}

	_, err := controllerutil.CreateOrUpdate(ctx, m.client, ns, func() error {
		if ns.Labels == nil {
			ns.Labels = make(map[string]string)
		}
		ns.Labels[argocd.UnitLabel] = unitName
		ns.Labels[argocd.ManagedByLabel] = managedByLabel
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure namespace %s: %w", name, err)
	}
	return nil
}

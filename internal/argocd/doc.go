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

// Package argocd registers desired-state sources with an ArgoCD instance
// and drives sync operations on the resulting Applications.
//
// # Overview
//
// The Registry exposes the four operations the sync driver depends on:
//
//   - UpsertApplication: create-or-update registration of an Application
//     pointing at a path in the state repository. Repeated calls with an
//     unchanged spec leave the cluster untouched.
//   - TriggerSync: force a sync operation (optionally with prune and a
//     forced apply) by setting the Application's operation field.
//   - TerminateOperation: cancel a stale in-flight sync before starting a
//     new one, so operations never overlap on the same Application.
//   - GetStatus: read the observed sync status, health status, and the
//     phase of the last requested operation.
//
// DeleteApplication tolerates missing Applications and is used by the
// failure-cleanup pass.
//
// # Types
//
// This package defines minimal ArgoCD types (Application plus the pieces
// of its spec, operation, and status the driver reads and writes) to
// avoid pulling in the full ArgoCD dependency tree, which has complex
// transitive dependencies. The types are compatible with the ArgoCD CRDs
// and are used both with the controller-runtime client and for rendering
// registration documents into the state repository.
package argocd

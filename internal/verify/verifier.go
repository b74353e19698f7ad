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

// Package verify inspects live cluster state after a sync and reports any
// residual pods that do not belong to the expected platform components.
package verify

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	yaml "gopkg.in/yaml.v3"
)

// Allowlist maps a namespace to the pod-name substrings expected there.
// The "*" key applies to every namespace.
type Allowlist map[string][]string

// DefaultAllowlist covers the catalog and marketplace pods an OpenShift
// cluster runs in the namespaces bootsync touches.
func DefaultAllowlist() Allowlist {
	return Allowlist{
		"openshift-marketplace": {
			"redhat-operators",
			"community-operators",
			"certified-operators",
			"redhat-marketplace",
			"marketplace-operator",
		},
		"openshift-pipelines": {
			"tekton-pipelines",
			"tekton-triggers",
			"tekton-operator",
			"pipelines-as-code",
		},
		"awx": {
			"awx-operator",
			"awx-",
		},
	}
}

// LoadAllowlist reads an Allowlist from a YAML file keyed by namespace.
func LoadAllowlist(path string) (Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist %s: %w", path, err)
	}
	var list Allowlist
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse allowlist %s: %w", path, err)
	}
	return list, nil
}

// Report is the per-namespace convergence summary.
type Report struct {
	Namespace    string
	PodCount     int
	RunningCount int
	// Unexpected lists non-terminal pods not matching the allow-list
	Unexpected []string
	// UnexpectedState is true when Unexpected is non-empty
	UnexpectedState bool
}

// Verifier enumerates live pods and classifies them against an allow-list.
type Verifier struct {
	client client.Client
	allow  Allowlist
}

// NewVerifier creates a verifier. A nil allowlist falls back to the
// built-in defaults.
func NewVerifier(c client.Client, allow Allowlist) *Verifier {
	if allow == nil {
		allow = DefaultAllowlist()
	}
	return &Verifier{client: c, allow: allow}
}

// Verify produces one report per namespace. Terminal pods (Succeeded or
// Failed) are ignored: completed install jobs are not residual state.
func (v *Verifier) Verify(ctx context.Context, namespaces []string) ([]Report, error) {
	reports := make([]Report, 0, len(namespaces))
	for _, ns := range namespaces {
		report, err := v.verifyNamespace(ctx, ns)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (v *Verifier) verifyNamespace(ctx context.Context, namespace string) (Report, error) {
	var pods corev1.PodList
	if err := v.client.List(ctx, &pods, client.InNamespace(namespace)); err != nil {
		return Report{}, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	report := Report{Namespace: namespace, PodCount: len(pods.Items)}
	for _, pod := range pods.Items {
		switch pod.Status.Phase {
		case corev1.PodSucceeded, corev1.PodFailed:
			continue
		case corev1.PodRunning:
			report.RunningCount++
		}
		if !v.expected(namespace, pod.Name) {
			report.Unexpected = append(report.Unexpected, pod.Name)
		}
	}
	sort.Strings(report.Unexpected)
	report.UnexpectedState = len(report.Unexpected) > 0
	return report, nil
}

func (v *Verifier) expected(namespace, podName string) bool {
	for _, substr := range v.allow[namespace] {
		if strings.Contains(podName, substr) {
			return true
		}
	}
	for _, substr := range v.allow["*"] {
		if strings.Contains(podName, substr) {
			return true
		}
	}
	return false
}

// Summarize renders a one-line pod-phase snapshot of a namespace, used as
// the sync driver's diagnostic capture.
func (v *Verifier) Summarize(ctx context.Context, namespace string) string {
	var pods corev1.PodList
	if err := v.client.List(ctx, &pods, client.InNamespace(namespace)); err != nil {
		return fmt.Sprintf("failed to list pods in %s: %v", namespace, err)
	}
	if len(pods.Items) == 0 {
		return fmt.Sprintf("no pods in %s", namespace)
	}

	parts := make([]string, 0, len(pods.Items))
	for _, pod := range pods.Items {
		parts = append(parts, fmt.Sprintf("%s=%s", pod.Name, pod.Status.Phase))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

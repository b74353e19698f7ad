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

// Package render produces the desired-state documents for each unit: the
// Application registration document, the operator Subscription and
// OperatorGroup, and any operator-owned custom resource. Rendering is a
// pure function of its inputs and byte-deterministic, so re-rendering an
// unchanged configuration yields no diff in the state repository.
package render

import (
	"fmt"
	"path"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/bootsync/bootsync/internal/argocd"
	"github.com/bootsync/bootsync/internal/config"
)

// ApplicationsDir is the state-repository directory holding the Application
// registration documents, one per unit.
const ApplicationsDir = "applications"

// Document is one rendered desired-state file, addressed relative to the
// state repository root.
type Document struct {
	Path string
	Data []byte
}

// Renderer turns units into state-repository documents.
type Renderer struct {
	repoURL         string
	targetRevision  string
	argocdNamespace string
	project         string
	destServer      string
}

// NewRenderer creates a renderer bound to one run's configuration.
func NewRenderer(cfg *config.Config) *Renderer {
	return &Renderer{
		repoURL:         cfg.RepoURL,
		targetRevision:  cfg.Branch,
		argocdNamespace: cfg.ArgocdNamespace,
		project:         cfg.Project,
		destServer:      cfg.DestServer,
	}
}

// RenderUnit produces all documents for a single unit. Units without an
// OLM channel get only the Application registration document.
func (r *Renderer) RenderUnit(unit config.Unit) ([]Document, error) {
	var docs []Document

	app := argocd.BuildApplication(argocd.BuildParams{
		RepoURL:        r.repoURL,
		TargetRevision: r.targetRevision,
		Namespace:      r.argocdNamespace,
		Project:        r.project,
		DestServer:     r.destServer,
	}, unit)
	data, err := yaml.Marshal(app)
	if err != nil {
		return nil, fmt.Errorf("failed to render Application for unit %q: %w", unit.Name, err)
	}
	docs = append(docs, Document{
		Path: path.Join(ApplicationsDir, unit.Name+".yaml"),
		Data: data,
	})

	if unit.Channel != "" {
		og, err := yaml.Marshal(buildOperatorGroup(unit))
		if err != nil {
			return nil, fmt.Errorf("failed to render OperatorGroup for unit %q: %w", unit.Name, err)
		}
		docs = append(docs, Document{
			Path: path.Join(unit.SourcePath, "operatorgroup.yaml"),
			Data: og,
		})

		sub, err := yaml.Marshal(buildSubscription(unit))
		if err != nil {
			return nil, fmt.Errorf("failed to render Subscription for unit %q: %w", unit.Name, err)
		}
		docs = append(docs, Document{
			Path: path.Join(unit.SourcePath, "subscription.yaml"),
			Data: sub,
		})
	}

	if unit.CustomResource != nil {
		cr, err := yaml.Marshal(buildCustomResource(unit))
		if err != nil {
			return nil, fmt.Errorf("failed to render custom resource for unit %q: %w", unit.Name, err)
		}
		docs = append(docs, Document{
			Path: path.Join(unit.SourcePath, unit.CustomResource.Name+"-instance.yaml"),
			Data: cr,
		})
	}

	return docs, nil
}

// RenderAll renders every unit. Unit names must be unique within the run.
func (r *Renderer) RenderAll(units []config.Unit) ([]Document, error) {
	seen := make(map[string]bool, len(units))
	var docs []Document
	for _, unit := range units {
		if seen[unit.Name] {
			return nil, fmt.Errorf("duplicate unit name %q", unit.Name)
		}
		seen[unit.Name] = true

		unitDocs, err := r.RenderUnit(unit)
		if err != nil {
			return nil, err
		}
		docs = append(docs, unitDocs...)
	}
	return docs, nil
}

func buildSubscription(unit config.Unit) *Subscription {
	operatorName := unit.OperatorName
	if operatorName == "" {
		operatorName = unit.Name
	}
	return &Subscription{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "operators.coreos.com/v1alpha1",
			Kind:       "Subscription",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      operatorName,
			Namespace: unit.DestNamespace,
			Labels: map[string]string{
				argocd.UnitLabel:      unit.Name,
				argocd.ManagedByLabel: "bootsync",
			},
		},
		Spec: SubscriptionSpec{
			Channel:             unit.Channel,
			Name:                operatorName,
			Source:              unit.CatalogSource,
			SourceNamespace:     "openshift-marketplace",
			InstallPlanApproval: "Automatic",
		},
	}
}

func buildOperatorGroup(unit config.Unit) *OperatorGroup {
	return &OperatorGroup{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "operators.coreos.com/v1",
			Kind:       "OperatorGroup",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      unit.Name,
			Namespace: unit.DestNamespace,
			Labels: map[string]string{
				argocd.UnitLabel:      unit.Name,
				argocd.ManagedByLabel: "bootsync",
			},
		},
		Spec: OperatorGroupSpec{
			TargetNamespaces: []string{unit.DestNamespace},
		},
	}
}

func buildCustomResource(unit config.Unit) *unstructured.Unstructured {
	cr := unit.CustomResource
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion(cr.APIVersion)
	obj.SetKind(cr.Kind)
	obj.SetName(cr.Name)
	obj.SetNamespace(unit.DestNamespace)
	obj.SetLabels(map[string]string{
		argocd.UnitLabel:      unit.Name,
		argocd.ManagedByLabel: "bootsync",
	})
	if cr.Spec != nil {
		obj.Object["spec"] = cr.Spec
	}
	return obj
}

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

package render

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Minimal OLM types for rendering. Only the fields the rendered documents
// carry are modeled; the operator-lifecycle-manager itself owns the rest.

// Subscription declares the intent to install an operator from a catalog.
type Subscription struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              SubscriptionSpec `json:"spec"`
}

// SubscriptionSpec selects the operator package, channel, and catalog.
type SubscriptionSpec struct {
	// Channel is the subscription channel, e.g. "stable"
	Channel string `json:"channel"`
	// Name is the operator package name
	Name string `json:"name"`
	// Source is the CatalogSource providing the package
	Source string `json:"source"`
	// SourceNamespace is the namespace of the CatalogSource
	SourceNamespace string `json:"sourceNamespace"`
	// InstallPlanApproval is "Automatic" or "Manual"
	InstallPlanApproval string `json:"installPlanApproval,omitempty"`
}

// OperatorGroup scopes an operator installation to a set of namespaces.
// Every OLM-installed unit needs exactly one in its destination namespace.
type OperatorGroup struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              OperatorGroupSpec `json:"spec"`
}

// OperatorGroupSpec lists the namespaces the operator watches.
type OperatorGroupSpec struct {
	TargetNamespaces []string `json:"targetNamespaces,omitempty"`
}

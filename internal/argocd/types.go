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

// Struct field order must match the ArgoCD API for JSON serialization
// compatibility.
//
//nolint:govet // fieldalignment warnings ignored - field order matches ArgoCD CRD API
package argocd

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupVersion is group version used to register these objects
var GroupVersion = schema.GroupVersion{Group: "argoproj.io", Version: "v1alpha1"}

// SchemeBuilder is used to add go types to the GroupVersionKind scheme
var SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)

// AddToScheme adds the types in this group-version to the given scheme.
var AddToScheme = SchemeBuilder.AddToScheme

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(GroupVersion,
		&Application{},
		&ApplicationList{},
	)
	metav1.AddToGroupVersion(scheme, GroupVersion)
	return nil
}

// Sync status values reported by the GitOps controller.
const (
	SyncStatusSynced    = "Synced"
	SyncStatusOutOfSync = "OutOfSync"
	SyncStatusUnknown   = "Unknown"
)

// Health status values reported by the GitOps controller.
const (
	HealthStatusHealthy     = "Healthy"
	HealthStatusDegraded    = "Degraded"
	HealthStatusProgressing = "Progressing"
	HealthStatusMissing     = "Missing"
	HealthStatusUnknown     = "Unknown"
)

// Operation phases reported for an in-flight or finished sync operation.
const (
	OperationRunning     = "Running"
	OperationTerminating = "Terminating"
	OperationSucceeded   = "Succeeded"
	OperationFailed      = "Failed"
	OperationError       = "Error"
)

// Application is a definition of an Application resource
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
type Application struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              ApplicationSpec   `json:"spec"`
	Operation         *Operation        `json:"operation,omitempty"`
	Status            ApplicationStatus `json:"status,omitempty"`
}

// DeepCopyObject returns a deep copy of the Application
func (in *Application) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(Application)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *Application) DeepCopyInto(out *Application) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	if in.Operation != nil {
		in, out := &in.Operation, &out.Operation
		*out = new(Operation)
		(*in).DeepCopyInto(*out)
	}
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy returns a deep copy of the Application
func (in *Application) DeepCopy() *Application {
	if in == nil {
		return nil
	}
	out := new(Application)
	in.DeepCopyInto(out)
	return out
}

// ApplicationList is a list of Application resources
// +kubebuilder:object:root=true
type ApplicationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Application `json:"items"`
}

// DeepCopyObject returns a deep copy of the ApplicationList
func (in *ApplicationList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(ApplicationList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *ApplicationList) DeepCopyInto(out *ApplicationList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		in, out := &in.Items, &out.Items
		*out = make([]Application, len(*in))
		for i := range *in {
			(*in)[i].DeepCopyInto(&(*out)[i])
		}
	}
}

// DeepCopy returns a deep copy of the ApplicationList
func (in *ApplicationList) DeepCopy() *ApplicationList {
	if in == nil {
		return nil
	}
	out := new(ApplicationList)
	in.DeepCopyInto(out)
	return out
}

// ApplicationSpec represents desired application state
type ApplicationSpec struct {
	// Source is a reference to the source of the application manifests
	Source *ApplicationSource `json:"source,omitempty"`
	// Destination is a reference to the target cluster and namespace
	Destination ApplicationDestination `json:"destination"`
	// Project is a reference to the project this application belongs to
	Project string `json:"project"`
	// SyncPolicy controls when and how a sync will be performed
	SyncPolicy *SyncPolicy `json:"syncPolicy,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *ApplicationSpec) DeepCopyInto(out *ApplicationSpec) {
	*out = *in
	if in.Source != nil {
		in, out := &in.Source, &out.Source
		*out = new(ApplicationSource)
		**out = **in
	}
	out.Destination = in.Destination
	if in.SyncPolicy != nil {
		in, out := &in.SyncPolicy, &out.SyncPolicy
		*out = new(SyncPolicy)
		(*in).DeepCopyInto(*out)
	}
}

// DeepCopy returns a deep copy of the ApplicationSpec
func (in *ApplicationSpec) DeepCopy() *ApplicationSpec {
	if in == nil {
		return nil
	}
	out := new(ApplicationSpec)
	in.DeepCopyInto(out)
	return out
}

// ApplicationSource contains information about the source of the application manifests
type ApplicationSource struct {
	// RepoURL is the URL to the repository
	RepoURL string `json:"repoURL"`
	// Path is the directory path within the repository
	Path string `json:"path,omitempty"`
	// TargetRevision is the revision to sync to
	TargetRevision string `json:"targetRevision,omitempty"`
}

// ApplicationDestination contains information about the target cluster and namespace
type ApplicationDestination struct {
	// Server is the Kubernetes API server URL
	Server string `json:"server,omitempty"`
	// Namespace is the target namespace
	Namespace string `json:"namespace,omitempty"`
	// Name is the cluster name
	Name string `json:"name,omitempty"`
}

// SyncPolicy controls when a sync will be performed
type SyncPolicy struct {
	// Automated will keep an application synced to the target revision
	Automated *SyncPolicyAutomated `json:"automated,omitempty"`
	// SyncOptions allow you to specify whole app sync-options
	SyncOptions []string `json:"syncOptions,omitempty"`
	// Retry controls failed sync retry behavior
	Retry *RetryStrategy `json:"retry,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *SyncPolicy) DeepCopyInto(out *SyncPolicy) {
	*out = *in
	if in.Automated != nil {
		in, out := &in.Automated, &out.Automated
		*out = new(SyncPolicyAutomated)
		**out = **in
	}
	if in.SyncOptions != nil {
		in, out := &in.SyncOptions, &out.SyncOptions
		*out = make([]string, len(*in))
		copy(*out, *in)
	}
	if in.Retry != nil {
		in, out := &in.Retry, &out.Retry
		*out = new(RetryStrategy)
		(*in).DeepCopyInto(*out)
	}
}

// DeepCopy returns a deep copy of the SyncPolicy
func (in *SyncPolicy) DeepCopy() *SyncPolicy {
	if in == nil {
		return nil
	}
	out := new(SyncPolicy)
	in.DeepCopyInto(out)
	return out
}

// SyncPolicyAutomated controls the behavior of an automated sync
type SyncPolicyAutomated struct {
	// Prune specifies whether to delete resources from the cluster that are not found in the sources anymore
	Prune bool `json:"prune,omitempty"`
	// SelfHeal specifies whether to revert resources back to their desired state upon modification
	SelfHeal bool `json:"selfHeal,omitempty"`
	// AllowEmpty allows apps to have zero live resources
	AllowEmpty bool `json:"allowEmpty,omitempty"`
}

// RetryStrategy controls the retry behavior
type RetryStrategy struct {
	// Limit is the maximum number of attempts for retrying a failed sync
	Limit int64 `json:"limit,omitempty"`
	// Backoff controls how to backoff on subsequent retries of failed syncs
	Backoff *Backoff `json:"backoff,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *RetryStrategy) DeepCopyInto(out *RetryStrategy) {
	*out = *in
	if in.Backoff != nil {
		in, out := &in.Backoff, &out.Backoff
		*out = new(Backoff)
		**out = **in
	}
}

// DeepCopy returns a deep copy of the RetryStrategy
func (in *RetryStrategy) DeepCopy() *RetryStrategy {
	if in == nil {
		return nil
	}
	out := new(RetryStrategy)
	in.DeepCopyInto(out)
	return out
}

// Backoff specifies backoff parameters
type Backoff struct {
	// Duration is the amount to back off
	Duration string `json:"duration,omitempty"`
	// MaxDuration is the maximum amount of time allowed for the backoff
	MaxDuration string `json:"maxDuration,omitempty"`
}

// Operation requests a reconciliation operation on an Application. Setting
// it is how a sync is forced; the controller clears it when the operation
// completes.
type Operation struct {
	// Sync describes the requested sync operation
	Sync *SyncOperation `json:"sync,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *Operation) DeepCopyInto(out *Operation) {
	*out = *in
	if in.Sync != nil {
		in, out := &in.Sync, &out.Sync
		*out = new(SyncOperation)
		(*in).DeepCopyInto(*out)
	}
}

// DeepCopy returns a deep copy of the Operation
func (in *Operation) DeepCopy() *Operation {
	if in == nil {
		return nil
	}
	out := new(Operation)
	in.DeepCopyInto(out)
	return out
}

// SyncOperation describes a requested sync
type SyncOperation struct {
	// Revision is the revision to sync to
	Revision string `json:"revision,omitempty"`
	// Prune removes resources no longer present in the source
	Prune bool `json:"prune,omitempty"`
	// SyncStrategy selects how the sync is applied
	SyncStrategy *SyncStrategy `json:"syncStrategy,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *SyncOperation) DeepCopyInto(out *SyncOperation) {
	*out = *in
	if in.SyncStrategy != nil {
		in, out := &in.SyncStrategy, &out.SyncStrategy
		*out = new(SyncStrategy)
		(*in).DeepCopyInto(*out)
	}
}

// SyncStrategy selects the strategy to apply the sync with
type SyncStrategy struct {
	// Apply uses kubectl-apply semantics
	Apply *SyncStrategyApply `json:"apply,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *SyncStrategy) DeepCopyInto(out *SyncStrategy) {
	*out = *in
	if in.Apply != nil {
		in, out := &in.Apply, &out.Apply
		*out = new(SyncStrategyApply)
		**out = **in
	}
}

// SyncStrategyApply holds options for the apply strategy
type SyncStrategyApply struct {
	// Force replaces resources on conflict
	Force bool `json:"force,omitempty"`
}

// ApplicationStatus contains status information for the application
type ApplicationStatus struct {
	// Health contains information about the health status
	Health HealthStatus `json:"health,omitempty"`
	// Sync contains information about the sync status
	Sync SyncStatus `json:"sync,omitempty"`
	// OperationState tracks the last requested operation
	OperationState *OperationState `json:"operationState,omitempty"`
}

// DeepCopyInto copies all properties of this object into another object of the same type
func (in *ApplicationStatus) DeepCopyInto(out *ApplicationStatus) {
	*out = *in
	out.Health = in.Health
	out.Sync = in.Sync
	if in.OperationState != nil {
		in, out := &in.OperationState, &out.OperationState
		*out = new(OperationState)
		**out = **in
	}
}

// DeepCopy returns a deep copy of the ApplicationStatus
func (in *ApplicationStatus) DeepCopy() *ApplicationStatus {
	if in == nil {
		return nil
	}
	out := new(ApplicationStatus)
	in.DeepCopyInto(out)
	return out
}

// HealthStatus contains information about the health state
type HealthStatus struct {
	// Status holds the status code
	Status string `json:"status,omitempty"`
	// Message is a human-readable informational message
	Message string `json:"message,omitempty"`
}

// SyncStatus contains information about the sync state
type SyncStatus struct {
	// Status is the sync state
	Status string `json:"status"`
	// Revision contains the revision the sync was performed against
	Revision string `json:"revision,omitempty"`
}

// OperationState contains information about the state of a requested operation
type OperationState struct {
	// Phase is the current phase of the operation
	Phase string `json:"phase,omitempty"`
	// Message holds any operation messages
	Message string `json:"message,omitempty"`
}

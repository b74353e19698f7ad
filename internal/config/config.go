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

// Package config loads and validates the bootsync run configuration from
// environment variables. All settings are carried in an explicit Config
// struct threaded through the components; nothing reads the environment
// after startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names recognized by FromEnv.
const (
	EnvGitUsername          = "GIT_USERNAME"
	EnvGitToken             = "GIT_TOKEN"
	EnvStateRepoURL         = "STATE_REPO_URL"
	EnvStateRepoBranch      = "STATE_REPO_BRANCH"
	EnvStateRepoDir         = "STATE_REPO_DIR"
	EnvArgocdNamespace      = "ARGOCD_NAMESPACE"
	EnvArgocdProject        = "ARGOCD_PROJECT"
	EnvDestServer           = "DEST_SERVER"
	EnvSyncPollInterval     = "SYNC_POLL_INTERVAL"
	EnvSyncPollBudget       = "SYNC_POLL_BUDGET"
	EnvSyncMaxAttempts      = "SYNC_MAX_ATTEMPTS"
	EnvSyncRetryDelay       = "SYNC_RETRY_DELAY"
	EnvUnexpectedPodsFatal  = "UNEXPECTED_PODS_FATAL"
	EnvAutoCleanupOnFailure = "AUTO_CLEANUP_ON_FAILURE"
	EnvAllowlistFile        = "ALLOWLIST_FILE"
	EnvCommitStatusRepo     = "COMMIT_STATUS_REPO"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultStateRepoURL    = "https://github.com/bootsync/platform-state.git"
	DefaultStateRepoBranch = "main"
	DefaultArgocdNamespace = "openshift-gitops"
	DefaultArgocdProject   = "default"
	DefaultDestServer      = "https://kubernetes.default.svc"

	DefaultPollInterval = 15 * time.Second
	DefaultPollBudget   = 12
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 10 * time.Second
)

// ConfigurationError reports a missing or malformed environment variable.
// It is fatal: the orchestrator must not touch the cluster or the state
// repository when configuration is incomplete.
type ConfigurationError struct {
	// Variable is the environment variable at fault
	Variable string
	// Reason describes what is wrong with the value; empty means unset
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("required environment variable %s is not set", e.Variable)
	}
	return fmt.Sprintf("invalid value for %s: %s", e.Variable, e.Reason)
}

// SyncOptions controls how a unit's Application is synced by the registry.
type SyncOptions struct {
	// Prune removes live resources that are no longer in the source
	Prune bool
	// SelfHeal reverts manual drift back to the declared state
	SelfHeal bool
	// CreateNamespace lets the sync create the destination namespace
	CreateNamespace bool
}

// CustomResource describes an instance of an operator-owned kind to render
// into the unit's directory, e.g. the AWX instance the AWX operator manages.
type CustomResource struct {
	APIVersion string
	Kind       string
	Name       string
	Spec       map[string]interface{}
}

// Unit is one logical deployment target tracked by the driver: a name,
// a path inside the state repository, and a destination namespace.
type Unit struct {
	// Name is unique within one run
	Name string
	// SourcePath is the unit's directory inside the state repository
	SourcePath string
	// DestNamespace is the namespace the unit's resources land in
	DestNamespace string
	// Sync options applied to the registered Application
	Sync SyncOptions
	// Channel is the OLM subscription channel; empty for units that do
	// not install an operator
	Channel string
	// CatalogSource is the OLM catalog the operator comes from
	CatalogSource string
	// OperatorName is the OLM package name; defaults to Name when empty
	OperatorName string
	// CustomResource optionally declares the operator-owned instance to
	// render alongside the subscription
	CustomResource *CustomResource
}

// Config carries everything one orchestration run needs.
type Config struct {
	GitUsername string
	GitToken    string

	RepoURL string
	Branch  string
	// CheckoutDir is where the state repository is cloned; a temporary
	// directory is used when empty
	CheckoutDir string

	ArgocdNamespace string
	Project         string
	DestServer      string

	PollInterval time.Duration
	PollBudget   int
	MaxAttempts  int
	RetryDelay   time.Duration

	UnexpectedPodsFatal  bool
	AutoCleanupOnFailure bool

	// AllowlistFile optionally points at a YAML file with per-namespace
	// expected-pod name substrings; built-in defaults apply when empty
	AllowlistFile string

	// CommitStatusRepo ("owner/repo") enables commit-status reporting on
	// the state repository's host; empty disables it
	CommitStatusRepo string

	Units []Unit
}

// DefaultUnits returns the platform units bootsync installs out of the
// box: the Tekton pipeline stack and AWX.
func DefaultUnits() []Unit {
	return []Unit{
		{
			Name:          "tekton",
			SourcePath:    "tekton",
			DestNamespace: "openshift-pipelines",
			Sync:          SyncOptions{Prune: true, SelfHeal: true, CreateNamespace: true},
			Channel:       "latest",
			CatalogSource: "redhat-operators",
			OperatorName:  "openshift-pipelines-operator-rh",
		},
		{
			Name:          "awx",
			SourcePath:    "awx",
			DestNamespace: "awx",
			Sync:          SyncOptions{Prune: true, SelfHeal: true, CreateNamespace: true},
			Channel:       "stable",
			CatalogSource: "community-operators",
			OperatorName:  "awx-operator",
			CustomResource: &CustomResource{
				APIVersion: "awx.ansible.com/v1beta1",
				Kind:       "AWX",
				Name:       "awx",
				Spec: map[string]interface{}{
					"service_type": "ClusterIP",
				},
			},
		},
	}
}

// FromEnv builds a Config from the process environment. Credentials are
// required; everything else has a default.
func FromEnv() (*Config, error) {
	cfg := &Config{
		GitUsername:     os.Getenv(EnvGitUsername),
		GitToken:        os.Getenv(EnvGitToken),
		RepoURL:         envOr(EnvStateRepoURL, DefaultStateRepoURL),
		Branch:          envOr(EnvStateRepoBranch, DefaultStateRepoBranch),
		CheckoutDir:     os.Getenv(EnvStateRepoDir),
		ArgocdNamespace: envOr(EnvArgocdNamespace, DefaultArgocdNamespace),
		Project:         envOr(EnvArgocdProject, DefaultArgocdProject),
		DestServer:      envOr(EnvDestServer, DefaultDestServer),
		AllowlistFile:   os.Getenv(EnvAllowlistFile),

		CommitStatusRepo: os.Getenv(EnvCommitStatusRepo),
		Units:            DefaultUnits(),
	}

	if cfg.GitUsername == "" {
		return nil, &ConfigurationError{Variable: EnvGitUsername}
	}
	if cfg.GitToken == "" {
		return nil, &ConfigurationError{Variable: EnvGitToken}
	}

	var err error
	if cfg.PollInterval, err = durationOr(EnvSyncPollInterval, DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.PollBudget, err = intOr(EnvSyncPollBudget, DefaultPollBudget); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = intOr(EnvSyncMaxAttempts, DefaultMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = durationOr(EnvSyncRetryDelay, DefaultRetryDelay); err != nil {
		return nil, err
	}
	if cfg.UnexpectedPodsFatal, err = boolOr(EnvUnexpectedPodsFatal, false); err != nil {
		return nil, err
	}
	if cfg.AutoCleanupOnFailure, err = boolOr(EnvAutoCleanupOnFailure, false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks run-level invariants: unit names must be unique and the
// retry/poll knobs must be positive.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Units))
	for _, u := range c.Units {
		if u.Name == "" {
			return &ConfigurationError{Variable: "units", Reason: "unit with empty name"}
		}
		if seen[u.Name] {
			return &ConfigurationError{Variable: "units", Reason: fmt.Sprintf("duplicate unit name %q", u.Name)}
		}
		seen[u.Name] = true
		if u.DestNamespace == "" {
			return &ConfigurationError{Variable: "units", Reason: fmt.Sprintf("unit %q has no destination namespace", u.Name)}
		}
	}
	if c.PollInterval <= 0 {
		return &ConfigurationError{Variable: EnvSyncPollInterval, Reason: "must be positive"}
	}
	if c.PollBudget <= 0 {
		return &ConfigurationError{Variable: EnvSyncPollBudget, Reason: "must be positive"}
	}
	if c.MaxAttempts <= 0 {
		return &ConfigurationError{Variable: EnvSyncMaxAttempts, Reason: "must be positive"}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &ConfigurationError{Variable: key, Reason: err.Error()}
	}
	return d, nil
}

func intOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigurationError{Variable: key, Reason: err.Error()}
	}
	return n, nil
}

func boolOr(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &ConfigurationError{Variable: key, Reason: err.Error()}
	}
	return b, nil
}

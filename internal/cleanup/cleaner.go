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

package cleanup

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bootsync/bootsync/internal/config"
)

// Registry is the subset of Application operations cleanup needs.
type Registry interface {
	DeleteApplication(ctx context.Context, name string) error
}

// Cleaner removes the Applications a failed run registered so the next
// run starts from a blank slate.
type Cleaner struct {
	registry Registry
}

// NewCleaner creates a cleaner backed by the given registry.
func NewCleaner(registry Registry) *Cleaner {
	return &Cleaner{registry: registry}
}

// RemoveAll deletes the Applications for every unit, best effort. A
// deletion failure is logged and does not stop the remaining deletions;
// the first error encountered is returned after all units are attempted.
func (c *Cleaner) RemoveAll(ctx context.Context, units []config.Unit) error {
	logger := log.FromContext(ctx)

	var firstErr error
	for _, unit := range units {
		if err := c.registry.DeleteApplication(ctx, unit.Name); err != nil {
			logger.Error(err, "failed to delete application during cleanup", "unit", unit.Name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Info("deleted application during cleanup", "unit", unit.Name)
	}
	return firstErr
}

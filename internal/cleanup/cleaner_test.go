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
	"errors"
	"reflect"
	"testing"

	"github.com/bootsync/bootsync/internal/config"
)

type recordingRegistry struct {
	deleted []string
	failOn  map[string]error
}

func (r *recordingRegistry) DeleteApplication(_ context.Context, name string) error {
	if err, ok := r.failOn[name]; ok {
		return err
	}
	r.deleted = append(r.deleted, name)
	return nil
}

func TestRemoveAll_DeletesEveryUnit(t *testing.T) {
	registry := &recordingRegistry{}
	cleaner := NewCleaner(registry)

	units := []config.Unit{{Name: "tekton"}, {Name: "awx"}}
	if err := cleaner.RemoveAll(context.Background(), units); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if !reflect.DeepEqual(registry.deleted, []string{"tekton", "awx"}) {
		t.Errorf("deleted = %v, want [tekton awx]", registry.deleted)
	}
}

func TestRemoveAll_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("api server unavailable")
	registry := &recordingRegistry{failOn: map[string]error{"tekton": boom}}
	cleaner := NewCleaner(registry)

	units := []config.Unit{{Name: "tekton"}, {Name: "awx"}}
	err := cleaner.RemoveAll(context.Background(), units)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the first deletion failure", err)
	}
	if !reflect.DeepEqual(registry.deleted, []string{"awx"}) {
		t.Errorf("deleted = %v, want [awx] despite tekton failure", registry.deleted)
	}
}

func TestRemoveAll_NoUnits(t *testing.T) {
	cleaner := NewCleaner(&recordingRegistry{})
	if err := cleaner.RemoveAll(context.Background(), nil); err != nil {
		t.Fatalf("RemoveAll with no units: %v", err)
	}
}

// Copyright 2025 Google LLC
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

package ordered_test

import (
	"testing"

	"github.com/loom-org/loom/base/ordered"
)

type entry struct {
	k string
	v int
}

func TestMap(t *testing.T) {
	tests := []struct {
		entries []entry
		want    []entry
	}{
		{
			entries: []entry{
				{k: "a", v: 1},
				{k: "b", v: 2},
				{k: "c", v: 3},
			},
			want: []entry{
				{k: "a", v: 1},
				{k: "b", v: 2},
				{k: "c", v: 3},
			},
		},
		{
			entries: []entry{
				{k: "b", v: 1},
				{k: "a", v: 2},
				{k: "b", v: 3},
			},
			want: []entry{
				{k: "b", v: 3},
				{k: "a", v: 2},
			},
		},
	}
	for ti, test := range tests {
		m := ordered.NewMap[string, int]()
		for _, entry := range test.entries {
			m.Store(entry.k, entry.v)
		}
		if m.Size() != len(test.want) {
			t.Errorf("test %d: map has %d entries but want %d", ti, m.Size(), len(test.want))
			continue
		}
		i := 0
		m.Keys()(func(k string) bool {
			v, ok := m.Load(k)
			if !ok {
				t.Errorf("test %d: key %q not stored", ti, k)
				return true
			}
			if k != test.want[i].k || v != test.want[i].v {
				t.Errorf("test %d: entry %d = (%q, %d), want (%q, %d)", ti, i, k, v, test.want[i].k, test.want[i].v)
			}
			i++
			return true
		})
	}
}

func TestMapValues(t *testing.T) {
	m := ordered.NewMap[string, int]()
	m.Store("x", 1)
	m.Store("y", 2)
	var got []int
	m.Values()(func(v int) bool {
		got = append(got, v)
		return true
	})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Values() = %v, want [1 2]", got)
	}
}

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

package flow_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/loom-org/loom/dtype"
	"github.com/loom-org/loom/flow"
)

func TestStride(t *testing.T) {
	g := flow.NewGraph()
	m := g.Var("m", dtype.Float32, 4, 8)
	if got := m.Stride(0); got != 32 {
		t.Errorf("Stride(0) = %d, want 32", got)
	}
	if got := m.Stride(1); got != 4 {
		t.Errorf("Stride(1) = %d, want 4", got)
	}
	if got := m.Size(); got != 128 {
		t.Errorf("Size() = %d, want 128", got)
	}
}

func TestGraphWiring(t *testing.T) {
	g := flow.NewGraph()
	x := g.Var("x", dtype.Float32, 2)
	y := g.Var("y", dtype.Float32, 2)
	step := g.NewStep("Noop", []*flow.Tensor{x}, []*flow.Tensor{y})

	if len(x.Consumers()) != 1 || x.Consumers()[0] != step {
		t.Errorf("x.Consumers() = %v, want the step", x.Consumers())
	}
	if y.Producer() != step {
		t.Errorf("y.Producer() = %v, want the step", y.Producer())
	}
	if step.Indegree() != 1 || step.Outdegree() != 1 {
		t.Errorf("degree = (%d, %d), want (1, 1)", step.Indegree(), step.Outdegree())
	}
}

func TestInt32Value(t *testing.T) {
	g := flow.NewGraph()
	axis := g.Int32Const("axis", 1)
	v, ok := axis.Int32Value()
	if !ok || v != 1 {
		t.Errorf("Int32Value() = (%d, %t), want (1, true)", v, ok)
	}
	vec := g.Int32Const("vec", 1, 2)
	if _, ok := vec.Int32Value(); ok {
		t.Error("Int32Value() on a vector constant is defined")
	}
	va := g.Var("var", dtype.Int32, 1)
	if _, ok := va.Int32Value(); ok {
		t.Error("Int32Value() on a variable is defined")
	}
}

func TestFloat32ConstShapeMismatch(t *testing.T) {
	g := flow.NewGraph()
	if _, err := g.Float32Const("m", []float32{1, 2, 3}, 2, 2); err == nil {
		t.Error("Float32Const accepted a shape mismatch")
	}
}

func TestOrderConflict(t *testing.T) {
	g := flow.NewGraph()
	m := g.Var("m", dtype.Float32, 2, 2)
	m.SetRequiredOrder(flow.RowMajor)
	m.SetRequiredOrder(flow.RowMajor)
	m.SetRequiredOrder(flow.AnyOrder)
	defer func() {
		if recover() == nil {
			t.Error("conflicting order requirement did not panic")
		}
	}()
	m.SetRequiredOrder(flow.ColumnMajor)
}

func TestSetTypeAndShape(t *testing.T) {
	g := flow.NewGraph()
	s := g.Var("state", dtype.Invalid)
	s.SetType(dtype.Int32)
	s.SetShape()
	if s.Type() != dtype.Int32 || s.Rank() != 0 || s.Elements() != 1 {
		t.Errorf("tensor = %s, want a scalar int32", s)
	}
}

func TestInstanceAccessors(t *testing.T) {
	g := flow.NewGraph()
	x := g.Var("x", dtype.Float32, 1, 4)
	c, err := g.Float32Const("c", []float32{1, 2}, 2)
	if err != nil {
		t.Fatal(err)
	}
	lib := flow.NewLibrary()
	lib.Register(&fakeKernel{name: "Noop", op: "Noop", ok: true})
	g.NewStep("Noop", []*flow.Tensor{x, c}, nil)

	cell, err := flow.Compile(g, lib)
	if err != nil {
		t.Fatal(err)
	}
	inst := cell.NewInstance()

	if err := inst.SetFloat32s(x, 1, 2, 3, 4); err != nil {
		t.Fatal(err)
	}
	got, err := inst.Float32s(x)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{1, 2, 3, 4}, got); diff != "" {
		t.Errorf("Float32s mismatch (-want +got):\n%s", diff)
	}

	// Constants are materialized and write protected.
	cv, err := inst.Float32s(c)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{1, 2}, cv); diff != "" {
		t.Errorf("constant mismatch (-want +got):\n%s", diff)
	}
	if err := inst.SetFloat32s(c, 3, 4); err == nil {
		t.Error("writing a constant tensor succeeded")
	}

	if _, err := inst.Int32s(x); err == nil {
		t.Error("reading a float32 tensor as int32 succeeded")
	}
	if err := inst.SetFloat32s(x, 1); err == nil {
		t.Error("writing the wrong element count succeeded")
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	g := flow.NewGraph()
	x := g.Var("x", dtype.Int32, 2)
	lib := flow.NewLibrary()
	lib.Register(&fakeKernel{name: "Noop", op: "Noop", ok: true})
	g.NewStep("Noop", []*flow.Tensor{x}, nil)

	cell, err := flow.Compile(g, lib)
	if err != nil {
		t.Fatal(err)
	}
	a := cell.NewInstance()
	b := cell.NewInstance()
	if err := a.SetInt32s(x, 7, 8); err != nil {
		t.Fatal(err)
	}
	got, err := b.Int32s(x)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int32{0, 0}, got); diff != "" {
		t.Errorf("second instance saw writes of the first (-want +got):\n%s", diff)
	}
}

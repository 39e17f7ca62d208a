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

// Package flow describes tensor graphs and compiles them to machine
// code.
//
// A Graph holds tensors and the steps operating on them. Kernels
// registered in a Library implement steps; Compile selects a kernel
// for every step, lets it adjust tensor layout, lays out the memory
// arena, and generates one program for the whole graph. The compiled
// Cell then creates Instances, each owning an independent arena, to
// run the program against.
package flow

import (
	"strings"

	"github.com/loom-org/loom/dtype"
	"github.com/pkg/errors"
)

// Graph is a tensor computation graph under construction.
type Graph struct {
	tensors []*Tensor
	steps   []*Step
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

func (g *Graph) newTensor(name string, dt dtype.DataType, dims []int) *Tensor {
	t := &Tensor{name: name, typ: dt, dims: dims, offset: -1}
	g.tensors = append(g.tensors, t)
	return t
}

// Var adds a tensor whose value is provided at run time. A tensor
// built with dtype.Invalid gets its type from inference at compile
// time.
func (g *Graph) Var(name string, dt dtype.DataType, dims ...int) *Tensor {
	return g.newTensor(name, dt, dims)
}

// Int32Const adds a constant int32 vector tensor. A single value
// yields a tensor of one element, usable wherever a scalar constant
// is expected.
func (g *Graph) Int32Const(name string, values ...int32) *Tensor {
	t := g.newTensor(name, dtype.Int32, []int{len(values)})
	t.data = append([]byte(nil), dtype.ToBytes(values)...)
	return t
}

// Float32Const adds a constant float32 tensor with the given shape.
func (g *Graph) Float32Const(name string, values []float32, dims ...int) (*Tensor, error) {
	t := g.newTensor(name, dtype.Float32, dims)
	if len(values) != t.Elements() {
		return nil, errors.Errorf("constant %s: shape %v requires %d elements, got %d", name, dims, t.Elements(), len(values))
	}
	t.data = append([]byte(nil), dtype.ToBytes(values)...)
	return t, nil
}

// NewStep adds a step applying an operation to input tensors and
// producing output tensors. Input and output order is significant.
func (g *Graph) NewStep(op string, inputs, outputs []*Tensor) *Step {
	s := &Step{op: op, inputs: inputs, outputs: outputs}
	for _, in := range inputs {
		in.consumers = append(in.consumers, s)
	}
	for _, out := range outputs {
		out.producer = s
	}
	g.steps = append(g.steps, s)
	return s
}

// Steps returns the steps of the graph in creation order.
func (g *Graph) Steps() []*Step {
	return g.steps
}

// Tensors returns the tensors of the graph in creation order.
func (g *Graph) Tensors() []*Tensor {
	return g.tensors
}

// Step is one node of a tensor graph: an operation bound to its input
// and output tensors and, once selected, to the kernel compiling it.
type Step struct {
	op      string
	inputs  []*Tensor
	outputs []*Tensor
	kernel  Kernel
}

// Op returns the operation name of the step.
func (s *Step) Op() string {
	return s.op
}

// Indegree returns the number of inputs.
func (s *Step) Indegree() int {
	return len(s.inputs)
}

// Outdegree returns the number of outputs.
func (s *Step) Outdegree() int {
	return len(s.outputs)
}

// Input returns the i-th input tensor.
func (s *Step) Input(i int) *Tensor {
	return s.inputs[i]
}

// Output returns the i-th output tensor.
func (s *Step) Output(i int) *Tensor {
	return s.outputs[i]
}

// Kernel returns the kernel selected for the step, or nil before
// selection.
func (s *Step) Kernel() Kernel {
	return s.kernel
}

// AllowInPlace lets an output tensor share storage with an input
// tensor. It reports whether sharing was established; a constant
// output or an output already sharing other storage cannot alias.
func (s *Step) AllowInPlace(in, out int) bool {
	x, y := s.inputs[in], s.outputs[out]
	if y.IsConst() {
		return false
	}
	if y.shared != nil && y.shared != x {
		return false
	}
	y.shared = x
	return true
}

// String returns the step signature for diagnostics.
func (s *Step) String() string {
	var b strings.Builder
	b.WriteString(s.op)
	b.WriteString("(")
	for i, in := range s.inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(in.String())
	}
	b.WriteString(") -> (")
	for i, out := range s.outputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(out.String())
	}
	b.WriteString(")")
	return b.String()
}

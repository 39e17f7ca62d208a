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

package feature

import (
	"math"

	"github.com/loom-org/loom/asm"
	"github.com/loom-org/loom/dtype"
	"github.com/loom-org/loom/flow"
)

// collect copies, for each of N feature slots, the embedding row
// selected by the slot's feature id into the leading columns of the
// corresponding output row. The output has one extra trailing column
// per row: the out-of-vocabulary indicator, set to 1.0 when the id is
// -1. An id below -1 leaves its output row entirely untouched; the
// surrounding runtime pre-zeroes the output, and such ids occur only
// as padding whose rows are never read.
type collect struct{}

func (collect) Name() string      { return "FeatureCollect" }
func (collect) Operation() string { return OpCollect }

func (collect) Supports(step *flow.Step) bool {
	if step.Indegree() != 2 || step.Outdegree() != 1 {
		return false
	}

	f := step.Input(0)
	m := step.Input(1)
	r := step.Output(0)
	if f.Type() != dtype.Int32 || f.Rank() != 2 {
		return false
	}
	if m.Type() != dtype.Float32 || m.Rank() != 2 {
		return false
	}
	if r.Type() != dtype.Float32 || r.Rank() != 2 {
		return false
	}

	if f.Dim(0) != 1 || f.Dim(1) != r.Dim(0) {
		return false
	}
	if r.Dim(1) != m.Dim(1)+1 {
		return false
	}

	return true
}

func (collect) Adjust(step *flow.Step) {
	step.Input(1).SetRequiredOrder(flow.RowMajor)
	step.Output(0).SetRequiredOrder(flow.RowMajor)
}

func (collect) Generate(step *flow.Step, e *asm.Emitter) {
	defer e.Scope()()

	f := step.Input(0)
	m := step.Input(1)
	r := step.Output(0)

	// Size of one embedding row and number of feature slots.
	dims := m.Dim(1)
	numFeatures := f.Dim(1)

	acc := e.AllocReg()
	input := e.AllocReg()
	activations := e.AllocReg()
	output := e.AllocReg()
	index := e.AllocReg()
	one := e.AllocReg()

	loop := e.NewLabel()
	oov := e.NewLabel()
	next := e.NewLabel()

	e.LoadAddress(input, f)
	e.LoadAddress(activations, m)
	e.LoadAddress(output, r)

	// Loop over the feature slots.
	if numFeatures != 1 {
		e.Zero(index)
		e.Bind(loop)
	}

	// Next feature id.
	if numFeatures == 1 {
		e.LoadInt32(acc, input, 0)
	} else {
		e.LoadInt32Index(acc, input, index)
	}

	// Copy the embedding row for an in-vocabulary id.
	e.JumpLtZero(acc, oov)
	e.MulImm(acc, int64(m.Stride(0)))
	e.Add(acc, activations)
	e.Copy(output, 0, acc, 0, dims*dtype.Float32.Size())
	e.Jump(next)

	// Set the indicator to 1.0 when the id is -1. Ids below -1 write
	// nothing at all.
	e.Bind(oov)
	e.JumpNeImm(acc, -1, next)
	e.MoveImm(one, int64(math.Float32bits(1)))
	e.StoreInt32(output, dims*dtype.Float32.Size(), one)

	// Next slot.
	e.Bind(next)
	if numFeatures != 1 {
		e.AddImm(output, int64(r.Stride(0)))
		e.Inc(index)
		e.JumpNeImm(index, int64(numFeatures), loop)
	}
}

func (collect) Complexity(step *flow.Step) int {
	return 0
}

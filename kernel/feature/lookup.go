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
	"fmt"

	"github.com/loom-org/loom/asm"
	"github.com/loom-org/loom/dtype"
	"github.com/loom-org/loom/flow"
)

// supportsLookup checks the tensor signature shared by the lookup
// kernels: an int32 feature vector shaped [1,N], a rank 2 float32
// embedding matrix, and a float32 output shaped [1,D] with D the
// matrix width.
func supportsLookup(step *flow.Step) bool {
	if step.Indegree() != 2 || step.Outdegree() != 1 {
		return false
	}

	f := step.Input(0)
	m := step.Input(1)
	v := step.Output(0)
	if f.Type() != dtype.Int32 || f.Rank() != 2 || f.Dim(0) != 1 {
		return false
	}
	if m.Type() != dtype.Float32 || m.Rank() != 2 {
		return false
	}
	if v.Type() != dtype.Float32 || v.Rank() != 2 {
		return false
	}
	if v.Dim(0) != 1 || v.Dim(1) != m.Dim(1) {
		return false
	}

	return true
}

// lookup sums the embedding rows selected by N feature ids into one
// output vector, one scalar addition at a time. Id -1 selects the
// trailing out-of-vocabulary row; ids below -1 contribute nothing.
// The output is pre-zeroed by the surrounding runtime; rows are
// summed in ascending feature order.
type lookup struct{}

func (lookup) Name() string      { return "FeatureLookup" }
func (lookup) Operation() string { return OpLookup }

func (lookup) Supports(step *flow.Step) bool {
	return supportsLookup(step)
}

func (lookup) Adjust(step *flow.Step) {
	// The embedding matrix must be row-major.
	step.Input(1).SetRequiredOrder(flow.RowMajor)
}

func (lookup) Generate(step *flow.Step, e *asm.Emitter) {
	defer e.Scope()()

	f := step.Input(0)
	m := step.Input(1)
	v := step.Output(0)

	// The last row of the matrix is the out-of-vocabulary row.
	oovRow := m.Dim(0) - 1
	dims := v.Dim(1)
	numFeatures := f.Dim(1)

	acc := e.AllocReg()
	input := e.AllocReg()
	embeddings := e.AllocReg()
	output := e.AllocReg()
	col := e.AllocReg()
	row := e.AllocReg()
	oov := e.AllocReg()
	elem := e.AllocVReg()

	loop := e.NewLabel()
	addRow := e.NewLabel()
	addElem := e.NewLabel()
	next := e.NewLabel()

	e.LoadAddress(input, f)
	e.LoadAddress(embeddings, m)
	e.LoadAddress(output, v)

	// Loop over the input features.
	e.MoveImm(oov, int64(oovRow))
	e.Zero(col)
	e.Bind(loop)

	// Next feature id.
	e.LoadInt32Index(acc, input, col)

	// Use the out-of-vocabulary row for id -1; skip any other
	// negative id.
	e.JumpGeZero(acc, addRow)
	e.JumpNeImm(acc, -1, next)
	e.Move(acc, oov)

	// Address of the selected embedding row.
	e.Bind(addRow)
	e.MulImm(acc, int64(m.Stride(0)))
	e.Add(acc, embeddings)

	// Add the row to the output.
	e.Zero(row)
	e.Bind(addElem)
	e.LoadF32(elem, output, row)
	e.AddF32(elem, acc, row)
	e.StoreF32(output, row, elem)
	e.Inc(row)
	e.JumpNeImm(row, int64(dims), addElem)

	// Next feature.
	e.Bind(next)
	e.Inc(col)
	e.JumpNeImm(col, int64(numFeatures), loop)
}

func (lookup) Complexity(step *flow.Step) int {
	return step.Input(0).Elements() * step.Output(0).Elements()
}

// lookupSingle compiles a lookup of exactly one feature id into an
// alias: the output becomes a reference pointing at the selected row
// inside the embedding matrix, with no copy at all. Any negative id
// selects the out-of-vocabulary row, through a conditional move
// rather than a branch.
type lookupSingle struct{}

func (lookupSingle) Name() string      { return "FeatureLookupSingle" }
func (lookupSingle) Operation() string { return OpLookup }

func (lookupSingle) Supports(step *flow.Step) bool {
	return supportsLookup(step) && step.Input(0).Elements() == 1
}

func (lookupSingle) Adjust(step *flow.Step) {
	// The output references a row of the embedding matrix. The matrix
	// remains the owner of the storage.
	step.Output(0).SetRef(true)
	step.Output(0).SetLink(step.Input(1))

	step.Input(1).SetRequiredOrder(flow.RowMajor)
}

func (lookupSingle) Generate(step *flow.Step, e *asm.Emitter) {
	defer e.Scope()()

	f := step.Input(0)
	m := step.Input(1)
	v := step.Output(0)

	oovRow := m.Dim(0) - 1

	// The feature tensor must hold its value directly.
	if f.Ref() {
		panic(fmt.Sprintf("feature: %s: reference feature tensor %s", step, f.Name()))
	}

	acc := e.AllocReg()
	oov := e.AllocReg()
	embeddings := e.AllocReg()

	// Feature id.
	e.LoadAddress(acc, f)
	e.LoadInt32(acc, acc, 0)

	// Use the out-of-vocabulary row for a negative id.
	e.MoveImm(oov, int64(oovRow))
	e.MoveIfNegative(acc, oov)

	// Address of the selected row.
	e.MulImm(acc, int64(m.Stride(0)))
	e.LoadAddress(embeddings, m)
	e.Add(acc, embeddings)

	// Save the reference to the row.
	e.StoreAddress(v, acc)
}

func (lookupSingle) Complexity(step *flow.Step) int {
	return 0
}

// Unrolling parameters: rows are summed one vector block at a time,
// with one accumulator register per block of the output.
const (
	blockSize       = asm.VectorLanes
	maxEmbeddingDim = blockSize * 16
)

// lookupUnrolled sums embedding rows with vector instructions. It
// applies when the machine supports them and the embedding dimension
// divides into at most sixteen vector blocks. Feature order and
// sentinel handling match the scalar lookup kernel exactly, so both
// produce bit-identical results.
type lookupUnrolled struct{}

func (lookupUnrolled) Name() string      { return "FeatureLookupUnrolled" }
func (lookupUnrolled) Operation() string { return OpLookup }

func (lookupUnrolled) Supports(step *flow.Step) bool {
	if !asm.Enabled(asm.Vec256) {
		return false
	}
	if !supportsLookup(step) {
		return false
	}

	dims := step.Input(1).Dim(1)
	if dims > maxEmbeddingDim {
		return false
	}
	if dims%blockSize != 0 {
		return false
	}

	return true
}

func (lookupUnrolled) Adjust(step *flow.Step) {
	// The vector load and store path requires aligned access to the
	// matrix rows and the output.
	align := blockSize * dtype.Float32.Size()
	step.Input(1).SetMinimumAlignment(align)
	step.Output(0).SetMinimumAlignment(align)

	step.Input(1).SetRequiredOrder(flow.RowMajor)
}

func (lookupUnrolled) Generate(step *flow.Step, e *asm.Emitter) {
	defer e.Scope()()

	f := step.Input(0)
	m := step.Input(1)
	v := step.Output(0)

	oovRow := m.Dim(0) - 1
	dims := v.Dim(1)
	numFeatures := f.Dim(1)

	acc := e.AllocReg()
	input := e.AllocReg()
	embeddings := e.AllocReg()
	output := e.AllocReg()
	col := e.AllocReg()
	oov := e.AllocReg()

	// One accumulator per block of the output.
	blocks := dims / blockSize
	sum := make([]asm.VReg, blocks)
	for i := range sum {
		sum[i] = e.AllocVReg()
	}

	loop := e.NewLabel()
	addRow := e.NewLabel()
	next := e.NewLabel()

	e.LoadAddress(input, f)
	e.LoadAddress(embeddings, m)
	e.LoadAddress(output, v)

	// Clear the accumulators.
	for _, s := range sum {
		e.VecZero(s)
	}

	// Loop over the input features.
	e.MoveImm(oov, int64(oovRow))
	e.Zero(col)
	e.Bind(loop)

	// Next feature id.
	e.LoadInt32Index(acc, input, col)

	// Use the out-of-vocabulary row for id -1; skip any other
	// negative id.
	e.JumpGeZero(acc, addRow)
	e.JumpNeImm(acc, -1, next)
	e.Move(acc, oov)

	// Add the selected row to the accumulators, block by block.
	e.Bind(addRow)
	e.MulImm(acc, int64(m.Stride(0)))
	e.Add(acc, embeddings)
	for i, s := range sum {
		e.VecAdd(s, acc, i*asm.VectorBytes)
	}

	// Next feature.
	e.Bind(next)
	e.Inc(col)
	e.JumpNeImm(col, int64(numFeatures), loop)

	// Store the sum.
	for i, s := range sum {
		e.VecStore(output, i*asm.VectorBytes, s)
	}
}

func (lookupUnrolled) Complexity(step *flow.Step) int {
	return step.Input(0).Elements() * step.Output(0).Elements()
}

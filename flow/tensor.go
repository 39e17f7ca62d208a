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

package flow

import (
	"fmt"

	"github.com/loom-org/loom/dtype"
)

// Order of the elements of a tensor in memory.
type Order int

const (
	// AnyOrder places no constraint on the element order.
	AnyOrder Order = iota
	// RowMajor stores the last axis contiguously.
	RowMajor
	// ColumnMajor stores the first axis contiguously.
	ColumnMajor
)

// Tensor is one value flowing through a graph. Its type and shape are
// fixed once the graph is built; a kernel selected for a step may only
// tighten layout preferences (required order, minimum alignment,
// reference aliasing) from its Adjust method.
type Tensor struct {
	name      string
	typ       dtype.DataType
	dims      []int
	order     Order
	minAlign  int
	ref       bool
	link      *Tensor
	data      []byte
	producer  *Step
	consumers []*Step

	// shared is the tensor this tensor shares storage with in place.
	// offset is the arena position assigned at layout.
	shared *Tensor
	offset int
}

// Name of the tensor.
func (t *Tensor) Name() string {
	return t.name
}

// Type returns the element type.
func (t *Tensor) Type() dtype.DataType {
	return t.typ
}

// SetType sets the element type. Used by type inference on tensors
// built without a type, before kernel selection.
func (t *Tensor) SetType(dt dtype.DataType) {
	t.typ = dt
}

// SetShape replaces the dimensions of the tensor. Used by type
// inference together with SetType; no dimensions means a scalar.
func (t *Tensor) SetShape(dims ...int) {
	t.dims = dims
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int {
	return len(t.dims)
}

// Dim returns the extent of one axis.
func (t *Tensor) Dim(i int) int {
	return t.dims[i]
}

// Elements returns the total number of elements.
func (t *Tensor) Elements() int {
	n := 1
	for _, d := range t.dims {
		n *= d
	}
	return n
}

// Size returns the byte size of the tensor data.
func (t *Tensor) Size() int {
	return t.Elements() * t.typ.Size()
}

// Stride returns the byte distance between consecutive elements along
// one axis, for the row-major layout the arena uses.
func (t *Tensor) Stride(i int) int {
	stride := t.typ.Size()
	for axis := len(t.dims) - 1; axis > i; axis-- {
		stride *= t.dims[axis]
	}
	return stride
}

// RequiredOrder returns the element order required by the kernel
// selected for the step consuming or producing this tensor.
func (t *Tensor) RequiredOrder() Order {
	return t.order
}

// SetRequiredOrder tightens the required element order. Conflicting
// requirements indicate a kernel selection bug and are fatal.
func (t *Tensor) SetRequiredOrder(o Order) {
	if o == AnyOrder || t.order == o {
		return
	}
	if t.order != AnyOrder {
		panic(fmt.Sprintf("flow: conflicting order requirements on tensor %s", t.name))
	}
	t.order = o
}

// MinAlign returns the minimum alignment of the tensor data in the
// arena.
func (t *Tensor) MinAlign() int {
	return t.minAlign
}

// SetMinimumAlignment raises the minimum alignment of the tensor data.
func (t *Tensor) SetMinimumAlignment(align int) {
	if align > t.minAlign {
		t.minAlign = align
	}
}

// Ref reports whether the tensor is a reference: its arena slot holds
// the address of its data instead of the data itself.
func (t *Tensor) Ref() bool {
	return t.ref
}

// SetRef marks the tensor as a reference.
func (t *Tensor) SetRef(ref bool) {
	t.ref = ref
}

// Link returns the tensor whose storage this reference points into,
// or nil.
func (t *Tensor) Link() *Tensor {
	return t.link
}

// SetLink records the tensor whose storage this reference points
// into. The linked tensor remains the owner of the storage.
func (t *Tensor) SetLink(link *Tensor) {
	t.link = link
}

// IsConst reports whether the tensor holds a compile time constant.
func (t *Tensor) IsConst() bool {
	return t.data != nil
}

// Data returns the constant payload of the tensor, or nil.
func (t *Tensor) Data() []byte {
	return t.data
}

// Int32Value returns the value of a constant scalar int32 tensor.
func (t *Tensor) Int32Value() (int32, bool) {
	if t.typ != dtype.Int32 || t.data == nil || t.Elements() != 1 {
		return 0, false
	}
	return dtype.ToSlice[int32](t.data)[0], true
}

// Producer returns the step producing this tensor, or nil for graph
// inputs and constants.
func (t *Tensor) Producer() *Step {
	return t.producer
}

// Consumers returns the steps consuming this tensor.
func (t *Tensor) Consumers() []*Step {
	return t.consumers
}

// Offset returns the arena position of the tensor, assigned during
// cell layout. Together with Ref this implements asm.Operand.
func (t *Tensor) Offset() int {
	return t.offset
}

func (t *Tensor) storageRoot() *Tensor {
	for t.shared != nil {
		t = t.shared
	}
	return t
}

// SharedWith reports whether two tensors share the same storage.
func (t *Tensor) SharedWith(other *Tensor) bool {
	return t.storageRoot() == other.storageRoot()
}

// String returns the tensor name with its type and shape.
func (t *Tensor) String() string {
	return fmt.Sprintf("%s:%s%v", t.name, t.typ, t.dims)
}

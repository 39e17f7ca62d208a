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

// Package feature implements kernels for the embedding feature
// operations of sequence labeling and parsing models: gathering rows
// of an embedding matrix by integer feature id, summing such rows,
// concatenating tensors, and aliasing reshapes.
//
// An embedding matrix of V vocabulary rows carries one extra trailing
// row, the out-of-vocabulary row, addressed by feature id -1. Feature
// ids below -1 mean no feature is present; they contribute nothing.
package feature

import (
	"github.com/loom-org/loom/asm"
	"github.com/loom-org/loom/dtype"
	"github.com/loom-org/loom/flow"
)

// Operation names implemented by this package.
const (
	// OpInitializer allocates session state for an embedding
	// component. It produces no code.
	OpInitializer = "EmbeddingInitializer"
	// OpLookup sums the embedding rows selected by a feature vector.
	OpLookup = "Lookup"
	// OpCollect copies the embedding row of each feature slot into a
	// fixed-width output slot with a trailing out-of-vocabulary
	// indicator.
	OpCollect = "Collect"
	// OpConcat concatenates tensors along the second axis.
	OpConcat = "ConcatV2"
	// OpReshape reinterprets a tensor under a new shape.
	OpReshape = "Reshape"
)

// Register publishes the embedding feature kernels and the
// initializer typer. Registration order matters: among kernels of
// equal complexity the compiler prefers the one registered first.
func Register(lib *flow.Library) {
	lib.Register(&initializer{})
	lib.Register(&lookupSingle{})
	lib.Register(&lookupUnrolled{})
	lib.Register(&lookup{})
	lib.Register(&collect{})
	lib.Register(&concat{})
	lib.Register(&noOpReshape{})
	lib.RegisterTyper(&initializerTyper{})
}

// initializer is a placeholder for the embedding initializer
// operation. Its side effect is external session state; there is no
// data-dependent code to produce.
type initializer struct{}

func (initializer) Name() string      { return "EmbeddingInitializerDummy" }
func (initializer) Operation() string { return OpInitializer }

func (initializer) Supports(step *flow.Step) bool {
	return true
}

func (initializer) Adjust(step *flow.Step) {}

func (initializer) Generate(step *flow.Step, e *asm.Emitter) {}

func (initializer) Complexity(step *flow.Step) int {
	return 0
}

// initializerTyper infers the output type of the embedding
// initializer operation as a scalar feature id.
type initializerTyper struct{}

func (initializerTyper) InferTypes(step *flow.Step) bool {
	if step.Op() != OpInitializer || step.Outdegree() != 1 {
		return false
	}
	out := step.Output(0)
	out.SetType(dtype.Int32)
	out.SetShape()
	return true
}

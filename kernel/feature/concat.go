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
	"github.com/loom-org/loom/flow"
)

// concat concatenates its inputs along the second axis by copying
// their byte ranges end to end into the output. The last input is the
// axis, a compile time constant that must equal 1.
type concat struct{}

func (concat) Name() string      { return "FeatureConcat" }
func (concat) Operation() string { return OpConcat }

func (concat) Supports(step *flow.Step) bool {
	// At least two tensors plus the axis input.
	if step.Indegree() < 3 || step.Outdegree() != 1 {
		return false
	}

	// Only concatenation along the second axis is supported.
	axis, ok := step.Input(step.Indegree() - 1).Int32Value()
	return ok && axis == 1
}

func (concat) Adjust(step *flow.Step) {}

func (concat) Generate(step *flow.Step, e *asm.Emitter) {
	defer e.Scope()()

	// The last input is the axis.
	n := step.Indegree() - 1
	out := step.Output(0)

	src := e.AllocReg()
	dst := e.AllocReg()

	e.LoadAddress(dst, out)

	// Copy the input tensors to the output.
	offset := 0
	for i := 0; i < n; i++ {
		in := step.Input(i)
		e.LoadAddress(src, in)
		e.Copy(dst, offset, src, 0, in.Size())
		offset += in.Size()
	}
	if offset != out.Size() {
		panic(fmt.Sprintf("feature: %s: inputs hold %d bytes but output %d", step, offset, out.Size()))
	}
}

func (concat) Complexity(step *flow.Step) int {
	return 0
}

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

// noOpReshape eliminates a reshape whose output has the same element
// layout as its input by aliasing the two tensors instead of copying.
// Aliasing is only legal when the reshape is the input's sole
// consumer.
type noOpReshape struct{}

func (noOpReshape) Name() string      { return "NoOpReshape" }
func (noOpReshape) Operation() string { return OpReshape }

func (noOpReshape) Supports(step *flow.Step) bool {
	if step.Indegree() != 2 || step.Outdegree() != 1 {
		return false
	}
	x := step.Input(0)
	y := step.Output(0)
	if x.Type() != y.Type() {
		return false
	}
	if x.Elements() != y.Elements() {
		return false
	}
	if len(x.Consumers()) != 1 {
		return false
	}
	return true
}

func (noOpReshape) Adjust(step *flow.Step) {
	step.Output(0).SetRef(step.Input(0).Ref())
	if !step.AllowInPlace(0, 0) {
		panic(fmt.Sprintf("feature: %s: cannot share storage in place", step))
	}
}

func (noOpReshape) Generate(step *flow.Step, e *asm.Emitter) {
	// The operation is a no-op.
	if !step.Input(0).SharedWith(step.Output(0)) {
		panic(fmt.Sprintf("feature: %s: input and output do not share storage", step))
	}
}

func (noOpReshape) Complexity(step *flow.Step) int {
	return 0
}

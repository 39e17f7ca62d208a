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
	"github.com/loom-org/loom/asm"
	"github.com/loom-org/loom/base/ordered"
)

type (
	// Kernel compiles steps of one operation into machine code.
	// A kernel is stateless: it is built once, registered in a
	// Library, and reused across arbitrarily many steps. Any per-step
	// context is passed as an argument, never stored.
	Kernel interface {
		// Name identifies the kernel, for diagnostics and for forcing
		// a specific kernel.
		Name() string

		// Operation returns the operation name the kernel implements.
		Operation() string

		// Supports reports whether the kernel can compile the step.
		// It must not mutate the step.
		Supports(step *Step) bool

		// Adjust tightens tensor layout requirements for the step.
		// Called at most once, only on the step the kernel was
		// selected for.
		Adjust(step *Step)

		// Generate emits the code implementing the step. All
		// registers acquired from the emitter must be released
		// before returning.
		Generate(step *Step, e *asm.Emitter)

		// Complexity estimates the relative cost of the step. It is
		// only used to prefer cheaper kernels when several apply.
		Complexity(step *Step) int
	}

	// Typer infers missing output types of a step before kernel
	// selection. It reports whether it inferred anything.
	Typer interface {
		InferTypes(step *Step) bool
	}
)

// Library holds the kernels and typers available to the compiler.
// It is built once at startup and read-only afterwards.
type Library struct {
	kernels *ordered.Map[string, []Kernel]
	typers  []Typer
}

// NewLibrary returns an empty kernel library.
func NewLibrary() *Library {
	return &Library{kernels: ordered.NewMap[string, []Kernel]()}
}

// Register adds a kernel under its operation name. Kernels registered
// first win complexity ties at selection.
func (l *Library) Register(k Kernel) {
	op := k.Operation()
	kernels, _ := l.kernels.Load(op)
	l.kernels.Store(op, append(kernels, k))
}

// RegisterTyper adds a type inference rule.
func (l *Library) RegisterTyper(t Typer) {
	l.typers = append(l.typers, t)
}

// Kernels returns the kernels registered for an operation name, in
// registration order.
func (l *Library) Kernels(op string) []Kernel {
	kernels, _ := l.kernels.Load(op)
	return kernels
}

// Typers returns the registered type inference rules.
func (l *Library) Typers() []Typer {
	return l.typers
}

// Kernel returns a registered kernel by name, or nil.
func (l *Library) Kernel(name string) Kernel {
	var found Kernel
	l.kernels.Values()(func(kernels []Kernel) bool {
		for _, k := range kernels {
			if k.Name() == name {
				found = k
				return false
			}
		}
		return true
	})
	return found
}

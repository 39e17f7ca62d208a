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

	"github.com/loom-org/loom/asm"
	"github.com/loom-org/loom/dtype"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Cell is a compiled graph: one program implementing all its steps
// and the layout of the arena the program runs against.
type Cell struct {
	graph *Graph
	prog  *asm.Program
	size  int
	code  []codeRange
}

type codeRange struct {
	step  *Step
	first int
	last  int
}

// Compile selects a kernel for every step of the graph, adjusts
// tensor layout, assigns arena positions, and generates the program.
//
// Selection picks, among the kernels registered for the step's
// operation whose Supports returns true, the one with the lowest
// Complexity; ties go to the kernel registered first. A step no
// kernel supports fails the compilation; failures are reported for
// all steps at once.
func Compile(g *Graph, lib *Library) (*Cell, error) {
	inferTypes(g, lib)

	var errs error
	for _, step := range g.steps {
		kernel := selectKernel(lib, step)
		if kernel == nil {
			errs = multierr.Append(errs, errors.Errorf("no kernel supports %s", step))
			continue
		}
		step.kernel = kernel
	}
	if errs != nil {
		return nil, errs
	}

	for _, step := range g.steps {
		step.kernel.Adjust(step)
	}

	size, err := layout(g)
	if err != nil {
		return nil, err
	}

	cell := &Cell{graph: g, size: size}
	e := asm.NewEmitter()
	for _, step := range g.steps {
		first := e.Program().Len()
		step.kernel.Generate(step, e)
		if !e.Clean() {
			panic(fmt.Sprintf("flow: kernel %s leaked registers generating %s", step.kernel.Name(), step))
		}
		cell.code = append(cell.code, codeRange{step: step, first: first, last: e.Program().Len()})
	}
	cell.prog = e.Program()
	return cell, nil
}

// inferTypes runs the library typers over every step with an untyped
// output. The first typer that infers something wins the step.
func inferTypes(g *Graph, lib *Library) {
	for _, step := range g.steps {
		untyped := false
		for _, out := range step.outputs {
			if out.Type() == dtype.Invalid {
				untyped = true
				break
			}
		}
		if !untyped {
			continue
		}
		for _, typer := range lib.Typers() {
			if typer.InferTypes(step) {
				break
			}
		}
	}
}

func selectKernel(lib *Library, step *Step) Kernel {
	var best Kernel
	bestCost := 0
	for _, kernel := range lib.Kernels(step.op) {
		if !kernel.Supports(step) {
			continue
		}
		cost := kernel.Complexity(step)
		if best == nil || cost < bestCost {
			best, bestCost = kernel, cost
		}
	}
	return best
}

// layout assigns an arena position to every tensor. Reference tensors
// get an 8-byte address slot; tensors sharing storage in place get
// the position of their storage root. Returns the arena size.
func layout(g *Graph) (int, error) {
	size := 0
	for _, t := range g.tensors {
		if t.shared != nil {
			continue
		}
		if t.RequiredOrder() == ColumnMajor {
			return 0, errors.Errorf("tensor %s: column-major layout not supported", t.Name())
		}
		var bytes, align int
		if t.Ref() {
			bytes, align = 8, 8
		} else {
			bytes = t.Size()
			align = t.Type().Size()
			if align == 0 {
				return 0, errors.Errorf("tensor %s has no type", t.Name())
			}
		}
		if t.minAlign > align {
			align = t.minAlign
		}
		size = roundUp(size, align)
		t.offset = size
		size += bytes
	}
	for _, t := range g.tensors {
		if t.shared != nil {
			t.offset = t.storageRoot().offset
		}
	}
	return size, nil
}

func roundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Program returns the generated program.
func (c *Cell) Program() *asm.Program {
	return c.prog
}

// ArenaSize returns the byte size of the arena of one instance.
func (c *Cell) ArenaSize() int {
	return c.size
}

// CodeLen returns the number of instructions generated for a step.
func (c *Cell) CodeLen(step *Step) int {
	for _, r := range c.code {
		if r.step == step {
			return r.last - r.first
		}
	}
	return 0
}

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

// Package asm models the machine that kernels generate code for.
//
// The machine has sixteen general purpose registers holding 64-bit
// integers and sixteen vector registers holding eight float32 lanes.
// Memory is a single byte arena per execution; addresses are offsets
// into that arena. An Emitter appends instructions to a Program and
// hands out registers from fixed pools. A Program is executed by a
// reference interpreter (see Run).
package asm

import "fmt"

type (
	// Reg is a general purpose register.
	Reg int8

	// VReg is a vector register of VectorLanes float32 lanes.
	VReg int8

	// Label marks a position in the instruction stream.
	// A label is created unbound and bound at most once.
	Label int
)

const (
	// NumRegs is the number of general purpose registers.
	NumRegs = 16

	// NumVRegs is the number of vector registers.
	NumVRegs = 16

	// VectorLanes is the number of float32 lanes in a vector register.
	VectorLanes = 8

	// VectorBytes is the byte width of a vector register. Vector loads
	// and stores require their address aligned to this width.
	VectorBytes = VectorLanes * 4
)

// Feature identifies an optional capability of the target machine.
type Feature uint

const (
	// Vec256 indicates support for the vector instructions
	// (VecZero, VecAdd, VecStore).
	Vec256 Feature = 1 << iota
)

// The reference machine supports all features.
var features = Vec256

// Enabled reports whether the target machine supports a feature.
func Enabled(f Feature) bool {
	return features&f == f
}

// SetFeatures overrides the feature set of the target machine and
// returns a function restoring the previous set. Used by tests to
// exercise feature-gated kernel selection.
func SetFeatures(f Feature) func() {
	prev := features
	features = f
	return func() { features = prev }
}

// pool hands out registers from a fixed set.
type pool struct {
	name string
	size int
	used uint16
}

func (p *pool) alloc() int8 {
	for i := 0; i < p.size; i++ {
		bit := uint16(1) << i
		if p.used&bit == 0 {
			p.used |= bit
			return int8(i)
		}
	}
	panic(fmt.Sprintf("asm: out of %s registers", p.name))
}

func (p *pool) release(i int8) {
	bit := uint16(1) << i
	if p.used&bit == 0 {
		panic(fmt.Sprintf("asm: release of free %s register %d", p.name, i))
	}
	p.used &^= bit
}

// Operand is a memory operand with a fixed arena offset. A reference
// operand does not store data at its offset but an 8-byte address of
// the data it aliases.
type Operand interface {
	// Offset of the operand in the arena.
	Offset() int

	// Ref reports whether the operand is a reference.
	Ref() bool
}

// Emitter appends instructions to a program and manages the register
// pools for the duration of one kernel's code generation.
type Emitter struct {
	prog *Program
	gp   pool
	vec  pool
}

// NewEmitter returns an emitter writing into an empty program.
func NewEmitter() *Emitter {
	return &Emitter{
		prog: &Program{},
		gp:   pool{name: "general purpose", size: NumRegs},
		vec:  pool{name: "vector", size: NumVRegs},
	}
}

// Program returns the program the emitter writes into.
func (e *Emitter) Program() *Program {
	return e.prog
}

// AllocReg acquires a general purpose register.
// Acquisition is fatal when the pool is exhausted.
func (e *Emitter) AllocReg() Reg {
	return Reg(e.gp.alloc())
}

// ReleaseReg returns a general purpose register to the pool.
func (e *Emitter) ReleaseReg(r Reg) {
	e.gp.release(int8(r))
}

// AllocVReg acquires a vector register.
func (e *Emitter) AllocVReg() VReg {
	return VReg(e.vec.alloc())
}

// ReleaseVReg returns a vector register to the pool.
func (e *Emitter) ReleaseVReg(v VReg) {
	e.vec.release(int8(v))
}

// Scope snapshots the register pools and returns a function releasing
// every register acquired after the call. Kernels bracket their code
// generation with it so that no register outlives the generation of
// one step:
//
//	defer e.Scope()()
func (e *Emitter) Scope() func() {
	gp, vec := e.gp.used, e.vec.used
	return func() {
		e.gp.used, e.vec.used = gp, vec
	}
}

// Clean reports whether all registers have been released.
func (e *Emitter) Clean() bool {
	return e.gp.used == 0 && e.vec.used == 0
}

// NewLabel creates a new unbound label.
func (e *Emitter) NewLabel() Label {
	e.prog.labels = append(e.prog.labels, -1)
	return Label(len(e.prog.labels) - 1)
}

// Bind binds a label to the current position in the instruction stream.
func (e *Emitter) Bind(l Label) {
	if e.prog.labels[l] >= 0 {
		panic(fmt.Sprintf("asm: label %d bound twice", l))
	}
	e.prog.labels[l] = len(e.prog.insts)
}

func (e *Emitter) emit(i inst) {
	e.prog.insts = append(e.prog.insts, i)
}

// LoadAddress loads the address of an operand's data. For a reference
// operand the address is read from the operand's slot at run time.
func (e *Emitter) LoadAddress(dst Reg, t Operand) {
	e.emit(inst{op: opLoadAddr, dst: dst, t: t})
}

// StoreAddress stores an address held in src into the slot of a
// reference operand.
func (e *Emitter) StoreAddress(t Operand, src Reg) {
	if !t.Ref() {
		panic("asm: StoreAddress to a non-reference operand")
	}
	e.emit(inst{op: opStoreAddr, src: src, t: t})
}

// LoadInt32 loads the sign-extended int32 at [base+disp] into dst.
func (e *Emitter) LoadInt32(dst, base Reg, disp int) {
	e.emit(inst{op: opLoadInt32, dst: dst, src: base, disp: disp})
}

// LoadInt32Index loads the sign-extended int32 at [base+index*4]
// into dst.
func (e *Emitter) LoadInt32Index(dst, base, index Reg) {
	e.emit(inst{op: opLoadInt32Index, dst: dst, src: base, idx: index})
}

// StoreInt32 stores the low 32 bits of src at [base+disp].
func (e *Emitter) StoreInt32(base Reg, disp int, src Reg) {
	e.emit(inst{op: opStoreInt32, dst: base, disp: disp, src: src})
}

// Move copies src into dst.
func (e *Emitter) Move(dst, src Reg) {
	e.emit(inst{op: opMove, dst: dst, src: src})
}

// MoveImm loads an immediate into dst.
func (e *Emitter) MoveImm(dst Reg, imm int64) {
	e.emit(inst{op: opMoveImm, dst: dst, imm: imm})
}

// MoveIfNegative copies src into dst when dst is negative.
func (e *Emitter) MoveIfNegative(dst, src Reg) {
	e.emit(inst{op: opMoveNeg, dst: dst, src: src})
}

// Add adds src to dst.
func (e *Emitter) Add(dst, src Reg) {
	e.emit(inst{op: opAdd, dst: dst, src: src})
}

// AddImm adds an immediate to dst.
func (e *Emitter) AddImm(dst Reg, imm int64) {
	e.emit(inst{op: opAddImm, dst: dst, imm: imm})
}

// MulImm multiplies dst by an immediate.
func (e *Emitter) MulImm(dst Reg, imm int64) {
	e.emit(inst{op: opMulImm, dst: dst, imm: imm})
}

// Zero clears dst.
func (e *Emitter) Zero(dst Reg) {
	e.emit(inst{op: opZero, dst: dst})
}

// Inc increments dst by one.
func (e *Emitter) Inc(dst Reg) {
	e.emit(inst{op: opInc, dst: dst})
}

// Jump jumps to a label unconditionally.
func (e *Emitter) Jump(l Label) {
	e.emit(inst{op: opJump, lbl: l})
}

// JumpGeZero jumps to a label when r is zero or positive.
func (e *Emitter) JumpGeZero(r Reg, l Label) {
	e.emit(inst{op: opJumpGeZero, src: r, lbl: l})
}

// JumpLtZero jumps to a label when r is negative.
func (e *Emitter) JumpLtZero(r Reg, l Label) {
	e.emit(inst{op: opJumpLtZero, src: r, lbl: l})
}

// JumpNeImm jumps to a label when r differs from an immediate.
func (e *Emitter) JumpNeImm(r Reg, imm int64, l Label) {
	e.emit(inst{op: opJumpNeImm, src: r, imm: imm, lbl: l})
}

// LoadF32 loads the float32 at [base+index*4] into lane 0 of v.
func (e *Emitter) LoadF32(v VReg, base, index Reg) {
	e.emit(inst{op: opLoadF32, vec: v, src: base, idx: index})
}

// AddF32 adds the float32 at [base+index*4] to lane 0 of v.
func (e *Emitter) AddF32(v VReg, base, index Reg) {
	e.emit(inst{op: opAddF32, vec: v, src: base, idx: index})
}

// StoreF32 stores lane 0 of v at [base+index*4].
func (e *Emitter) StoreF32(base, index Reg, v VReg) {
	e.emit(inst{op: opStoreF32, vec: v, dst: base, idx: index})
}

// VecZero clears all lanes of v.
func (e *Emitter) VecZero(v VReg) {
	e.emit(inst{op: opVecZero, vec: v})
}

// VecAdd adds the VectorLanes float32 values at [base+disp] to v.
// The address must be aligned to VectorBytes.
func (e *Emitter) VecAdd(v VReg, base Reg, disp int) {
	e.emit(inst{op: opVecAdd, vec: v, src: base, disp: disp})
}

// VecStore stores the lanes of v at [base+disp].
// The address must be aligned to VectorBytes.
func (e *Emitter) VecStore(base Reg, disp int, v VReg) {
	e.emit(inst{op: opVecStore, vec: v, dst: base, disp: disp})
}

// Copy copies size bytes from [src+srcOff] to [dst+dstOff].
func (e *Emitter) Copy(dst Reg, dstOff int, src Reg, srcOff int, size int) {
	e.emit(inst{op: opCopy, dst: dst, disp: dstOff, src: src, srcOff: srcOff, size: size})
}

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

package asm_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/loom-org/loom/asm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// operand is a test memory operand at a fixed offset.
type operand struct {
	offset int
	ref    bool
}

func (o operand) Offset() int { return o.offset }
func (o operand) Ref() bool   { return o.ref }

func putF32(mem []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(mem[off:], math.Float32bits(v))
}

func getF32(mem []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(mem[off:]))
}

func TestLoopSum(t *testing.T) {
	// Sum the int32 vector at offset 0 into the int32 at offset 16.
	values := operand{offset: 0}
	result := operand{offset: 16}

	e := asm.NewEmitter()
	acc := e.AllocReg()
	sum := e.AllocReg()
	base := e.AllocReg()
	out := e.AllocReg()
	index := e.AllocReg()
	loop := e.NewLabel()

	e.LoadAddress(base, values)
	e.LoadAddress(out, result)
	e.Zero(sum)
	e.Zero(index)
	e.Bind(loop)
	e.LoadInt32Index(acc, base, index)
	e.Add(sum, acc)
	e.Inc(index)
	e.JumpNeImm(index, 4, loop)
	e.StoreInt32(out, 0, sum)

	mem := make([]byte, 32)
	for i, v := range []int32{3, -1, 10, 5} {
		binary.LittleEndian.PutUint32(mem[i*4:], uint32(v))
	}
	require.NoError(t, e.Program().Run(mem))
	got := int32(binary.LittleEndian.Uint32(mem[16:]))
	assert.Equal(t, int32(17), got)
}

func TestReferenceOperand(t *testing.T) {
	// slot at 0 points at the int32 at 24; copy it to 16.
	src := operand{offset: 0, ref: true}
	dst := operand{offset: 16}

	e := asm.NewEmitter()
	addr := e.AllocReg()
	out := e.AllocReg()
	e.LoadAddress(addr, src)
	e.LoadInt32(addr, addr, 0)
	e.LoadAddress(out, dst)
	e.StoreInt32(out, 0, addr)

	mem := make([]byte, 32)
	binary.LittleEndian.PutUint64(mem[0:], 24)
	negFortyTwo := int32(-42)
	binary.LittleEndian.PutUint32(mem[24:], uint32(negFortyTwo))
	require.NoError(t, e.Program().Run(mem))
	assert.Equal(t, int32(-42), int32(binary.LittleEndian.Uint32(mem[16:])))
}

func TestStoreAddress(t *testing.T) {
	slot := operand{offset: 8, ref: true}

	e := asm.NewEmitter()
	r := e.AllocReg()
	e.MoveImm(r, 48)
	e.StoreAddress(slot, r)

	mem := make([]byte, 64)
	require.NoError(t, e.Program().Run(mem))
	assert.Equal(t, uint64(48), binary.LittleEndian.Uint64(mem[8:]))

	assert.Panics(t, func() {
		e.StoreAddress(operand{offset: 8}, r)
	})
}

func TestMoveIfNegative(t *testing.T) {
	tests := []struct {
		value int64
		want  int64
	}{
		{value: 5, want: 5},
		{value: 0, want: 0},
		{value: -1, want: 99},
		{value: -7, want: 99},
	}
	for _, test := range tests {
		e := asm.NewEmitter()
		dst := e.AllocReg()
		alt := e.AllocReg()
		out := e.AllocReg()
		e.MoveImm(dst, test.value)
		e.MoveImm(alt, 99)
		e.MoveIfNegative(dst, alt)
		e.LoadAddress(out, operand{offset: 0})
		e.StoreInt32(out, 0, dst)

		mem := make([]byte, 8)
		require.NoError(t, e.Program().Run(mem))
		got := int64(int32(binary.LittleEndian.Uint32(mem)))
		assert.Equal(t, test.want, got, "value %d", test.value)
	}
}

func TestScalarFloat(t *testing.T) {
	// mem[8] = mem[0] + mem[4]
	e := asm.NewEmitter()
	base := e.AllocReg()
	index := e.AllocReg()
	v := e.AllocVReg()

	e.LoadAddress(base, operand{offset: 0})
	e.Zero(index)
	e.LoadF32(v, base, index)
	e.Inc(index)
	e.AddF32(v, base, index)
	e.Inc(index)
	e.StoreF32(base, index, v)

	mem := make([]byte, 12)
	putF32(mem, 0, 1.5)
	putF32(mem, 4, 2.25)
	require.NoError(t, e.Program().Run(mem))
	assert.Equal(t, float32(3.75), getF32(mem, 8))
}

func TestVector(t *testing.T) {
	e := asm.NewEmitter()
	base := e.AllocReg()
	v := e.AllocVReg()

	e.LoadAddress(base, operand{offset: 0})
	e.VecZero(v)
	e.VecAdd(v, base, 0)
	e.VecAdd(v, base, asm.VectorBytes)
	e.VecStore(base, 2*asm.VectorBytes, v)

	mem := make([]byte, 3*asm.VectorBytes)
	for i := 0; i < asm.VectorLanes; i++ {
		putF32(mem, i*4, float32(i))
		putF32(mem, asm.VectorBytes+i*4, 10)
	}
	require.NoError(t, e.Program().Run(mem))
	for i := 0; i < asm.VectorLanes; i++ {
		assert.Equal(t, float32(i)+10, getF32(mem, 2*asm.VectorBytes+i*4))
	}
}

func TestVectorMisaligned(t *testing.T) {
	e := asm.NewEmitter()
	base := e.AllocReg()
	v := e.AllocVReg()
	e.LoadAddress(base, operand{offset: 4})
	e.VecAdd(v, base, 0)

	mem := make([]byte, 2*asm.VectorBytes)
	err := e.Program().Run(mem)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "misaligned")
}

func TestOutOfBounds(t *testing.T) {
	e := asm.NewEmitter()
	r := e.AllocReg()
	e.LoadAddress(r, operand{offset: 64})
	e.LoadInt32(r, r, 0)

	err := e.Program().Run(make([]byte, 16))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
}

func TestCopy(t *testing.T) {
	e := asm.NewEmitter()
	src := e.AllocReg()
	dst := e.AllocReg()
	e.LoadAddress(src, operand{offset: 0})
	e.LoadAddress(dst, operand{offset: 8})
	e.Copy(dst, 2, src, 1, 4)

	mem := []byte{1, 2, 3, 4, 5, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, e.Program().Run(mem))
	assert.Equal(t, []byte{0, 0, 2, 3, 4, 5}, mem[8:14])
}

func TestRegisterPools(t *testing.T) {
	e := asm.NewEmitter()
	for i := 0; i < asm.NumRegs; i++ {
		e.AllocReg()
	}
	assert.Panics(t, func() { e.AllocReg() }, "exhausted pool")

	assert.Panics(t, func() {
		ee := asm.NewEmitter()
		r := ee.AllocReg()
		ee.ReleaseReg(r)
		ee.ReleaseReg(r)
	}, "double release")
}

func TestScope(t *testing.T) {
	e := asm.NewEmitter()
	outer := e.AllocReg()
	release := e.Scope()
	e.AllocReg()
	e.AllocVReg()
	assert.False(t, e.Clean())
	release()
	assert.False(t, e.Clean(), "outer register still held")
	e.ReleaseReg(outer)
	assert.True(t, e.Clean())
}

func TestLabelBoundTwice(t *testing.T) {
	e := asm.NewEmitter()
	l := e.NewLabel()
	e.Bind(l)
	assert.Panics(t, func() { e.Bind(l) })
}

func TestJumpToUnboundLabel(t *testing.T) {
	e := asm.NewEmitter()
	l := e.NewLabel()
	e.Jump(l)
	err := e.Program().Run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound label")
}

func TestSetFeatures(t *testing.T) {
	require.True(t, asm.Enabled(asm.Vec256))
	restore := asm.SetFeatures(0)
	assert.False(t, asm.Enabled(asm.Vec256))
	restore()
	assert.True(t, asm.Enabled(asm.Vec256))
}

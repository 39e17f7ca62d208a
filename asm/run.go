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

package asm

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// machine is the execution state of one program run.
type machine struct {
	mem  []byte
	regs [NumRegs]int64
	vecs [NumVRegs][VectorLanes]float32
}

func (m *machine) load32(addr int64) (int32, error) {
	if addr < 0 || addr+4 > int64(len(m.mem)) {
		return 0, errors.Errorf("load32 out of bounds at %d", addr)
	}
	return int32(binary.LittleEndian.Uint32(m.mem[addr:])), nil
}

func (m *machine) store32(addr int64, v uint32) error {
	if addr < 0 || addr+4 > int64(len(m.mem)) {
		return errors.Errorf("store32 out of bounds at %d", addr)
	}
	binary.LittleEndian.PutUint32(m.mem[addr:], v)
	return nil
}

func (m *machine) load64(addr int64) (int64, error) {
	if addr < 0 || addr+8 > int64(len(m.mem)) {
		return 0, errors.Errorf("load64 out of bounds at %d", addr)
	}
	return int64(binary.LittleEndian.Uint64(m.mem[addr:])), nil
}

func (m *machine) store64(addr int64, v int64) error {
	if addr < 0 || addr+8 > int64(len(m.mem)) {
		return errors.Errorf("store64 out of bounds at %d", addr)
	}
	binary.LittleEndian.PutUint64(m.mem[addr:], uint64(v))
	return nil
}

func (m *machine) loadF32(addr int64) (float32, error) {
	bits, err := m.load32(addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(bits)), nil
}

func (m *machine) storeF32(addr int64, v float32) error {
	return m.store32(addr, math.Float32bits(v))
}

// address returns the run time data address of an operand. A reference
// operand holds the address of its data in its slot.
func (m *machine) address(t Operand) (int64, error) {
	if !t.Ref() {
		return int64(t.Offset()), nil
	}
	return m.load64(int64(t.Offset()))
}

// Run executes the program against an arena. It returns an error on
// out of bounds or misaligned access; both indicate a bug in the
// kernel that generated the program, not a data-dependent condition.
func (p *Program) Run(mem []byte) error {
	m := &machine{mem: mem}
	pc := 0
	for pc < len(p.insts) {
		in := &p.insts[pc]
		next := pc + 1
		var err error
		switch in.op {
		case opLoadAddr:
			m.regs[in.dst], err = m.address(in.t)
		case opStoreAddr:
			err = m.store64(int64(in.t.Offset()), m.regs[in.src])
		case opLoadInt32:
			var v int32
			v, err = m.load32(m.regs[in.src] + int64(in.disp))
			m.regs[in.dst] = int64(v)
		case opLoadInt32Index:
			var v int32
			v, err = m.load32(m.regs[in.src] + m.regs[in.idx]*4)
			m.regs[in.dst] = int64(v)
		case opStoreInt32:
			err = m.store32(m.regs[in.dst]+int64(in.disp), uint32(m.regs[in.src]))
		case opMove:
			m.regs[in.dst] = m.regs[in.src]
		case opMoveImm:
			m.regs[in.dst] = in.imm
		case opMoveNeg:
			if m.regs[in.dst] < 0 {
				m.regs[in.dst] = m.regs[in.src]
			}
		case opAdd:
			m.regs[in.dst] += m.regs[in.src]
		case opAddImm:
			m.regs[in.dst] += in.imm
		case opMulImm:
			m.regs[in.dst] *= in.imm
		case opZero:
			m.regs[in.dst] = 0
		case opInc:
			m.regs[in.dst]++
		case opJump:
			next = p.labels[in.lbl]
		case opJumpGeZero:
			if m.regs[in.src] >= 0 {
				next = p.labels[in.lbl]
			}
		case opJumpLtZero:
			if m.regs[in.src] < 0 {
				next = p.labels[in.lbl]
			}
		case opJumpNeImm:
			if m.regs[in.src] != in.imm {
				next = p.labels[in.lbl]
			}
		case opLoadF32:
			m.vecs[in.vec][0], err = m.loadF32(m.regs[in.src] + m.regs[in.idx]*4)
		case opAddF32:
			var v float32
			v, err = m.loadF32(m.regs[in.src] + m.regs[in.idx]*4)
			m.vecs[in.vec][0] += v
		case opStoreF32:
			err = m.storeF32(m.regs[in.dst]+m.regs[in.idx]*4, m.vecs[in.vec][0])
		case opVecZero:
			m.vecs[in.vec] = [VectorLanes]float32{}
		case opVecAdd:
			err = m.vecAdd(in.vec, m.regs[in.src]+int64(in.disp))
		case opVecStore:
			err = m.vecStore(m.regs[in.dst]+int64(in.disp), in.vec)
		case opCopy:
			err = m.copy(m.regs[in.dst]+int64(in.disp), m.regs[in.src]+int64(in.srcOff), in.size)
		default:
			err = errors.Errorf("unknown opcode %d", in.op)
		}
		if err != nil {
			return errors.Wrapf(err, "%s at pc %d", opNames[in.op], pc)
		}
		if next < 0 {
			return errors.Errorf("%s at pc %d: jump to unbound label", opNames[in.op], pc)
		}
		pc = next
	}
	return nil
}

func (m *machine) vecAdd(v VReg, addr int64) error {
	if addr%VectorBytes != 0 {
		return errors.Errorf("misaligned vector load at %d", addr)
	}
	for i := 0; i < VectorLanes; i++ {
		lane, err := m.loadF32(addr + int64(i)*4)
		if err != nil {
			return err
		}
		m.vecs[v][i] += lane
	}
	return nil
}

func (m *machine) vecStore(addr int64, v VReg) error {
	if addr%VectorBytes != 0 {
		return errors.Errorf("misaligned vector store at %d", addr)
	}
	for i := 0; i < VectorLanes; i++ {
		if err := m.storeF32(addr+int64(i)*4, m.vecs[v][i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) copy(dst, src int64, size int) error {
	if src < 0 || src+int64(size) > int64(len(m.mem)) {
		return errors.Errorf("copy source out of bounds at %d", src)
	}
	if dst < 0 || dst+int64(size) > int64(len(m.mem)) {
		return errors.Errorf("copy destination out of bounds at %d", dst)
	}
	copy(m.mem[dst:dst+int64(size)], m.mem[src:src+int64(size)])
	return nil
}

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

type opcode int

const (
	opLoadAddr opcode = iota
	opStoreAddr
	opLoadInt32
	opLoadInt32Index
	opStoreInt32
	opMove
	opMoveImm
	opMoveNeg
	opAdd
	opAddImm
	opMulImm
	opZero
	opInc
	opJump
	opJumpGeZero
	opJumpLtZero
	opJumpNeImm
	opLoadF32
	opAddF32
	opStoreF32
	opVecZero
	opVecAdd
	opVecStore
	opCopy
)

var opNames = [...]string{
	opLoadAddr:       "loadaddr",
	opStoreAddr:      "storeaddr",
	opLoadInt32:      "load32",
	opLoadInt32Index: "load32x",
	opStoreInt32:     "store32",
	opMove:           "mov",
	opMoveImm:        "movi",
	opMoveNeg:        "cmovneg",
	opAdd:            "add",
	opAddImm:         "addi",
	opMulImm:         "muli",
	opZero:           "zero",
	opInc:            "inc",
	opJump:           "jmp",
	opJumpGeZero:     "jge0",
	opJumpLtZero:     "jlt0",
	opJumpNeImm:      "jnei",
	opLoadF32:        "loadss",
	opAddF32:         "addss",
	opStoreF32:       "storess",
	opVecZero:        "vzero",
	opVecAdd:         "vadd",
	opVecStore:       "vstore",
	opCopy:           "copy",
}

// inst is one machine instruction. The fields used depend on the
// opcode; unused fields are zero.
type inst struct {
	op     opcode
	dst    Reg
	src    Reg
	idx    Reg
	vec    VReg
	t      Operand
	imm    int64
	disp   int
	srcOff int
	size   int
	lbl    Label
}

// Program is a sequence of instructions generated for one cell of a
// tensor graph. It is immutable once generation is complete.
type Program struct {
	insts  []inst
	labels []int
}

// Len returns the number of instructions in the program.
func (p *Program) Len() int {
	return len(p.insts)
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"fmt"
	"strings"
)

// An Instruction is one machine instruction, ready to be
// encoded: a mnemonic plus its operands in Intel order
// (destination first).
type Instruction struct {
	Mnemonic Mnemonic
	Operands []Operand
}

// Inst is a convenience constructor for an Instruction.
func Inst(mnemonic Mnemonic, operands ...Operand) *Instruction {
	return &Instruction{Mnemonic: mnemonic, Operands: operands}
}

func (i *Instruction) String() string {
	if len(i.Operands) == 0 {
		return i.Mnemonic.String()
	}

	parts := make([]string, len(i.Operands))
	for j, op := range i.Operands {
		parts[j] = op.String()
	}

	return i.Mnemonic.String() + " " + strings.Join(parts, ", ")
}

// An Operand is one operand of an instruction: a register,
// an immediate, a memory reference, or a label-relative
// code offset.
type Operand interface {
	String() string
	operand()
}

func (*Register) operand() {}
func (Immediate) operand() {}
func (*Memory) operand()   {}
func (Rel) operand()       {}

// An Immediate is an integer literal operand with an
// explicit width. The value is stored sign-extended; an
// unsigned value of the same width is also accepted,
// stored as its two's complement bit pattern.
type Immediate struct {
	Bits  int // 8, 16, 32, or 64
	Value int64
}

// Imm8 returns an 8-bit immediate operand.
func Imm8(v int64) Immediate { return Immediate{8, v} }

// Imm16 returns a 16-bit immediate operand.
func Imm16(v int64) Immediate { return Immediate{16, v} }

// Imm32 returns a 32-bit immediate operand.
func Imm32(v int64) Immediate { return Immediate{32, v} }

// Imm64 returns a 64-bit immediate operand.
func Imm64(v int64) Immediate { return Immediate{64, v} }

// Fits returns whether the immediate's value fits its
// declared width, either as a signed or as an unsigned
// integer.
func (imm Immediate) Fits() bool {
	if imm.Bits == 64 {
		return true
	}

	min := int64(-1) << (imm.Bits - 1)
	max := int64(1)<<imm.Bits - 1
	return min <= imm.Value && imm.Value <= max
}

func (imm Immediate) String() string {
	return fmt.Sprintf("%#x", imm.Value)
}

// A Rel is a label-relative code offset operand, used by
// the branch instructions. The offset is measured from
// the address of the next instruction to the label's
// address.
type Rel struct {
	Bits  int // 8 or 32
	Label string
}

// Rel32 returns a 32-bit code offset operand referencing
// the given label.
func Rel32(label string) Rel { return Rel{32, label} }

func (r Rel) String() string {
	return r.Label
}

// A Memory is a memory reference operand.
//
// A reference is register-based, with a base register and
// optionally an index register, scale, and displacement;
// RIP-relative, with Base set to RIP and Symbol naming the
// referenced label; or absolute, with no base register and
// the address in the scaled index and displacement alone.
//
// Width gives the operation width in bits where the
// instruction form alone cannot determine it, such as the
// source of movzx. A zero Width matches any form.
type Memory struct {
	Segment *Register // optional segment override; fs or gs
	Base    *Register // base register, or RIP
	Index   *Register // optional index register
	Scale   uint8     // 1, 2, 4, or 8; 0 when there is no index
	Disp    int32     // constant displacement
	Symbol  string    // label, for RIP-relative references
	Width   int       // operation width in bits; 0 when implied by the form
}

func (m *Memory) String() string {
	var s strings.Builder
	switch m.Width {
	case 8:
		s.WriteString("byte ")
	case 16:
		s.WriteString("word ")
	case 32:
		s.WriteString("dword ")
	case 64:
		s.WriteString("qword ")
	}
	if m.Segment != nil {
		s.WriteString(m.Segment.Name)
		s.WriteByte(':')
	}

	s.WriteByte('[')
	first := true
	if m.Base != nil {
		s.WriteString(m.Base.Name)
		first = false
	}
	if m.Symbol != "" {
		if !first {
			s.WriteByte('+')
		}
		s.WriteString(m.Symbol)
		first = false
	}
	if m.Index != nil {
		if !first {
			s.WriteByte('+')
		}
		fmt.Fprintf(&s, "%s*%d", m.Index.Name, m.Scale)
		first = false
	}
	if m.Disp != 0 || first {
		if !first && m.Disp >= 0 {
			s.WriteByte('+')
		}
		fmt.Fprintf(&s, "%#x", m.Disp)
	}
	s.WriteByte(']')

	return s.String()
}

// A Mnemonic identifies one instruction of the supported
// subset of the x86-64 instruction set.
type Mnemonic uint8

const (
	_ Mnemonic = iota

	// Data movement.
	MOV
	MOVZX
	MOVSX
	MOVSXD
	LEA
	PUSH
	POP

	// Integer arithmetic and logic.
	ADD
	SUB
	AND
	OR
	XOR
	CMP
	TEST
	IMUL
	MUL
	IDIV
	DIV
	NEG
	NOT
	INC
	DEC
	SHL
	SHR
	SAR
	CQO
	CDQ
	LZCNT
	TZCNT
	POPCNT

	// Control flow.
	CALL
	RET
	JMP
	JE
	JNE
	JL
	JLE
	JG
	JGE
	JB
	JBE
	JA
	JAE

	// Conditional set.
	SETE
	SETNE
	SETL
	SETLE
	SETG
	SETGE
	SETB
	SETBE
	SETA
	SETAE

	// Miscellaneous.
	SYSCALL
	NOP
	UD2
)

var mnemonics = [...]string{
	MOV:    "mov",
	MOVZX:  "movzx",
	MOVSX:  "movsx",
	MOVSXD: "movsxd",
	LEA:    "lea",
	PUSH:   "push",
	POP:    "pop",

	ADD:    "add",
	SUB:    "sub",
	AND:    "and",
	OR:     "or",
	XOR:    "xor",
	CMP:    "cmp",
	TEST:   "test",
	IMUL:   "imul",
	MUL:    "mul",
	IDIV:   "idiv",
	DIV:    "div",
	NEG:    "neg",
	NOT:    "not",
	INC:    "inc",
	DEC:    "dec",
	SHL:    "shl",
	SHR:    "shr",
	SAR:    "sar",
	CQO:    "cqo",
	CDQ:    "cdq",
	LZCNT:  "lzcnt",
	TZCNT:  "tzcnt",
	POPCNT: "popcnt",

	CALL: "call",
	RET:  "ret",
	JMP:  "jmp",
	JE:   "je",
	JNE:  "jne",
	JL:   "jl",
	JLE:  "jle",
	JG:   "jg",
	JGE:  "jge",
	JB:   "jb",
	JBE:  "jbe",
	JA:   "ja",
	JAE:  "jae",

	SETE:  "sete",
	SETNE: "setne",
	SETL:  "setl",
	SETLE: "setle",
	SETG:  "setg",
	SETGE: "setge",
	SETB:  "setb",
	SETBE: "setbe",
	SETA:  "seta",
	SETAE: "setae",

	SYSCALL: "syscall",
	NOP:     "nop",
	UD2:     "ud2",
}

func (m Mnemonic) String() string {
	if int(m) < len(mnemonics) && mnemonics[m] != "" {
		return mnemonics[m]
	}

	return fmt.Sprintf("Mnemonic(%d)", uint8(m))
}

// MnemonicsByName maps mnemonic names (lower case) to
// their mnemonics.
var MnemonicsByName = make(map[string]Mnemonic)

func init() {
	for m, name := range mnemonics {
		if name != "" {
			MnemonicsByName[name] = Mnemonic(m)
		}
	}
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"fmt"
	"sync"
)

// A Form describes the shape one operand of an encoding
// form accepts.
type Form uint8

const (
	_ Form = iota

	FormR8  // 8-bit general purpose register
	FormR16 // 16-bit general purpose register
	FormR32 // 32-bit general purpose register
	FormR64 // 64-bit general purpose register

	FormRM8  // 8-bit register or memory
	FormRM16 // 16-bit register or memory
	FormRM32 // 32-bit register or memory
	FormRM64 // 64-bit register or memory

	FormM // memory of any width (lea)

	FormImm8  // 8-bit immediate
	FormImm16 // 16-bit immediate
	FormImm32 // 32-bit immediate
	FormImm64 // 64-bit immediate

	FormRel32 // 32-bit code offset

	FormCL // the cl register (shift counts)
)

var forms = [...]string{
	FormR8:    "r8",
	FormR16:   "r16",
	FormR32:   "r32",
	FormR64:   "r64",
	FormRM8:   "r/m8",
	FormRM16:  "r/m16",
	FormRM32:  "r/m32",
	FormRM64:  "r/m64",
	FormM:     "m",
	FormImm8:  "imm8",
	FormImm16: "imm16",
	FormImm32: "imm32",
	FormImm64: "imm64",
	FormRel32: "rel32",
	FormCL:    "cl",
}

func (f Form) String() string {
	if int(f) < len(forms) && forms[f] != "" {
		return forms[f]
	}

	return fmt.Sprintf("Form(%d)", uint8(f))
}

// Bits returns the operand width the form implies, or
// zero for forms without a width.
func (f Form) Bits() int {
	switch f {
	case FormR8, FormRM8, FormImm8:
		return 8
	case FormR16, FormRM16, FormImm16:
		return 16
	case FormR32, FormRM32, FormImm32, FormRel32:
		return 32
	case FormR64, FormRM64, FormImm64:
		return 64
	}

	return 0
}

// IsRegister returns whether the form accepts only a
// register operand.
func (f Form) IsRegister() bool {
	switch f {
	case FormR8, FormR16, FormR32, FormR64:
		return true
	}

	return false
}

// IsRegisterOrMemory returns whether the form accepts a
// register or memory operand (the ModR/M r/m slot).
func (f Form) IsRegisterOrMemory() bool {
	switch f {
	case FormRM8, FormRM16, FormRM32, FormRM64, FormM:
		return true
	}

	return false
}

// IsImmediate returns whether the form accepts an
// immediate operand.
func (f Form) IsImmediate() bool {
	switch f {
	case FormImm8, FormImm16, FormImm32, FormImm64:
		return true
	}

	return false
}

// Matches returns whether the given operand satisfies the
// form.
func (f Form) Matches(op Operand) bool {
	switch f {
	case FormR8, FormR16, FormR32, FormR64:
		r, ok := op.(*Register)
		return ok && r.Type == TypeGeneralPurpose && r.Bits == f.Bits()
	case FormRM8, FormRM16, FormRM32, FormRM64:
		switch v := op.(type) {
		case *Register:
			return v.Type == TypeGeneralPurpose && v.Bits == f.Bits()
		case *Memory:
			return v.Width == 0 || v.Width == f.Bits()
		}
		return false
	case FormM:
		_, ok := op.(*Memory)
		return ok
	case FormImm8, FormImm16, FormImm32, FormImm64:
		imm, ok := op.(Immediate)
		return ok && imm.Bits == f.Bits()
	case FormRel32:
		r, ok := op.(Rel)
		return ok && r.Bits == 32
	case FormCL:
		return op == Operand(CL)
	}

	return false
}

// A Definition is one encoding form of one mnemonic: the
// operand shapes it accepts and the fixed parts of its
// encoding. Within a mnemonic, forms are tried in table
// order and the first match wins.
type Definition struct {
	Mnemonic    Mnemonic
	Forms       []Form
	Opcode      []byte
	Extension   int8 // opcode extension in ModRM.reg (/digit); -1 when unused
	RegInOpcode bool // register operand is added to the final opcode byte
	REXW        bool // operand width is promoted to 64 bits
	Prefix66    bool // operand size override prefix
	PrefixF3    bool // mandatory 0xf3 prefix
}

// Match reports whether the definition accepts the given
// operands.
func (d *Definition) Match(operands []Operand) bool {
	if len(operands) != len(d.Forms) {
		return false
	}

	for i, op := range operands {
		if !d.Forms[i].Matches(op) {
			return false
		}
	}

	return true
}

func (d *Definition) String() string {
	s := d.Mnemonic.String()
	for i, f := range d.Forms {
		if i == 0 {
			s += " "
		} else {
			s += ", "
		}

		s += f.String()
	}

	return s
}

// The definition table is built once, on first use, and
// never mutated afterwards.
var (
	defsOnce    sync.Once
	definitions map[Mnemonic][]*Definition
)

// Lookup returns the encoding forms of the given
// mnemonic, in table order. The result is nil if the
// mnemonic is not supported.
func Lookup(mnemonic Mnemonic) []*Definition {
	defsOnce.Do(initDefinitions)
	return definitions[mnemonic]
}

const noExt = int8(-1)

func initDefinitions() {
	definitions = make(map[Mnemonic][]*Definition)

	add := func(d *Definition) {
		definitions[d.Mnemonic] = append(definitions[d.Mnemonic], d)
	}

	// Data movement.
	//
	// The mov register-immediate forms (b0+rb, b8+rd)
	// precede the c6/c7 forms so a register destination
	// takes the shorter encoding; c7 remains reachable
	// for memory destinations and for the r64, imm32
	// combination.
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM8, FormR8}, Opcode: []byte{0x88}, Extension: noExt})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM16, FormR16}, Opcode: []byte{0x89}, Extension: noExt, Prefix66: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM32, FormR32}, Opcode: []byte{0x89}, Extension: noExt})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM64, FormR64}, Opcode: []byte{0x89}, Extension: noExt, REXW: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR8, FormRM8}, Opcode: []byte{0x8a}, Extension: noExt})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR16, FormRM16}, Opcode: []byte{0x8b}, Extension: noExt, Prefix66: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR32, FormRM32}, Opcode: []byte{0x8b}, Extension: noExt})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR64, FormRM64}, Opcode: []byte{0x8b}, Extension: noExt, REXW: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR8, FormImm8}, Opcode: []byte{0xb0}, Extension: noExt, RegInOpcode: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR16, FormImm16}, Opcode: []byte{0xb8}, Extension: noExt, RegInOpcode: true, Prefix66: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR32, FormImm32}, Opcode: []byte{0xb8}, Extension: noExt, RegInOpcode: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormR64, FormImm64}, Opcode: []byte{0xb8}, Extension: noExt, RegInOpcode: true, REXW: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM8, FormImm8}, Opcode: []byte{0xc6}, Extension: 0})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM16, FormImm16}, Opcode: []byte{0xc7}, Extension: 0, Prefix66: true})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM32, FormImm32}, Opcode: []byte{0xc7}, Extension: 0})
	add(&Definition{Mnemonic: MOV, Forms: []Form{FormRM64, FormImm32}, Opcode: []byte{0xc7}, Extension: 0, REXW: true})

	add(&Definition{Mnemonic: MOVZX, Forms: []Form{FormR16, FormRM8}, Opcode: []byte{0x0f, 0xb6}, Extension: noExt, Prefix66: true})
	add(&Definition{Mnemonic: MOVZX, Forms: []Form{FormR32, FormRM8}, Opcode: []byte{0x0f, 0xb6}, Extension: noExt})
	add(&Definition{Mnemonic: MOVZX, Forms: []Form{FormR64, FormRM8}, Opcode: []byte{0x0f, 0xb6}, Extension: noExt, REXW: true})
	add(&Definition{Mnemonic: MOVZX, Forms: []Form{FormR32, FormRM16}, Opcode: []byte{0x0f, 0xb7}, Extension: noExt})
	add(&Definition{Mnemonic: MOVZX, Forms: []Form{FormR64, FormRM16}, Opcode: []byte{0x0f, 0xb7}, Extension: noExt, REXW: true})

	add(&Definition{Mnemonic: MOVSX, Forms: []Form{FormR16, FormRM8}, Opcode: []byte{0x0f, 0xbe}, Extension: noExt, Prefix66: true})
	add(&Definition{Mnemonic: MOVSX, Forms: []Form{FormR32, FormRM8}, Opcode: []byte{0x0f, 0xbe}, Extension: noExt})
	add(&Definition{Mnemonic: MOVSX, Forms: []Form{FormR64, FormRM8}, Opcode: []byte{0x0f, 0xbe}, Extension: noExt, REXW: true})
	add(&Definition{Mnemonic: MOVSX, Forms: []Form{FormR32, FormRM16}, Opcode: []byte{0x0f, 0xbf}, Extension: noExt})
	add(&Definition{Mnemonic: MOVSX, Forms: []Form{FormR64, FormRM16}, Opcode: []byte{0x0f, 0xbf}, Extension: noExt, REXW: true})

	add(&Definition{Mnemonic: MOVSXD, Forms: []Form{FormR64, FormRM32}, Opcode: []byte{0x63}, Extension: noExt, REXW: true})

	add(&Definition{Mnemonic: LEA, Forms: []Form{FormR16, FormM}, Opcode: []byte{0x8d}, Extension: noExt, Prefix66: true})
	add(&Definition{Mnemonic: LEA, Forms: []Form{FormR32, FormM}, Opcode: []byte{0x8d}, Extension: noExt})
	add(&Definition{Mnemonic: LEA, Forms: []Form{FormR64, FormM}, Opcode: []byte{0x8d}, Extension: noExt, REXW: true})

	add(&Definition{Mnemonic: PUSH, Forms: []Form{FormR64}, Opcode: []byte{0x50}, Extension: noExt, RegInOpcode: true})
	add(&Definition{Mnemonic: PUSH, Forms: []Form{FormImm8}, Opcode: []byte{0x6a}, Extension: noExt})
	add(&Definition{Mnemonic: PUSH, Forms: []Form{FormImm32}, Opcode: []byte{0x68}, Extension: noExt})
	add(&Definition{Mnemonic: PUSH, Forms: []Form{FormRM64}, Opcode: []byte{0xff}, Extension: 6})
	add(&Definition{Mnemonic: POP, Forms: []Form{FormR64}, Opcode: []byte{0x58}, Extension: noExt, RegInOpcode: true})
	add(&Definition{Mnemonic: POP, Forms: []Form{FormRM64}, Opcode: []byte{0x8f}, Extension: 0})

	// The ALU group shares one encoding pattern, with the
	// opcode base and the /digit varying by operation.
	alu := []struct {
		mnemonic Mnemonic
		base     byte
		ext      int8
	}{
		{ADD, 0x00, 0},
		{OR, 0x08, 1},
		{AND, 0x20, 4},
		{SUB, 0x28, 5},
		{XOR, 0x30, 6},
		{CMP, 0x38, 7},
	}
	for _, op := range alu {
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM8, FormR8}, Opcode: []byte{op.base + 0}, Extension: noExt})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM16, FormR16}, Opcode: []byte{op.base + 1}, Extension: noExt, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM32, FormR32}, Opcode: []byte{op.base + 1}, Extension: noExt})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM64, FormR64}, Opcode: []byte{op.base + 1}, Extension: noExt, REXW: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormR8, FormRM8}, Opcode: []byte{op.base + 2}, Extension: noExt})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormR16, FormRM16}, Opcode: []byte{op.base + 3}, Extension: noExt, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormR32, FormRM32}, Opcode: []byte{op.base + 3}, Extension: noExt})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormR64, FormRM64}, Opcode: []byte{op.base + 3}, Extension: noExt, REXW: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM8, FormImm8}, Opcode: []byte{0x80}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM16, FormImm8}, Opcode: []byte{0x83}, Extension: op.ext, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM32, FormImm8}, Opcode: []byte{0x83}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM64, FormImm8}, Opcode: []byte{0x83}, Extension: op.ext, REXW: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM16, FormImm16}, Opcode: []byte{0x81}, Extension: op.ext, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM32, FormImm32}, Opcode: []byte{0x81}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM64, FormImm32}, Opcode: []byte{0x81}, Extension: op.ext, REXW: true})
	}

	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM8, FormR8}, Opcode: []byte{0x84}, Extension: noExt})
	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM16, FormR16}, Opcode: []byte{0x85}, Extension: noExt, Prefix66: true})
	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM32, FormR32}, Opcode: []byte{0x85}, Extension: noExt})
	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM64, FormR64}, Opcode: []byte{0x85}, Extension: noExt, REXW: true})
	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM8, FormImm8}, Opcode: []byte{0xf6}, Extension: 0})
	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM16, FormImm16}, Opcode: []byte{0xf7}, Extension: 0, Prefix66: true})
	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM32, FormImm32}, Opcode: []byte{0xf7}, Extension: 0})
	add(&Definition{Mnemonic: TEST, Forms: []Form{FormRM64, FormImm32}, Opcode: []byte{0xf7}, Extension: 0, REXW: true})

	add(&Definition{Mnemonic: IMUL, Forms: []Form{FormR16, FormRM16}, Opcode: []byte{0x0f, 0xaf}, Extension: noExt, Prefix66: true})
	add(&Definition{Mnemonic: IMUL, Forms: []Form{FormR32, FormRM32}, Opcode: []byte{0x0f, 0xaf}, Extension: noExt})
	add(&Definition{Mnemonic: IMUL, Forms: []Form{FormR64, FormRM64}, Opcode: []byte{0x0f, 0xaf}, Extension: noExt, REXW: true})

	// The one-operand f6/f7 group.
	unary := []struct {
		mnemonic Mnemonic
		ext      int8
	}{
		{NOT, 2},
		{NEG, 3},
		{MUL, 4},
		{DIV, 6},
		{IDIV, 7},
	}
	for _, op := range unary {
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM8}, Opcode: []byte{0xf6}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM16}, Opcode: []byte{0xf7}, Extension: op.ext, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM32}, Opcode: []byte{0xf7}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM64}, Opcode: []byte{0xf7}, Extension: op.ext, REXW: true})
	}

	for _, op := range []struct {
		mnemonic Mnemonic
		ext      int8
	}{
		{INC, 0},
		{DEC, 1},
	} {
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM8}, Opcode: []byte{0xfe}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM16}, Opcode: []byte{0xff}, Extension: op.ext, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM32}, Opcode: []byte{0xff}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM64}, Opcode: []byte{0xff}, Extension: op.ext, REXW: true})
	}

	// The shift group.
	shifts := []struct {
		mnemonic Mnemonic
		ext      int8
	}{
		{SHL, 4},
		{SHR, 5},
		{SAR, 7},
	}
	for _, op := range shifts {
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM8, FormImm8}, Opcode: []byte{0xc0}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM16, FormImm8}, Opcode: []byte{0xc1}, Extension: op.ext, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM32, FormImm8}, Opcode: []byte{0xc1}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM64, FormImm8}, Opcode: []byte{0xc1}, Extension: op.ext, REXW: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM8, FormCL}, Opcode: []byte{0xd2}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM16, FormCL}, Opcode: []byte{0xd3}, Extension: op.ext, Prefix66: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM32, FormCL}, Opcode: []byte{0xd3}, Extension: op.ext})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormRM64, FormCL}, Opcode: []byte{0xd3}, Extension: op.ext, REXW: true})
	}

	add(&Definition{Mnemonic: CDQ, Forms: nil, Opcode: []byte{0x99}, Extension: noExt})
	add(&Definition{Mnemonic: CQO, Forms: nil, Opcode: []byte{0x99}, Extension: noExt, REXW: true})

	// Bit counting.
	bits := []struct {
		mnemonic Mnemonic
		opcode   byte
	}{
		{POPCNT, 0xb8},
		{TZCNT, 0xbc},
		{LZCNT, 0xbd},
	}
	for _, op := range bits {
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormR16, FormRM16}, Opcode: []byte{0x0f, op.opcode}, Extension: noExt, Prefix66: true, PrefixF3: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormR32, FormRM32}, Opcode: []byte{0x0f, op.opcode}, Extension: noExt, PrefixF3: true})
		add(&Definition{Mnemonic: op.mnemonic, Forms: []Form{FormR64, FormRM64}, Opcode: []byte{0x0f, op.opcode}, Extension: noExt, REXW: true, PrefixF3: true})
	}

	// Control flow.
	add(&Definition{Mnemonic: CALL, Forms: []Form{FormRel32}, Opcode: []byte{0xe8}, Extension: noExt})
	add(&Definition{Mnemonic: CALL, Forms: []Form{FormRM64}, Opcode: []byte{0xff}, Extension: 2})
	add(&Definition{Mnemonic: RET, Forms: nil, Opcode: []byte{0xc3}, Extension: noExt})
	add(&Definition{Mnemonic: JMP, Forms: []Form{FormRel32}, Opcode: []byte{0xe9}, Extension: noExt})
	add(&Definition{Mnemonic: JMP, Forms: []Form{FormRM64}, Opcode: []byte{0xff}, Extension: 4})

	// Condition codes, Intel x86 manuals, Volume 1,
	// Appendix B.
	conds := []struct {
		jcc   Mnemonic
		setcc Mnemonic
		cc    byte
	}{
		{JB, SETB, 0x2},
		{JAE, SETAE, 0x3},
		{JE, SETE, 0x4},
		{JNE, SETNE, 0x5},
		{JBE, SETBE, 0x6},
		{JA, SETA, 0x7},
		{JL, SETL, 0xc},
		{JGE, SETGE, 0xd},
		{JLE, SETLE, 0xe},
		{JG, SETG, 0xf},
	}
	for _, op := range conds {
		add(&Definition{Mnemonic: op.jcc, Forms: []Form{FormRel32}, Opcode: []byte{0x0f, 0x80 + op.cc}, Extension: noExt})
		add(&Definition{Mnemonic: op.setcc, Forms: []Form{FormRM8}, Opcode: []byte{0x0f, 0x90 + op.cc}, Extension: 0})
	}

	// Miscellaneous.
	add(&Definition{Mnemonic: SYSCALL, Forms: nil, Opcode: []byte{0x0f, 0x05}, Extension: noExt})
	add(&Definition{Mnemonic: NOP, Forms: nil, Opcode: []byte{0x90}, Extension: noExt})
	add(&Definition{Mnemonic: UD2, Forms: nil, Opcode: []byte{0x0f, 0x0b}, Extension: noExt})
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"fmt"
)

// Register contains information about an x86-64 register,
// including its size in bits and its 4-bit encoding.
type Register struct {
	Name string
	Type RegisterType
	Reg  byte // The 4-bit encoding of the register.
	Bits int
}

func (r *Register) String() string { return r.Name }

// IsRegister helps Register implement sys.Location.
func (r *Register) IsRegister() bool { return true }

// Classification helpers.

// IsHighByte returns whether r is one of the legacy
// high-byte registers AH, CH, DH, and BH, which cannot
// be encoded in an instruction carrying a REX prefix.
func (r *Register) IsHighByte() bool {
	switch r {
	case AH, CH, DH, BH:
		return true
	}

	return false
}

// RequiresREX returns whether r can only be encoded
// with a REX prefix. This is the case for the uniform
// byte registers SPL, BPL, SIL, and DIL, which share
// their 3-bit encodings with the high-byte registers,
// and for the extended register set R8-R15.
func (r *Register) RequiresREX() bool {
	switch r {
	case SPL, BPL, SIL, DIL:
		return true
	}

	return r.Reg > 7
}

// EVEXendsREX is deliberately absent: the encoder has no
// VEX or EVEX support, so the 4-bit encoding splits into
// a 3-bit field plus one REX bit.

// ModRM returns the encoding form to store the register
// in a ModR/M field or an opcode byte.
//
// `field` indicates whether the fourth encoding bit is
// set, which must be carried in a REX field (REX.R,
// REX.X, or REX.B, depending on position).
//
// `reg` is the 3-bit identifier for the register.
func (r *Register) ModRM() (field bool, reg byte) {
	return (r.Reg & 0b1000) != 0, r.Reg & 7
}

var (
	// 8-bit registers.
	AL   = &Register{Name: "al", Type: TypeGeneralPurpose, Reg: 0x0, Bits: 8}
	CL   = &Register{Name: "cl", Type: TypeGeneralPurpose, Reg: 0x1, Bits: 8}
	DL   = &Register{Name: "dl", Type: TypeGeneralPurpose, Reg: 0x2, Bits: 8}
	BL   = &Register{Name: "bl", Type: TypeGeneralPurpose, Reg: 0x3, Bits: 8}
	AH   = &Register{Name: "ah", Type: TypeGeneralPurpose, Reg: 0x4, Bits: 8}
	CH   = &Register{Name: "ch", Type: TypeGeneralPurpose, Reg: 0x5, Bits: 8}
	DH   = &Register{Name: "dh", Type: TypeGeneralPurpose, Reg: 0x6, Bits: 8}
	BH   = &Register{Name: "bh", Type: TypeGeneralPurpose, Reg: 0x7, Bits: 8}
	SPL  = &Register{Name: "spl", Type: TypeGeneralPurpose, Reg: 0x4, Bits: 8}
	BPL  = &Register{Name: "bpl", Type: TypeGeneralPurpose, Reg: 0x5, Bits: 8}
	SIL  = &Register{Name: "sil", Type: TypeGeneralPurpose, Reg: 0x6, Bits: 8}
	DIL  = &Register{Name: "dil", Type: TypeGeneralPurpose, Reg: 0x7, Bits: 8}
	R8B  = &Register{Name: "r8b", Type: TypeGeneralPurpose, Reg: 0x8, Bits: 8}
	R9B  = &Register{Name: "r9b", Type: TypeGeneralPurpose, Reg: 0x9, Bits: 8}
	R10B = &Register{Name: "r10b", Type: TypeGeneralPurpose, Reg: 0xa, Bits: 8}
	R11B = &Register{Name: "r11b", Type: TypeGeneralPurpose, Reg: 0xb, Bits: 8}
	R12B = &Register{Name: "r12b", Type: TypeGeneralPurpose, Reg: 0xc, Bits: 8}
	R13B = &Register{Name: "r13b", Type: TypeGeneralPurpose, Reg: 0xd, Bits: 8}
	R14B = &Register{Name: "r14b", Type: TypeGeneralPurpose, Reg: 0xe, Bits: 8}
	R15B = &Register{Name: "r15b", Type: TypeGeneralPurpose, Reg: 0xf, Bits: 8}

	// 16-bit registers.
	AX   = &Register{Name: "ax", Type: TypeGeneralPurpose, Reg: 0x0, Bits: 16}
	CX   = &Register{Name: "cx", Type: TypeGeneralPurpose, Reg: 0x1, Bits: 16}
	DX   = &Register{Name: "dx", Type: TypeGeneralPurpose, Reg: 0x2, Bits: 16}
	BX   = &Register{Name: "bx", Type: TypeGeneralPurpose, Reg: 0x3, Bits: 16}
	SP   = &Register{Name: "sp", Type: TypeGeneralPurpose, Reg: 0x4, Bits: 16}
	BP   = &Register{Name: "bp", Type: TypeGeneralPurpose, Reg: 0x5, Bits: 16}
	SI   = &Register{Name: "si", Type: TypeGeneralPurpose, Reg: 0x6, Bits: 16}
	DI   = &Register{Name: "di", Type: TypeGeneralPurpose, Reg: 0x7, Bits: 16}
	R8W  = &Register{Name: "r8w", Type: TypeGeneralPurpose, Reg: 0x8, Bits: 16}
	R9W  = &Register{Name: "r9w", Type: TypeGeneralPurpose, Reg: 0x9, Bits: 16}
	R10W = &Register{Name: "r10w", Type: TypeGeneralPurpose, Reg: 0xa, Bits: 16}
	R11W = &Register{Name: "r11w", Type: TypeGeneralPurpose, Reg: 0xb, Bits: 16}
	R12W = &Register{Name: "r12w", Type: TypeGeneralPurpose, Reg: 0xc, Bits: 16}
	R13W = &Register{Name: "r13w", Type: TypeGeneralPurpose, Reg: 0xd, Bits: 16}
	R14W = &Register{Name: "r14w", Type: TypeGeneralPurpose, Reg: 0xe, Bits: 16}
	R15W = &Register{Name: "r15w", Type: TypeGeneralPurpose, Reg: 0xf, Bits: 16}

	// 32-bit registers.
	EAX  = &Register{Name: "eax", Type: TypeGeneralPurpose, Reg: 0x0, Bits: 32}
	ECX  = &Register{Name: "ecx", Type: TypeGeneralPurpose, Reg: 0x1, Bits: 32}
	EDX  = &Register{Name: "edx", Type: TypeGeneralPurpose, Reg: 0x2, Bits: 32}
	EBX  = &Register{Name: "ebx", Type: TypeGeneralPurpose, Reg: 0x3, Bits: 32}
	ESP  = &Register{Name: "esp", Type: TypeGeneralPurpose, Reg: 0x4, Bits: 32}
	EBP  = &Register{Name: "ebp", Type: TypeGeneralPurpose, Reg: 0x5, Bits: 32}
	ESI  = &Register{Name: "esi", Type: TypeGeneralPurpose, Reg: 0x6, Bits: 32}
	EDI  = &Register{Name: "edi", Type: TypeGeneralPurpose, Reg: 0x7, Bits: 32}
	R8D  = &Register{Name: "r8d", Type: TypeGeneralPurpose, Reg: 0x8, Bits: 32}
	R9D  = &Register{Name: "r9d", Type: TypeGeneralPurpose, Reg: 0x9, Bits: 32}
	R10D = &Register{Name: "r10d", Type: TypeGeneralPurpose, Reg: 0xa, Bits: 32}
	R11D = &Register{Name: "r11d", Type: TypeGeneralPurpose, Reg: 0xb, Bits: 32}
	R12D = &Register{Name: "r12d", Type: TypeGeneralPurpose, Reg: 0xc, Bits: 32}
	R13D = &Register{Name: "r13d", Type: TypeGeneralPurpose, Reg: 0xd, Bits: 32}
	R14D = &Register{Name: "r14d", Type: TypeGeneralPurpose, Reg: 0xe, Bits: 32}
	R15D = &Register{Name: "r15d", Type: TypeGeneralPurpose, Reg: 0xf, Bits: 32}

	// 64-bit registers.
	RAX = &Register{Name: "rax", Type: TypeGeneralPurpose, Reg: 0x0, Bits: 64}
	RCX = &Register{Name: "rcx", Type: TypeGeneralPurpose, Reg: 0x1, Bits: 64}
	RDX = &Register{Name: "rdx", Type: TypeGeneralPurpose, Reg: 0x2, Bits: 64}
	RBX = &Register{Name: "rbx", Type: TypeGeneralPurpose, Reg: 0x3, Bits: 64}
	RSP = &Register{Name: "rsp", Type: TypeGeneralPurpose, Reg: 0x4, Bits: 64}
	RBP = &Register{Name: "rbp", Type: TypeGeneralPurpose, Reg: 0x5, Bits: 64}
	RSI = &Register{Name: "rsi", Type: TypeGeneralPurpose, Reg: 0x6, Bits: 64}
	RDI = &Register{Name: "rdi", Type: TypeGeneralPurpose, Reg: 0x7, Bits: 64}
	R8  = &Register{Name: "r8", Type: TypeGeneralPurpose, Reg: 0x8, Bits: 64}
	R9  = &Register{Name: "r9", Type: TypeGeneralPurpose, Reg: 0x9, Bits: 64}
	R10 = &Register{Name: "r10", Type: TypeGeneralPurpose, Reg: 0xa, Bits: 64}
	R11 = &Register{Name: "r11", Type: TypeGeneralPurpose, Reg: 0xb, Bits: 64}
	R12 = &Register{Name: "r12", Type: TypeGeneralPurpose, Reg: 0xc, Bits: 64}
	R13 = &Register{Name: "r13", Type: TypeGeneralPurpose, Reg: 0xd, Bits: 64}
	R14 = &Register{Name: "r14", Type: TypeGeneralPurpose, Reg: 0xe, Bits: 64}
	R15 = &Register{Name: "r15", Type: TypeGeneralPurpose, Reg: 0xf, Bits: 64}

	// Instruction pointer.
	RIP = &Register{Name: "rip", Type: TypeInstructionPointer, Bits: 64}

	// Segment registers. Only the FS and GS overrides have
	// an effect in 64-bit mode.
	FS = &Register{Name: "fs", Type: TypeSegment, Reg: 0x4, Bits: 16}
	GS = &Register{Name: "gs", Type: TypeSegment, Reg: 0x5, Bits: 16}
)

// Registers contains all of the registers the encoder
// understands.
var Registers = []*Register{
	AL, CL, DL, BL, AH, CH, DH, BH,
	SPL, BPL, SIL, DIL,
	R8B, R9B, R10B, R11B, R12B, R13B, R14B, R15B,

	AX, CX, DX, BX, SP, BP, SI, DI,
	R8W, R9W, R10W, R11W, R12W, R13W, R14W, R15W,

	EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI,
	R8D, R9D, R10D, R11D, R12D, R13D, R14D, R15D,

	RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI,
	R8, R9, R10, R11, R12, R13, R14, R15,

	RIP,
	FS, GS,
}

// RegistersByName maps register names (lower case) to
// their registers.
var RegistersByName = make(map[string]*Register)

func init() {
	for _, reg := range Registers {
		RegistersByName[reg.Name] = reg
	}
}

// RegisterType categorises an x86-64 register.
type RegisterType uint8

const (
	_ RegisterType = iota
	TypeGeneralPurpose
	TypeInstructionPointer
	TypeSegment
)

func (t RegisterType) String() string {
	switch t {
	case TypeGeneralPurpose:
		return "general purpose register"
	case TypeInstructionPointer:
		return "instruction pointer register"
	case TypeSegment:
		return "segment register"
	default:
		return fmt.Sprintf("RegisterType(%d)", t)
	}
}

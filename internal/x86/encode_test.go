// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		Name string
		Inst *Instruction
		Want []byte
	}{
		{
			Name: "register to register",
			Inst: Inst(MOV, RAX, RCX),
			Want: []byte{0x48, 0x89, 0xc8},
		},
		{
			Name: "stack pointer base forces SIB",
			Inst: Inst(MOV, R8, &Memory{Base: RSP}),
			Want: []byte{0x4c, 0x8b, 0x04, 0x24},
		},
		{
			Name: "base index scale disp8",
			Inst: Inst(MOV, RAX, &Memory{Base: RCX, Index: RSI, Scale: 4, Disp: 0x10}),
			Want: []byte{0x48, 0x8b, 0x44, 0xb1, 0x10},
		},
		{
			Name: "negative disp8 store",
			Inst: Inst(MOV, &Memory{Base: RBP, Disp: -8}, RDI),
			Want: []byte{0x48, 0x89, 0x7d, 0xf8},
		},
		{
			Name: "32-bit load without REX",
			Inst: Inst(MOV, EAX, &Memory{Base: RBX}),
			Want: []byte{0x8b, 0x03},
		},
		{
			Name: "r13 base needs explicit zero disp8",
			Inst: Inst(MOV, R13, &Memory{Base: R13}),
			Want: []byte{0x4d, 0x8b, 0x6d, 0x00},
		},
		{
			Name: "zero extending byte load",
			Inst: Inst(MOVZX, ECX, &Memory{Base: RAX, Width: 8}),
			Want: []byte{0x0f, 0xb6, 0x08},
		},
		{
			Name: "64-bit immediate",
			Inst: Inst(MOV, RAX, Imm64(0x1122334455667788)),
			Want: []byte{0x48, 0xb8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11},
		},
		{
			Name: "register in opcode with extension bit",
			Inst: Inst(MOV, R9D, Imm32(7)),
			Want: []byte{0x41, 0xb9, 0x07, 0x00, 0x00, 0x00},
		},
		{
			Name: "64-bit register with 32-bit immediate",
			Inst: Inst(MOV, RDX, Imm32(-1)),
			Want: []byte{0x48, 0xc7, 0xc2, 0xff, 0xff, 0xff, 0xff},
		},
		{
			Name: "sub with sign extended imm8",
			Inst: Inst(SUB, RSP, Imm8(0x20)),
			Want: []byte{0x48, 0x83, 0xec, 0x20},
		},
		{
			Name: "add register forms",
			Inst: Inst(ADD, RBX, RBP),
			Want: []byte{0x48, 0x01, 0xeb},
		},
		{
			Name: "xor 32-bit clears upper half",
			Inst: Inst(XOR, EDI, EDI),
			Want: []byte{0x31, 0xff},
		},
		{
			Name: "cmp imm32",
			Inst: Inst(CMP, RAX, Imm32(0x1000)),
			Want: []byte{0x48, 0x81, 0xf8, 0x00, 0x10, 0x00, 0x00},
		},
		{
			Name: "test register pair",
			Inst: Inst(TEST, RAX, RAX),
			Want: []byte{0x48, 0x85, 0xc0},
		},
		{
			Name: "two operand imul",
			Inst: Inst(IMUL, RAX, RCX),
			Want: []byte{0x48, 0x0f, 0xaf, 0xc1},
		},
		{
			Name: "signed divide",
			Inst: Inst(IDIV, RCX),
			Want: []byte{0x48, 0xf7, 0xf9},
		},
		{
			Name: "shift by cl",
			Inst: Inst(SHL, RAX, CL),
			Want: []byte{0x48, 0xd3, 0xe0},
		},
		{
			Name: "shift by imm8",
			Inst: Inst(SAR, RDX, Imm8(3)),
			Want: []byte{0x48, 0xc1, 0xfa, 0x03},
		},
		{
			Name: "push extended register",
			Inst: Inst(PUSH, R12),
			Want: []byte{0x41, 0x54},
		},
		{
			Name: "pop",
			Inst: Inst(POP, RBP),
			Want: []byte{0x5d},
		},
		{
			Name: "lea with disp32",
			Inst: Inst(LEA, RAX, &Memory{Base: RSP, Disp: 0x100}),
			Want: []byte{0x48, 0x8d, 0x84, 0x24, 0x00, 0x01, 0x00, 0x00},
		},
		{
			Name: "sign extend dword",
			Inst: Inst(MOVSXD, RAX, ECX),
			Want: []byte{0x48, 0x63, 0xc1},
		},
		{
			Name: "sign extend quadword pair",
			Inst: Inst(CQO),
			Want: []byte{0x48, 0x99},
		},
		{
			Name: "population count",
			Inst: Inst(POPCNT, EAX, ECX),
			Want: []byte{0xf3, 0x0f, 0xb8, 0xc1},
		},
		{
			Name: "leading zero count with REX.W",
			Inst: Inst(LZCNT, RAX, RCX),
			Want: []byte{0xf3, 0x48, 0x0f, 0xbd, 0xc1},
		},
		{
			Name: "trailing zero count on extended register",
			Inst: Inst(TZCNT, R9, R9),
			Want: []byte{0xf3, 0x4d, 0x0f, 0xbc, 0xc9},
		},
		{
			Name: "setcc needs modrm extension",
			Inst: Inst(SETL, AL),
			Want: []byte{0x0f, 0x9c, 0xc0},
		},
		{
			Name: "setcc on extended low byte",
			Inst: Inst(SETE, R8B),
			Want: []byte{0x41, 0x0f, 0x94, 0xc0},
		},
		{
			Name: "low byte of rsi needs bare REX",
			Inst: Inst(MOV, SIL, Imm8(1)),
			Want: []byte{0x40, 0xb6, 0x01},
		},
		{
			Name: "high byte without REX",
			Inst: Inst(MOV, AH, Imm8(1)),
			Want: []byte{0xb4, 0x01},
		},
		{
			Name: "16-bit operand size prefix",
			Inst: Inst(MOV, AX, CX),
			Want: []byte{0x66, 0x89, 0xc8},
		},
		{
			Name: "scaled index without base",
			Inst: Inst(MOV, RAX, &Memory{Index: RCX, Scale: 4, Disp: 0x10}),
			Want: []byte{0x48, 0x8b, 0x04, 0x8d, 0x10, 0x00, 0x00, 0x00},
		},
		{
			Name: "absolute address",
			Inst: Inst(MOV, EAX, &Memory{Disp: 0x402000}),
			Want: []byte{0x8b, 0x04, 0x25, 0x00, 0x20, 0x40, 0x00},
		},
		{
			Name: "absolute address always takes disp32",
			Inst: Inst(MOV, EAX, &Memory{}),
			Want: []byte{0x8b, 0x04, 0x25, 0x00, 0x00, 0x00, 0x00},
		},
		{
			Name: "extended index without base",
			Inst: Inst(MOV, RAX, &Memory{Index: R9, Scale: 8, Disp: -0x20}),
			Want: []byte{0x4a, 0x8b, 0x04, 0xcd, 0xe0, 0xff, 0xff, 0xff},
		},
		{
			Name: "fs segment override",
			Inst: Inst(MOV, RAX, &Memory{Segment: FS, Base: RBX}),
			Want: []byte{0x64, 0x48, 0x8b, 0x03},
		},
		{
			Name: "syscall",
			Inst: Inst(SYSCALL),
			Want: []byte{0x0f, 0x05},
		},
		{
			Name: "ret",
			Inst: Inst(RET),
			Want: []byte{0xc3},
		},
		{
			Name: "ud2",
			Inst: Inst(UD2),
			Want: []byte{0x0f, 0x0b},
		},
		{
			Name: "indirect call through register",
			Inst: Inst(CALL, RAX),
			Want: []byte{0xff, 0xd0},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := Encode(test.Inst, 0, nil)
			if err != nil {
				t.Fatalf("Encode(%s): %v", test.Inst, err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("Encode(%s): (-want, +got)\n%s", test.Inst, diff)
			}
		})
	}
}

func TestEncodeRelative(t *testing.T) {
	labels := map[string]uint64{
		"main":    0x401000,
		"exit":    0x401080,
		"message": 0x402000,
	}

	tests := []struct {
		Name   string
		Inst   *Instruction
		Addr   uint64
		Labels map[string]uint64
		Want   []byte
	}{
		{
			Name:   "forward call",
			Inst:   Inst(CALL, Rel32("exit")),
			Addr:   0x401010,
			Labels: labels,
			// 0x401080 - 0x401010 - 5 = 0x6b.
			Want: []byte{0xe8, 0x6b, 0x00, 0x00, 0x00},
		},
		{
			Name:   "backward jump",
			Inst:   Inst(JMP, Rel32("main")),
			Addr:   0x401020,
			Labels: labels,
			// 0x401000 - 0x401020 - 5 = -0x25.
			Want: []byte{0xe9, 0xdb, 0xff, 0xff, 0xff},
		},
		{
			Name:   "conditional jump",
			Inst:   Inst(JNE, Rel32("exit")),
			Addr:   0x401040,
			Labels: labels,
			// 0x401080 - 0x401040 - 6 = 0x3a.
			Want: []byte{0x0f, 0x85, 0x3a, 0x00, 0x00, 0x00},
		},
		{
			Name:   "rip relative load",
			Inst:   Inst(LEA, RSI, &Memory{Base: RIP, Symbol: "message"}),
			Addr:   0x401010,
			Labels: labels,
			// 0x402000 - 0x401010 - 7 = 0xfe9.
			Want: []byte{0x48, 0x8d, 0x35, 0xe9, 0x0f, 0x00, 0x00},
		},
		{
			Name: "sizing pass resolves symbols to zero",
			Inst: Inst(CALL, Rel32("exit")),
			Addr: 0x401010,
			Want: []byte{0xe8, 0x00, 0x00, 0x00, 0x00},
		},
		{
			Name: "sizing pass on rip relative",
			Inst: Inst(MOV, RAX, &Memory{Base: RIP, Symbol: "message"}),
			Addr: 0x401010,
			Want: []byte{0x48, 0x8b, 0x05, 0x00, 0x00, 0x00, 0x00},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := Encode(test.Inst, test.Addr, test.Labels)
			if err != nil {
				t.Fatalf("Encode(%s): %v", test.Inst, err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("Encode(%s): (-want, +got)\n%s", test.Inst, diff)
			}
		})
	}
}

// TestEncodeLength checks that the length of an
// instruction in the sizing pass matches its length once
// symbols resolve, which a two-pass assembler depends on.
func TestEncodeLength(t *testing.T) {
	labels := map[string]uint64{
		"target": 0x7fff_0000,
		"datum":  0x6000_0000,
	}

	tests := []*Instruction{
		Inst(CALL, Rel32("target")),
		Inst(JMP, Rel32("target")),
		Inst(JGE, Rel32("target")),
		Inst(LEA, RDI, &Memory{Base: RIP, Symbol: "datum"}),
		Inst(MOV, R10, &Memory{Base: RIP, Symbol: "datum", Disp: 8}),
	}

	for _, inst := range tests {
		sized, err := Encode(inst, 0x7000_0000, nil)
		if err != nil {
			t.Fatalf("Encode(%s) sizing: %v", inst, err)
		}

		final, err := Encode(inst, 0x7000_0000, labels)
		if err != nil {
			t.Fatalf("Encode(%s): %v", inst, err)
		}

		if len(sized) != len(final) {
			t.Errorf("Encode(%s): sizing pass gave %d bytes, final pass %d", inst, len(sized), len(final))
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		Name   string
		Inst   *Instruction
		Labels map[string]uint64
		Err    error
	}{
		{
			Name: "unsupported mnemonic",
			Inst: Inst(Mnemonic(0xfe), RAX),
			Err:  ErrUnsupportedInstruction,
		},
		{
			Name: "no form for operand widths",
			Inst: Inst(MOV, RAX, ECX),
			Err:  ErrNoMatchingEncodingForm,
		},
		{
			Name: "no form for memory to memory",
			Inst: Inst(MOV, &Memory{Base: RAX}, &Memory{Base: RCX}),
			Err:  ErrNoMatchingEncodingForm,
		},
		{
			Name: "stack pointer as index",
			Inst: Inst(MOV, RAX, &Memory{Base: RBX, Index: RSP, Scale: 1}),
			Err:  ErrInvalidIndexRegister,
		},
		{
			Name: "high byte with extended register",
			Inst: Inst(MOV, AH, R8B),
			Err:  ErrRexHighByteConflict,
		},
		{
			Name: "high byte with REX.W",
			Inst: Inst(MOVZX, R9, AH),
			Err:  ErrRexHighByteConflict,
		},
		{
			Name: "immediate out of range",
			Inst: Inst(MOV, AL, Immediate{Bits: 8, Value: 0x100}),
			Err:  ErrInvalidImmediateWidth,
		},
		{
			Name: "64-bit immediate outside mov",
			Inst: Inst(ADD, RAX, Imm64(5)),
			Err:  ErrInvalidImmediateWidth,
		},
		{
			Name: "64-bit immediate on 32-bit mov",
			Inst: Inst(MOV, EAX, Imm64(5)),
			Err:  ErrInvalidImmediateWidth,
		},
		{
			Name: "bad scale without base",
			Inst: Inst(MOV, RAX, &Memory{Index: RCX, Scale: 5}),
			Err:  ErrUnsupportedAddressingMode,
		},
		{
			Name: "rip relative with index",
			Inst: Inst(MOV, RAX, &Memory{Base: RIP, Index: RCX, Scale: 1}),
			Err:  ErrUnsupportedAddressingMode,
		},
		{
			Name: "32-bit base register",
			Inst: Inst(MOV, RAX, &Memory{Base: EBX}),
			Err:  ErrUnsupportedAddressingMode,
		},
		{
			Name: "bad scale",
			Inst: Inst(MOV, RAX, &Memory{Base: RBX, Index: RCX, Scale: 3}),
			Err:  ErrUnsupportedAddressingMode,
		},
		{
			Name:   "unknown label",
			Inst:   Inst(CALL, Rel32("missing")),
			Labels: map[string]uint64{"main": 0x401000},
			Err:    ErrUnknownLabel,
		},
		{
			Name:   "unknown rip relative symbol",
			Inst:   Inst(LEA, RAX, &Memory{Base: RIP, Symbol: "missing"}),
			Labels: map[string]uint64{"main": 0x401000},
			Err:    ErrUnknownLabel,
		},
		{
			Name:   "code offset out of range",
			Inst:   Inst(JMP, Rel32("far")),
			Labels: map[string]uint64{"far": 0x2_0000_0000},
			Err:    ErrDisplacementOverflow,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := Encode(test.Inst, 0x401000, test.Labels)
			if err == nil {
				t.Fatalf("Encode(%s): got % x, want error %v", test.Inst, got, test.Err)
			}

			if !errors.Is(err, test.Err) {
				t.Fatalf("Encode(%s): got error %v, want %v", test.Inst, err, test.Err)
			}
		})
	}
}

// TestEncodeDeterministic checks that encoding the same
// instruction twice gives identical bytes and that a
// position-independent instruction does not depend on its
// address.
func TestEncodeDeterministic(t *testing.T) {
	inst := Inst(ADD, RAX, &Memory{Base: RBX, Index: RCX, Scale: 8, Disp: -0x40})

	first, err := Encode(inst, 0x1000, nil)
	if err != nil {
		t.Fatal(err)
	}

	second, err := Encode(inst, 0xdead_0000, nil)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Encode(%s) depends on its address: (-first, +second)\n%s", inst, diff)
	}
}

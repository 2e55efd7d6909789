// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package sys defines the characteristics of the machine
// architectures the assembler can target.
package sys

import (
	"encoding/binary"
	"fmt"

	"github.com/hemashushu/xiaoxuan-assembly/internal/x86"
)

// Arch defines the characteristics of a machine architecture.
//
// An architecture with no Arch data is not implemented by
// this toolchain.
type Arch struct {
	Name string

	PointerSize  int // The size of a memory address in bytes.
	RegisterSize int // The capacity of a general-purpose register in bytes.
	ByteOrder    binary.ByteOrder

	// The architecture's stack register.
	StackPointer *x86.Register

	// Whether the stack grows downward. If
	// true, successive stack locations will
	// have smaller addresses.
	StackGrowsDown bool

	// The alignment of the stack at the point
	// of a function call in bytes.
	StackAlignment int

	// ABI details.
	ABI ABI
}

// ReadPointer returns a pointer from the given machine
// code, according to the architecture's pointer size and
// byte order.
func (a *Arch) ReadPointer(b []byte) uintptr {
	switch a.PointerSize {
	case 4:
		return uintptr(a.ByteOrder.Uint32(b))
	case 8:
		return uintptr(a.ByteOrder.Uint64(b))
	default:
		panic(fmt.Sprintf("architecture %s has unexpected pointer size %d", a.Name, a.PointerSize))
	}
}

// WritePointer writes a pointer to the given machine code,
// according to the architecture's pointer size and byte
// order.
func (a *Arch) WritePointer(b []byte, ptr uintptr) {
	switch a.PointerSize {
	case 4:
		a.ByteOrder.PutUint32(b, uint32(ptr))
	case 8:
		a.ByteOrder.PutUint64(b, uint64(ptr))
	default:
		panic(fmt.Sprintf("architecture %s has unexpected pointer size %d", a.Name, a.PointerSize))
	}
}

var X86_64 = &Arch{
	Name:           "x86-64",
	PointerSize:    8,
	RegisterSize:   8,
	ByteOrder:      binary.LittleEndian,
	StackPointer:   x86.RSP,
	StackGrowsDown: true,
	StackAlignment: 16,
	ABI: ABI{
		ParamRegisters:   []*x86.Register{x86.RDI, x86.RSI, x86.RDX, x86.RCX, x86.R8, x86.R9},
		ResultRegister:   x86.RAX,
		SyscallRegisters: []*x86.Register{x86.RDI, x86.RSI, x86.RDX, x86.R10, x86.R8, x86.R9},
		SyscallNumber:    x86.RAX,
		// Callee-saved registers the code generator may
		// use for expression evaluation.
		EvaluationRegisters: []*x86.Register{x86.RBX, x86.R12, x86.R13, x86.R14, x86.R15},
	},
}

// All is a list of all supported architectures.
var All = [...]*Arch{
	X86_64,
}

// ArchByName maps architecture names to their
// metadata.
var ArchByName = map[string]*Arch{
	X86_64.Name: X86_64,
}

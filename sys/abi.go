// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package sys

import (
	"fmt"

	"github.com/hemashushu/xiaoxuan-assembly/internal/x86"
)

// Location represents a single location in memory.
// This is used to describe aspects of a function's
// calling convention. A location will typically be
// either a CPU register or an offset into the call
// stack.
type Location interface {
	IsRegister() bool
	String() string
}

var (
	_ Location = (*x86.Register)(nil)
)

// Stack represents a location on the stack, which
// is a common Location.
type Stack struct {
	Pointer Location // The base register.
	Offset  int      // An offset from the base register.
}

var _ Location = Stack{}

func (s Stack) IsRegister() bool { return false }
func (s Stack) String() string   { return fmt.Sprintf("%s%+d", s.Pointer, s.Offset) }

// An ABI describes the calling convention for functions
// on an architecture. This consists of the registers that
// carry parameters and results, the registers used to pass
// arguments to the kernel, and the registers available as
// scratch space for expression evaluation.
type ABI struct {
	// The sequence of registers used to carry
	// parameters. Parameters that do not fit
	// are passed on the stack.
	ParamRegisters []*x86.Register

	// The register that carries a function's
	// first result.
	ResultRegister *x86.Register

	// The sequence of registers used to carry
	// the arguments to a system call.
	SyscallRegisters []*x86.Register

	// The register that carries the system
	// call number.
	SyscallNumber *x86.Register

	// The set of registers a function may use
	// for expression evaluation after saving
	// them in its prologue.
	EvaluationRegisters []*x86.Register
}

// Parameters allocates memory locations to the
// parameters of a function with the given number
// of parameters. Parameters beyond the ABI's
// parameter registers are read from the caller's
// stack, relative to the frame pointer. The frame
// layout places the first stack parameter just
// above the return address and the saved frame
// pointer.
func (arch *Arch) Parameters(n int) []Location {
	abi := &arch.ABI
	out := make([]Location, n)
	for i := range out {
		if i < len(abi.ParamRegisters) {
			out[i] = abi.ParamRegisters[i]
			continue
		}

		out[i] = Stack{
			Pointer: x86.RBP,
			Offset:  2*arch.PointerSize + (i-len(abi.ParamRegisters))*arch.PointerSize,
		}
	}

	return out
}

// SyscallParameters allocates registers to the
// arguments of a system call. The returned error
// is non-nil if the architecture cannot pass the
// given number of arguments to the kernel in
// registers.
func (arch *Arch) SyscallParameters(n int) ([]*x86.Register, error) {
	abi := &arch.ABI
	if n > len(abi.SyscallRegisters) {
		return nil, fmt.Errorf("cannot pass %d system call arguments on %s: at most %d are supported", n, arch.Name, len(abi.SyscallRegisters))
	}

	return abi.SyscallRegisters[:n], nil
}

// Validate checks that the ABI is internally
// consistent for the given architecture.
func (arch *Arch) Validate() error {
	abi := &arch.ABI
	seen := make(map[*x86.Register]string)
	note := func(reg *x86.Register, use string) error {
		if reg == nil {
			return fmt.Errorf("invalid %s register: register is missing", use)
		}

		if reg.Bits != 8*arch.RegisterSize {
			return fmt.Errorf("invalid %s register %s: not a %d-bit register", use, reg, 8*arch.RegisterSize)
		}

		if prev, ok := seen[reg]; ok {
			return fmt.Errorf("invalid %s register %s: already listed as a %s register", use, reg, prev)
		}

		seen[reg] = use
		return nil
	}

	for _, reg := range abi.ParamRegisters {
		if err := note(reg, "parameter"); err != nil {
			return err
		}
	}

	if err := note(abi.ResultRegister, "result"); err != nil {
		return err
	}

	for _, reg := range abi.EvaluationRegisters {
		if err := note(reg, "evaluation"); err != nil {
			return err
		}
	}

	// The system call registers may overlap with the
	// parameter and result registers, but must not
	// overlap with the evaluation registers, which
	// hold live values across a system call.
	clear(seen)
	for _, reg := range abi.EvaluationRegisters {
		seen[reg] = "evaluation"
	}

	for _, reg := range abi.SyscallRegisters {
		if prev, ok := seen[reg]; ok {
			return fmt.Errorf("invalid system call register %s: already listed as a %s register", reg, prev)
		}
	}

	if prev, ok := seen[abi.SyscallNumber]; ok {
		return fmt.Errorf("invalid system call number register %s: already listed as a %s register", abi.SyscallNumber, prev)
	}

	return nil
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package sys

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hemashushu/xiaoxuan-assembly/internal/x86"
)

func TestDefaultABIs(t *testing.T) {
	for _, arch := range All {
		t.Run(arch.Name, func(t *testing.T) {
			err := arch.Validate()
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestParameters(t *testing.T) {
	tests := []struct {
		Name   string
		Arch   *Arch
		Params int
		Want   []Location
	}{
		{
			Name:   "x86-64 registers only",
			Arch:   X86_64,
			Params: 3,
			Want: []Location{
				x86.RDI,
				x86.RSI,
				x86.RDX,
			},
		},
		{
			Name:   "x86-64 stack spill",
			Arch:   X86_64,
			Params: 8,
			Want: []Location{
				x86.RDI,
				x86.RSI,
				x86.RDX,
				x86.RCX,
				x86.R8,
				x86.R9,
				Stack{Pointer: x86.RBP, Offset: +16},
				Stack{Pointer: x86.RBP, Offset: +24},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			params := test.Arch.Parameters(test.Params)
			if diff := cmp.Diff(test.Want, params); diff != "" {
				t.Fatalf("Parameters(): (-want, +got)\n%s", diff)
			}

			// Do the same again to make
			// sure the implementation
			// does not mutate the arch.
			params = test.Arch.Parameters(test.Params)
			if diff := cmp.Diff(test.Want, params); diff != "" {
				t.Fatalf("repeated Parameters(): (-want, +got)\n%s", diff)
			}
		})
	}
}

func TestSyscallParameters(t *testing.T) {
	regs, err := X86_64.SyscallParameters(4)
	if err != nil {
		t.Fatal(err)
	}

	want := []*x86.Register{x86.RDI, x86.RSI, x86.RDX, x86.R10}
	if diff := cmp.Diff(want, regs); diff != "" {
		t.Fatalf("SyscallParameters(4): (-want, +got)\n%s", diff)
	}

	if _, err := X86_64.SyscallParameters(7); err == nil {
		t.Fatalf("SyscallParameters(7): got nil error, want error")
	}
}

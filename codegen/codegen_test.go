// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package codegen

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hemashushu/xiaoxuan-assembly/binary"
	"github.com/hemashushu/xiaoxuan-assembly/parser"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

func compile(t *testing.T, src string) (*binary.Binary, error) {
	t.Helper()
	fset := token.NewFileSet()
	module, err := parser.ParseFile(fset, "test.anasm", src, 0)
	if err != nil {
		t.Fatalf("ParseFile(): %v", err)
	}

	return Compile(fset, sys.X86_64, module)
}

// The standard prologue: push rbp, establish the frame
// pointer, save the five evaluation registers, then align
// the stack.
var prologue = []byte{
	0x55,             // push rbp
	0x48, 0x89, 0xe5, // mov rbp, rsp
	0x53,       // push rbx
	0x41, 0x54, // push r12
	0x41, 0x55, // push r13
	0x41, 0x56, // push r14
	0x41, 0x57, // push r15
	0x48, 0x83, 0xec, 0x08, // sub rsp, 8
}

// The matching epilogue.
var epilogue = []byte{
	0x48, 0x83, 0xc4, 0x08, // add rsp, 8
	0x41, 0x5f, // pop r15
	0x41, 0x5e, // pop r14
	0x41, 0x5d, // pop r13
	0x41, 0x5c, // pop r12
	0x5b, // pop rbx
	0x5d, // pop rbp
	0xc3, // ret
}

func flatten(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}

	return out
}

func TestCompileFunctions(t *testing.T) {
	tests := []struct {
		Name   string
		Source string
		Want   []byte
	}{
		{
			Name: "constant result",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function export $f (result i32)
						(code
							(i32.imm 7))))`,
			Want: flatten(
				prologue,
				[]byte{
					0xbb, 0x07, 0x00, 0x00, 0x00, // mov ebx, 7
					0x48, 0x89, 0xd8, // mov rax, rbx
				},
				epilogue,
			),
		},
		{
			Name: "exit system call",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function export $main
						(code
							(syscall 60 (i64.imm 0)))))`,
			Want: flatten(
				prologue,
				[]byte{
					0x48, 0xc7, 0xc3, 0x00, 0x00, 0x00, 0x00, // mov rbx, 0
					0x48, 0x89, 0xdf, // mov rdi, rbx
					0xb8, 0x3c, 0x00, 0x00, 0x00, // mov eax, 60
					0x0f, 0x05, // syscall
					0x48, 0x89, 0xc3, // mov rbx, rax
				},
				epilogue,
			),
		},
		{
			Name: "binary operator",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function export $f (result i32)
						(code
							(i32.add
								(i32.imm 1)
								(i32.imm 2)))))`,
			Want: flatten(
				prologue,
				[]byte{
					0xbb, 0x01, 0x00, 0x00, 0x00, // mov ebx, 1
					0x41, 0xbc, 0x02, 0x00, 0x00, 0x00, // mov r12d, 2
					0x44, 0x01, 0xe3, // add ebx, r12d
					0x48, 0x89, 0xd8, // mov rax, rbx
				},
				epilogue,
			),
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			bin, err := compile(t, test.Source)
			if err != nil {
				t.Fatalf("Compile(): %v", err)
			}

			if len(bin.Sections) == 0 || bin.Sections[0].Name != ".text" {
				t.Fatalf("Compile(): no text section")
			}

			if diff := cmp.Diff(test.Want, bin.Sections[0].Data); diff != "" {
				t.Fatalf("Compile(): text: (-want, +got)\n%s", diff)
			}
		})
	}
}

func TestCompileLayout(t *testing.T) {
	bin, err := compile(t, `
		(module $app
			(runtime_version "1.0")
			(data $greeting (read_only cstring "Hi"))
			(data $counter (read_write i64 7))
			(data export $buffer (uninit (bytes 64 8)))
			(function export $main
				(code
					(data.store64 $counter (data.load64_i64 $counter)))))`)
	if err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	type section struct {
		Name        string
		Address     uintptr
		Permissions binary.Permissions
		IsZeroed    bool
		Size        int
	}
	var sections []section
	for _, s := range bin.Sections {
		sections = append(sections, section{
			Name:        s.Name,
			Address:     s.Address,
			Permissions: s.Permissions,
			IsZeroed:    s.IsZeroed,
			Size:        len(s.Data),
		})
	}

	textSize := len(bin.Sections[0].Data)
	wantSections := []section{
		{Name: ".text", Address: 0x401000, Permissions: binary.Read | binary.Execute, Size: textSize},
		{Name: ".rodata", Address: 0x402000, Permissions: binary.Read, Size: 3},
		{Name: ".data", Address: 0x403000, Permissions: binary.Read | binary.Write, Size: 8},
		{Name: ".bss", Address: 0x404000, Permissions: binary.Read | binary.Write, IsZeroed: true, Size: 64},
	}
	if diff := cmp.Diff(wantSections, sections); diff != "" {
		t.Fatalf("Compile(): sections: (-want, +got)\n%s", diff)
	}

	if got, want := string(bin.Sections[1].Data), "Hi\x00"; got != want {
		t.Fatalf("Compile(): rodata: got %q, want %q", got, want)
	}
	if diff := cmp.Diff([]byte{7, 0, 0, 0, 0, 0, 0, 0}, bin.Sections[2].Data); diff != "" {
		t.Fatalf("Compile(): data: (-want, +got)\n%s", diff)
	}

	wantSymbols := []*binary.Symbol{
		{Name: "app.main", Kind: binary.SymbolFunction, Section: 0, Offset: 0, Address: 0x401000, Length: textSize},
		{Name: "app.greeting", Kind: binary.SymbolData, Section: 1, Offset: 0, Address: 0x402000, Length: 3},
		{Name: "app.counter", Kind: binary.SymbolData, Section: 2, Offset: 0, Address: 0x403000, Length: 8},
		{Name: "app.buffer", Kind: binary.SymbolData, Section: 3, Offset: 0, Address: 0x404000, Length: 64},
	}
	if diff := cmp.Diff(wantSymbols, bin.Symbols); diff != "" {
		t.Fatalf("Compile(): symbols: (-want, +got)\n%s", diff)
	}
}

// TestCompileControlFlow checks that the full instruction
// set lowers without error.
func TestCompileControlFlow(t *testing.T) {
	bin, err := compile(t, `
		(module $app
			(runtime_version "1.0")
			(data $total (read_write i64 0))
			(function $sum (param $n i64) (result i64)
				(code
					(for (param $i i64) (param $acc i64) (result i64)
						(do
							(if (result i64)
								(i64.ge_s
									(local.load64_i64 $i)
									(local.load64_i64 $n))
								(break (local.load64_i64 $acc))
								(recur
									(i64.inc 1 (local.load64_i64 $i))
									(i64.add
										(local.load64_i64 $acc)
										(local.load64_i64 $i))))))))
			(function export $main (result i64)
				(local $x i64)
				(code
					(local.store64 $x
						(call $sum (i64.imm 10)))
					(when (i64.nez (local.load64_i64 $x))
						(data.store64 $total (local.load64_i64 $x)))
					(branch (result i64)
						(case (i64.eqz (local.load64_i64 $x))
							(i64.imm 0))
						(default
							(local.load64_i64 $x))))))`)
	if err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	var names []string
	for _, sym := range bin.Symbols {
		names = append(names, sym.Name)
	}

	want := []string{"app.sum", "app.main", "app.total"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("Compile(): symbols: (-want, +got)\n%s", diff)
	}

	if len(bin.Sections[0].Data) == 0 {
		t.Fatalf("Compile(): text section is empty")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		Name   string
		Source string
		Want   string
	}{
		{
			Name: "undefined local",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function $f
						(code
							(local.load64_i64 $missing))))`,
			Want: "undefined local variable $missing",
		},
		{
			Name: "undefined function",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function $f
						(code
							(call $missing))))`,
			Want: "undefined function $missing",
		},
		{
			Name: "call to imported function",
			Source: `
				(module $app
					(runtime_version "1.0")
					(import (module "std")
						(function $copy "std::memory::copy" (param i64) (param i64) (result i64)))
					(function $f
						(code
							(call $copy (i64.imm 0) (i64.imm 0)))))`,
			Want: "function $copy is imported from std::memory::copy and cannot be assembled",
		},
		{
			Name: "call to external function",
			Source: `
				(module $app
					(runtime_version "1.0")
					(external (library "libc.so.6")
						(function $abs "abs" (param i32) (result i32)))
					(function $f
						(code
							(call $abs (i32.imm 1)))))`,
			Want: `function $abs refers to external symbol "abs" and cannot be assembled`,
		},
		{
			Name: "undefined data",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function $f
						(code
							(data.load64_i64 $missing))))`,
			Want: "undefined data $missing",
		},
		{
			Name: "floating point unsupported",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function $f (result f32)
						(code
							(f32.add (f32.imm 1.0) (f32.imm 2.0)))))`,
			Want: "floating-point operations are not supported",
		},
		{
			Name: "expression too deep",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function $f (result i32)
						(code
							(i32.add (i32.imm 1)
								(i32.add (i32.imm 1)
									(i32.add (i32.imm 1)
										(i32.add (i32.imm 1)
											(i32.add (i32.imm 1) (i32.imm 1)))))))))`,
			Want: "nested too deeply",
		},
		{
			Name: "duplicate function",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function $f (code (nop)))
					(function $f (code (nop))))`,
			Want: "declared more than once",
		},
		{
			Name: "recur arity mismatch",
			Source: `
				(module $app
					(runtime_version "1.0")
					(function $f
						(code
							(for (param $i i64)
								(recur (i64.imm 0) (i64.imm 1))))))`,
			Want: "recur passes 2 values to a loop with 1 parameters",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			_, err := compile(t, test.Source)
			if err == nil {
				t.Fatalf("Compile(): no error, want %q", test.Want)
			}

			if !strings.Contains(err.Error(), test.Want) {
				t.Fatalf("Compile(): got error %q, want %q", err, test.Want)
			}
		})
	}
}

// TestCompileDeterministic checks that lowering twice
// produces identical machine code.
func TestCompileDeterministic(t *testing.T) {
	const src = `
		(module $app
			(runtime_version "1.0")
			(data $msg (read_only string "determinism"))
			(function export $main (result i64)
				(code
					(memory.load64_i64 (addr.data $msg)))))`

	a, err := compile(t, src)
	if err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	b, err := compile(t, src)
	if err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	if diff := cmp.Diff(a.Sections[0].Data, b.Sections[0].Data); diff != "" {
		t.Fatalf("Compile(): text differs between runs: (-first, +second)\n%s", diff)
	}
}

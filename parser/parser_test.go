// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hemashushu/xiaoxuan-assembly/ast"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		Name string
		Src  string
		Want ast.Expression
		Err  string
	}{
		{
			Name: "identifier",
			Src:  "i32.add",
			Want: &ast.Identifier{
				NamePos: 1,
				Name:    "i32.add",
			},
		},
		{
			Name: "symbol",
			Src:  "$sum",
			Want: &ast.Symbol{
				NamePos: 1,
				Name:    "sum",
			},
		},
		{
			Name: "decimal integer",
			Src:  "1234",
			Want: &ast.Literal{
				ValuePos: 1,
				Kind:     token.Integer,
				Value:    "1234",
			},
		},
		{
			Name: "hexadecimal integer",
			Src:  "0xdeadbeef",
			Want: &ast.Literal{
				ValuePos: 1,
				Kind:     token.Integer,
				Value:    "0xdeadbeef",
			},
		},
		{
			Name: "float",
			Src:  "3.142",
			Want: &ast.Literal{
				ValuePos: 1,
				Kind:     token.Float,
				Value:    "3.142",
			},
		},
		{
			Name: "string",
			Src:  "\"foo\"",
			Want: &ast.Literal{
				ValuePos: 1,
				Kind:     token.String,
				Value:    "\"foo\"",
			},
		},
		{
			Name: "list expression",
			Src:  "(i32.imm 11)",
			Want: &ast.List{
				ParenOpen: 1,
				Elements: []ast.Expression{
					&ast.Identifier{NamePos: 2, Name: "i32.imm"},
					&ast.Literal{ValuePos: 10, Kind: token.Integer, Value: "11"},
				},
				ParenClose: 12,
			},
		},
		{
			Name: "nested list",
			Src:  "(local.store64 $x (i64.imm 7))",
			Want: &ast.List{
				ParenOpen: 1,
				Elements: []ast.Expression{
					&ast.Identifier{NamePos: 2, Name: "local.store64"},
					&ast.Symbol{NamePos: 16, Name: "x"},
					&ast.List{
						ParenOpen: 19,
						Elements: []ast.Expression{
							&ast.Identifier{NamePos: 20, Name: "i64.imm"},
							&ast.Literal{ValuePos: 28, Kind: token.Integer, Value: "7"},
						},
						ParenClose: 29,
					},
				},
				ParenClose: 30,
			},
		},
		{
			Name: "unbalanced list",
			Src:  "(i32.imm 11",
			Err:  "unexpected EOF",
		},
		{
			Name: "bad token",
			Src:  "(i32.imm '11)",
			Err:  "invalid token",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := ParseExpression(test.Src)
			if test.Err != "" {
				if err == nil {
					t.Fatalf("ParseExpression(%q): got %#v, want error %q", test.Src, got, test.Err)
				}

				if !strings.Contains(err.Error(), test.Err) {
					t.Fatalf("ParseExpression(%q): got error %q, want %q", test.Src, err.Error(), test.Err)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseExpression(%q): %v", test.Src, err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("ParseExpression(%q): (-want, +got)\n%s", test.Src, diff)
			}
		})
	}
}

const sampleModule = `
;; A sample module.
(module $app
    (runtime_version "1.0")
    (constructor $init)
    (data $msg (read_only cstring "Hello, World!"))
    (data $total (read_write i64 0x11))
    (data export $buf (uninit (bytes 1024 8)))
    (function export $main (result i64)
        (local $sum i64)
        (code
            (local.store64 $sum (i64.imm 42))
            (break (local.load64_i64 $sum))))
    (function $init
        (code
            (data.store64 $total (i64.imm 0))))
)
`

func TestParseFile(t *testing.T) {
	fset := token.NewFileSet()
	m, err := ParseFile(fset, "app.anasm", sampleModule, 0)
	if err != nil {
		t.Fatalf("ParseFile(): %v", err)
	}

	if m.Name != "app" {
		t.Errorf("module name: got %q, want %q", m.Name, "app")
	}
	if m.RuntimeVersion != "1.0" {
		t.Errorf("runtime version: got %q, want %q", m.RuntimeVersion, "1.0")
	}
	if m.Constructor != "init" {
		t.Errorf("constructor: got %q, want %q", m.Constructor, "init")
	}
	if m.Destructor != "" {
		t.Errorf("destructor: got %q, want none", m.Destructor)
	}

	data := m.DataEntries()
	if len(data) != 3 {
		t.Fatalf("data entries: got %d, want 3", len(data))
	}

	msg := data[0]
	if msg.Name != "msg" || msg.Kind != ast.ReadOnlyData || msg.Export {
		t.Errorf("data $msg: got (%q, %v, export=%v)", msg.Name, msg.Kind, msg.Export)
	}
	if want := append([]byte("Hello, World!"), 0); !cmp.Equal(want, msg.Value) {
		t.Errorf("data $msg value: got %q, want %q", msg.Value, want)
	}

	total := data[1]
	if total.Kind != ast.ReadWriteData || total.Size != 8 || total.Align != 8 {
		t.Errorf("data $total: got (%v, size %d, align %d)", total.Kind, total.Size, total.Align)
	}
	if want := []byte{0x11, 0, 0, 0, 0, 0, 0, 0}; !cmp.Equal(want, total.Value) {
		t.Errorf("data $total value: got % x, want % x", total.Value, want)
	}

	buf := data[2]
	if buf.Kind != ast.UninitData || !buf.Export || buf.Size != 1024 || buf.Align != 8 || buf.Value != nil {
		t.Errorf("data $buf: got (%v, export=%v, size %d, align %d, value %v)",
			buf.Kind, buf.Export, buf.Size, buf.Align, buf.Value)
	}

	funcs := m.Functions()
	if len(funcs) != 2 {
		t.Fatalf("functions: got %d, want 2", len(funcs))
	}

	main := funcs[0]
	if main.Name != "main" || !main.Export {
		t.Errorf("function $main: got (%q, export=%v)", main.Name, main.Export)
	}
	if len(main.Results) != 1 || main.Results[0] != ast.I64 {
		t.Errorf("function $main results: got %v, want [i64]", main.Results)
	}
	if len(main.Locals) != 1 || main.Locals[0].Name != "sum" || main.Locals[0].Type != ast.I64 {
		t.Errorf("function $main locals: got %v", main.Locals)
	}
	if len(main.Code) != 2 {
		t.Fatalf("function $main code: got %d instructions, want 2", len(main.Code))
	}

	store, ok := main.Code[0].(*ast.LocalStore)
	if !ok || store.Mnemonic != "local.store64" || store.Name != "sum" {
		t.Errorf("function $main code[0]: got %#v", main.Code[0])
	}
	imm, ok := store.Value.(*ast.Imm)
	if !ok || imm.Type != ast.I64 || imm.Int != 42 {
		t.Errorf("function $main code[0] value: got %#v", store.Value)
	}

	seq, ok := main.Code[1].(*ast.Sequence)
	if !ok || seq.Kind != ast.SeqBreak || len(seq.Items) != 1 {
		t.Fatalf("function $main code[1]: got %#v", main.Code[1])
	}
	load, ok := seq.Items[0].(*ast.LocalLoad)
	if !ok || load.Mnemonic != "local.load64_i64" || load.Name != "sum" {
		t.Errorf("function $main code[1] item: got %#v", seq.Items[0])
	}

	init := funcs[1]
	if init.Name != "init" || init.Export {
		t.Errorf("function $init: got (%q, export=%v)", init.Name, init.Export)
	}
}

func TestParseInstructions(t *testing.T) {
	tests := []struct {
		Name  string
		Src   string
		Check func(t *testing.T, inst ast.Instruction)
	}{
		{
			Name: "negative immediate",
			Src:  "(i32.imm -7)",
			Check: func(t *testing.T, inst ast.Instruction) {
				imm := inst.(*ast.Imm)
				if imm.Type != ast.I32 || imm.Int != 0xffff_fff9 {
					t.Errorf("got type %v, value %#x", imm.Type, imm.Int)
				}
			},
		},
		{
			Name: "float immediate",
			Src:  "(f64.imm 3.142)",
			Check: func(t *testing.T, inst ast.Instruction) {
				imm := inst.(*ast.Imm)
				if imm.Type != ast.F64 || imm.Float != 3.142 {
					t.Errorf("got type %v, value %v", imm.Type, imm.Float)
				}
			},
		},
		{
			Name: "local load with offset",
			Src:  "(local.load32_i16_u $flags 2)",
			Check: func(t *testing.T, inst ast.Instruction) {
				load := inst.(*ast.LocalLoad)
				if load.Name != "flags" || load.Offset != 2 {
					t.Errorf("got name %q, offset %d", load.Name, load.Offset)
				}
			},
		},
		{
			Name: "memory store with offset",
			Src:  "(memory.store32 4 (i64.imm 0x1000) (i32.imm 9))",
			Check: func(t *testing.T, inst ast.Instruction) {
				store := inst.(*ast.MemoryStore)
				if store.Offset != 4 {
					t.Errorf("got offset %d", store.Offset)
				}
				if _, ok := store.Addr.(*ast.Imm); !ok {
					t.Errorf("got address %#v", store.Addr)
				}
			},
		},
		{
			Name: "nested binary op",
			Src:  "(i64.add (i64.imm 1) (i64.mul (i64.imm 2) (i64.imm 3)))",
			Check: func(t *testing.T, inst ast.Instruction) {
				add := inst.(*ast.BinaryOp)
				if add.Mnemonic != "i64.add" {
					t.Errorf("got mnemonic %q", add.Mnemonic)
				}
				mul := add.Right.(*ast.BinaryOp)
				if mul.Mnemonic != "i64.mul" {
					t.Errorf("got right mnemonic %q", mul.Mnemonic)
				}
			},
		},
		{
			Name: "increment amount",
			Src:  "(i64.inc 1 (local.load64_i64 $n))",
			Check: func(t *testing.T, inst ast.Instruction) {
				op := inst.(*ast.UnaryOpImm)
				if op.Mnemonic != "i64.inc" || op.Imm != 1 {
					t.Errorf("got mnemonic %q, amount %d", op.Mnemonic, op.Imm)
				}
			},
		},
		{
			Name: "if with results",
			Src:  "(if (result i64) (i64.eqz (i64.imm 0)) (i64.imm 1) (i64.imm 2))",
			Check: func(t *testing.T, inst ast.Instruction) {
				cond := inst.(*ast.If)
				if len(cond.Results) != 1 || cond.Results[0] != ast.I64 {
					t.Errorf("got results %v", cond.Results)
				}
			},
		},
		{
			Name: "branch with default",
			Src: `(branch (result i32)
				(case (i32.imm 1) (i32.imm 10))
				(case (i32.imm 0) (i32.imm 20))
				(default (i32.imm 30)))`,
			Check: func(t *testing.T, inst ast.Instruction) {
				branch := inst.(*ast.Branch)
				if len(branch.Cases) != 2 || branch.Default == nil {
					t.Errorf("got %d cases, default %#v", len(branch.Cases), branch.Default)
				}
			},
		},
		{
			Name: "for loop",
			Src: `(for (param $i i64) (result i64)
				(do
					(when (i64.eqz (local.load64_i64 $i)) (break (i64.imm 0)))
					(recur (i64.dec 1 (local.load64_i64 $i)))))`,
			Check: func(t *testing.T, inst ast.Instruction) {
				loop := inst.(*ast.For)
				if len(loop.Params) != 1 || loop.Params[0].Name != "i" {
					t.Errorf("got params %v", loop.Params)
				}
				seq := loop.Code.(*ast.Sequence)
				if seq.Kind != ast.SeqDo || len(seq.Items) != 2 {
					t.Errorf("got sequence %v with %d items", seq.Kind, len(seq.Items))
				}
			},
		},
		{
			Name: "syscall with arguments",
			Src:  "(syscall 60 (i64.imm 0))",
			Check: func(t *testing.T, inst ast.Instruction) {
				call := inst.(*ast.SysCall)
				if call.Num != 60 || len(call.Args) != 1 {
					t.Errorf("got number %d, %d args", call.Num, len(call.Args))
				}
			},
		},
		{
			Name: "dyncall through function address",
			Src:  "(dyncall (addr.function $callback) (i32.imm 1))",
			Check: func(t *testing.T, inst ast.Instruction) {
				call := inst.(*ast.DynCall)
				addr := call.Addr.(*ast.AddrFunction)
				if addr.Name != "callback" || len(call.Args) != 1 {
					t.Errorf("got address %q, %d args", addr.Name, len(call.Args))
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			src := `(module $t (runtime_version "1.0") (function $f (code ` + test.Src + `)))`
			fset := token.NewFileSet()
			m, err := ParseFile(fset, "test.anasm", src, 0)
			if err != nil {
				t.Fatalf("ParseFile(): %v", err)
			}

			code := m.Functions()[0].Code
			if len(code) != 1 {
				t.Fatalf("got %d instructions, want 1", len(code))
			}

			test.Check(t, code[0])
		})
	}
}

func TestParseFileErrors(t *testing.T) {
	tests := []struct {
		Name string
		Src  string
		Err  string
	}{
		{
			Name: "not a module",
			Src:  `(package $app)`,
			Err:  "expected (module ...)",
		},
		{
			Name: "missing runtime version",
			Src:  `(module $app)`,
			Err:  "module needs a name and a runtime version",
		},
		{
			Name: "malformed runtime version",
			Src:  `(module $app (runtime_version "1"))`,
			Err:  "invalid runtime version",
		},
		{
			Name: "function without code",
			Src:  `(module $app (runtime_version "1.0") (function $f (param $a i32)))`,
			Err:  "function has no code",
		},
		{
			Name: "unknown instruction",
			Src:  `(module $app (runtime_version "1.0") (function $f (code (i32.frob))))`,
			Err:  `unknown instruction "i32.frob"`,
		},
		{
			Name: "missing operand",
			Src:  `(module $app (runtime_version "1.0") (function $f (code (i32.add (i32.imm 1)))))`,
			Err:  "i32.add needs two operands",
		},
		{
			Name: "bad data kind",
			Src:  `(module $app (runtime_version "1.0") (data $d (volatile i32 1)))`,
			Err:  "invalid data storage kind",
		},
		{
			Name: "byte out of range",
			Src:  `(module $app (runtime_version "1.0") (data $d (read_only (bytes 1) 0x100)))`,
			Err:  "invalid byte value",
		},
		{
			Name: "bad bytes align",
			Src:  `(module $app (runtime_version "1.0") (data $d (uninit (bytes 16 3))))`,
			Err:  "bytes align must be a power of two",
		},
		{
			Name: "offset too large",
			Src:  `(module $app (runtime_version "1.0") (function $f (code (local.load64_i64 $x 0x10000))))`,
			Err:  "invalid local.load64_i64 offset",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			fset := token.NewFileSet()
			m, err := ParseFile(fset, "test.anasm", test.Src, 0)
			if err == nil {
				t.Fatalf("ParseFile(%q): got %#v, want error %q", test.Src, m, test.Err)
			}

			if !strings.Contains(err.Error(), test.Err) {
				t.Fatalf("ParseFile(%q):\n  got error %q\n  want      %q", test.Src, err.Error(), test.Err)
			}
		})
	}
}

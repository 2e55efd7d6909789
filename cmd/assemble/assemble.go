// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package assemble assembles a XiaoXuan assembly module.
package assemble

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/hemashushu/xiaoxuan-assembly/aimg"
	"github.com/hemashushu/xiaoxuan-assembly/ast"
	"github.com/hemashushu/xiaoxuan-assembly/binary/elf"
	"github.com/hemashushu/xiaoxuan-assembly/codegen"
	"github.com/hemashushu/xiaoxuan-assembly/parser"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

var program = filepath.Base(os.Args[0])

// Main assembles a XiaoXuan assembly source file into an
// executable binary or a module image.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("assemble", flag.ExitOnError)

	var help bool
	var out, format string
	var entry string
	var symbolTable bool
	var arch *sys.Arch
	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.Func("arch", "The target architecture (x86-64).", func(s string) error {
		if arch != nil {
			return fmt.Errorf("-arch can only be specified once")
		}

		switch s {
		case "x86-64":
			arch = sys.X86_64
		default:
			return fmt.Errorf("unrecognised -arch: %q", s)
		}

		return nil
	})
	flags.Func("binary", "The binary encoding (elf, aimg).", func(s string) error {
		if format != "" {
			return fmt.Errorf("-binary can only be specified once")
		}

		switch s {
		case "elf", "aimg":
			format = s
		default:
			return fmt.Errorf("unrecognised -binary format: %q", s)
		}

		return nil
	})
	flags.BoolVar(&symbolTable, "symbol-table", true, "Include a symbol table in the assembled binary.")
	flags.StringVar(&entry, "entry", "main", "The name of the entry point function (empty for none).")
	flags.StringVar(&out, "o", "", "The name of the assembled binary.")

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s OPTIONS FILE\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	if arch == nil || format == "" || out == "" {
		flags.Usage()
		os.Exit(2)
	}

	filenames := flags.Args()
	if len(filenames) != 1 {
		flags.Usage()
		os.Exit(2)
	}

	fset := token.NewFileSet()
	module, err := parser.ParseFile(fset, filenames[0], nil, 0)
	if err != nil {
		return err
	}

	bin, err := codegen.Compile(fset, arch, module)
	if err != nil {
		return err
	}

	bin.SymbolTable = symbolTable

	if entry != "" {
		var fun *ast.Function
		for _, f := range module.Functions() {
			if f.Name == entry {
				fun = f
				break
			}
		}

		if fun == nil {
			return fmt.Errorf("entry function %q is undeclared", entry)
		}

		if !fun.Export {
			return fmt.Errorf("entry function %q is not exported", entry)
		}

		sym := bin.Symbol(module.Name + "." + entry)
		if sym == nil {
			return fmt.Errorf("internal error: failed to find symbol for %s.%s", module.Name, entry)
		}

		bin.Entry = sym
	}

	var b bytes.Buffer
	var mode fs.FileMode
	switch format {
	case "elf":
		if bin.Entry == nil {
			return fmt.Errorf("an ELF executable requires an entry point")
		}

		mode = 0755
		err = elf.Encode(&b, bin)
	case "aimg":
		mode = 0644
		err = aimg.Encode(&b, module.Name, bin)
	}
	if err != nil {
		return err
	}

	err = os.WriteFile(out, b.Bytes(), mode)
	if err != nil {
		return fmt.Errorf("failed to write %s: %v", out, err)
	}

	return nil
}

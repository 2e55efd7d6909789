// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package x86 prints debugging information about the
// encoder's understanding of the x86-64 instruction set.
package x86

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/hemashushu/xiaoxuan-assembly/internal/x86"
)

var program = filepath.Base(os.Args[0])

// Main prints information about a given instruction
// mnemonic or register name.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("x86", flag.ExitOnError)

	var help bool
	flags.BoolVar(&help, "h", false, "Show this message and exit.")

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS] NAME...\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	names := flags.Args()
	if len(names) == 0 {
		flags.Usage()
	}

	var buf bytes.Buffer
	for i, name := range names {
		if i > 0 {
			// Add a spacer.
			fmt.Fprintln(&buf)
		}

		// See whether it's a register first.
		if reg := x86.RegistersByName[name]; reg != nil {
			fmt.Fprintf(&buf, "%s: &Register{\n", name)
			fmt.Fprintf(&buf, "	Name: %q,\n", reg.Name)
			fmt.Fprintf(&buf, "	Type: %q,\n", reg.Type)
			fmt.Fprintf(&buf, "	Reg:  %#04b,\n", reg.Reg)
			fmt.Fprintf(&buf, "	Bits: %d,\n", reg.Bits)
			if reg.IsHighByte() {
				fmt.Fprintf(&buf, "	HighByte: true,\n")
			}
			if reg.RequiresREX() {
				fmt.Fprintf(&buf, "	RequiresREX: true,\n")
			}
			fmt.Fprintf(&buf, "}\n")
			continue
		}

		mnemonic, ok := x86.MnemonicsByName[name]
		if !ok {
			fmt.Fprintf(&buf, "%s: no instruction data found\n", name)
			continue
		}

		fmt.Fprintf(&buf, "%s: []*Definition{\n", name)
		for _, def := range x86.Lookup(mnemonic) {
			fmt.Fprintf(&buf, "	{\n")
			fmt.Fprintf(&buf, "		Syntax:      %q,\n", def.String())
			fmt.Fprintf(&buf, "		Opcode:      [")
			for i, op := range def.Opcode {
				if i > 0 {
					fmt.Fprint(&buf, ", ")
				}

				fmt.Fprintf(&buf, "%#02x", op)
			}
			fmt.Fprintf(&buf, "],\n")
			if def.Extension >= 0 {
				fmt.Fprintf(&buf, "		ModR/M.reg:  /%d,\n", def.Extension)
			}
			if def.RegInOpcode {
				fmt.Fprintf(&buf, "		RegInOpcode: %v,\n", def.RegInOpcode)
			}
			if def.REXW {
				fmt.Fprintf(&buf, "		REX.W:       %v,\n", def.REXW)
			}
			if def.Prefix66 {
				fmt.Fprintf(&buf, "		Prefix:      0x66,\n")
			}
			if def.PrefixF3 {
				fmt.Fprintf(&buf, "		Prefix:      0xf3,\n")
			}
			fmt.Fprintf(&buf, "	},\n")
		}
		fmt.Fprintf(&buf, "}\n")
	}

	_, err = w.Write(buf.Bytes())
	return err
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package fmt formats XiaoXuan assembly source files.
package fmt

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/hemashushu/xiaoxuan-assembly/format"
	"github.com/hemashushu/xiaoxuan-assembly/parser"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

var program = filepath.Base(os.Args[0])

// Main formats one or more XiaoXuan assembly source files
// into the canonical style.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("fmt", flag.ExitOnError)

	var help, write bool
	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.BoolVar(&write, "w", false, "Write the result to the source file instead of standard output.")

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS] FILE...\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	filenames := flags.Args()
	if len(filenames) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	var buf bytes.Buffer
	for _, filename := range filenames {
		fset := token.NewFileSet()
		module, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
		if err != nil {
			return err
		}

		buf.Reset()
		err = format.Fprint(&buf, fset, module)
		if err != nil {
			return fmt.Errorf("failed to format %s: %v", filename, err)
		}

		if write {
			err = os.WriteFile(filename, buf.Bytes(), 0644)
			if err != nil {
				return fmt.Errorf("failed to write %s: %v", filename, err)
			}

			continue
		}

		_, err = w.Write(buf.Bytes())
		if err != nil {
			return err
		}
	}

	return nil
}

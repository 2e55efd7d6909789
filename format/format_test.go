// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"rsc.io/diff"

	"github.com/hemashushu/xiaoxuan-assembly/ast"
	"github.com/hemashushu/xiaoxuan-assembly/parser"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

func TestFormatModule(t *testing.T) {
	tests := []struct {
		Name   string
		Source string
		Want   string
	}{
		{
			Name:   "minimal module",
			Source: `(module $app (runtime_version "1.0"))`,
			Want: `(module $app
    (runtime_version "1.0"))`,
		},
		{
			Name: "comments and functions",
			Source: `;; A sample module.
(module $app (runtime_version "1.0")

;; Entry point.
(function  export  $main (result i64)
    (code (return (i64.imm 42)))))`,
			// Breaker comment.
			Want: `;; A sample module.
(module $app
    (runtime_version "1.0")

    ;; Entry point.
    (function export $main
        (result i64)
        (code (return (i64.imm 42)))))`,
		},
		{
			Name: "data entries",
			Source: `(module $app (runtime_version "1.0")
	(data $msg (read_only cstring "Hello, World!"))
	(data $total    (read_write i64 0x11))
	(function $init (code (data.store64 $total (i64.imm 0)))))`,
			Want: `(module $app
    (runtime_version "1.0")
    (data $msg (read_only cstring "Hello, World!"))
    (data $total (read_write i64 0x11))
    (function $init
        (code (data.store64 $total (i64.imm 0)))))`,
		},
	}

	var buf bytes.Buffer
	var builder strings.Builder
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			buf.Reset()
			fset := token.NewFileSet()
			module, err := parser.ParseFile(fset, "input.anasm", test.Source, parser.ParseComments)
			if err != nil {
				t.Fatalf("ParseFile(): %v", err)
			}

			err = Fprint(&buf, fset, module)
			if err != nil {
				t.Fatalf("Fprint(): %v", err)
			}

			got := buf.String()
			if got != test.Want+"\n" {
				t.Fatalf("Fprint(): (+got, -want)\n%s", diff.Format(test.Want+"\n", got))
			}

			// Check that interpreting the original source and
			// the formatted source gives the same result, as
			// formatting should not result in semantic changes.

			origParsed, err := parser.ParseFile(fset, "reparsed.anasm", test.Source, parser.ParseComments)
			if err != nil {
				t.Fatalf("ParseFile(test.Source): %v", err)
			}

			formattedParsed, err := parser.ParseFile(fset, "formatted.anasm", got, parser.ParseComments)
			if err != nil {
				t.Fatalf("ParseFile(formatted): %v", err)
			}

			// Ignore positions and comments, as these are changed.
			if diff := cmp.Diff(origParsed, formattedParsed, cmpopts.IgnoreTypes(token.Pos(0), new(ast.Comment))); diff != "" {
				t.Fatalf("Fprint(): (+got, -want)\n%s", diff)
			}

			// Check that formatting the formatted code results
			// in exactly the same sequence of bytes.

			format1 := got

			builder.Reset()
			err = Fprint(&builder, fset, formattedParsed)
			if err != nil {
				t.Fatalf("Fprint(formatted): %v", err)
			}

			format2 := builder.String()
			if format2 != format1 {
				t.Fatalf("Fprint(formatted): (+got, -want)\n%s", diff.Format(format1, format2))
			}
		})
	}
}

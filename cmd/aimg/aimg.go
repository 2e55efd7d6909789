// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package aimg prints debug information about a XiaoXuan module image.
package aimg

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hemashushu/xiaoxuan-assembly/aimg"
)

var program = filepath.Base(os.Args[0])

// Main prints debug information about a XiaoXuan module
// image.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("aimg", flag.ExitOnError)

	var help, header, sections, symbols, contents bool
	all := [...]*bool{
		&header,
		&sections,
		&symbols,
		&contents,
	}

	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.BoolVar(&header, "header", true, "Print information about the image header.")
	flags.BoolVar(&sections, "sections", false, "Print the set of sections defined.")
	flags.BoolVar(&symbols, "symbols", false, "Print the set of symbols defined.")
	flags.BoolVar(&contents, "contents", false, "Print a hex dump of each section's contents.")
	flags.BoolFunc("all", "Print all information.", func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}

		if v {
			for _, b := range all {
				*b = true
			}
		}

		return nil
	})

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS] AIMG\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	filenames := flags.Args()
	if len(filenames) != 1 {
		flags.Usage()
		os.Exit(2)
	}

	name := filenames[0]
	data, err := os.ReadFile(filenames[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", name, err)
	}

	img, err := aimg.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %v", name, err)
	}

	var numSections int
	for _, b := range all {
		if *b {
			numSections++
		}
	}

	var printSectionHeadings bool
	switch numSections {
	case 0:
		return nil
	case 1:
		printSectionHeadings = false
	default:
		printSectionHeadings = true
	}

	printSection := func(s string) {
		if printSectionHeadings {
			fmt.Fprintf(w, "%s:\n", s)
		}
	}

	printText := func(format string, v ...any) {
		if printSectionHeadings {
			fmt.Fprintf(w, "\t"+format, v...)
		} else {
			fmt.Fprintf(w, format, v...)
		}
	}

	bin := img.Binary
	if header {
		entry := "(none)"
		if bin.Entry != nil {
			entry = bin.Entry.Name
		}

		fmt.Fprintf(w, "architecture: %s\n", bin.Arch.Name)
		fmt.Fprintf(w, "checksum:     %x\n", img.Checksum)
		fmt.Fprintf(w, "module name:  %s\n", img.Name)
		fmt.Fprintf(w, "base address: %#x\n", bin.BaseAddr)
		fmt.Fprintf(w, "entry point:  %s\n", entry)
	}

	if sections {
		printSection("sections")
		for _, sect := range bin.Sections {
			var zeroed string
			if sect.IsZeroed {
				zeroed = " (zeroed)"
			}

			printText("%#016x %s %s%s\n", sect.Address, sect.Permissions, sect.Name, zeroed)
		}
	}

	if symbols {
		printSection("symbols")
		for _, sym := range bin.Symbols {
			printText("%s %s (%d bytes at %#x)\n", sym.Kind, sym.Name, sym.Length, sym.Address)
		}
	}

	if contents {
		printSection("contents")
		printed := 0
		for _, sect := range bin.Sections {
			if sect.IsZeroed {
				continue
			}

			if printed != 0 {
				fmt.Fprintln(w)
			}

			printText("%s\n", sect.Name)
			printText("%s", hex.Dump(sect.Data))
			printed++
		}
	}

	return nil
}

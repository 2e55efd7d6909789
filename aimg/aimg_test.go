// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aimg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hemashushu/xiaoxuan-assembly/binary"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
)

func helloBinary() *binary.Binary {
	bin := &binary.Binary{
		Arch:     sys.X86_64,
		BaseAddr: 0x40_0000,
		Sections: []*binary.Section{
			{
				Name:        ".text",
				Address:     0x40_1000,
				Offset:      0x1000,
				Permissions: binary.Read | binary.Execute,
				Data: []byte{
					0xb8, 0x3c, 0x00, 0x00, 0x00, // mov eax, 60
					0x48, 0x31, 0xff, // xor rdi, rdi
					0x0f, 0x05, // syscall
				},
			},
			{
				Name:        ".rodata",
				Address:     0x40_2000,
				Offset:      0x2000,
				Permissions: binary.Read,
				Data:        []byte("Hello, world!\x00"),
			},
			{
				Name:        ".bss",
				Address:     0x40_3000,
				Offset:      0x3000,
				IsZeroed:    true,
				Permissions: binary.Read | binary.Write,
				Data:        make([]byte, 8),
			},
		},
		Symbols: []*binary.Symbol{
			{Name: "app.main", Kind: binary.SymbolFunction, Section: 0, Offset: 0, Address: 0x40_1000, Length: 10},
			{Name: "app.greeting", Kind: binary.SymbolData, Section: 1, Offset: 0, Address: 0x40_2000, Length: 14},
			{Name: "app.counter", Kind: binary.SymbolData, Section: 2, Offset: 0, Address: 0x40_3000, Length: 8},
		},
		SymbolTable: true,
	}

	bin.Entry = bin.Symbols[0]

	return bin
}

func tableBinary() *binary.Binary {
	return &binary.Binary{
		Arch:     sys.X86_64,
		BaseAddr: 0x40_0000,
		Sections: []*binary.Section{
			{
				Name:        ".data",
				Address:     0x40_2000,
				Offset:      0x1000,
				Permissions: binary.Read | binary.Write,
				Data:        []byte{1, 2, 3, 4},
			},
		},
		Symbols: []*binary.Symbol{
			{Name: "lib.table", Kind: binary.SymbolData, Section: 0, Offset: 0, Address: 0x40_2000, Length: 4},
		},
		SymbolTable: true,
	}
}

var tests = []struct {
	Name    string
	Module  string
	Binary  func() *binary.Binary
	Decoded *decoded
}{
	{
		Name:   "hello world",
		Module: "app",
		Binary: helloBinary,
		Decoded: &decoded{
			header: header{
				Magic:          0x61696d67,
				Architecture:   ArchX86_64,
				Version:        1,
				ModuleName:     4,
				BaseAddress:    0x40_0000,
				EntrySymbol:    0,
				SectionsOffset: 60,
				SectionsLength: 120,
				SymbolsOffset:  180,
				SymbolsLength:  108,
				StringsOffset:  288,
				StringsLength:  88,
				ContentsOffset: 376,
				ContentsLength: 28,
				ChecksumOffset: 404,
				ChecksumLength: 32,
			},
			sections: []section{
				{Name: 12, Address: 0x40_1000, Offset: 0x1000, Content: 0, Length: 10, Permissions: 0b101, Zeroed: 0},
				{Name: 24, Address: 0x40_2000, Offset: 0x2000, Content: 12, Length: 14, Permissions: 0b001, Zeroed: 0},
				{Name: 36, Address: 0x40_3000, Offset: 0x3000, Content: 0, Length: 8, Permissions: 0b011, Zeroed: 1},
			},
			symbols: []symbol{
				{Kind: SymKindFunction, Name: 44, Section: 0, Offset: 0, Address: 0x40_1000, Length: 10},
				{Kind: SymKindData, Name: 56, Section: 1, Offset: 0, Address: 0x40_2000, Length: 14},
				{Kind: SymKindData, Name: 72, Section: 2, Offset: 0, Address: 0x40_3000, Length: 8},
			},
			strings: map[uint64]string{
				0:  "",
				4:  "app",
				12: ".text",
				24: ".rodata",
				36: ".bss",
				44: "app.main",
				56: "app.greeting",
				72: "app.counter",
			},
			contents: []byte{
				0xb8, 0x3c, 0x00, 0x00, 0x00,
				0x48, 0x31, 0xff,
				0x0f, 0x05,
				0x00, 0x00, // Padding.
				'H', 'e', 'l', 'l', 'o', ',', ' ', 'w', 'o', 'r', 'l', 'd', '!', 0x00,
				0x00, 0x00, // Padding.
			},
		},
	},
	{
		Name:   "no entry point",
		Module: "lib",
		Binary: tableBinary,
		Decoded: &decoded{
			header: header{
				Magic:          0x61696d67,
				Architecture:   ArchX86_64,
				Version:        1,
				ModuleName:     4,
				BaseAddress:    0x40_0000,
				EntrySymbol:    noEntry,
				SectionsOffset: 60,
				SectionsLength: 40,
				SymbolsOffset:  100,
				SymbolsLength:  36,
				StringsOffset:  136,
				StringsLength:  40,
				ContentsOffset: 176,
				ContentsLength: 4,
				ChecksumOffset: 180,
				ChecksumLength: 32,
			},
			sections: []section{
				{Name: 12, Address: 0x40_2000, Offset: 0x1000, Content: 0, Length: 4, Permissions: 0b011, Zeroed: 0},
			},
			symbols: []symbol{
				{Kind: SymKindData, Name: 24, Section: 0, Offset: 0, Address: 0x40_2000, Length: 4},
			},
			strings: map[uint64]string{
				0:  "",
				4:  "lib",
				12: ".data",
				24: "lib.table",
			},
			contents: []byte{1, 2, 3, 4},
		},
	},
}

func TestEncode(t *testing.T) {
	opts := []cmp.Option{
		cmp.AllowUnexported(
			decoded{},
			header{},
			section{},
			symbol{},
		),
	}

	var buf bytes.Buffer
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			buf.Reset()
			err := Encode(&buf, test.Module, test.Binary())
			if err != nil {
				t.Fatalf("failed to encode module: %v", err)
			}

			got, err := decodeSimple(buf.Bytes())
			if err != nil {
				t.Fatalf("failed to decode module: %v", err)
			}

			if len(got.checksum) != ChecksumLength {
				t.Fatalf("got checksum length %d, want %d", len(got.checksum), ChecksumLength)
			}

			// The checksum has already been verified
			// by decodeSimple, so we drop it here
			// rather than hard-code digests.
			got.checksum = nil

			if diff := cmp.Diff(test.Decoded, got, opts...); diff != "" {
				t.Fatalf("Encode(): (-want, +got)\n%s", diff)
			}
		})
	}
}

func TestRoundTripping(t *testing.T) {
	// We want to ensure that if we
	// encode an assembled binary into
	// an aimg and then parse the aimg,
	// we get back all of the important
	// state.

	var first, second bytes.Buffer
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			bin := test.Binary()

			first.Reset()
			err := Encode(&first, test.Module, bin)
			if err != nil {
				t.Fatalf("failed to encode module: %v", err)
			}

			img, err := Decode(first.Bytes())
			if err != nil {
				t.Fatalf("failed to decode module: %v", err)
			}

			if img.Name != test.Module {
				t.Errorf("got module name %q, want %q", img.Name, test.Module)
			}

			if diff := cmp.Diff(bin, img.Binary); diff != "" {
				t.Fatalf("Decode(): (-want, +got)\n%s", diff)
			}

			second.Reset()
			err = Encode(&second, img.Name, img.Binary)
			if err != nil {
				t.Fatalf("failed to encode decoded module: %v", err)
			}

			if !bytes.Equal(first.Bytes(), second.Bytes()) {
				diff := cmp.Diff(first.Bytes(), second.Bytes())
				t.Fatalf("Re-encode mismatch: (-first, +second)\n%s", diff)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	stranger := &binary.Symbol{Name: "app.other", Kind: binary.SymbolFunction}

	tests := []struct {
		Name   string
		Module string
		Mutate func(bin *binary.Binary)
		Want   string
	}{
		{
			Name:   "unknown architecture",
			Module: "app",
			Mutate: func(bin *binary.Binary) { bin.Arch = nil },
			Want:   "unsupported architecture",
		},
		{
			Name:   "entry point is not a function",
			Module: "app",
			Mutate: func(bin *binary.Binary) { bin.Entry = bin.Symbols[1] },
			Want:   "not a function",
		},
		{
			Name:   "entry point is not in the symbol table",
			Module: "app",
			Mutate: func(bin *binary.Binary) { bin.Entry = stranger },
			Want:   "not in the symbol table",
		},
		{
			Name:   "symbol with bad section index",
			Module: "app",
			Mutate: func(bin *binary.Binary) { bin.Symbols[1].Section = 7 },
			Want:   "invalid section index",
		},
	}

	var buf bytes.Buffer
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			bin := helloBinary()
			test.Mutate(bin)

			buf.Reset()
			err := Encode(&buf, test.Module, bin)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", test.Want)
			}
			if !strings.Contains(err.Error(), test.Want) {
				t.Fatalf("expected error containing %q, got %q", test.Want, err.Error())
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, "app", helloBinary())
	if err != nil {
		t.Fatalf("failed to encode module: %v", err)
	}

	good := buf.Bytes()

	tests := []struct {
		Name   string
		Mutate func(b []byte) []byte
		Want   string
	}{
		{
			Name:   "truncated header",
			Mutate: func(b []byte) []byte { return b[:20] },
			Want:   "invalid aimg header",
		},
		{
			Name: "bad magic",
			Mutate: func(b []byte) []byte {
				b[0] ^= 0xff
				return b
			},
			Want: "got magic",
		},
		{
			Name: "unsupported version",
			Mutate: func(b []byte) []byte {
				b[5] = 2
				return b
			},
			Want: "only 1 is supported",
		},
		{
			Name:   "truncated file",
			Mutate: func(b []byte) []byte { return b[:len(b)-4] },
			Want:   "got file ending",
		},
		{
			Name: "corrupted contents",
			Mutate: func(b []byte) []byte {
				b[len(b)-ChecksumLength-1] ^= 0xff
				return b
			},
			Want: "checksum mismatch",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			b := test.Mutate(bytes.Clone(good))
			_, err := Decode(b)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", test.Want)
			}
			if !strings.Contains(err.Error(), test.Want) {
				t.Fatalf("expected error containing %q, got %q", test.Want, err.Error())
			}
		})
	}
}

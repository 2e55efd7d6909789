// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"debug/elf"
	gobinary "encoding/binary"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/hemashushu/xiaoxuan-assembly/binary"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
)

func TestEncode(t *testing.T) {
	entry := &binary.Symbol{
		Name:    "app.main",
		Kind:    binary.SymbolFunction,
		Section: 0,
		Offset:  0,
		Address: 0x401000,
		Length:  10,
	}

	tests := []struct {
		Name   string
		Binary *binary.Binary
		Want   *elf.File
	}{
		{
			Name: "simple",
			Binary: &binary.Binary{
				Arch:     sys.X86_64,
				BaseAddr: 0x400000,
				Entry:    entry,
				Symbols:  []*binary.Symbol{entry},
				Sections: []*binary.Section{
					{
						Name:        ".text",
						Address:     0x401000,
						Permissions: binary.Read | binary.Execute,
						Data:        []byte{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
					},
					{
						Name:        ".bss",
						Address:     0x404000,
						IsZeroed:    true,
						Permissions: binary.Read | binary.Write,
						Data:        []byte{0x00},
					},
					{
						Name:        ".rodata",
						Address:     0x402000,
						Permissions: binary.Read,
						Data:        []byte("Hello, world!"),
					},
				},
			},
			Want: &elf.File{
				FileHeader: elf.FileHeader{
					Class:      elf.ELFCLASS64,
					Data:       elf.ELFDATA2LSB,
					Version:    elf.EV_CURRENT,
					OSABI:      elf.ELFOSABI_NONE,
					ABIVersion: 0,
					ByteOrder:  gobinary.LittleEndian,
					Type:       elf.ET_EXEC,
					Machine:    elf.EM_X86_64,
					Entry:      0x401000,
				},
				Progs: []*elf.Prog{
					{
						ProgHeader: elf.ProgHeader{
							Type:   elf.PT_LOAD,
							Flags:  elf.PF_R | elf.PF_X,
							Off:    0x1000,
							Vaddr:  0x401000,
							Paddr:  0x401000,
							Filesz: 10,
							Memsz:  10,
							Align:  0x1000,
						},
					},
					{
						ProgHeader: elf.ProgHeader{
							Type:   elf.PT_LOAD,
							Flags:  elf.PF_R | elf.PF_W,
							Off:    0x2000,
							Vaddr:  0x404000,
							Paddr:  0x404000,
							Filesz: 0,
							Memsz:  1,
							Align:  0x1000,
						},
					},
					{
						ProgHeader: elf.ProgHeader{
							Type:   elf.PT_LOAD,
							Flags:  elf.PF_R,
							Off:    0x2000,
							Vaddr:  0x402000,
							Paddr:  0x402000,
							Filesz: 13,
							Memsz:  13,
							Align:  0x1000,
						},
					},
				},
			},
		},
	}

	opts := []cmp.Option{
		cmp.AllowUnexported(io.SectionReader{}, bytes.Reader{}),
		cmpopts.IgnoreUnexported(elf.Prog{}),
	}

	var b bytes.Buffer
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			b.Reset()
			err := Encode(&b, test.Binary)
			if err != nil {
				t.Fatalf("failed to encode: %v", err)
			}

			raw := b.Bytes()
			br := bytes.NewReader(raw)
			// Sort out the expected ReadersAt.
			for _, prog := range test.Want.Progs {
				prog.ReaderAt = io.NewSectionReader(br, int64(prog.Off), int64(prog.Filesz))
			}

			got, err := elf.NewFile(br)
			if err != nil {
				t.Fatalf("failed to parse: %v", err)
			}

			if diff := cmp.Diff(test.Want.FileHeader, got.FileHeader, opts...); diff != "" {
				t.Fatalf("Encode(): header: (-want, +got)\n%s", diff)
			}

			if diff := cmp.Diff(test.Want.Progs, got.Progs, opts...); diff != "" {
				t.Fatalf("Encode(): program headers: (-want, +got)\n%s", diff)
			}
		})
	}
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aimg

import (
	"crypto/sha256"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/cryptobyte"

	"github.com/hemashushu/xiaoxuan-assembly/binary"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
)

// encoder is used to encode an assembled XiaoXuan
// module into an aimg file.
type encoder struct {
	header header

	sections []*section

	symbols []*symbol

	// Used to build the strings section
	// efficiently. This state is managed
	// by AddString.
	strings       []string
	stringOffset  uint64
	stringOffsets map[string]uint64

	// Used to build the contents section
	// efficiently. This state is managed
	// by AddContent.
	contents       [][]byte
	contentsOffset uint64
}

// AddHeader builds the aimg header.
func (e *encoder) AddHeader(name string, bin *binary.Binary) error {
	var architecture Arch
	switch bin.Arch {
	case sys.X86_64:
		architecture = ArchX86_64
	default:
		return fmt.Errorf("unsupported architecture: %v", bin.Arch)
	}

	entry := noEntry
	if bin.Entry != nil {
		if bin.Entry.Kind != binary.SymbolFunction {
			return fmt.Errorf("invalid entry point: %s is a %s, not a function", bin.Entry.Name, bin.Entry.Kind)
		}

		found := false
		for i, sym := range bin.Symbols {
			if sym == bin.Entry {
				entry = symbolSize * uint64(i)
				found = true
				break
			}
		}

		if !found {
			return fmt.Errorf("invalid entry point: %s is not in the symbol table", bin.Entry.Name)
		}
	}

	// Build the header.
	e.header.Magic = magic
	e.header.Architecture = architecture
	e.header.Version = version
	e.header.ModuleName = uint16(e.AddString(name))
	e.header.BaseAddress = uint64(bin.BaseAddr)
	e.header.EntrySymbol = entry
	e.header.SectionsOffset = headerSize
	e.header.SectionsLength = sectionSize * uint32(len(e.sections))
	e.header.SymbolsOffset = uint64(e.header.SectionsOffset) + uint64(e.header.SectionsLength)
	e.header.SymbolsLength = symbolSize * uint64(len(e.symbols))
	e.header.StringsOffset = e.header.SymbolsOffset + e.header.SymbolsLength
	e.header.StringsLength = e.stringOffset
	e.header.ContentsOffset = e.header.StringsOffset + e.header.StringsLength
	e.header.ContentsLength = e.contentsOffset
	e.header.ChecksumOffset = e.header.ContentsOffset + e.header.ContentsLength
	e.header.ChecksumLength = ChecksumLength

	return nil
}

// AddSection adds the program section to the
// sections and contents sections.
func (e *encoder) AddSection(s *binary.Section) error {
	if len(s.Data) > math.MaxUint32 {
		return fmt.Errorf("cannot encode section %s: length %d overflows uint32", s.Name, len(s.Data))
	}

	var content uint64
	var zeroed uint8
	if s.IsZeroed {
		zeroed = 1
	} else {
		content = e.AddContent(s.Data)
	}

	e.sections = append(e.sections, &section{
		Name:        e.AddString(s.Name),
		Address:     uint64(s.Address),
		Offset:      uint64(s.Offset),
		Content:     content,
		Length:      uint32(len(s.Data)),
		Permissions: uint8(s.Permissions),
		Zeroed:      zeroed,
	})

	return nil
}

// AddSymbol adds the symbol to the symbols
// section.
func (e *encoder) AddSymbol(bin *binary.Binary, sym *binary.Symbol) error {
	kind, err := symKind(sym.Kind)
	if err != nil {
		return fmt.Errorf("cannot encode symbol %s: %v", sym.Name, err)
	}

	if sym.Section < 0 || sym.Section >= len(bin.Sections) {
		return fmt.Errorf("cannot encode symbol %s: invalid section index %d", sym.Name, sym.Section)
	}

	if sym.Length < 0 || sym.Length > math.MaxUint32 {
		return fmt.Errorf("cannot encode symbol %s: length %d overflows uint32", sym.Name, sym.Length)
	}

	e.symbols = append(e.symbols, &symbol{
		Kind:    kind,
		Name:    e.AddString(sym.Name),
		Section: uint32(sym.Section),
		Offset:  uint64(sym.Offset),
		Address: uint64(sym.Address),
		Length:  uint32(sym.Length),
	})

	return nil
}

// AddString ensures that `s` is included
// exactly once in the aimg file. The string's
// offset into the strings section is returned.
//
// The string must have a length that fits in
// a uint32.
func (e *encoder) AddString(s string) uint64 {
	offset, ok := e.stringOffsets[s]
	if ok {
		return offset
	}

	if len(s) > math.MaxUint32 {
		panic("string too large: length overflows uint32")
	}

	offset = e.stringOffset
	e.strings = append(e.strings, s)
	e.stringOffset += 4 + uint64(len(s))
	if e.stringOffset%4 != 0 {
		e.stringOffset += 4 - (e.stringOffset % 4)
	}
	e.stringOffsets[s] = offset

	return offset
}

// AddContent includes `data` in the aimg file.
// The data's offset into the contents section
// is returned.
func (e *encoder) AddContent(data []byte) uint64 {
	offset := e.contentsOffset
	e.contents = append(e.contents, data)
	e.contentsOffset += uint64(len(data))
	if e.contentsOffset%4 != 0 {
		e.contentsOffset += 4 - (e.contentsOffset % 4)
	}

	return offset
}

func (h *header) Marshal(b *cryptobyte.Builder) error {
	b.AddUint32(h.Magic)
	b.AddUint8(uint8(h.Architecture))
	b.AddUint8(h.Version)
	b.AddUint16(h.ModuleName)
	b.AddUint64(h.BaseAddress)
	b.AddUint64(h.EntrySymbol)
	b.AddUint32(h.SectionsOffset)
	b.AddUint64(h.SymbolsOffset)
	b.AddUint64(h.StringsOffset)
	b.AddUint64(h.ContentsOffset)
	b.AddUint64(h.ChecksumOffset)

	return nil
}

func (s *section) Marshal(b *cryptobyte.Builder) error {
	b.AddUint64(s.Name)
	b.AddUint64(s.Address)
	b.AddUint64(s.Offset)
	b.AddUint64(s.Content)
	b.AddUint32(s.Length)
	b.AddUint8(s.Permissions)
	b.AddUint8(s.Zeroed)
	b.AddUint16(0) // Padding.

	return nil
}

func (s *symbol) Marshal(b *cryptobyte.Builder) error {
	b.AddUint32(uint32(s.Kind))
	b.AddUint64(s.Name)
	b.AddUint32(s.Section)
	b.AddUint64(s.Offset)
	b.AddUint64(s.Address)
	b.AddUint32(s.Length)

	return nil
}

// WriteTo encodes the aimg file to w.
func (e *encoder) WriteTo(w io.Writer) (n int64, err error) {
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, e.header.ChecksumOffset+e.header.ChecksumLength))
	b.AddValue(&e.header)

	for _, sect := range e.sections {
		b.AddValue(sect)
	}

	for _, sym := range e.symbols {
		b.AddValue(sym)
	}

	for _, s := range e.strings {
		b.AddUint32(uint32(len(s)))
		b.AddBytes([]byte(s))
		switch len(s) % 4 {
		case 1:
			b.AddUint24(0)
		case 2:
			b.AddUint16(0)
		case 3:
			b.AddUint8(0)
		}
	}

	for _, data := range e.contents {
		b.AddBytes(data)
		switch len(data) % 4 {
		case 1:
			b.AddUint24(0)
		case 2:
			b.AddUint16(0)
		case 3:
			b.AddUint8(0)
		}
	}

	// Add the checksum.
	buf := b.BytesOrPanic()
	if uint64(len(buf)) != e.header.ChecksumOffset {
		return 0, fmt.Errorf("aimg: internal error: encoded aimg has length %d before the checksum, expected %d", len(buf), e.header.ChecksumOffset)
	}

	sum := sha256.Sum256(buf)
	buf = append(buf, sum[:]...)

	m, err := w.Write(buf)
	return int64(m), err
}

// Encode is used to create an aimg file.
func Encode(w io.Writer, name string, bin *binary.Binary) error {
	// We build the sections individually, using
	// the cryptobyte package to ensure a correct
	// encoding.
	e := &encoder{
		stringOffsets: make(map[string]uint64),
	}

	// Build the aimg file.
	e.AddString("") // The empty string is always at offset 0.
	e.AddString(name)

	for _, sect := range bin.Sections {
		err := e.AddSection(sect)
		if err != nil {
			return err
		}
	}

	for _, sym := range bin.Symbols {
		err := e.AddSymbol(bin, sym)
		if err != nil {
			return err
		}
	}

	err := e.AddHeader(name, bin)
	if err != nil {
		return err
	}

	_, err = e.WriteTo(w)
	if err != nil {
		return err
	}

	return nil
}

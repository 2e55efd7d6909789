// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aimg

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"

	"github.com/hemashushu/xiaoxuan-assembly/binary"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
)

// decodeHeader performs the first phase of
// decoding an aimg; reading the header and
// sanity-checking the section offsets.
func decodeHeader(h *header, b []byte) error {
	if len(b) < headerSize {
		return fmt.Errorf("invalid aimg header: %w", io.ErrUnexpectedEOF)
	}

	s := cryptobyte.String(b[:headerSize])

	// Start with the header.
	var arch uint8
	if !s.ReadUint32(&h.Magic) ||
		!s.ReadUint8(&arch) ||
		!s.ReadUint8(&h.Version) ||
		!s.ReadUint16(&h.ModuleName) ||
		!s.ReadUint64(&h.BaseAddress) ||
		!s.ReadUint64(&h.EntrySymbol) ||
		!s.ReadUint32(&h.SectionsOffset) ||
		!s.ReadUint64(&h.SymbolsOffset) ||
		!s.ReadUint64(&h.StringsOffset) ||
		!s.ReadUint64(&h.ContentsOffset) ||
		!s.ReadUint64(&h.ChecksumOffset) {
		return fmt.Errorf("aimg: internal error: failed to read aimg header: %w", io.ErrUnexpectedEOF)
	}

	// Sanity-check the header.
	if h.Magic != magic {
		return fmt.Errorf("invalid aimg header: got magic %x, want %x", h.Magic, magic)
	}

	h.Architecture = Arch(arch)
	h.SectionsLength = uint32(h.SymbolsOffset) - h.SectionsOffset
	h.SymbolsLength = h.StringsOffset - h.SymbolsOffset
	h.StringsLength = h.ContentsOffset - h.StringsOffset
	h.ContentsLength = h.ChecksumOffset - h.ContentsOffset
	h.ChecksumLength = ChecksumLength

	switch h.Architecture {
	case ArchX86_64:
	default:
		return fmt.Errorf("invalid aimg header: unrecognised architecture %d", h.Architecture)
	}
	if h.Version != version {
		return fmt.Errorf("unsupported aimg header: got version %d, but only %d is supported", h.Version, version)
	}
	if uint64(h.ModuleName) >= h.StringsLength {
		return fmt.Errorf("invalid aimg header: module name offset %d is beyond strings section", h.ModuleName)
	}
	if h.SectionsOffset != headerSize {
		return fmt.Errorf("invalid aimg header: got sections offset %d, want %d", h.SectionsOffset, headerSize)
	}
	if h.SectionsLength%sectionSize != 0 {
		return fmt.Errorf("invalid aimg header: got invalid sections length %d", h.SectionsLength)
	}
	if h.SymbolsOffset < uint64(h.SectionsOffset) || h.SymbolsOffset > h.StringsOffset || h.SymbolsOffset%4 != 0 {
		return fmt.Errorf("invalid aimg header: got invalid symbols offset %d", h.SymbolsOffset)
	}
	if h.SymbolsLength%symbolSize != 0 {
		return fmt.Errorf("invalid aimg header: got invalid symbols length %d", h.SymbolsLength)
	}
	if h.StringsOffset > h.ContentsOffset || h.StringsOffset%4 != 0 {
		return fmt.Errorf("invalid aimg header: got strings offset %d", h.StringsOffset)
	}
	if h.StringsLength%4 != 0 {
		return fmt.Errorf("invalid aimg header: got invalid strings length %d", h.StringsLength)
	}
	if h.ContentsOffset > h.ChecksumOffset || h.ContentsOffset%4 != 0 {
		return fmt.Errorf("invalid aimg header: got contents offset %d", h.ContentsOffset)
	}
	if h.ContentsLength%4 != 0 {
		return fmt.Errorf("invalid aimg header: got invalid contents length %d", h.ContentsLength)
	}
	if h.ChecksumOffset%4 != 0 {
		return fmt.Errorf("invalid aimg header: got checksum offset %d", h.ChecksumOffset)
	}
	if h.EntrySymbol != noEntry && (h.EntrySymbol >= h.SymbolsLength || h.EntrySymbol%symbolSize != 0) {
		return fmt.Errorf("invalid aimg header: got invalid entry symbol offset %d", h.EntrySymbol)
	}

	return nil
}

// decoded contains structured contents of an
// aimg file.
type decoded struct {
	header   header
	sections []section
	symbols  []symbol
	strings  map[uint64]string
	contents []byte
	checksum []byte
}

// decodeSimple performs the first phase of decoding
// an aimg; pulling out the different sections
// and verifying the checksum.
func decodeSimple(b []byte) (*decoded, error) {
	var d decoded
	err := decodeHeader(&d.header, b)
	if err != nil {
		return nil, err
	}

	// Verify the checksum.
	if d.header.ChecksumOffset+d.header.ChecksumLength != uint64(len(b)) {
		return nil, fmt.Errorf("invalid aimg header: got file ending %d, found %d bytes", d.header.ChecksumOffset+d.header.ChecksumLength, len(b))
	}

	d.checksum = b[len(b)-ChecksumLength:]
	want := ([ChecksumLength]byte)(d.checksum)
	got := sha256.Sum256(b[:len(b)-ChecksumLength])
	if got != want {
		return nil, fmt.Errorf("invalid aimg file: checksum mismatch")
	}

	// Read the sections section.
	s := cryptobyte.String(b[d.header.SectionsOffset:d.header.SymbolsOffset])
	d.sections = make([]section, d.header.SectionsLength/sectionSize)
	for i := range d.sections {
		err = d.decodeSection(&d.sections[i], &s)
		if err != nil {
			return nil, fmt.Errorf("failed to decode section %d: %v", i, err)
		}
	}
	if !s.Empty() {
		return nil, fmt.Errorf("invalid sections section: %d trailing bytes", len(s))
	}

	// Read the symbols section.
	s = cryptobyte.String(b[d.header.SymbolsOffset:d.header.StringsOffset])
	d.symbols = make([]symbol, d.header.SymbolsLength/symbolSize)
	for i := range d.symbols {
		err = d.decodeSymbol(&d.symbols[i], &s)
		if err != nil {
			return nil, fmt.Errorf("failed to decode symbol %d: %v", i, err)
		}
	}
	if !s.Empty() {
		return nil, fmt.Errorf("invalid symbols section: %d trailing bytes", len(s))
	}

	// Read the strings section.
	s = cryptobyte.String(b[d.header.StringsOffset:d.header.ContentsOffset])
	d.strings, err = d.decodeStrings(s)
	if err != nil {
		return nil, err
	}

	// The contents section is raw data, referenced
	// by offset from the section descriptors.
	d.contents = b[d.header.ContentsOffset:d.header.ChecksumOffset]

	return &d, nil
}

// decodeSection reads the section descriptor from
// `s`, checking that each field is valid.
func (d *decoded) decodeSection(sect *section, s *cryptobyte.String) error {
	var padding uint16
	if !s.ReadUint64(&sect.Name) ||
		!s.ReadUint64(&sect.Address) ||
		!s.ReadUint64(&sect.Offset) ||
		!s.ReadUint64(&sect.Content) ||
		!s.ReadUint32(&sect.Length) ||
		!s.ReadUint8(&sect.Permissions) ||
		!s.ReadUint8(&sect.Zeroed) ||
		!s.ReadUint16(&padding) {
		return fmt.Errorf("failed to read section: %w", io.ErrUnexpectedEOF)
	}

	if sect.Name >= d.header.StringsLength {
		return fmt.Errorf("invalid section: name offset %d is beyond strings section", sect.Name)
	}
	if padding != 0 {
		return fmt.Errorf("invalid section: invalid padding %04x", padding)
	}
	if sect.Zeroed > 1 {
		return fmt.Errorf("invalid section: invalid zeroed flag %d", sect.Zeroed)
	}
	if sect.Permissions > uint8(binary.Read|binary.Write|binary.Execute) {
		return fmt.Errorf("invalid section: invalid permissions %#x", sect.Permissions)
	}
	if sect.Zeroed == 0 && sect.Content+uint64(sect.Length) > d.header.ContentsLength {
		return fmt.Errorf("invalid section: content %d+%d is beyond contents section", sect.Content, sect.Length)
	}
	if sect.Zeroed == 1 && sect.Content != 0 {
		return fmt.Errorf("invalid section: zeroed section has content offset %d", sect.Content)
	}

	return nil
}

// decodeSymbol reads the symbol from `s`,
// checking that each field is valid.
func (d *decoded) decodeSymbol(sym *symbol, s *cryptobyte.String) error {
	var kind uint32
	if !s.ReadUint32(&kind) ||
		!s.ReadUint64(&sym.Name) ||
		!s.ReadUint32(&sym.Section) ||
		!s.ReadUint64(&sym.Offset) ||
		!s.ReadUint64(&sym.Address) ||
		!s.ReadUint32(&sym.Length) {
		return fmt.Errorf("failed to read symbol: %w", io.ErrUnexpectedEOF)
	}

	sym.Kind = SymKind(kind)
	switch sym.Kind {
	case SymKindFunction, SymKindData:
	default:
		return fmt.Errorf("invalid symbol: unrecognised kind %d", sym.Kind)
	}

	if sym.Name >= d.header.StringsLength {
		return fmt.Errorf("invalid symbol: name offset %d is beyond strings section", sym.Name)
	}

	if uint64(sym.Section) >= uint64(len(d.sections)) {
		return fmt.Errorf("invalid symbol: section index %d is beyond sections section", sym.Section)
	}

	return nil
}

// decodeStrings reads the strings from `s`,
// checking that each string is valid.
func (d *decoded) decodeStrings(s cryptobyte.String) (strings map[uint64]string, err error) {
	var offset uint64
	var length uint32
	strings = make(map[uint64]string)
	for !s.Empty() {
		var data []byte
		here := offset
		if !s.ReadUint32(&length) ||
			!s.ReadBytes(&data, int(length)) {
			return nil, fmt.Errorf("invalid strings section: %w", io.ErrUnexpectedEOF)
		}

		offset += 4 + uint64(length)
		switch length % 4 {
		case 1:
			offset += 3
			var padding uint32
			if !s.ReadUint24(&padding) {
				return nil, fmt.Errorf("invalid strings section: %w", io.ErrUnexpectedEOF)
			}
			if padding != 0 {
				return nil, fmt.Errorf("invalid strings section: invalid padding %06x", padding)
			}
		case 2:
			offset += 2
			var padding uint16
			if !s.ReadUint16(&padding) {
				return nil, fmt.Errorf("invalid strings section: %w", io.ErrUnexpectedEOF)
			}
			if padding != 0 {
				return nil, fmt.Errorf("invalid strings section: invalid padding %04x", padding)
			}
		case 3:
			offset += 1
			var padding uint8
			if !s.ReadUint8(&padding) {
				return nil, fmt.Errorf("invalid strings section: %w", io.ErrUnexpectedEOF)
			}
			if padding != 0 {
				return nil, fmt.Errorf("invalid strings section: invalid padding %02x", padding)
			}
		}

		strings[here] = string(data)
	}

	return strings, nil
}

// stringAt returns the string at the given offset
// into the strings section.
func (d *decoded) stringAt(offset uint64) (string, error) {
	s, ok := d.strings[offset]
	if !ok {
		return "", fmt.Errorf("no string at offset %d into the strings section", offset)
	}

	return s, nil
}

// Decode parses an aimg file, reconstructing the
// assembled binary it contains.
func Decode(b []byte) (*Image, error) {
	d, err := decodeSimple(b)
	if err != nil {
		return nil, err
	}

	name, err := d.stringAt(uint64(d.header.ModuleName))
	if err != nil {
		return nil, fmt.Errorf("invalid aimg header: bad module name: %v", err)
	}

	bin := &binary.Binary{
		Arch:        sys.X86_64,
		BaseAddr:    uintptr(d.header.BaseAddress),
		SymbolTable: true,
	}

	bin.Sections = make([]*binary.Section, len(d.sections))
	for i, sect := range d.sections {
		sectName, err := d.stringAt(sect.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid section %d: bad name: %v", i, err)
		}

		var data []byte
		if sect.Zeroed == 1 {
			data = make([]byte, sect.Length)
		} else {
			data = d.contents[sect.Content : sect.Content+uint64(sect.Length)]
		}

		bin.Sections[i] = &binary.Section{
			Name:        sectName,
			Address:     uintptr(sect.Address),
			Offset:      uintptr(sect.Offset),
			IsZeroed:    sect.Zeroed == 1,
			Permissions: binary.Permissions(sect.Permissions),
			Data:        data,
		}
	}

	bin.Symbols = make([]*binary.Symbol, len(d.symbols))
	for i, sym := range d.symbols {
		symName, err := d.stringAt(sym.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid symbol %d: bad name: %v", i, err)
		}

		kind, err := sym.Kind.binaryKind()
		if err != nil {
			return nil, fmt.Errorf("invalid symbol %d: %v", i, err)
		}

		bin.Symbols[i] = &binary.Symbol{
			Name:    symName,
			Kind:    kind,
			Section: int(sym.Section),
			Offset:  uintptr(sym.Offset),
			Address: uintptr(sym.Address),
			Length:  int(sym.Length),
		}
	}

	if d.header.EntrySymbol != noEntry {
		entry := bin.Symbols[d.header.EntrySymbol/symbolSize]
		if entry.Kind != binary.SymbolFunction {
			return nil, fmt.Errorf("invalid aimg header: entry point %s is a %s, not a function", entry.Name, entry.Kind)
		}

		bin.Entry = entry
	}

	return &Image{
		Name:     name,
		Checksum: d.checksum,
		Binary:   bin,
	}, nil
}

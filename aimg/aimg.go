// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package aimg provides helpers to encode and decode compiled
// XiaoXuan module images. The result is similar to a traditional
// object file, but carries enough structure to reconstruct the
// assembled binary exactly.
//
// The aimg format consists of a header, followed by a series
// of sections, each of which is length prefixed:
//
//   - The sections section contains a descriptor for each
//     program section (text, read-only data, and so on) in
//     the module.
//   - The symbols section contains the symbol table.
//   - The strings section contains length-prefixed string data
//     used by other sections.
//   - The contents section contains the raw bytes of each
//     program section, referenced from its descriptor.
//
// After the sections is a cryptographic checksum.
//
// All integers are stored in big-endian form. Each section must
// have a length that is an exact multiple of 32 bits.
//
// # Header
//
// The header structure is described with the following pseudocode
// (see [Arch] separately):
//
//	type Header struct {
//		// Details about the aimg file.
//		Magic           uint32  // The magic value that identifies an aimg file. (value: "aimg")
//		Architecture    Arch    // The architecture this file targets (defined below).
//		Version         uint8   // The aimg file format version. (value: aimg.version)
//
//		// Details about the module.
//		ModuleName      uint16  // The offset into the strings section where the module name begins.
//		BaseAddress     uint64  // The base address of the module.
//		EntrySymbol     uint64  // The offset into the symbols section where the entry function begins (2^64-1 for none).
//
//		// Location of the sections section.
//		SectionsOffset  uint32  // The offset into the file where the sections section begins.
//
//		// Location of the symbols section.
//		SymbolsOffset   uint64  // The offset into the file where the symbols section begins.
//
//		// Location of the strings section.
//		StringsOffset   uint64  // The offset into the file where the strings section begins.
//
//		// Location of the contents section.
//		ContentsOffset  uint64  // The offset into the file where the contents section begins.
//
//		// Location of the checksum.
//		ChecksumOffset  uint64  // The offset into the file where the checksum begins.
//	}
//
// Note that the sections must begin immediately after the
// header and must be contiguous, in the given order. That
// is, the first byte of the strings section must immediately
// follow the last byte of the symbols section.
//
// # Sections section
//
// The sections section consists of a sequence of contiguous
// section descriptors, where each descriptor is described
// with the following pseudocode:
//
//	type Section struct {
//		Name         uint64  // The offset into the strings section where the section name begins.
//		Address      uint64  // The section's address in memory.
//		Offset       uint64  // The section's offset in the encoded binary.
//		Content      uint64  // The offset into the contents section where the section data begins.
//		Length       uint32  // The length in bytes of the section in memory.
//		Permissions  uint8   // The section's runtime permissions (bit 0: read, bit 1: write, bit 2: execute).
//		Zeroed       uint8   // Whether the section contents are all zeros (1 for true, 0 for false).
//		Padding      uint16  // Zero padding.
//	}
//
// Zeroed sections store no data in the contents section and
// have a `Content` field of zero.
//
// # Symbols section
//
// The symbols section consists of a sequence of contiguous
// symbols, where each symbol is described with the following
// pseudocode (see [SymKind] separately):
//
//	type Symbol struct {
//		Kind     SymKind  // The symbol kind (defined below).
//		Name     uint64   // The offset into the strings section where the symbol name begins.
//		Section  uint32   // The index into the sections section of the containing section.
//		Offset   uint64   // The symbol's offset in the encoded binary.
//		Address  uint64   // The symbol's address in memory.
//		Length   uint32   // The length in bytes of the symbol's contents.
//	}
//
// # Strings section
//
// The strings section consists of a sequence of contiguous
// strings, where each string is described with the following
// pseudocode:
//
//	type String struct {
//		Length  uint32     // The length in bytes of the string.
//		Data    [...]byte  // The string's contents. Strings are not null-terminated.
//	}
//
// Note that the first string has length zero so that references
// to it can be used to represent the empty string. Strings whose
// length is not a multiple of four are followed by up to three
// bytes of padding to ensure that each `String` has 32-bit
// alignment.
//
// # Contents section
//
// The contents section consists of the raw bytes of each
// non-zeroed program section, in descriptor order. Each
// section's data is followed by 0 to 3 bytes of padding so
// that the subsequent section's data has 32-bit alignment.
//
// # Cryptographic checksum
//
// Immediately after the contents section is a 32-byte SHA-256
// checksum of the rest of the file. There must be no trailing
// data after the checksum.
package aimg

import (
	"crypto/sha256"
	"fmt"

	"github.com/hemashushu/xiaoxuan-assembly/binary"
)

const (
	magic   uint32 = 0x61696d67 // "aimg"
	version uint8  = 1

	// noEntry is the EntrySymbol value of an image
	// without an entry function.
	noEntry = ^uint64(0)

	// ChecksumLength is the length in bytes of the
	// checksum section.
	ChecksumLength = sha256.Size
)

type header struct {
	// Details about the aimg file.
	Magic        uint32 // The magic value that identifies an aimg file. (value: "aimg")
	Architecture Arch   // The architecture this file targets (defined below).
	Version      uint8  // The aimg file format version. (value: aimg.version)

	// Details about the module.
	ModuleName  uint16 // The offset into the strings section where the module name begins.
	BaseAddress uint64 // The base address of the module.
	EntrySymbol uint64 // The offset into the symbols section where the entry function begins (noEntry for none).

	// Location of the sections section.
	SectionsOffset uint32 // The offset into the file where the sections section begins.
	SectionsLength uint32 // The length in bytes of the sections section.

	// Location of the symbols section.
	SymbolsOffset uint64 // The offset into the file where the symbols section begins.
	SymbolsLength uint64 // The length in bytes of the symbols section.

	// Location of the strings section.
	StringsOffset uint64 // The offset into the file where the strings section begins.
	StringsLength uint64 // The length in bytes of the strings section.

	// Location of the contents section.
	ContentsOffset uint64 // The offset into the file where the contents section begins.
	ContentsLength uint64 // The length in bytes of the contents section.

	// Location of the checksum.
	ChecksumOffset uint64 // The offset into the file where the checksum begins.
	ChecksumLength uint64 // The length in bytes of the checksum.
}

const headerSize = 4 + // 32-bit magic.
	1 + // 8-bit architecture.
	1 + // 8-bit version.
	2 + // 16-bit module name string offset.
	8 + // 64-bit base address.
	8 + // 64-bit entry symbol offset.
	4 + // 32-bit sections section offset.
	8 + // 64-bit symbols section offset.
	8 + // 64-bit strings section offset.
	8 + // 64-bit contents section offset.
	8 // 64-bit checksum offset.

// Arch uniquely identifies the architecture that an aimg
// was built for.
type Arch uint8

const (
	ArchInvalid Arch = 0x00
	ArchX86_64  Arch = 0x01 // x86-64.
)

func (a Arch) String() string {
	switch a {
	case ArchInvalid:
		return "invalid"
	case ArchX86_64:
		return "x86-64"
	default:
		return fmt.Sprintf("Arch(%d)", a)
	}
}

type section struct {
	Name        uint64 // The offset into the strings section where the section name begins.
	Address     uint64 // The section's address in memory.
	Offset      uint64 // The section's offset in the encoded binary.
	Content     uint64 // The offset into the contents section where the section data begins.
	Length      uint32 // The length in bytes of the section in memory.
	Permissions uint8  // The section's runtime permissions.
	Zeroed      uint8  // Whether the section contents are all zeros.
}

const sectionSize = 8 + // 64-bit name string offset.
	8 + // 64-bit memory address.
	8 + // 64-bit binary offset.
	8 + // 64-bit contents offset.
	4 + // 32-bit length.
	1 + // 8-bit permissions.
	1 + // 8-bit zeroed flag.
	2 // 16-bit padding.

type symbol struct {
	Kind    SymKind // The symbol kind (defined below).
	Name    uint64  // The offset into the strings section where the symbol name begins.
	Section uint32  // The index into the sections section of the containing section.
	Offset  uint64  // The symbol's offset in the encoded binary.
	Address uint64  // The symbol's address in memory.
	Length  uint32  // The length in bytes of the symbol's contents.
}

const symbolSize = 4 + // 32-bit symbol kind.
	8 + // 64-bit name string offset.
	4 + // 32-bit section index.
	8 + // 64-bit binary offset.
	8 + // 64-bit memory address.
	4 // 32-bit length.

// SymKind defines a symbol kind for an entry in the
// symbol table.
type SymKind uint8

const (
	SymKindInvalid SymKind = 0x00

	// A function.
	// The Offset and Address fields locate
	// the function's machine code within its
	// section.
	SymKindFunction SymKind = 0x01

	// A data value.
	// The Offset and Address fields locate
	// the value within its section.
	SymKindData SymKind = 0x02
)

func (k SymKind) String() string {
	switch k {
	case SymKindInvalid:
		return "invalid"
	case SymKindFunction:
		return "function"
	case SymKindData:
		return "data"
	default:
		return fmt.Sprintf("SymKind(%d)", k)
	}
}

func symKind(k binary.SymbolKind) (SymKind, error) {
	switch k {
	case binary.SymbolFunction:
		return SymKindFunction, nil
	case binary.SymbolData:
		return SymKindData, nil
	default:
		return SymKindInvalid, fmt.Errorf("unsupported symbol kind %v", k)
	}
}

func (k SymKind) binaryKind() (binary.SymbolKind, error) {
	switch k {
	case SymKindFunction:
		return binary.SymbolFunction, nil
	case SymKindData:
		return binary.SymbolData, nil
	default:
		return binary.SymbolInvalid, fmt.Errorf("unsupported symbol kind %v", k)
	}
}

// Image contains a decoded module image.
type Image struct {
	Name     string         // The module name.
	Checksum []byte         // The image checksum.
	Binary   *binary.Binary // The assembled binary.
}

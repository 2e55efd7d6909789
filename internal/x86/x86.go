// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package x86 implements an instruction encoder for the
// x86-64 instruction set architecture.
//
// The encoder operates in 64-bit long mode only. Encoding
// an instruction is a pure function of the instruction,
// its address, and the label table: the same inputs always
// produce the same machine code.
package x86

import (
	"bytes"
	"fmt"
	"strings"
)

// Code assembles the successive components of one encoded
// instruction and writes them out in order: legacy
// prefixes, the REX prefix, opcode bytes, the ModR/M and
// SIB bytes, any displacement, and any immediate.
type Code struct {
	Prefixes        [4]Prefix // Any legacy prefix bytes. Unused prefixes are zero.
	REX             REX       // Any REX prefix.
	Opcode          [3]byte   // The opcode bytes.
	OpcodeLen       int       // The number of bytes of opcode.
	ModRM           ModRM     // Any ModR/M byte.
	UseModRM        bool      // Encode the ModR/M byte, even if zero.
	SIB             SIB       // Any Scale/Index/Base byte.
	UseSIB          bool      // Encode the SIB byte, even if zero.
	Displacement    [4]byte   // Any memory address displacement.
	DisplacementLen int       // The number of bytes of address displacement.
	CodeOffset      [4]byte   // Any relative code offset.
	CodeOffsetLen   int       // The number of bytes of code offset.
	Immediate       [8]byte   // Any immediate integer literal.
	ImmediateLen    int       // The number of immediate bytes to use.
}

// prefixesLen returns the number of legacy
// prefix bytes.
func (c *Code) prefixesLen() int {
	for i, b := range c.Prefixes {
		if b == 0 {
			return i
		}
	}

	return len(c.Prefixes)
}

// AddPrefix appends a legacy prefix byte.
func (c *Code) AddPrefix(prefix Prefix) {
	for i, p := range c.Prefixes {
		if p == 0 {
			c.Prefixes[i] = prefix
			return
		}
	}
}

// Len returns c's length as a number of
// bytes.
//
// The length is fully determined by which components are
// in use, not by their values, so it can be taken before
// a displacement or code offset has been resolved.
func (c *Code) Len() int {
	var n int
	n += c.prefixesLen()
	if c.REX != 0 {
		n++
	}
	n += c.OpcodeLen
	if c.UseModRM {
		n++
	}
	if c.UseSIB {
		n++
	}
	n += c.DisplacementLen
	n += c.CodeOffsetLen
	n += c.ImmediateLen
	return n
}

// EncodeTo appends the machine code to
// b.
func (c *Code) EncodeTo(b *bytes.Buffer) {
	for _, p := range c.Prefixes {
		if p == 0 {
			break
		}

		b.WriteByte(byte(p))
	}
	if c.REX != 0 {
		b.WriteByte(byte(c.REX))
	}
	b.Write(c.Opcode[:c.OpcodeLen])
	if c.UseModRM {
		b.WriteByte(byte(c.ModRM))
	}
	if c.UseSIB {
		b.WriteByte(byte(c.SIB))
	}
	b.Write(c.Displacement[:c.DisplacementLen])
	b.Write(c.CodeOffset[:c.CodeOffsetLen])
	b.Write(c.Immediate[:c.ImmediateLen])
}

// String returns a textual description
// of the machine code.
func (c *Code) String() string {
	first := true
	var s strings.Builder
	join := func() {
		if !first {
			s.WriteString(", ")
		}

		first = false
	}

	s.WriteByte('{')
	if l := c.prefixesLen(); l > 0 {
		first = false
		fmt.Fprintf(&s, "Prefixes: [% x]", c.Prefixes[:l])
	}
	if c.REX != 0 {
		join()
		s.WriteString("REX: ")
		s.WriteString(c.REX.String())
	}
	if c.OpcodeLen > 0 {
		join()
		fmt.Fprintf(&s, "Opcode: [% x]", c.Opcode[:c.OpcodeLen])
	}
	if c.UseModRM {
		join()
		s.WriteString("ModR/M: ")
		s.WriteString(c.ModRM.String())
	}
	if c.UseSIB {
		join()
		s.WriteString("SIB: ")
		s.WriteString(c.SIB.String())
	}
	if c.DisplacementLen > 0 {
		join()
		fmt.Fprintf(&s, "Displacement: [% x]", c.Displacement[:c.DisplacementLen])
	}
	if c.CodeOffsetLen > 0 {
		join()
		fmt.Fprintf(&s, "CodeOffset: [% x]", c.CodeOffset[:c.CodeOffsetLen])
	}
	if c.ImmediateLen > 0 {
		join()
		fmt.Fprintf(&s, "Immediate: [% x]", c.Immediate[:c.ImmediateLen])
	}
	s.WriteByte('}')

	return s.String()
}

// Prefix represents a legacy x86 prefix.
type Prefix byte

const (
	PrefixLock        Prefix = 0xf0
	PrefixRepeatNot   Prefix = 0xf2
	PrefixRepeat      Prefix = 0xf3
	PrefixFS          Prefix = 0x64
	PrefixGS          Prefix = 0x65
	PrefixOperandSize Prefix = 0x66
	PrefixAddressSize Prefix = 0x67
)

func (p Prefix) String() string {
	switch p {
	case PrefixLock:
		return "lock"
	case PrefixRepeatNot:
		return "repnz/repne"
	case PrefixRepeat:
		return "rep/repe/repz"
	case PrefixFS:
		return "fs"
	case PrefixGS:
		return "gs"
	case PrefixOperandSize:
		return "data16/data32"
	case PrefixAddressSize:
		return "addr16/addr32"
	default:
		return fmt.Sprintf("Prefix(%#02x)", byte(p))
	}
}

// REX provides helper functionality
// for reading and writing a REX
// prefix byte.
type REX byte

// b2i is a helper function to convert
// a boolean to an integer. The result
// is one if `b` is true and 0 otherwise.
func (r *REX) b2i(b bool) REX {
	if b {
		return 1
	}

	return 0
}

// Intel x86 manuals, Volume 2A,
// Section 2.2.1.2, Table 2-4.
//
// 	| 7  6  5  4   3  2  1  0 |
// 	+-------------------------|
// 	| 0  1  0  0   W  R  X  B |

func (r REX) On() bool     { return ((r >> 6) & 1) == 1 }
func (r REX) W() bool      { return ((r >> 3) & 1) == 1 }
func (r REX) R() bool      { return ((r >> 2) & 1) == 1 }
func (r REX) X() bool      { return ((r >> 1) & 1) == 1 }
func (r REX) B() bool      { return ((r >> 0) & 1) == 1 }
func (r *REX) SetOn()      { *r |= (1 << 6) }
func (r *REX) SetW(b bool) { *r = (*r & 0b11110111) | (r.b2i(b) << 3) }
func (r *REX) SetR(b bool) { *r = (*r & 0b11111011) | (r.b2i(b) << 2) }
func (r *REX) SetX(b bool) { *r = (*r & 0b11111101) | (r.b2i(b) << 1) }
func (r *REX) SetB(b bool) { *r = (*r & 0b11111110) | (r.b2i(b) << 0) }

func (r REX) String() string {
	out := make([]byte, 8)
	at := func(i int, zero, one byte) byte {
		if ((r >> (7 - i)) & 1) == 1 {
			return one
		}

		return zero
	}

	out[0] = at(0, '0', '1')
	out[1] = at(1, '0', '1')
	out[2] = at(2, '0', '1')
	out[3] = at(3, '0', '1')
	out[4] = at(4, '0', 'W')
	out[5] = at(5, '0', 'R')
	out[6] = at(6, '0', 'X')
	out[7] = at(7, '0', 'B')

	return string(out)
}

// ModRM provides helper functionality
// for reading and writing a ModR/M
// byte.
type ModRM byte

const (
	ModRMmod00 ModRM = 0b00_000_000
	ModRMmod01 ModRM = 0b01_000_000
	ModRMmod10 ModRM = 0b10_000_000
	ModRMmod11 ModRM = 0b11_000_000

	// Section 2.1.5, table 2.2, Mod column.
	ModRMmodDereferenceRegister    = ModRMmod00
	ModRMmodSmallDisplacedRegister = ModRMmod01
	ModRMmodLargeDisplacedRegister = ModRMmod10
	ModRMmodRegister               = ModRMmod11

	ModRMrm100 ModRM = 0b00_000_100
	ModRMrm101 ModRM = 0b00_000_101

	// Section 2.1.5, table 2.2, Effective address column.
	ModRMrmSIB         = ModRMrm100
	ModRMrmRIPRelative = ModRMrm101
)

func (m ModRM) Mod() byte      { return byte(m&0b11000000) >> 6 }
func (m ModRM) Reg() byte      { return byte(m&0b00111000) >> 3 }
func (m ModRM) RM() byte       { return byte(m&0b00000111) >> 0 }
func (m *ModRM) SetMod(b byte) { *m = (*m & 0b00111111) | ((ModRM(b) & 0b11) << 6) }
func (m *ModRM) SetReg(b byte) { *m = (*m & 0b11000111) | ((ModRM(b) & 0b111) << 3) }
func (m *ModRM) SetRM(b byte)  { *m = (*m & 0b11111000) | ((ModRM(b) & 0b111) << 0) }

func (m ModRM) String() string {
	return fmt.Sprintf("{Mod: %02b, Reg: %03b, R/M: %03b}", m.Mod(), m.Reg(), m.RM())
}

// SIB provides helper functionality
// for reading and writing a SIB
// byte.
type SIB byte

const (
	SIBscale1 SIB = 0b00_000_000
	SIBscale2 SIB = 0b01_000_000
	SIBscale4 SIB = 0b10_000_000
	SIBscale8 SIB = 0b11_000_000

	// Section 2.1.5, table 2.3, Index column.
	SIBindexNone SIB = 0b00_100_000

	// Section 2.1.5, table 2.3, Base row.
	SIBbaseStackPointer SIB = 0b00_000_100
	SIBbaseNone         SIB = 0b00_000_101
)

func (s SIB) Scale() byte      { return byte(s&0b11000000) >> 6 }
func (s SIB) Index() byte      { return byte(s&0b00111000) >> 3 }
func (s SIB) Base() byte       { return byte(s&0b00000111) >> 0 }
func (s *SIB) SetScale(b byte) { *s = (*s & 0b00111111) | ((SIB(b) & 0b11) << 6) }
func (s *SIB) SetIndex(b byte) { *s = (*s & 0b11000111) | ((SIB(b) & 0b111) << 3) }
func (s *SIB) SetBase(b byte)  { *s = (*s & 0b11111000) | ((SIB(b) & 0b111) << 0) }

func (s SIB) String() string {
	return fmt.Sprintf("{Scale: %02b, Index: %03b, Base: %03b}", s.Scale(), s.Index(), s.Base())
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package elf writes assembled binaries out as statically
// linked ELF executables.
//
// Each section becomes one PT_LOAD segment, page-aligned in
// the file and mapped at the address the code generator
// assigned. When the binary carries a symbol table, a
// SHT_SYMTAB section and its string table are appended
// after the section data.
package elf

import (
	"bytes"
	"debug/elf"
	gobinary "encoding/binary"
	"fmt"
	"io"

	"github.com/hemashushu/xiaoxuan-assembly/binary"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
)

const (
	pageSize       = 0x1000
	fileHeaderSize = 0x40
	progHeaderSize = 0x38
	sectHeaderSize = 0x40
	symbolSize     = 24 // Elf64_Sym.

	// Names for the sections the encoder appends itself.
	nameSectionNames = "section names"
	nameSymbolTable  = "symbol table"
	nameSymbolNames  = "symbol names"
)

// nextPage returns the start of the page after the one
// containing offset. An offset already on a page boundary
// still advances by a full page.
func nextPage(offset uint64) uint64 {
	return (offset + pageSize) &^ (pageSize - 1)
}

// Encode writes the binary to w as an ELF executable.
//
// Encode also updates the section offsets, taking into
// account any necessary padding.
func Encode(w io.Writer, bin *binary.Binary) error {
	b, ok := w.(*bytes.Buffer)
	if ok {
		return encode(b, bin)
	}

	b = new(bytes.Buffer)
	if err := encode(b, bin); err != nil {
		return err
	}

	_, err := w.Write(b.Bytes())
	return err
}

func machine(arch *sys.Arch) (elf.Machine, error) {
	if arch == sys.X86_64 {
		return elf.EM_X86_64, nil
	}

	return elf.EM_NONE, fmt.Errorf("elf: unsupported architecture %q", arch.Name)
}

func data(bo gobinary.ByteOrder) elf.Data {
	if bo == gobinary.ByteOrder(gobinary.BigEndian) {
		return elf.ELFDATA2MSB
	}

	return elf.ELFDATA2LSB
}

func progFlags(perm binary.Permissions) elf.ProgFlag {
	var flags elf.ProgFlag
	if perm.Read() {
		flags |= elf.PF_R
	}
	if perm.Write() {
		flags |= elf.PF_W
	}
	if perm.Execute() {
		flags |= elf.PF_X
	}

	return flags
}

func sectFlags(perm binary.Permissions) elf.SectionFlag {
	flags := elf.SHF_ALLOC
	if perm.Write() {
		flags |= elf.SHF_WRITE
	}
	if perm.Execute() {
		flags |= elf.SHF_EXECINSTR
	}

	return flags
}

func symbolType(sym *binary.Symbol) elf.SymType {
	switch sym.Kind {
	case binary.SymbolFunction:
		return elf.STT_FUNC
	case binary.SymbolData:
		return elf.STT_OBJECT
	}

	panic(fmt.Errorf("symbol %q: invalid symbol kind %d", sym.Name, sym.Kind))
}

// A span records where one section lives in memory and in
// the file. Zeroed sections occupy memory but no file
// bytes.
type span struct {
	memStart uint64
	memSize  uint64

	fileStart  uint64
	fileSize   uint64
	filePadded uint64 // end of the section data, padded to the next page
}

func encode(b *bytes.Buffer, bin *binary.Binary) error {
	if bin.Arch.PointerSize != 8 {
		return fmt.Errorf("elf: %d-bit binaries are not supported", 8*bin.Arch.PointerSize)
	}

	mach, err := machine(bin.Arch)
	if err != nil {
		return err
	}

	if bin.Entry == nil {
		return fmt.Errorf("no entry point symbol")
	}
	if bin.Entry.Kind != binary.SymbolFunction {
		return fmt.Errorf("entry point is %s symbol, want function", bin.Entry.Kind)
	}

	bo := bin.Arch.ByteOrder
	write := func(data any) {
		gobinary.Write(b, bo, data)
	}

	// The symbol table and its names, if requested, ride
	// along as two extra sections placed after the last
	// loaded address. valueFixups notes where each
	// symbol's value sits inside the table data, so the
	// values can be patched once file offsets are final.
	sections := bin.Sections
	var symtab, symnames *binary.Section
	valueFixups := make([]int, len(bin.Symbols))
	if bin.SymbolTable {
		var table, names bytes.Buffer
		table.Write(make([]byte, symbolSize)) // The null symbol.
		names.WriteByte(0)                    // The empty name.

		anonymous := 0
		for i, sym := range bin.Symbols {
			switch {
			case sym.Name == "":
				gobinary.Write(&table, bo, uint32(0))
			case sym.Name[0] == '.':
				// Local labels get a placeholder name so
				// the table entry is still identifiable.
				anonymous++
				gobinary.Write(&table, bo, uint32(names.Len()))
				fmt.Fprintf(&names, "<anonymous %s %d>", sym.Kind, anonymous)
				names.WriteByte(0)
			default:
				gobinary.Write(&table, bo, uint32(names.Len()))
				names.WriteString(sym.Name)
				names.WriteByte(0)
			}

			table.WriteByte(byte(elf.ST_INFO(elf.STB_GLOBAL, symbolType(sym))))
			table.WriteByte(byte(elf.STV_DEFAULT))
			// Section indices in the header are shifted by
			// two, for the null section and the section
			// names table.
			gobinary.Write(&table, bo, uint16(sym.Section+2))
			valueFixups[i] = table.Len()
			gobinary.Write(&table, bo, uint64(sym.Address))
			gobinary.Write(&table, bo, uint64(sym.Length))
		}

		var lastAddr uint64
		for _, section := range sections {
			end := uint64(section.Address) + uint64(len(section.Data)-1)
			if lastAddr < end {
				lastAddr = end
			}
		}

		symtab = &binary.Section{
			Name:        nameSymbolTable,
			Address:     uintptr(nextPage(lastAddr)),
			Permissions: binary.Read,
			Data:        table.Bytes(),
		}
		symnames = &binary.Section{
			Name:        nameSymbolNames,
			Address:     uintptr(nextPage(uint64(symtab.Address) + uint64(table.Len()))),
			Permissions: binary.Read,
			Data:        names.Bytes(),
		}

		sections = append(sections[:len(sections):len(sections)], symtab, symnames)
	}

	// The section names table: one null-terminated string
	// per unique name, with the empty name first.
	var shstrtab bytes.Buffer
	sectionNames := make(map[string]uint32)
	addName := func(s string) {
		if _, ok := sectionNames[s]; ok {
			return
		}

		sectionNames[s] = uint32(shstrtab.Len())
		shstrtab.WriteString(s)
		shstrtab.WriteByte(0)
	}

	addName("")
	addName(nameSectionNames)
	for _, section := range sections {
		addName(section.Name)
	}

	// File layout: header, program headers, section
	// headers (two extra, for the null section and the
	// section names table), the section names, then the
	// section data from the next page boundary on.
	progHeadOff := uint64(fileHeaderSize)
	sectHeadOff := progHeadOff + progHeaderSize*uint64(len(sections))
	namesOff := sectHeadOff + sectHeaderSize*uint64(2+len(sections))
	namesLen := uint64(shstrtab.Len())
	dataOff := nextPage(namesOff + namesLen)

	spans := make([]span, len(sections))
	offset := dataOff
	for i, section := range sections {
		s := &spans[i]
		s.memStart = uint64(section.Address)
		s.memSize = uint64(len(section.Data))

		s.fileStart = offset
		s.fileSize = s.memSize
		if section.IsZeroed {
			s.fileSize = 0
		}

		s.filePadded = nextPage(s.fileStart + s.fileSize)
		if s.fileSize == 0 || i+1 == len(sections) {
			// Nothing follows the final section, and a
			// zeroed section contributes no file bytes to
			// pad.
			s.filePadded = s.fileStart + s.fileSize
		}

		offset = s.filePadded
		section.Offset = uintptr(s.fileStart)
	}

	// With file offsets fixed, settle each symbol's file
	// offset and patch its value in the table data.
	for i, sym := range bin.Symbols {
		within := sym.Offset
		sym.Offset = bin.Sections[sym.Section].Offset + within
		sym.Address = bin.Sections[sym.Section].Address + within
		if bin.SymbolTable {
			bo.PutUint64(symtab.Data[valueFixups[i]:], uint64(sym.Address))
		}
	}

	// The file header.
	b.Write([]byte{0x7f, 'E', 'L', 'F'})
	b.WriteByte(byte(elf.ELFCLASS64))
	b.WriteByte(byte(data(bo)))
	b.WriteByte(byte(elf.EV_CURRENT))
	b.WriteByte(byte(elf.ELFOSABI_NONE))
	b.WriteByte(0)           // ABI version.
	b.Write(make([]byte, 7)) // Padding.
	write(uint16(elf.ET_EXEC))
	write(uint16(mach))
	write(uint32(elf.EV_CURRENT))
	write(uint64(bin.Entry.Address))
	write(progHeadOff)
	write(sectHeadOff)
	write(uint32(0)) // Flags, unused.
	write(uint16(fileHeaderSize))
	write(uint16(progHeaderSize))
	write(uint16(len(sections)))
	write(uint16(sectHeaderSize))
	write(uint16(2 + len(sections)))
	write(uint16(1)) // The section names table is always second.

	// One loadable program header per section.
	for i, section := range sections {
		s := spans[i]
		write(uint32(elf.PT_LOAD))
		write(uint32(progFlags(section.Permissions)))
		write(s.fileStart)
		write(s.memStart) // Virtual address.
		write(s.memStart) // Physical address.
		write(s.fileSize)
		write(s.memSize)
		write(uint64(pageSize)) // Alignment.
	}

	// The section headers: the null section, the section
	// names table, then the sections themselves.
	b.Write(make([]byte, sectHeaderSize))
	write(sectionNames[nameSectionNames])
	write(uint32(elf.SHT_STRTAB))
	write(uint64(elf.SHF_STRINGS))
	write(uint64(0)) // Not loaded.
	write(namesOff)
	write(namesLen)
	write(uint32(0)) // sh_link.
	write(uint32(0)) // sh_info.
	write(uint64(1)) // Alignment.
	write(uint64(0)) // sh_entsize.
	for i, section := range sections {
		s := spans[i]
		typ, link, info, entsize := uint32(elf.SHT_PROGBITS), uint32(0), uint32(0), uint64(0)
		switch section {
		case symtab:
			typ = uint32(elf.SHT_SYMTAB)
			// sh_link points at the symbol names table,
			// which is the final section header.
			link = uint32(2 + len(sections) - 1)
			// sh_info is one more than the index of the
			// last local symbol; only the null symbol is
			// local here.
			info = 1
			entsize = symbolSize
		case symnames:
			typ = uint32(elf.SHT_STRTAB)
		}

		write(sectionNames[section.Name])
		write(typ)
		write(uint64(sectFlags(section.Permissions)))
		write(s.memStart)
		write(s.fileStart)
		write(s.fileSize)
		write(link)
		write(info)
		write(uint64(pageSize)) // Alignment.
		write(entsize)
	}

	// The section names, padding to the first page
	// boundary, then the section data.
	b.Write(shstrtab.Bytes())
	b.Write(make([]byte, dataOff-(namesOff+namesLen)))
	for i, section := range sections {
		if section.IsZeroed {
			continue
		}

		b.Write(section.Data)
		if pad := spans[i].filePadded - (spans[i].fileStart + spans[i].fileSize); pad > 0 {
			b.Write(make([]byte, pad))
		}
	}

	return nil
}

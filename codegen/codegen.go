// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package codegen lowers a parsed assembly module onto
// x86-64 machine code.
//
// The lowering is deliberately mechanical. Each function's
// instruction tree is flattened onto a fixed rota of
// callee-saved evaluation registers, locals live in a
// frame addressed from rbp, and control flow becomes
// compare-and-branch sequences over generated labels.
// There is no register allocation and no optimisation.
package codegen

import (
	"bytes"
	"fmt"

	"github.com/hemashushu/xiaoxuan-assembly/ast"
	"github.com/hemashushu/xiaoxuan-assembly/binary"
	"github.com/hemashushu/xiaoxuan-assembly/internal/x86"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

const (
	// DefaultBase is the virtual address at which a
	// compiled binary is loaded.
	DefaultBase = 0x40_0000

	pageSize = 0x1000

	// envCallLabel is the symbol through which envcall
	// instructions are dispatched. The stub emitted here
	// traps; a linked runtime is expected to replace it.
	envCallLabel = "runtime.envcall"
)

// An op is one element of a lowered function body: either
// a machine instruction or a label definition.
type op struct {
	label string
	inst  *x86.Instruction
}

// A loweredFunc is one function after lowering, before
// addresses are assigned.
type loweredFunc struct {
	name string
	ops  []op
}

type compiler struct {
	fset   *token.FileSet
	arch   *sys.Arch
	module *ast.Module

	funcs     map[string]*ast.Function
	data      map[string]*ast.Data
	imports   map[string]*ast.ImportedFunction
	externals map[string]*ast.ExternalFunction

	labelCount  int
	needEnvCall bool
}

// Compile lowers the given module to machine code for the
// given architecture, producing a laid-out binary with a
// text section, data sections, and a symbol for every
// function and data entry.
func Compile(fset *token.FileSet, arch *sys.Arch, module *ast.Module) (*binary.Binary, error) {
	if arch != sys.X86_64 {
		return nil, fmt.Errorf("codegen: unsupported architecture %q", arch.Name)
	}

	c := &compiler{
		fset:      fset,
		arch:      arch,
		module:    module,
		funcs:     make(map[string]*ast.Function),
		data:      make(map[string]*ast.Data),
		imports:   make(map[string]*ast.ImportedFunction),
		externals: make(map[string]*ast.ExternalFunction),
	}

	if err := c.index(); err != nil {
		return nil, err
	}

	var fns []*loweredFunc
	for _, fn := range module.Functions() {
		lowered, err := c.lowerFunction(fn)
		if err != nil {
			return nil, err
		}

		fns = append(fns, lowered)
	}

	if c.needEnvCall {
		fns = append(fns, &loweredFunc{
			name: envCallLabel,
			ops: []op{
				{label: envCallLabel},
				{inst: x86.Inst(x86.UD2)},
			},
		})
	}

	return c.assemble(fns)
}

// errorf produces an error prefixed with the position of
// the given node.
func (c *compiler) errorf(pos token.Pos, format string, v ...any) error {
	return fmt.Errorf("%s: %s", c.fset.Position(pos), fmt.Sprintf(format, v...))
}

// qualify returns the fully-qualified symbol name for the
// given top-level name.
func (c *compiler) qualify(name string) string {
	return c.module.Name + "." + name
}

// label returns a fresh local label.
func (c *compiler) label() string {
	c.labelCount++
	return fmt.Sprintf(".L%d", c.labelCount)
}

// index builds the name tables for the module's functions,
// data entries, and imported and external functions.
// Functions and imports share a namespace; data entries
// have their own.
func (c *compiler) index() error {
	for _, e := range c.module.Elements {
		switch e := e.(type) {
		case *ast.Function:
			if err := c.claimFunc(e.Pos(), e.Name); err != nil {
				return err
			}

			c.funcs[e.Name] = e
		case *ast.Data:
			if _, ok := c.data[e.Name]; ok {
				return c.errorf(e.Pos(), "data $%s is declared more than once", e.Name)
			}

			c.data[e.Name] = e
		case *ast.External:
			for _, fn := range e.Functions {
				if err := c.claimFunc(fn.Pos(), fn.Name); err != nil {
					return err
				}

				c.externals[fn.Name] = fn
			}
		case *ast.Import:
			for _, fn := range e.Functions {
				if err := c.claimFunc(fn.Pos(), fn.Name); err != nil {
					return err
				}

				c.imports[fn.Name] = fn
			}
		}
	}

	return nil
}

func (c *compiler) claimFunc(pos token.Pos, name string) error {
	if _, ok := c.funcs[name]; ok {
		return c.errorf(pos, "function $%s is declared more than once", name)
	}
	if _, ok := c.imports[name]; ok {
		return c.errorf(pos, "function $%s is declared more than once", name)
	}
	if _, ok := c.externals[name]; ok {
		return c.errorf(pos, "function $%s is declared more than once", name)
	}

	return nil
}

// resolveCall maps a called function name to the symbol it
// is assembled under, reporting whether the callee produces
// a result.
//
// Imported and external functions have no body in a
// standalone assembly, so a reference to one is reported
// here, at the call site, rather than surfacing later as an
// unknown label during encoding.
func (c *compiler) resolveCall(pos token.Pos, name string) (label string, hasResult bool, err error) {
	if fn, ok := c.funcs[name]; ok {
		return c.qualify(name), len(fn.Results) > 0, nil
	}
	if fn, ok := c.imports[name]; ok {
		return "", false, c.errorf(pos, "function $%s is imported from %s and cannot be assembled into a standalone binary", name, fn.Path)
	}
	if fn, ok := c.externals[name]; ok {
		return "", false, c.errorf(pos, "function $%s refers to external symbol %q and cannot be assembled into a standalone binary", name, fn.Symbol)
	}

	return "", false, c.errorf(pos, "undefined function $%s", name)
}

// A placed data entry is a data entry with its offset into
// its section.
type placed struct {
	data   *ast.Data
	offset uintptr
}

// layoutData assigns section offsets to the given data
// entries, respecting each entry's alignment.
func layoutData(entries []*ast.Data) (places []placed, size uintptr) {
	var off uintptr
	for _, d := range entries {
		align := uintptr(d.Align)
		if align == 0 {
			align = 1
		}

		off = roundUp(off, align)
		places = append(places, placed{data: d, offset: off})
		off += uintptr(d.Size)
	}

	return places, off
}

// assemble assigns addresses to the lowered functions and
// the module's data entries, then encodes the machine code.
//
// Encoding happens twice. The first pass encodes every
// instruction with an empty label table, which fixes each
// instruction's length and therefore every address. The
// second pass re-encodes with the real addresses; any
// change in an instruction's length between the passes is
// an internal error.
func (c *compiler) assemble(fns []*loweredFunc) (*binary.Binary, error) {
	labels := make(map[string]uint64)
	define := func(label string, addr uint64) error {
		if _, ok := labels[label]; ok {
			return fmt.Errorf("codegen: symbol %q is defined more than once", label)
		}

		labels[label] = addr
		return nil
	}

	// Pass 1: fix instruction lengths and lay out the
	// text section.
	textAddr := uint64(DefaultBase + pageSize)
	addr := textAddr
	lengths := make([][]int, len(fns))
	spans := make([][2]uint64, len(fns))
	for i, fn := range fns {
		spans[i][0] = addr
		for _, o := range fn.ops {
			if o.label != "" {
				if err := define(o.label, addr); err != nil {
					return nil, err
				}

				continue
			}

			code, err := x86.Encode(o.inst, addr, nil)
			if err != nil {
				return nil, fmt.Errorf("codegen: %s: %s: %v", fn.name, o.inst, err)
			}

			lengths[i] = append(lengths[i], len(code))
			addr += uint64(len(code))
		}
		spans[i][1] = addr
	}

	// Lay out the data sections and define their symbols.
	var roEntries, rwEntries, zeroEntries []*ast.Data
	for _, d := range c.module.DataEntries() {
		switch d.Kind {
		case ast.ReadOnlyData:
			roEntries = append(roEntries, d)
		case ast.ReadWriteData:
			rwEntries = append(rwEntries, d)
		case ast.UninitData:
			zeroEntries = append(zeroEntries, d)
		}
	}

	roPlaces, roSize := layoutData(roEntries)
	rwPlaces, rwSize := layoutData(rwEntries)
	zeroPlaces, zeroSize := layoutData(zeroEntries)

	roAddr := roundUp(uintptr(addr), pageSize)
	rwAddr := roundUp(roAddr+roSize, pageSize)
	zeroAddr := roundUp(rwAddr+rwSize, pageSize)

	defineAll := func(places []placed, base uintptr) error {
		for _, p := range places {
			if err := define(c.qualify(p.data.Name), uint64(base+p.offset)); err != nil {
				return err
			}
		}

		return nil
	}
	if err := defineAll(roPlaces, roAddr); err != nil {
		return nil, err
	}
	if err := defineAll(rwPlaces, rwAddr); err != nil {
		return nil, err
	}
	if err := defineAll(zeroPlaces, zeroAddr); err != nil {
		return nil, err
	}

	// Pass 2: encode with the real label table.
	var text bytes.Buffer
	addr = textAddr
	for i, fn := range fns {
		j := 0
		for _, o := range fn.ops {
			if o.label != "" {
				continue
			}

			code, err := x86.Encode(o.inst, addr, labels)
			if err != nil {
				return nil, fmt.Errorf("codegen: %s: %s: %v", fn.name, o.inst, err)
			}

			if len(code) != lengths[i][j] {
				return nil, fmt.Errorf("codegen: internal error: %s: %s: encoded length changed between passes (%d, then %d)", fn.name, o.inst, lengths[i][j], len(code))
			}

			text.Write(code)
			addr += uint64(len(code))
			j++
		}
	}

	// Build the binary.
	bin := &binary.Binary{
		Arch:        c.arch,
		BaseAddr:    DefaultBase,
		SymbolTable: true,
	}

	section := func(name string, addr uintptr, perm binary.Permissions, data []byte, zeroed bool) int {
		bin.Sections = append(bin.Sections, &binary.Section{
			Name:        name,
			Address:     addr,
			Offset:      addr - DefaultBase,
			IsZeroed:    zeroed,
			Permissions: perm,
			Data:        data,
		})

		return len(bin.Sections) - 1
	}

	sectionData := func(places []placed, size uintptr) []byte {
		data := make([]byte, size)
		for _, p := range places {
			copy(data[p.offset:], p.data.Value)
		}

		return data
	}

	textIdx := section(".text", uintptr(textAddr), binary.Read|binary.Execute, text.Bytes(), false)
	for i, fn := range fns {
		bin.Symbols = append(bin.Symbols, &binary.Symbol{
			Name:    fn.name,
			Kind:    binary.SymbolFunction,
			Section: textIdx,
			Offset:  uintptr(spans[i][0] - textAddr),
			Address: uintptr(spans[i][0]),
			Length:  int(spans[i][1] - spans[i][0]),
		})
	}

	dataSymbols := func(places []placed, idx int, base uintptr) {
		for _, p := range places {
			bin.Symbols = append(bin.Symbols, &binary.Symbol{
				Name:    c.qualify(p.data.Name),
				Kind:    binary.SymbolData,
				Section: idx,
				Offset:  p.offset,
				Address: base + p.offset,
				Length:  int(p.data.Size),
			})
		}
	}

	if roSize > 0 {
		idx := section(".rodata", roAddr, binary.Read, sectionData(roPlaces, roSize), false)
		dataSymbols(roPlaces, idx, roAddr)
	}
	if rwSize > 0 {
		idx := section(".data", rwAddr, binary.Read|binary.Write, sectionData(rwPlaces, rwSize), false)
		dataSymbols(rwPlaces, idx, rwAddr)
	}
	if zeroSize > 0 {
		idx := section(".bss", zeroAddr, binary.Read|binary.Write, make([]byte, zeroSize), true)
		dataSymbols(zeroPlaces, idx, zeroAddr)
	}

	return bin, nil
}

func roundUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hemashushu/xiaoxuan-assembly/ast"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

// This file interprets the generic expression lists into the
// typed module AST.

// listHead returns the name of the identifier heading the
// list, or "" if the list is empty or headed by something
// else.
func listHead(list *ast.List) string {
	if len(list.Elements) == 0 {
		return ""
	}

	ident, ok := list.Elements[0].(*ast.Identifier)
	if !ok {
		return ""
	}

	return ident.Name
}

// expectList asserts that the expression is a list headed by
// the identifier name and returns it.
func (p *parser) expectListOf(expr ast.Expression, name string) *ast.List {
	list, ok := expr.(*ast.List)
	if !ok || listHead(list) != name {
		p.errorExpected(expr, "("+name+" ...)")
		return nil
	}

	return list
}

// expectSymbol asserts that the expression is a $name symbol
// and returns its name.
func (p *parser) expectSymbol(expr ast.Expression, context string) string {
	sym, ok := expr.(*ast.Symbol)
	if !ok {
		p.errorExpected(expr, context+" name")
		return ""
	}

	return sym.Name
}

// expectString asserts that the expression is a string
// literal and returns its unquoted value.
func (p *parser) expectString(expr ast.Expression, context string) string {
	lit, ok := expr.(*ast.Literal)
	if !ok || lit.Kind != token.String {
		p.errorExpected(expr, context+" string")
		return ""
	}

	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		p.error(lit, fmt.Sprintf("invalid %s string %s", context, lit.Value))
		return ""
	}

	return s
}

// expectDataType asserts that the expression is a data type
// name, such as i64.
func (p *parser) expectDataType(expr ast.Expression, context string) (ast.DataType, bool) {
	ident, ok := expr.(*ast.Identifier)
	if !ok {
		p.errorExpected(expr, context+" type")
		return 0, false
	}

	t, ok := ast.DataTypeByName(ident.Name)
	if !ok {
		p.error(ident, fmt.Sprintf("invalid %s type %q", context, ident.Name))
		return 0, false
	}

	return t, true
}

// expectUint asserts that the expression is an unsigned
// integer literal of at most the given width.
func (p *parser) expectUint(expr ast.Expression, bits int, context string) (uint64, bool) {
	lit, ok := expr.(*ast.Literal)
	if !ok || lit.Kind != token.Integer {
		p.errorExpected(expr, context+" integer")
		return 0, false
	}

	v, err := strconv.ParseUint(lit.Value, 0, bits)
	if err != nil {
		p.error(lit, fmt.Sprintf("invalid %s value %s", context, lit.Value))
		return 0, false
	}

	return v, true
}

// expectInt asserts that the expression is an integer
// literal, signed or unsigned, fitting the given width. The
// result is the two's complement bit pattern.
func (p *parser) expectInt(expr ast.Expression, bits int, context string) (uint64, bool) {
	lit, ok := expr.(*ast.Literal)
	if !ok || lit.Kind != token.Integer {
		p.errorExpected(expr, context+" integer")
		return 0, false
	}

	// An unsigned parse covers the full bit pattern range;
	// a signed parse covers negative literals.
	if u, err := strconv.ParseUint(lit.Value, 0, bits); err == nil {
		return u, true
	}

	v, err := strconv.ParseInt(lit.Value, 0, bits)
	if err != nil {
		p.error(lit, fmt.Sprintf("invalid %s value %s", context, lit.Value))
		return 0, false
	}

	mask := uint64(1)<<bits - 1
	return uint64(v) & mask, true
}

// expectFloat asserts that the expression is a number
// literal and returns its floating point value.
func (p *parser) expectFloat(expr ast.Expression, context string) (float64, bool) {
	lit, ok := expr.(*ast.Literal)
	if !ok || (lit.Kind != token.Float && lit.Kind != token.Integer) {
		p.errorExpected(expr, context+" number")
		return 0, false
	}

	s := strings.ReplaceAll(lit.Value, "_", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.error(lit, fmt.Sprintf("invalid %s value %s", context, lit.Value))
		return 0, false
	}

	return v, true
}

// ----------------------------------------------------------------------------
// Module elements

// parseModule interprets the top level (module ...) list.
func (p *parser) parseModule(doc *ast.CommentGroup, list *ast.List) *ast.Module {
	if p.trace {
		defer un(trace(p, "parseModule"))
	}

	if listHead(list) != "module" {
		p.errorExpected(list, "(module ...)")
		return nil
	}

	if len(list.Elements) < 3 {
		p.error(list, "module needs a name and a runtime version")
		return nil
	}

	m := &ast.Module{
		Doc:      doc,
		Source:   list,
		Name:     p.expectSymbol(list.Elements[1], "module"),
		Comments: p.comments,
	}

	version := p.expectListOf(list.Elements[2], "runtime_version")
	if version == nil || len(version.Elements) != 2 {
		p.error(list.Elements[2], "module needs a (runtime_version \"MAJOR.MINOR\") declaration")
		return nil
	}

	m.RuntimeVersion = p.expectString(version.Elements[1], "runtime version")
	if m.RuntimeVersion != "" && !validVersion(m.RuntimeVersion) {
		p.error(version.Elements[1], fmt.Sprintf("invalid runtime version %q, expected \"MAJOR.MINOR\"", m.RuntimeVersion))
	}

	rest := list.Elements[3:]

	// Optional constructor and destructor declarations
	// precede the element nodes.
	if len(rest) > 0 {
		if decl, ok := rest[0].(*ast.List); ok && listHead(decl) == "constructor" {
			if len(decl.Elements) != 2 {
				p.error(decl, "constructor needs a function name")
			} else {
				m.Constructor = p.expectSymbol(decl.Elements[1], "constructor")
			}

			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		if decl, ok := rest[0].(*ast.List); ok && listHead(decl) == "destructor" {
			if len(decl.Elements) != 2 {
				p.error(decl, "destructor needs a function name")
			} else {
				m.Destructor = p.expectSymbol(decl.Elements[1], "destructor")
			}

			rest = rest[1:]
		}
	}

	for _, expr := range rest {
		elem, ok := expr.(*ast.List)
		if !ok {
			p.errorExpected(expr, "module element")
			continue
		}

		switch head := listHead(elem); head {
		case "function":
			if f := p.parseFunction(elem); f != nil {
				m.Elements = append(m.Elements, f)
			}
		case "data":
			if d := p.parseData(elem); d != nil {
				m.Elements = append(m.Elements, d)
			}
		case "external":
			if e := p.parseExternal(elem); e != nil {
				m.Elements = append(m.Elements, e)
			}
		case "import":
			if i := p.parseImport(elem); i != nil {
				m.Elements = append(m.Elements, i)
			}
		default:
			p.error(elem, fmt.Sprintf("invalid module element %q", head))
		}
	}

	return m
}

// validVersion reports whether s is a MAJOR.MINOR version
// string.
func validVersion(s string) bool {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return false
	}

	if _, err := strconv.ParseUint(major, 10, 16); err != nil {
		return false
	}

	_, err := strconv.ParseUint(minor, 10, 16)
	return err == nil
}

// parseFunction interprets a (function ...) list;
//
//	(function export $name
//	    (param $a i32) (result i32)
//	    (local $x i32)
//	    (code ...))
func (p *parser) parseFunction(list *ast.List) *ast.Function {
	if p.trace {
		defer un(trace(p, "parseFunction"))
	}

	f := &ast.Function{Source: list}
	rest := list.Elements[1:]

	if len(rest) > 0 {
		if ident, ok := rest[0].(*ast.Identifier); ok && ident.Name == "export" {
			f.Export = true
			rest = rest[1:]
		}
	}

	if len(rest) == 0 {
		p.error(list, "function needs a name")
		return nil
	}

	f.Name = p.expectSymbol(rest[0], "function")
	rest = rest[1:]

	// Signature, locals, then a single code node.
	for len(rest) > 0 {
		elem, ok := rest[0].(*ast.List)
		if !ok {
			p.errorExpected(rest[0], "function element")
			return nil
		}

		switch listHead(elem) {
		case "param":
			if param := p.parseParameter(elem); param != nil {
				f.Params = append(f.Params, param)
			}
		case "result":
			f.Results = append(f.Results, p.parseResults(elem)...)
		case "local":
			if local := p.parseLocal(elem); local != nil {
				f.Locals = append(f.Locals, local)
			}
		case "code":
			for _, expr := range elem.Elements[1:] {
				if inst := p.parseInstruction(expr); inst != nil {
					f.Code = append(f.Code, inst)
				}
			}

			if len(rest) > 1 {
				p.error(rest[1], "unexpected expression after function code")
			}

			return f
		default:
			p.errorExpected(elem, "param, result, local, or code")
			return nil
		}

		rest = rest[1:]
	}

	p.error(list, "function has no code")
	return nil
}

// parseParameter interprets a (param $name TYPE) list.
func (p *parser) parseParameter(list *ast.List) *ast.Parameter {
	if len(list.Elements) != 3 {
		p.error(list, "param needs a name and a type")
		return nil
	}

	name := p.expectSymbol(list.Elements[1], "param")
	t, ok := p.expectDataType(list.Elements[2], "param")
	if name == "" || !ok {
		return nil
	}

	return &ast.Parameter{Source: list, Name: name, Type: t}
}

// parseResults interprets a (result TYPE...) list.
func (p *parser) parseResults(list *ast.List) []ast.DataType {
	var results []ast.DataType
	for _, expr := range list.Elements[1:] {
		t, ok := p.expectDataType(expr, "result")
		if !ok {
			return nil
		}

		results = append(results, t)
	}

	if len(results) == 0 {
		p.error(list, "result needs at least one type")
	}

	return results
}

// parseLocal interprets a (local $name TYPE) or
// (local $name (bytes SIZE ALIGN)) list.
func (p *parser) parseLocal(list *ast.List) *ast.Local {
	if len(list.Elements) != 3 {
		p.error(list, "local needs a name and a type")
		return nil
	}

	name := p.expectSymbol(list.Elements[1], "local")
	if name == "" {
		return nil
	}

	if b, ok := list.Elements[2].(*ast.List); ok {
		size, align, ok := p.parseBytesType(b)
		if !ok {
			return nil
		}

		return &ast.Local{Source: list, Name: name, Bytes: true, Size: size, Align: align}
	}

	t, ok := p.expectDataType(list.Elements[2], "local")
	if !ok {
		return nil
	}

	size, align := typeSizeAlign(t)
	return &ast.Local{Source: list, Name: name, Type: t, Size: size, Align: align}
}

// parseBytesType interprets a (bytes SIZE ALIGN) list.
func (p *parser) parseBytesType(list *ast.List) (size uint32, align uint16, ok bool) {
	if listHead(list) != "bytes" || len(list.Elements) != 3 {
		p.errorExpected(list, "(bytes SIZE ALIGN)")
		return 0, 0, false
	}

	s, ok1 := p.expectUint(list.Elements[1], 32, "bytes size")
	a, ok2 := p.expectUint(list.Elements[2], 16, "bytes align")
	if !ok1 || !ok2 {
		return 0, 0, false
	}

	if a == 0 || a&(a-1) != 0 {
		p.error(list.Elements[2], fmt.Sprintf("bytes align must be a power of two, have %d", a))
		return 0, 0, false
	}

	return uint32(s), uint16(a), true
}

func typeSizeAlign(t ast.DataType) (size uint32, align uint16) {
	switch t {
	case ast.I32, ast.F32:
		return 4, 4
	default:
		return 8, 8
	}
}

// parseData interprets a (data ...) list;
//
//	(data $name (read_only i64 0x11))
//	(data export $name (read_write string "hi"))
//	(data $name (read_only (bytes 8) 0x11 0x13))
//	(data $name (uninit (bytes 1024 8)))
func (p *parser) parseData(list *ast.List) *ast.Data {
	if p.trace {
		defer un(trace(p, "parseData"))
	}

	d := &ast.Data{Source: list}
	rest := list.Elements[1:]

	if len(rest) > 0 {
		if ident, ok := rest[0].(*ast.Identifier); ok && ident.Name == "export" {
			d.Export = true
			rest = rest[1:]
		}
	}

	if len(rest) != 2 {
		p.error(list, "data needs a name and a storage kind")
		return nil
	}

	d.Name = p.expectSymbol(rest[0], "data")
	kind, ok := rest[1].(*ast.List)
	if !ok {
		p.errorExpected(rest[1], "data storage kind")
		return nil
	}

	switch head := listHead(kind); head {
	case "read_only":
		d.Kind = ast.ReadOnlyData
		return p.parseInitialisedData(d, kind)
	case "read_write":
		d.Kind = ast.ReadWriteData
		return p.parseInitialisedData(d, kind)
	case "uninit":
		d.Kind = ast.UninitData
		return p.parseUninitData(d, kind)
	default:
		p.error(kind, fmt.Sprintf("invalid data storage kind %q, expected read_only, read_write, or uninit", head))
		return nil
	}
}

// parseInitialisedData interprets the body of a (read_only ...)
// or (read_write ...) list, filling in the data entry's
// initial value.
func (p *parser) parseInitialisedData(d *ast.Data, kind *ast.List) *ast.Data {
	if len(kind.Elements) < 3 {
		p.error(kind, "data initialiser needs a type and a value")
		return nil
	}

	// A (bytes ALIGN) type takes a sequence of byte
	// values; the other types take a single literal.
	if b, ok := kind.Elements[1].(*ast.List); ok {
		if listHead(b) != "bytes" || len(b.Elements) != 2 {
			p.errorExpected(b, "(bytes ALIGN)")
			return nil
		}

		align, ok := p.expectUint(b.Elements[1], 16, "bytes align")
		if !ok {
			return nil
		}

		value := make([]byte, 0, len(kind.Elements)-2)
		for _, expr := range kind.Elements[2:] {
			v, ok := p.expectUint(expr, 8, "byte")
			if !ok {
				return nil
			}

			value = append(value, byte(v))
		}

		d.Value = value
		d.Size = uint32(len(value))
		d.Align = uint16(align)
		return d
	}

	ident, ok := kind.Elements[1].(*ast.Identifier)
	if !ok {
		p.errorExpected(kind.Elements[1], "data type")
		return nil
	}

	if len(kind.Elements) != 3 {
		p.error(kind.Elements[3], "unexpected expression after data value")
		return nil
	}

	switch ident.Name {
	case "string", "cstring":
		s := p.expectString(kind.Elements[2], "data")
		d.Value = []byte(s)
		if ident.Name == "cstring" {
			d.Value = append(d.Value, 0)
		}

		d.Size = uint32(len(d.Value))
		d.Align = 1
		return d
	case "i32":
		v, ok := p.expectInt(kind.Elements[2], 32, "data")
		if !ok {
			return nil
		}

		d.Value = binary.LittleEndian.AppendUint32(nil, uint32(v))
	case "i64":
		v, ok := p.expectInt(kind.Elements[2], 64, "data")
		if !ok {
			return nil
		}

		d.Value = binary.LittleEndian.AppendUint64(nil, v)
	case "f32":
		v, ok := p.expectFloat(kind.Elements[2], "data")
		if !ok {
			return nil
		}

		d.Value = binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v)))
	case "f64":
		v, ok := p.expectFloat(kind.Elements[2], "data")
		if !ok {
			return nil
		}

		d.Value = binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
	default:
		p.error(ident, fmt.Sprintf("invalid data type %q", ident.Name))
		return nil
	}

	d.Size = uint32(len(d.Value))
	d.Align = uint16(len(d.Value))
	return d
}

// parseUninitData interprets the body of an (uninit ...)
// list; (uninit i64) or (uninit (bytes SIZE ALIGN)).
func (p *parser) parseUninitData(d *ast.Data, kind *ast.List) *ast.Data {
	if len(kind.Elements) != 2 {
		p.error(kind, "uninit data needs a type")
		return nil
	}

	if b, ok := kind.Elements[1].(*ast.List); ok {
		size, align, ok := p.parseBytesType(b)
		if !ok {
			return nil
		}

		d.Size = size
		d.Align = align
		return d
	}

	t, ok := p.expectDataType(kind.Elements[1], "uninit data")
	if !ok {
		return nil
	}

	size, align := typeSizeAlign(t)
	d.Size = size
	d.Align = align
	return d
}

// parseExternal interprets an (external ...) list;
//
//	(external (library "libc.so.6")
//	    (function $abs "abs" (param i32) (result i32)))
func (p *parser) parseExternal(list *ast.List) *ast.External {
	if p.trace {
		defer un(trace(p, "parseExternal"))
	}

	e := &ast.External{Source: list}
	rest := list.Elements[1:]

	if len(rest) == 0 {
		p.error(list, "external needs a library")
		return nil
	}

	library := p.expectListOf(rest[0], "library")
	if library == nil || len(library.Elements) != 2 {
		p.error(rest[0], "external needs a (library \"NAME\") declaration")
		return nil
	}

	e.Library = p.expectString(library.Elements[1], "library")
	for _, expr := range rest[1:] {
		item := p.expectListOf(expr, "function")
		if item == nil {
			return nil
		}

		if f := p.parseForeignFunction(item); f != nil {
			e.Functions = append(e.Functions, &ast.ExternalFunction{
				Source:  item,
				Name:    f.Name,
				Symbol:  f.Path,
				Params:  f.Params,
				Results: f.Results,
			})
		}
	}

	return e
}

// parseImport interprets an (import ...) list;
//
//	(import (module "math")
//	    (function $add "add" (param i32) (param i32) (result i32)))
func (p *parser) parseImport(list *ast.List) *ast.Import {
	if p.trace {
		defer un(trace(p, "parseImport"))
	}

	i := &ast.Import{Source: list}
	rest := list.Elements[1:]

	if len(rest) == 0 {
		p.error(list, "import needs a module")
		return nil
	}

	module := p.expectListOf(rest[0], "module")
	if module == nil || len(module.Elements) != 2 {
		p.error(rest[0], "import needs a (module \"NAME\") declaration")
		return nil
	}

	i.Module = p.expectString(module.Elements[1], "module")
	for _, expr := range rest[1:] {
		item := p.expectListOf(expr, "function")
		if item == nil {
			return nil
		}

		if f := p.parseForeignFunction(item); f != nil {
			i.Functions = append(i.Functions, f)
		}
	}

	return i
}

// parseForeignFunction interprets one external or imported
// function item; (function $name "path" (param i32)* (result i32)*).
// Parameters are unnamed: only the types matter.
func (p *parser) parseForeignFunction(list *ast.List) *ast.ImportedFunction {
	if len(list.Elements) < 3 {
		p.error(list, "foreign function needs a name and a symbol")
		return nil
	}

	f := &ast.ImportedFunction{
		Source: list,
		Name:   p.expectSymbol(list.Elements[1], "foreign function"),
		Path:   p.expectString(list.Elements[2], "foreign function symbol"),
	}

	for _, expr := range list.Elements[3:] {
		elem, ok := expr.(*ast.List)
		if !ok {
			p.errorExpected(expr, "param or result")
			return nil
		}

		switch listHead(elem) {
		case "param":
			if len(elem.Elements) != 2 {
				p.error(elem, "foreign function param takes a single type")
				return nil
			}

			t, ok := p.expectDataType(elem.Elements[1], "param")
			if !ok {
				return nil
			}

			f.Params = append(f.Params, t)
		case "result":
			f.Results = append(f.Results, p.parseResults(elem)...)
		default:
			p.errorExpected(elem, "param or result")
			return nil
		}
	}

	return f
}

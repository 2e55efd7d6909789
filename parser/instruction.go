// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package parser

import (
	"fmt"
	"sync"

	"github.com/hemashushu/xiaoxuan-assembly/ast"
)

// A syntaxKind describes the operand shape of one
// instruction mnemonic, which determines how its list is
// interpreted.
type syntaxKind uint8

const (
	kindImm syntaxKind = iota
	kindLocalLoad
	kindLocalStore
	kindDataLoad
	kindDataStore
	kindMemoryLoad
	kindMemoryStore
	kindUnaryOp
	kindUnaryOpImm
	kindBinaryOp
	kindWhen
	kindIf
	kindBranch
	kindFor
	kindSequence
	kindCall
	kindDynCall
	kindEnvCall
	kindSysCall
	kindAddrFunction
	kindAddrData
	kindNop
	kindPanic
)

// The instruction syntax map is built once, on first use.
var (
	syntaxOnce sync.Once
	syntaxMap  map[string]syntaxKind
)

func instructionSyntax(mnemonic string) (syntaxKind, bool) {
	syntaxOnce.Do(initSyntaxMap)
	kind, ok := syntaxMap[mnemonic]
	return kind, ok
}

func initSyntaxMap() {
	syntaxMap = make(map[string]syntaxKind)

	add := func(kind syntaxKind, names ...string) {
		for _, name := range names {
			syntaxMap[name] = kind
		}
	}

	add(kindImm, "i32.imm", "i64.imm", "f32.imm", "f64.imm")

	add(kindLocalLoad,
		"local.load64_i64", "local.load64_f64",
		"local.load64_i32_s", "local.load64_i32_u",
		"local.load64_i16_s", "local.load64_i16_u",
		"local.load64_i8_s", "local.load64_i8_u",
		"local.load32_i32", "local.load32_f32",
		"local.load32_i16_s", "local.load32_i16_u",
		"local.load32_i8_s", "local.load32_i8_u")
	add(kindLocalStore,
		"local.store64", "local.store32", "local.store16", "local.store8")

	add(kindDataLoad,
		"data.load64_i64", "data.load64_f64",
		"data.load64_i32_s", "data.load64_i32_u",
		"data.load64_i16_s", "data.load64_i16_u",
		"data.load64_i8_s", "data.load64_i8_u",
		"data.load32_i32", "data.load32_f32",
		"data.load32_i16_s", "data.load32_i16_u",
		"data.load32_i8_s", "data.load32_i8_u")
	add(kindDataStore,
		"data.store64", "data.store32", "data.store16", "data.store8")

	add(kindMemoryLoad,
		"memory.load64_i64", "memory.load64_f64",
		"memory.load64_i32_s", "memory.load64_i32_u",
		"memory.load64_i16_s", "memory.load64_i16_u",
		"memory.load64_i8_s", "memory.load64_i8_u",
		"memory.load32_i32", "memory.load32_f32",
		"memory.load32_i16_s", "memory.load32_i16_u",
		"memory.load32_i8_s", "memory.load32_i8_u")
	add(kindMemoryStore,
		"memory.store64", "memory.store32", "memory.store16", "memory.store8")

	add(kindUnaryOp,
		"i32.eqz", "i32.nez", "i32.not", "i32.neg", "i32.abs",
		"i32.leading_zeros", "i32.trailing_zeros", "i32.count_ones",
		"i64.eqz", "i64.nez", "i64.not", "i64.neg", "i64.abs",
		"i64.leading_zeros", "i64.trailing_zeros", "i64.count_ones",
		"i32.truncate_i64", "i64.extend_i32_s", "i64.extend_i32_u",
		"f32.neg", "f32.abs", "f32.sqrt",
		"f64.neg", "f64.abs", "f64.sqrt",
		"f32.demote_f64", "f64.promote_f32",
		"i32.convert_f32_s", "i32.convert_f64_s",
		"i64.convert_f32_s", "i64.convert_f64_s",
		"f32.convert_i32_s", "f32.convert_i64_s",
		"f64.convert_i32_s", "f64.convert_i64_s",
		"i32.reinterpret_f32", "i64.reinterpret_f64",
		"f32.reinterpret_i32", "f64.reinterpret_i64")

	add(kindUnaryOpImm,
		"i32.inc", "i32.dec", "i64.inc", "i64.dec")

	add(kindBinaryOp,
		"i32.add", "i32.sub", "i32.mul",
		"i32.div_s", "i32.div_u", "i32.rem_s", "i32.rem_u",
		"i32.and", "i32.or", "i32.xor",
		"i32.shift_left", "i32.shift_right_s", "i32.shift_right_u",
		"i32.eq", "i32.ne",
		"i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u",
		"i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u",
		"i64.add", "i64.sub", "i64.mul",
		"i64.div_s", "i64.div_u", "i64.rem_s", "i64.rem_u",
		"i64.and", "i64.or", "i64.xor",
		"i64.shift_left", "i64.shift_right_s", "i64.shift_right_u",
		"i64.eq", "i64.ne",
		"i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u",
		"i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u",
		"f32.add", "f32.sub", "f32.mul", "f32.div",
		"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge",
		"f64.add", "f64.sub", "f64.mul", "f64.div",
		"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge")

	add(kindWhen, "when")
	add(kindIf, "if")
	add(kindBranch, "branch")
	add(kindFor, "for")
	add(kindSequence, "do", "break", "recur", "return", "rerun")
	add(kindCall, "call")
	add(kindDynCall, "dyncall")
	add(kindEnvCall, "envcall")
	add(kindSysCall, "syscall")
	add(kindAddrFunction, "addr.function")
	add(kindAddrData, "addr.data")
	add(kindNop, "nop")
	add(kindPanic, "panic")
}

var sequenceKindsByName = map[string]ast.SequenceKind{
	"do":     ast.SeqDo,
	"break":  ast.SeqBreak,
	"recur":  ast.SeqRecur,
	"return": ast.SeqReturn,
	"rerun":  ast.SeqRerun,
}

// parseInstruction interprets one instruction expression.
func (p *parser) parseInstruction(expr ast.Expression) ast.Instruction {
	if p.trace {
		defer un(trace(p, "parseInstruction"))
	}

	list, ok := expr.(*ast.List)
	if !ok {
		p.errorExpected(expr, "instruction")
		return nil
	}

	mnemonic := listHead(list)
	if mnemonic == "" {
		p.errorExpected(list, "instruction")
		return nil
	}

	kind, ok := instructionSyntax(mnemonic)
	if !ok {
		p.error(list, fmt.Sprintf("unknown instruction %q", mnemonic))
		return nil
	}

	rest := list.Elements[1:]
	switch kind {
	case kindImm:
		return p.parseImm(list, mnemonic, rest)
	case kindLocalLoad, kindDataLoad:
		if len(rest) == 0 {
			p.error(list, mnemonic+" needs a name")
			return nil
		}

		name := p.expectSymbol(rest[0], mnemonic)
		var offset uint64
		if len(rest) == 2 {
			offset, ok = p.expectUint(rest[1], 16, mnemonic+" offset")
			if !ok {
				return nil
			}
		} else if len(rest) > 2 {
			p.error(rest[2], "unexpected expression after "+mnemonic)
			return nil
		}

		if kind == kindLocalLoad {
			return &ast.LocalLoad{Source: list, Mnemonic: mnemonic, Name: name, Offset: uint16(offset)}
		}
		return &ast.DataLoad{Source: list, Mnemonic: mnemonic, Name: name, Offset: uint16(offset)}
	case kindLocalStore, kindDataStore:
		if len(rest) < 2 {
			p.error(list, mnemonic+" needs a name and a value")
			return nil
		}

		name := p.expectSymbol(rest[0], mnemonic)
		var offset uint64
		if len(rest) == 3 {
			offset, ok = p.expectUint(rest[1], 16, mnemonic+" offset")
			if !ok {
				return nil
			}

			rest = rest[1:]
		} else if len(rest) > 3 {
			p.error(rest[3], "unexpected expression after "+mnemonic)
			return nil
		}

		value := p.parseInstruction(rest[1])
		if value == nil {
			return nil
		}

		if kind == kindLocalStore {
			return &ast.LocalStore{Source: list, Mnemonic: mnemonic, Name: name, Offset: uint16(offset), Value: value}
		}
		return &ast.DataStore{Source: list, Mnemonic: mnemonic, Name: name, Offset: uint16(offset), Value: value}
	case kindMemoryLoad:
		var offset uint64
		if len(rest) == 2 {
			offset, ok = p.expectUint(rest[0], 16, mnemonic+" offset")
			if !ok {
				return nil
			}

			rest = rest[1:]
		}

		if len(rest) != 1 {
			p.error(list, mnemonic+" needs an address")
			return nil
		}

		addr := p.parseInstruction(rest[0])
		if addr == nil {
			return nil
		}

		return &ast.MemoryLoad{Source: list, Mnemonic: mnemonic, Offset: uint16(offset), Addr: addr}
	case kindMemoryStore:
		var offset uint64
		if len(rest) == 3 {
			offset, ok = p.expectUint(rest[0], 16, mnemonic+" offset")
			if !ok {
				return nil
			}

			rest = rest[1:]
		}

		if len(rest) != 2 {
			p.error(list, mnemonic+" needs an address and a value")
			return nil
		}

		addr := p.parseInstruction(rest[0])
		value := p.parseInstruction(rest[1])
		if addr == nil || value == nil {
			return nil
		}

		return &ast.MemoryStore{Source: list, Mnemonic: mnemonic, Offset: uint16(offset), Addr: addr, Value: value}
	case kindUnaryOp:
		if len(rest) != 1 {
			p.error(list, mnemonic+" needs one operand")
			return nil
		}

		operand := p.parseInstruction(rest[0])
		if operand == nil {
			return nil
		}

		return &ast.UnaryOp{Source: list, Mnemonic: mnemonic, Operand: operand}
	case kindUnaryOpImm:
		if len(rest) != 2 {
			p.error(list, mnemonic+" needs an amount and an operand")
			return nil
		}

		imm, ok := p.expectUint(rest[0], 16, mnemonic+" amount")
		if !ok {
			return nil
		}

		operand := p.parseInstruction(rest[1])
		if operand == nil {
			return nil
		}

		return &ast.UnaryOpImm{Source: list, Mnemonic: mnemonic, Imm: uint16(imm), Operand: operand}
	case kindBinaryOp:
		if len(rest) != 2 {
			p.error(list, mnemonic+" needs two operands")
			return nil
		}

		left := p.parseInstruction(rest[0])
		right := p.parseInstruction(rest[1])
		if left == nil || right == nil {
			return nil
		}

		return &ast.BinaryOp{Source: list, Mnemonic: mnemonic, Left: left, Right: right}
	case kindWhen:
		if len(rest) != 2 {
			p.error(list, "when needs a test and a consequent")
			return nil
		}

		test := p.parseInstruction(rest[0])
		consequent := p.parseInstruction(rest[1])
		if test == nil || consequent == nil {
			return nil
		}

		return &ast.When{Source: list, Test: test, Consequent: consequent}
	case kindIf:
		results, rest := p.parseOptionalResults(rest)
		if len(rest) != 3 {
			p.error(list, "if needs a test, a consequent, and an alternate")
			return nil
		}

		test := p.parseInstruction(rest[0])
		consequent := p.parseInstruction(rest[1])
		alternate := p.parseInstruction(rest[2])
		if test == nil || consequent == nil || alternate == nil {
			return nil
		}

		return &ast.If{Source: list, Results: results, Test: test, Consequent: consequent, Alternate: alternate}
	case kindBranch:
		return p.parseBranch(list, rest)
	case kindFor:
		return p.parseFor(list, rest)
	case kindSequence:
		seq := &ast.Sequence{Source: list, Kind: sequenceKindsByName[mnemonic]}
		for _, expr := range rest {
			if item := p.parseInstruction(expr); item != nil {
				seq.Items = append(seq.Items, item)
			}
		}

		return seq
	case kindCall:
		if len(rest) == 0 {
			p.error(list, "call needs a function name")
			return nil
		}

		call := &ast.Call{Source: list, Name: p.expectSymbol(rest[0], "call")}
		for _, expr := range rest[1:] {
			if arg := p.parseInstruction(expr); arg != nil {
				call.Args = append(call.Args, arg)
			}
		}

		return call
	case kindDynCall:
		if len(rest) == 0 {
			p.error(list, "dyncall needs an address operand")
			return nil
		}

		addr := p.parseInstruction(rest[0])
		if addr == nil {
			return nil
		}

		call := &ast.DynCall{Source: list, Addr: addr}
		for _, expr := range rest[1:] {
			if arg := p.parseInstruction(expr); arg != nil {
				call.Args = append(call.Args, arg)
			}
		}

		return call
	case kindEnvCall, kindSysCall:
		if len(rest) == 0 {
			p.error(list, mnemonic+" needs a call number")
			return nil
		}

		num, ok := p.expectUint(rest[0], 32, mnemonic+" number")
		if !ok {
			return nil
		}

		var args []ast.Instruction
		for _, expr := range rest[1:] {
			if arg := p.parseInstruction(expr); arg != nil {
				args = append(args, arg)
			}
		}

		if kind == kindEnvCall {
			return &ast.EnvCall{Source: list, Num: uint32(num), Args: args}
		}
		return &ast.SysCall{Source: list, Num: uint32(num), Args: args}
	case kindAddrFunction, kindAddrData:
		if len(rest) != 1 {
			p.error(list, mnemonic+" needs a name")
			return nil
		}

		name := p.expectSymbol(rest[0], mnemonic)
		if kind == kindAddrFunction {
			return &ast.AddrFunction{Source: list, Name: name}
		}
		return &ast.AddrData{Source: list, Name: name}
	case kindNop, kindPanic:
		if len(rest) != 0 {
			p.error(rest[0], mnemonic+" takes no operands")
			return nil
		}

		if kind == kindNop {
			return &ast.Nop{Source: list}
		}
		return &ast.Panic{Source: list}
	}

	p.error(list, fmt.Sprintf("unknown instruction %q", mnemonic))
	return nil
}

// parseImm interprets an immediate number instruction, such
// as (i32.imm 11) or (f64.imm 3.142).
func (p *parser) parseImm(list *ast.List, mnemonic string, rest []ast.Expression) ast.Instruction {
	if len(rest) != 1 {
		p.error(list, mnemonic+" needs a value")
		return nil
	}

	t, _ := ast.DataTypeByName(mnemonic[:3])
	imm := &ast.Imm{Source: list, Type: t}
	switch t {
	case ast.I32:
		v, ok := p.expectInt(rest[0], 32, mnemonic)
		if !ok {
			return nil
		}

		imm.Int = v
	case ast.I64:
		v, ok := p.expectInt(rest[0], 64, mnemonic)
		if !ok {
			return nil
		}

		imm.Int = v
	default:
		v, ok := p.expectFloat(rest[0], mnemonic)
		if !ok {
			return nil
		}

		imm.Float = v
	}

	return imm
}

// parseOptionalResults consumes any leading (result ...)
// lists.
func (p *parser) parseOptionalResults(rest []ast.Expression) ([]ast.DataType, []ast.Expression) {
	var results []ast.DataType
	for len(rest) > 0 {
		elem, ok := rest[0].(*ast.List)
		if !ok || listHead(elem) != "result" {
			break
		}

		results = append(results, p.parseResults(elem)...)
		rest = rest[1:]
	}

	return results, rest
}

// parseBranch interprets a branch instruction;
//
//	(branch (result i32)
//	    (case TEST CONSEQUENT)
//	    (default CONSEQUENT))
func (p *parser) parseBranch(list *ast.List, rest []ast.Expression) ast.Instruction {
	results, rest := p.parseOptionalResults(rest)
	branch := &ast.Branch{Source: list, Results: results}

	for _, expr := range rest {
		arm, ok := expr.(*ast.List)
		if !ok {
			p.errorExpected(expr, "case or default")
			return nil
		}

		switch listHead(arm) {
		case "case":
			if branch.Default != nil {
				p.error(arm, "branch case after default")
				return nil
			}

			if len(arm.Elements) != 3 {
				p.error(arm, "case needs a test and a consequent")
				return nil
			}

			test := p.parseInstruction(arm.Elements[1])
			consequent := p.parseInstruction(arm.Elements[2])
			if test == nil || consequent == nil {
				return nil
			}

			branch.Cases = append(branch.Cases, &ast.BranchCase{Source: arm, Test: test, Consequent: consequent})
		case "default":
			if branch.Default != nil {
				p.error(arm, "branch has more than one default")
				return nil
			}

			if len(arm.Elements) != 2 {
				p.error(arm, "default needs a consequent")
				return nil
			}

			consequent := p.parseInstruction(arm.Elements[1])
			if consequent == nil {
				return nil
			}

			branch.Default = consequent
		default:
			p.errorExpected(arm, "case or default")
			return nil
		}
	}

	if len(branch.Cases) == 0 {
		p.error(list, "branch needs at least one case")
		return nil
	}

	return branch
}

// parseFor interprets a loop instruction;
//
//	(for (param $i i32) (result i32) CODE)
func (p *parser) parseFor(list *ast.List, rest []ast.Expression) ast.Instruction {
	loop := &ast.For{Source: list}

	for len(rest) > 0 {
		elem, ok := rest[0].(*ast.List)
		if !ok {
			break
		}

		if listHead(elem) == "param" {
			if param := p.parseParameter(elem); param != nil {
				loop.Params = append(loop.Params, param)
			}

			rest = rest[1:]
			continue
		}

		break
	}

	loop.Results, rest = p.parseOptionalResults(rest)
	if len(rest) != 1 {
		p.error(list, "for needs a code operand")
		return nil
	}

	loop.Code = p.parseInstruction(rest[0])
	if loop.Code == nil {
		return nil
	}

	return loop
}

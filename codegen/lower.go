// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package codegen

import (
	"fmt"
	"math"
	"strings"

	"github.com/hemashushu/xiaoxuan-assembly/ast"
	"github.com/hemashushu/xiaoxuan-assembly/internal/x86"
	"github.com/hemashushu/xiaoxuan-assembly/sys"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

// views maps each 64-bit register the lowering touches to
// its 8, 16, 32, and 64-bit views.
var views = map[*x86.Register][4]*x86.Register{
	x86.RAX: {x86.AL, x86.AX, x86.EAX, x86.RAX},
	x86.RCX: {x86.CL, x86.CX, x86.ECX, x86.RCX},
	x86.RDX: {x86.DL, x86.DX, x86.EDX, x86.RDX},
	x86.RBX: {x86.BL, x86.BX, x86.EBX, x86.RBX},
	x86.R12: {x86.R12B, x86.R12W, x86.R12D, x86.R12},
	x86.R13: {x86.R13B, x86.R13W, x86.R13D, x86.R13},
	x86.R14: {x86.R14B, x86.R14W, x86.R14D, x86.R14},
	x86.R15: {x86.R15B, x86.R15W, x86.R15D, x86.R15},
}

// view returns the register's variant with the given width.
func view(reg *x86.Register, bits int) *x86.Register {
	set, ok := views[reg]
	if !ok {
		panic(fmt.Sprintf("codegen: no register views for %s", reg))
	}

	switch bits {
	case 8:
		return set[0]
	case 16:
		return set[1]
	case 32:
		return set[2]
	case 64:
		return set[3]
	default:
		panic(fmt.Sprintf("codegen: bad register width %d", bits))
	}
}

// A slot is one variable's location in the frame; its
// address is rbp minus the offset.
type slot struct {
	offset int
	size   int
}

// A loop records the labels and loop parameter slots that
// break and recur instructions target.
type loop struct {
	start  string
	end    string
	params []*slot
	depth  int // evaluation depth of the loop's own value
}

// A function holds the state for lowering one function
// body.
type function struct {
	c    *compiler
	fn   *ast.Function
	name string

	scopes   []map[string]*slot
	locals   []*slot // declared locals, zeroed by the prologue
	forSlots map[*ast.For][]*slot
	last     int // high-water frame offset

	loops []*loop

	body     string // label after parameter homing; rerun target
	epilogue string

	ops []op
}

func (f *function) emit(inst *x86.Instruction) { f.ops = append(f.ops, op{inst: inst}) }
func (f *function) emitLabel(label string)     { f.ops = append(f.ops, op{label: label}) }

// rota returns the evaluation register for the given
// depth. Trees deeper than the evaluation register set
// cannot be lowered.
func (f *function) rota(pos token.Pos, depth int) (*x86.Register, error) {
	regs := f.c.arch.ABI.EvaluationRegisters
	if depth >= len(regs) {
		return nil, f.c.errorf(pos, "expression is nested too deeply: more than %d intermediate values", len(regs))
	}

	return regs[depth], nil
}

// allocSlot reserves frame space of the given size and
// alignment.
func (f *function) allocSlot(size, align int) *slot {
	off := f.last + size
	off += (align - off%align) % align
	f.last = off
	return &slot{offset: off, size: size}
}

// lookup resolves a variable name against the innermost
// scope that declares it.
func (f *function) lookup(name string) *slot {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if s := f.scopes[i][name]; s != nil {
			return s
		}
	}

	return nil
}

// frameMem returns a memory operand for a frame slot.
func frameMem(s *slot, offset uint16, width int) *x86.Memory {
	return &x86.Memory{Base: x86.RBP, Disp: int32(offset) - int32(s.offset), Width: width}
}

// immFor returns the narrowest immediate operand form for
// the given value.
func immFor(v int64) x86.Immediate {
	if -128 <= v && v <= 127 {
		return x86.Imm8(v)
	}

	return x86.Imm32(v)
}

func (c *compiler) lowerFunction(fn *ast.Function) (*loweredFunc, error) {
	if len(fn.Results) > 1 {
		return nil, c.errorf(fn.Pos(), "function $%s declares %d results: at most one is supported", fn.Name, len(fn.Results))
	}

	evalRegs := c.arch.ABI.EvaluationRegisters
	f := &function{
		c:        c,
		fn:       fn,
		name:     c.qualify(fn.Name),
		forSlots: make(map[*ast.For][]*slot),
		last:     8 * len(evalRegs), // below the saved registers
		body:     c.label(),
		epilogue: c.label(),
	}

	// Allocate the frame: parameters and declared locals
	// first, then the parameters of every loop in the
	// body.
	base := make(map[string]*slot)
	params := make([]*slot, len(fn.Params))
	for i, p := range fn.Params {
		if base[p.Name] != nil {
			return nil, c.errorf(p.Pos(), "parameter $%s is declared more than once", p.Name)
		}

		params[i] = f.allocSlot(8, 8)
		base[p.Name] = params[i]
	}
	for _, l := range fn.Locals {
		if base[l.Name] != nil {
			return nil, c.errorf(l.Pos(), "local $%s is declared more than once", l.Name)
		}

		s := f.allocSlot(int(l.Size), int(l.Align))
		f.locals = append(f.locals, s)
		base[l.Name] = s
	}
	f.scopes = []map[string]*slot{base}

	for _, inst := range fn.Code {
		ast.Inspect(inst, func(node ast.Node) bool {
			if n, ok := node.(*ast.For); ok {
				slots := make([]*slot, len(n.Params))
				for i := range n.Params {
					slots[i] = f.allocSlot(8, 8)
				}

				f.forSlots[n] = slots
			}

			return true
		})
	}

	// The prologue pushes rbp and the evaluation
	// registers, so the frame size must restore the
	// 16-byte stack alignment on top of those pushes.
	raw := f.last - 8*len(evalRegs)
	frame := (raw+15)&^15 + 8*(len(evalRegs)%2)

	f.emitLabel(f.name)
	f.emit(x86.Inst(x86.PUSH, x86.RBP))
	f.emit(x86.Inst(x86.MOV, x86.RBP, x86.RSP))
	for _, reg := range evalRegs {
		f.emit(x86.Inst(x86.PUSH, reg))
	}
	if frame > 0 {
		f.emit(x86.Inst(x86.SUB, x86.RSP, immFor(int64(frame))))
	}

	for _, s := range f.locals {
		f.emitZero(s)
	}

	// Home the parameters into their frame slots.
	for i, loc := range c.arch.Parameters(len(fn.Params)) {
		switch loc := loc.(type) {
		case *x86.Register:
			f.emit(x86.Inst(x86.MOV, frameMem(params[i], 0, 64), loc))
		case sys.Stack:
			f.emit(x86.Inst(x86.MOV, evalRegs[0], &x86.Memory{Base: x86.RBP, Disp: int32(loc.Offset), Width: 64}))
			f.emit(x86.Inst(x86.MOV, frameMem(params[i], 0, 64), evalRegs[0]))
		}
	}
	f.emitLabel(f.body)

	produced := false
	for _, inst := range fn.Code {
		var err error
		produced, err = f.eval(inst, 0)
		if err != nil {
			return nil, err
		}
	}

	if produced && len(fn.Results) > 0 {
		f.emit(x86.Inst(x86.MOV, x86.RAX, evalRegs[0]))
	}

	f.emitLabel(f.epilogue)
	if frame > 0 {
		f.emit(x86.Inst(x86.ADD, x86.RSP, immFor(int64(frame))))
	}
	for i := len(evalRegs) - 1; i >= 0; i-- {
		f.emit(x86.Inst(x86.POP, evalRegs[i]))
	}
	f.emit(x86.Inst(x86.POP, x86.RBP))
	f.emit(x86.Inst(x86.RET))

	return &loweredFunc{name: f.name, ops: f.ops}, nil
}

// emitZero writes zeros over a frame slot.
func (f *function) emitZero(s *slot) {
	disp := -s.offset
	rem := s.size
	for rem >= 8 {
		f.emit(x86.Inst(x86.MOV, &x86.Memory{Base: x86.RBP, Disp: int32(disp), Width: 64}, x86.Imm32(0)))
		disp += 8
		rem -= 8
	}
	if rem >= 4 {
		f.emit(x86.Inst(x86.MOV, &x86.Memory{Base: x86.RBP, Disp: int32(disp), Width: 32}, x86.Imm32(0)))
		disp += 4
		rem -= 4
	}
	if rem >= 2 {
		f.emit(x86.Inst(x86.MOV, &x86.Memory{Base: x86.RBP, Disp: int32(disp), Width: 16}, x86.Imm16(0)))
		disp += 2
		rem -= 2
	}
	if rem >= 1 {
		f.emit(x86.Inst(x86.MOV, &x86.Memory{Base: x86.RBP, Disp: int32(disp), Width: 8}, x86.Imm8(0)))
	}
}

// A loadSpec describes one load mnemonic: the width of the
// loaded register, the width of the value in memory, and
// whether a narrower value is sign-extended.
type loadSpec struct {
	destBits int
	memBits  int
	signed   bool
}

// parseLoadSpec splits a load mnemonic such as
// "local.load64_i16_s" into its width specification. Load
// mnemonics have been validated by the parser.
func parseLoadSpec(mnemonic string) loadSpec {
	s := mnemonic[strings.Index(mnemonic, ".load")+len(".load"):]

	var spec loadSpec
	spec.destBits = 32
	if strings.HasPrefix(s, "64") {
		spec.destBits = 64
	}

	s = s[strings.IndexByte(s, '_')+1:] // "i16_s", "i64", "f32"
	spec.signed = strings.HasSuffix(s, "_s")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "_s"), "_u")
	switch s[1:] {
	case "8":
		spec.memBits = 8
	case "16":
		spec.memBits = 16
	case "32":
		spec.memBits = 32
	default:
		spec.memBits = 64
	}

	return spec
}

// storeWidth returns the memory width of a store mnemonic
// such as "data.store16".
func storeWidth(mnemonic string) int {
	switch mnemonic[strings.Index(mnemonic, ".store")+len(".store"):] {
	case "8":
		return 8
	case "16":
		return 16
	case "32":
		return 32
	default:
		return 64
	}
}

// emitLoad loads a value from memory into the given 64-bit
// register, widening it according to the load spec.
func (f *function) emitLoad(reg *x86.Register, mem *x86.Memory, spec loadSpec) {
	switch {
	case spec.memBits == 64:
		f.emit(x86.Inst(x86.MOV, reg, mem))
	case spec.memBits == 32 && spec.signed && spec.destBits == 64:
		f.emit(x86.Inst(x86.MOVSXD, reg, mem))
	case spec.memBits == 32:
		f.emit(x86.Inst(x86.MOV, view(reg, 32), mem))
	case spec.signed:
		f.emit(x86.Inst(x86.MOVSX, view(reg, spec.destBits), mem))
	default:
		f.emit(x86.Inst(x86.MOVZX, view(reg, 32), mem))
	}
}

// opBits returns the operand width of an operator mnemonic
// such as "i64.add". The boolean result is false for the
// floating-point operators, which this backend does not
// lower.
func opBits(mnemonic string) (bits int, ok bool) {
	switch {
	case strings.HasPrefix(mnemonic, "i32."):
		return 32, true
	case strings.HasPrefix(mnemonic, "i64."):
		return 64, true
	default:
		return 0, false
	}
}

// setccFor maps comparison operator names to the condition
// codes that produce their boolean results.
var setccFor = map[string]x86.Mnemonic{
	"eq":   x86.SETE,
	"ne":   x86.SETNE,
	"lt_s": x86.SETL,
	"lt_u": x86.SETB,
	"gt_s": x86.SETG,
	"gt_u": x86.SETA,
	"le_s": x86.SETLE,
	"le_u": x86.SETBE,
	"ge_s": x86.SETGE,
	"ge_u": x86.SETAE,
}

// eval lowers one instruction node at the given evaluation
// depth. If the node produces a value, the value is left
// in the evaluation register for that depth, and the
// boolean result is true.
func (f *function) eval(node ast.Instruction, depth int) (bool, error) {
	switch n := node.(type) {
	case *ast.Imm:
		return f.evalImm(n, depth)
	case *ast.LocalLoad:
		reg, err := f.rota(n.Pos(), depth)
		if err != nil {
			return false, err
		}

		s := f.lookup(n.Name)
		if s == nil {
			return false, f.c.errorf(n.Pos(), "undefined local variable $%s", n.Name)
		}

		spec := parseLoadSpec(n.Mnemonic)
		f.emitLoad(reg, frameMem(s, n.Offset, spec.memBits), spec)
		return true, nil
	case *ast.LocalStore:
		reg, err := f.evalValue(n.Value, depth)
		if err != nil {
			return false, err
		}

		s := f.lookup(n.Name)
		if s == nil {
			return false, f.c.errorf(n.Pos(), "undefined local variable $%s", n.Name)
		}

		w := storeWidth(n.Mnemonic)
		f.emit(x86.Inst(x86.MOV, frameMem(s, n.Offset, w), view(reg, w)))
		return false, nil
	case *ast.DataLoad:
		reg, err := f.rota(n.Pos(), depth)
		if err != nil {
			return false, err
		}

		if _, ok := f.c.data[n.Name]; !ok {
			return false, f.c.errorf(n.Pos(), "undefined data $%s", n.Name)
		}

		spec := parseLoadSpec(n.Mnemonic)
		mem := &x86.Memory{Base: x86.RIP, Symbol: f.c.qualify(n.Name), Disp: int32(n.Offset), Width: spec.memBits}
		f.emitLoad(reg, mem, spec)
		return true, nil
	case *ast.DataStore:
		reg, err := f.evalValue(n.Value, depth)
		if err != nil {
			return false, err
		}

		if _, ok := f.c.data[n.Name]; !ok {
			return false, f.c.errorf(n.Pos(), "undefined data $%s", n.Name)
		}

		w := storeWidth(n.Mnemonic)
		mem := &x86.Memory{Base: x86.RIP, Symbol: f.c.qualify(n.Name), Disp: int32(n.Offset), Width: w}
		f.emit(x86.Inst(x86.MOV, mem, view(reg, w)))
		return false, nil
	case *ast.MemoryLoad:
		reg, err := f.evalValue(n.Addr, depth)
		if err != nil {
			return false, err
		}

		spec := parseLoadSpec(n.Mnemonic)
		f.emitLoad(reg, &x86.Memory{Base: reg, Disp: int32(n.Offset), Width: spec.memBits}, spec)
		return true, nil
	case *ast.MemoryStore:
		addr, err := f.evalValue(n.Addr, depth)
		if err != nil {
			return false, err
		}

		val, err := f.evalValue(n.Value, depth+1)
		if err != nil {
			return false, err
		}

		w := storeWidth(n.Mnemonic)
		f.emit(x86.Inst(x86.MOV, &x86.Memory{Base: addr, Disp: int32(n.Offset), Width: w}, view(val, w)))
		return false, nil
	case *ast.UnaryOp:
		return f.evalUnary(n, depth)
	case *ast.UnaryOpImm:
		reg, err := f.evalValue(n.Operand, depth)
		if err != nil {
			return false, err
		}

		bits, ok := opBits(n.Mnemonic)
		if !ok {
			return false, f.floatErr(n.Pos(), n.Mnemonic)
		}

		mnemonic := x86.ADD
		if strings.HasSuffix(n.Mnemonic, ".dec") {
			mnemonic = x86.SUB
		}

		f.emit(x86.Inst(mnemonic, view(reg, bits), immFor(int64(n.Imm))))
		return true, nil
	case *ast.BinaryOp:
		return f.evalBinary(n, depth)
	case *ast.When:
		test, err := f.evalValue(n.Test, depth)
		if err != nil {
			return false, err
		}

		end := f.c.label()
		f.emit(x86.Inst(x86.TEST, view(test, 32), view(test, 32)))
		f.emit(x86.Inst(x86.JE, x86.Rel32(end)))
		if _, err := f.eval(n.Consequent, depth); err != nil {
			return false, err
		}

		f.emitLabel(end)
		return false, nil
	case *ast.If:
		if len(n.Results) > 1 {
			return false, f.c.errorf(n.Pos(), "a conditional can produce at most one value")
		}

		test, err := f.evalValue(n.Test, depth)
		if err != nil {
			return false, err
		}

		alt, end := f.c.label(), f.c.label()
		f.emit(x86.Inst(x86.TEST, view(test, 32), view(test, 32)))
		f.emit(x86.Inst(x86.JE, x86.Rel32(alt)))
		if _, err := f.eval(n.Consequent, depth); err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.JMP, x86.Rel32(end)))
		f.emitLabel(alt)
		if _, err := f.eval(n.Alternate, depth); err != nil {
			return false, err
		}

		f.emitLabel(end)
		return len(n.Results) > 0, nil
	case *ast.Branch:
		return f.evalBranch(n, depth)
	case *ast.For:
		return f.evalFor(n, depth)
	case *ast.Sequence:
		return f.evalSequence(n, depth)
	case *ast.Call:
		label, hasResult, err := f.c.resolveCall(n.Pos(), n.Name)
		if err != nil {
			return false, err
		}

		if err := f.marshalArgs(n.Pos(), n.Args, depth); err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.CALL, x86.Rel32(label)))
		return f.takeResult(n.Pos(), depth, hasResult)
	case *ast.DynCall:
		addr, err := f.evalValue(n.Addr, depth)
		if err != nil {
			return false, err
		}

		if err := f.marshalArgs(n.Pos(), n.Args, depth+1); err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.CALL, addr))
		return f.takeResult(n.Pos(), depth, true)
	case *ast.EnvCall:
		f.c.needEnvCall = true
		if err := f.marshalArgs(n.Pos(), n.Args, depth); err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.MOV, x86.EAX, x86.Imm32(int64(n.Num))))
		f.emit(x86.Inst(x86.CALL, x86.Rel32(envCallLabel)))
		return f.takeResult(n.Pos(), depth, true)
	case *ast.SysCall:
		regs, err := f.c.arch.SyscallParameters(len(n.Args))
		if err != nil {
			return false, f.c.errorf(n.Pos(), "%v", err)
		}

		for i, arg := range n.Args {
			if _, err := f.evalValue(arg, depth+i); err != nil {
				return false, err
			}
		}
		for i := range n.Args {
			src, err := f.rota(n.Pos(), depth+i)
			if err != nil {
				return false, err
			}

			f.emit(x86.Inst(x86.MOV, regs[i], src))
		}

		f.emit(x86.Inst(x86.MOV, x86.EAX, x86.Imm32(int64(n.Num))))
		f.emit(x86.Inst(x86.SYSCALL))
		return f.takeResult(n.Pos(), depth, true)
	case *ast.AddrFunction:
		reg, err := f.rota(n.Pos(), depth)
		if err != nil {
			return false, err
		}

		label, _, err := f.c.resolveCall(n.Pos(), n.Name)
		if err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.LEA, reg, &x86.Memory{Base: x86.RIP, Symbol: label}))
		return true, nil
	case *ast.AddrData:
		reg, err := f.rota(n.Pos(), depth)
		if err != nil {
			return false, err
		}

		if _, ok := f.c.data[n.Name]; !ok {
			return false, f.c.errorf(n.Pos(), "undefined data $%s", n.Name)
		}

		f.emit(x86.Inst(x86.LEA, reg, &x86.Memory{Base: x86.RIP, Symbol: f.c.qualify(n.Name)}))
		return true, nil
	case *ast.Nop:
		f.emit(x86.Inst(x86.NOP))
		return false, nil
	case *ast.Panic:
		f.emit(x86.Inst(x86.UD2))
		return false, nil
	default:
		panic(fmt.Sprintf("codegen: unexpected instruction node %T", n))
	}
}

// evalValue lowers a node that must produce a value,
// returning the 64-bit evaluation register holding it.
func (f *function) evalValue(node ast.Instruction, depth int) (*x86.Register, error) {
	produced, err := f.eval(node, depth)
	if err != nil {
		return nil, err
	}
	if !produced {
		return nil, f.c.errorf(node.Pos(), "expression produces no value")
	}

	return f.rota(node.Pos(), depth)
}

// takeResult moves a call's result from rax into the
// evaluation register for the given depth.
func (f *function) takeResult(pos token.Pos, depth int, hasResult bool) (bool, error) {
	if !hasResult {
		return false, nil
	}

	reg, err := f.rota(pos, depth)
	if err != nil {
		return false, err
	}

	f.emit(x86.Inst(x86.MOV, reg, x86.RAX))
	return true, nil
}

// marshalArgs evaluates call arguments and moves them into
// the parameter registers.
func (f *function) marshalArgs(pos token.Pos, args []ast.Instruction, depth int) error {
	paramRegs := f.c.arch.ABI.ParamRegisters
	if len(args) > len(paramRegs) {
		return f.c.errorf(pos, "cannot pass %d arguments: at most %d are supported", len(args), len(paramRegs))
	}

	for i, arg := range args {
		if _, err := f.evalValue(arg, depth+i); err != nil {
			return err
		}
	}
	for i := range args {
		src, err := f.rota(pos, depth+i)
		if err != nil {
			return err
		}

		f.emit(x86.Inst(x86.MOV, paramRegs[i], src))
	}

	return nil
}

func (f *function) floatErr(pos token.Pos, mnemonic string) error {
	return f.c.errorf(pos, "%s: floating-point operations are not supported by the x86-64 backend", mnemonic)
}

func (f *function) evalImm(n *ast.Imm, depth int) (bool, error) {
	reg, err := f.rota(n.Pos(), depth)
	if err != nil {
		return false, err
	}

	switch n.Type {
	case ast.I32:
		f.emit(x86.Inst(x86.MOV, view(reg, 32), x86.Imm32(int64(int32(uint32(n.Int))))))
	case ast.I64:
		v := int64(n.Int)
		if int64(int32(v)) == v {
			f.emit(x86.Inst(x86.MOV, reg, x86.Imm32(v)))
		} else {
			f.emit(x86.Inst(x86.MOV, reg, x86.Imm64(v)))
		}
	case ast.F32:
		f.emit(x86.Inst(x86.MOV, view(reg, 32), x86.Imm32(int64(math.Float32bits(float32(n.Float))))))
	case ast.F64:
		f.emit(x86.Inst(x86.MOV, reg, x86.Imm64(int64(math.Float64bits(n.Float)))))
	}

	return true, nil
}

func (f *function) evalUnary(n *ast.UnaryOp, depth int) (bool, error) {
	op := n.Mnemonic[strings.IndexByte(n.Mnemonic, '.')+1:]

	// The reinterpret conversions are free: every value
	// lives in a general-purpose register as its bit
	// pattern.
	switch op {
	case "reinterpret_f32", "reinterpret_f64", "reinterpret_i32", "reinterpret_i64":
		_, err := f.evalValue(n.Operand, depth)
		return err == nil, err
	}

	bits, ok := opBits(n.Mnemonic)
	if !ok {
		return false, f.floatErr(n.Pos(), n.Mnemonic)
	}

	reg, err := f.evalValue(n.Operand, depth)
	if err != nil {
		return false, err
	}

	r := view(reg, bits)
	switch op {
	case "eqz", "nez":
		setcc := x86.SETE
		if op == "nez" {
			setcc = x86.SETNE
		}

		f.emit(x86.Inst(x86.TEST, r, r))
		f.emit(x86.Inst(setcc, view(reg, 8)))
		f.emit(x86.Inst(x86.MOVZX, view(reg, 32), view(reg, 8)))
	case "not":
		f.emit(x86.Inst(x86.NOT, r))
	case "neg":
		f.emit(x86.Inst(x86.NEG, r))
	case "abs":
		tmp, err := f.rota(n.Pos(), depth+1)
		if err != nil {
			return false, err
		}

		t := view(tmp, bits)
		f.emit(x86.Inst(x86.MOV, t, r))
		f.emit(x86.Inst(x86.SAR, t, x86.Imm8(int64(bits-1))))
		f.emit(x86.Inst(x86.XOR, r, t))
		f.emit(x86.Inst(x86.SUB, r, t))
	case "leading_zeros":
		f.emit(x86.Inst(x86.LZCNT, r, r))
	case "trailing_zeros":
		f.emit(x86.Inst(x86.TZCNT, r, r))
	case "count_ones":
		f.emit(x86.Inst(x86.POPCNT, r, r))
	case "truncate_i64", "extend_i32_u":
		f.emit(x86.Inst(x86.MOV, view(reg, 32), view(reg, 32)))
	case "extend_i32_s":
		f.emit(x86.Inst(x86.MOVSXD, reg, view(reg, 32)))
	default:
		return false, f.floatErr(n.Pos(), n.Mnemonic)
	}

	return true, nil
}

func (f *function) evalBinary(n *ast.BinaryOp, depth int) (bool, error) {
	bits, ok := opBits(n.Mnemonic)
	if !ok {
		return false, f.floatErr(n.Pos(), n.Mnemonic)
	}

	left, err := f.evalValue(n.Left, depth)
	if err != nil {
		return false, err
	}

	right, err := f.evalValue(n.Right, depth+1)
	if err != nil {
		return false, err
	}

	l, r := view(left, bits), view(right, bits)
	op := n.Mnemonic[strings.IndexByte(n.Mnemonic, '.')+1:]
	switch op {
	case "add":
		f.emit(x86.Inst(x86.ADD, l, r))
	case "sub":
		f.emit(x86.Inst(x86.SUB, l, r))
	case "and":
		f.emit(x86.Inst(x86.AND, l, r))
	case "or":
		f.emit(x86.Inst(x86.OR, l, r))
	case "xor":
		f.emit(x86.Inst(x86.XOR, l, r))
	case "mul":
		f.emit(x86.Inst(x86.IMUL, l, r))
	case "div_s", "rem_s", "div_u", "rem_u":
		// Division has fixed operands: the dividend in
		// rax (sign- or zero-extended into rdx), the
		// quotient in rax, and the remainder in rdx.
		f.emit(x86.Inst(x86.MOV, view(x86.RAX, bits), l))
		if strings.HasSuffix(op, "_s") {
			if bits == 64 {
				f.emit(x86.Inst(x86.CQO))
			} else {
				f.emit(x86.Inst(x86.CDQ))
			}
			f.emit(x86.Inst(x86.IDIV, r))
		} else {
			f.emit(x86.Inst(x86.XOR, x86.EDX, x86.EDX))
			f.emit(x86.Inst(x86.DIV, r))
		}

		result := x86.RAX
		if strings.HasPrefix(op, "rem") {
			result = x86.RDX
		}

		f.emit(x86.Inst(x86.MOV, l, view(result, bits)))
	case "shift_left", "shift_right_s", "shift_right_u":
		shift := x86.SHL
		switch op {
		case "shift_right_s":
			shift = x86.SAR
		case "shift_right_u":
			shift = x86.SHR
		}

		f.emit(x86.Inst(x86.MOV, x86.ECX, view(right, 32)))
		f.emit(x86.Inst(shift, l, x86.CL))
	default:
		setcc, ok := setccFor[op]
		if !ok {
			return false, f.c.errorf(n.Pos(), "unexpected operator %s", n.Mnemonic)
		}

		f.emit(x86.Inst(x86.CMP, l, r))
		f.emit(x86.Inst(setcc, view(left, 8)))
		f.emit(x86.Inst(x86.MOVZX, view(left, 32), view(left, 8)))
	}

	return true, nil
}

func (f *function) evalBranch(n *ast.Branch, depth int) (bool, error) {
	if len(n.Results) > 1 {
		return false, f.c.errorf(n.Pos(), "a branch can produce at most one value")
	}

	end := f.c.label()
	for _, c := range n.Cases {
		test, err := f.evalValue(c.Test, depth)
		if err != nil {
			return false, err
		}

		next := f.c.label()
		f.emit(x86.Inst(x86.TEST, view(test, 32), view(test, 32)))
		f.emit(x86.Inst(x86.JE, x86.Rel32(next)))
		if _, err := f.eval(c.Consequent, depth); err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.JMP, x86.Rel32(end)))
		f.emitLabel(next)
	}

	switch {
	case n.Default != nil:
		if _, err := f.eval(n.Default, depth); err != nil {
			return false, err
		}
	case len(n.Results) > 0:
		// A branch that must produce a value but has no
		// default traps if no case matches.
		f.emit(x86.Inst(x86.UD2))
	}

	f.emitLabel(end)
	return len(n.Results) > 0, nil
}

func (f *function) evalFor(n *ast.For, depth int) (bool, error) {
	if len(n.Results) > 1 {
		return false, f.c.errorf(n.Pos(), "a loop can produce at most one value")
	}

	slots := f.forSlots[n]
	for _, s := range slots {
		f.emitZero(s)
	}

	lp := &loop{start: f.c.label(), end: f.c.label(), params: slots, depth: depth}
	scope := make(map[string]*slot, len(n.Params))
	for i, p := range n.Params {
		if scope[p.Name] != nil {
			return false, f.c.errorf(p.Pos(), "loop parameter $%s is declared more than once", p.Name)
		}

		scope[p.Name] = slots[i]
	}

	f.emitLabel(lp.start)
	f.loops = append(f.loops, lp)
	f.scopes = append(f.scopes, scope)
	_, err := f.eval(n.Code, depth)
	f.scopes = f.scopes[:len(f.scopes)-1]
	f.loops = f.loops[:len(f.loops)-1]
	if err != nil {
		return false, err
	}

	f.emitLabel(lp.end)
	return len(n.Results) > 0, nil
}

func (f *function) evalSequence(n *ast.Sequence, depth int) (bool, error) {
	switch n.Kind {
	case ast.SeqDo:
		produced := false
		for _, item := range n.Items {
			var err error
			produced, err = f.eval(item, depth)
			if err != nil {
				return false, err
			}
		}

		return produced, nil
	case ast.SeqBreak:
		if len(f.loops) == 0 {
			// A break outside any loop leaves the
			// function.
			return f.evalReturn(n)
		}

		lp := f.loops[len(f.loops)-1]
		if len(n.Items) > 1 {
			return false, f.c.errorf(n.Pos(), "a loop can produce at most one value")
		}
		if len(n.Items) == 1 {
			if _, err := f.evalValue(n.Items[0], lp.depth); err != nil {
				return false, err
			}
		}

		f.emit(x86.Inst(x86.JMP, x86.Rel32(lp.end)))
		return false, nil
	case ast.SeqRecur:
		if len(f.loops) == 0 {
			// A recur outside any loop restarts the
			// function, like rerun.
			return f.evalRestart(n, f.fn.Params, f.functionParamSlots(), f.body)
		}

		lp := f.loops[len(f.loops)-1]
		if len(n.Items) != len(lp.params) {
			return false, f.c.errorf(n.Pos(), "recur passes %d values to a loop with %d parameters", len(n.Items), len(lp.params))
		}

		// Evaluate every item before storing any, so the
		// items still see the previous iteration's
		// parameter values.
		for i, item := range n.Items {
			if _, err := f.evalValue(item, lp.depth+i); err != nil {
				return false, err
			}
		}
		for i := range n.Items {
			src, err := f.rota(n.Pos(), lp.depth+i)
			if err != nil {
				return false, err
			}

			f.emit(x86.Inst(x86.MOV, frameMem(lp.params[i], 0, 64), src))
		}

		f.emit(x86.Inst(x86.JMP, x86.Rel32(lp.start)))
		return false, nil
	case ast.SeqReturn:
		return f.evalReturn(n)
	case ast.SeqRerun:
		return f.evalRestart(n, f.fn.Params, f.functionParamSlots(), f.body)
	default:
		panic(fmt.Sprintf("codegen: unexpected sequence kind %s", n.Kind))
	}
}

// functionParamSlots returns the frame slots of the
// function's own parameters, in declaration order.
func (f *function) functionParamSlots() []*slot {
	slots := make([]*slot, len(f.fn.Params))
	for i, p := range f.fn.Params {
		slots[i] = f.scopes[0][p.Name]
	}

	return slots
}

// evalReturn lowers an early exit from the function: the
// first item, if any, becomes the function result.
func (f *function) evalReturn(n *ast.Sequence) (bool, error) {
	if len(n.Items) > 1 {
		return false, f.c.errorf(n.Pos(), "a function can produce at most one value")
	}
	if len(n.Items) == 1 {
		// Everything in flight is abandoned by the jump,
		// so the value can be built at depth zero.
		if _, err := f.evalValue(n.Items[0], 0); err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.MOV, x86.RAX, f.c.arch.ABI.EvaluationRegisters[0]))
	}

	f.emit(x86.Inst(x86.JMP, x86.Rel32(f.epilogue)))
	return false, nil
}

// evalRestart lowers rerun: the items become the
// function's new parameter values, and control returns to
// the start of the body.
func (f *function) evalRestart(n *ast.Sequence, params []*ast.Parameter, slots []*slot, target string) (bool, error) {
	if len(n.Items) != len(params) {
		return false, f.c.errorf(n.Pos(), "rerun passes %d values to a function with %d parameters", len(n.Items), len(params))
	}

	for i, item := range n.Items {
		if _, err := f.evalValue(item, i); err != nil {
			return false, err
		}
	}
	for i := range n.Items {
		src, err := f.rota(n.Pos(), i)
		if err != nil {
			return false, err
		}

		f.emit(x86.Inst(x86.MOV, frameMem(slots[i], 0, 64), src))
	}

	f.emit(x86.Inst(x86.JMP, x86.Rel32(target)))
	return false, nil
}

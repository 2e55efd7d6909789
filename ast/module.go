// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"

	"github.com/hemashushu/xiaoxuan-assembly/token"
)

// A DataType is one of the four operand types of the
// instruction set.
type DataType uint8

const (
	I32 DataType = iota
	I64
	F32
	F64
)

var dataTypes = [...]string{
	I32: "i32",
	I64: "i64",
	F32: "f32",
	F64: "f64",
}

func (t DataType) String() string {
	if int(t) < len(dataTypes) {
		return dataTypes[t]
	}

	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// DataTypeByName maps a type name, such as "i64", to its
// DataType. The boolean result is false if the name is not
// a type name.
func DataTypeByName(name string) (DataType, bool) {
	for t, s := range dataTypes {
		if s == name {
			return DataType(t), true
		}
	}

	return 0, false
}

// ----------------------------------------------------------------------------
// Modules

// A Module node represents one complete source file; the
// (module ...) form.
type Module struct {
	Doc            *CommentGroup // associated documentation; or nil
	Source         *List         // the underlying (module ...) list
	Name           string        // module name
	RuntimeVersion string        // declared runtime version, such as "1.0"
	Constructor    string        // constructor function name; or ""
	Destructor     string        // destructor function name; or ""
	Elements       []ModuleElement
	Comments       []*CommentGroup // all comments in the source file
}

func (m *Module) Pos() token.Pos { return m.Source.Pos() }
func (m *Module) End() token.Pos { return m.Source.End() }

// Functions returns the module's function elements, in
// declaration order.
func (m *Module) Functions() []*Function {
	var funcs []*Function
	for _, e := range m.Elements {
		if f, ok := e.(*Function); ok {
			funcs = append(funcs, f)
		}
	}

	return funcs
}

// DataEntries returns the module's data elements, in
// declaration order.
func (m *Module) DataEntries() []*Data {
	var data []*Data
	for _, e := range m.Elements {
		if d, ok := e.(*Data); ok {
			data = append(data, d)
		}
	}

	return data
}

// A ModuleElement is a top-level declaration within a
// module: a function, a data entry, or an external or
// imported declaration.
type ModuleElement interface {
	Node
	moduleElement()
}

// A Parameter declares one named, typed function parameter.
type Parameter struct {
	Source *List
	Name   string
	Type   DataType
}

func (p *Parameter) Pos() token.Pos { return p.Source.Pos() }
func (p *Parameter) End() token.Pos { return p.Source.End() }

// A Local declares one named local variable slot. A plain
// typed local has Size and Align derived from its type; a
// bytes local carries an explicit size and alignment.
type Local struct {
	Source *List
	Name   string
	Type   DataType // meaningful only when !Bytes
	Bytes  bool     // declared as (bytes SIZE ALIGN)
	Size   uint32   // size in bytes
	Align  uint16   // alignment in bytes
}

func (l *Local) Pos() token.Pos { return l.Source.Pos() }
func (l *Local) End() token.Pos { return l.Source.End() }

// A Function node represents a (function ...) form.
type Function struct {
	Doc     *CommentGroup
	Source  *List
	Name    string
	Export  bool
	Params  []*Parameter
	Results []DataType
	Locals  []*Local
	Code    []Instruction
}

func (f *Function) Pos() token.Pos { return f.Source.Pos() }
func (f *Function) End() token.Pos { return f.Source.End() }

// A DataKind describes the storage class of a data entry.
type DataKind uint8

const (
	ReadOnlyData  DataKind = iota // (data $name (read_only ...))
	ReadWriteData                 // (data $name (read_write ...))
	UninitData                    // (data $name (uninit ...))
)

var dataKinds = [...]string{
	ReadOnlyData:  "read_only",
	ReadWriteData: "read_write",
	UninitData:    "uninit",
}

func (k DataKind) String() string {
	if int(k) < len(dataKinds) {
		return dataKinds[k]
	}

	return fmt.Sprintf("DataKind(%d)", uint8(k))
}

// A Data node represents a (data ...) form.
//
// An initialised entry stores its initial bytes in Value,
// already encoded little-endian for numeric initialisers.
// An uninit entry has a nil Value and a nonzero Size.
type Data struct {
	Doc    *CommentGroup
	Source *List
	Name   string
	Export bool
	Kind   DataKind
	Value  []byte
	Size   uint32 // allocation size; len(Value) when initialised
	Align  uint16 // alignment in bytes
}

func (d *Data) Pos() token.Pos { return d.Source.Pos() }
func (d *Data) End() token.Pos { return d.Source.End() }

// An ExternalFunction declares one function provided by an
// external library.
type ExternalFunction struct {
	Source  *List
	Name    string // local name
	Symbol  string // symbol name within the library
	Params  []DataType
	Results []DataType
}

func (f *ExternalFunction) Pos() token.Pos { return f.Source.Pos() }
func (f *ExternalFunction) End() token.Pos { return f.Source.End() }

// An External node represents an (external ...) form,
// declaring functions provided by a shared library.
type External struct {
	Source    *List
	Library   string // library name or path
	Functions []*ExternalFunction
}

func (e *External) Pos() token.Pos { return e.Source.Pos() }
func (e *External) End() token.Pos { return e.Source.End() }

// An ImportedFunction declares one function imported from
// another module.
type ImportedFunction struct {
	Source  *List
	Name    string // local name
	Path    string // full path within the source module
	Params  []DataType
	Results []DataType
}

func (f *ImportedFunction) Pos() token.Pos { return f.Source.Pos() }
func (f *ImportedFunction) End() token.Pos { return f.Source.End() }

// An Import node represents an (import ...) form.
type Import struct {
	Source    *List
	Module    string // source module name
	Functions []*ImportedFunction
}

func (i *Import) Pos() token.Pos { return i.Source.Pos() }
func (i *Import) End() token.Pos { return i.Source.End() }

func (*Function) moduleElement() {}
func (*Data) moduleElement()     {}
func (*External) moduleElement() {}
func (*Import) moduleElement()   {}

// ----------------------------------------------------------------------------
// Instructions

// An Instruction is one node of a function's instruction
// tree. Instructions nest: an operand of an instruction is
// itself an instruction.
type Instruction interface {
	Node
	instructionNode()
}

type (
	// An Imm node represents an immediate number instruction,
	// such as (i32.imm 11) or (f64.imm 3.142).
	Imm struct {
		Source *List
		Type   DataType
		Int    uint64  // two's complement value for I32/I64
		Float  float64 // value for F32/F64
	}

	// A LocalLoad node loads a value from a local variable,
	// such as (local.load64_i64 $sum) or
	// (local.load32_i16_s $flag 2).
	LocalLoad struct {
		Source   *List
		Mnemonic string
		Name     string
		Offset   uint16
	}

	// A LocalStore node stores a value to a local variable,
	// such as (local.store64 $sum VALUE).
	LocalStore struct {
		Source   *List
		Mnemonic string
		Name     string
		Offset   uint16
		Value    Instruction
	}

	// A DataLoad node loads a value from a data entry.
	DataLoad struct {
		Source   *List
		Mnemonic string
		Name     string
		Offset   uint16
	}

	// A DataStore node stores a value to a data entry.
	DataStore struct {
		Source   *List
		Mnemonic string
		Name     string
		Offset   uint16
		Value    Instruction
	}

	// A MemoryLoad node loads a value from linear memory;
	// the address operand is itself an instruction.
	MemoryLoad struct {
		Source   *List
		Mnemonic string
		Offset   uint16
		Addr     Instruction
	}

	// A MemoryStore node stores a value to linear memory.
	MemoryStore struct {
		Source   *List
		Mnemonic string
		Offset   uint16
		Addr     Instruction
		Value    Instruction
	}

	// A UnaryOp node represents a one-operand operator
	// instruction, such as (i32.eqz ...) or (i64.not ...).
	UnaryOp struct {
		Source   *List
		Mnemonic string
		Operand  Instruction
	}

	// A UnaryOpImm node represents a one-operand operator
	// instruction carrying an immediate parameter, such as
	// (i32.inc 1 ...) or (i64.shift_left_imm 2 ...).
	UnaryOpImm struct {
		Source   *List
		Mnemonic string
		Imm      uint16
		Operand  Instruction
	}

	// A BinaryOp node represents a two-operand operator
	// instruction, such as (i32.add LHS RHS).
	BinaryOp struct {
		Source   *List
		Mnemonic string
		Left     Instruction
		Right    Instruction
	}

	// A When node represents a one-armed conditional with
	// no return value; (when TEST CONSEQUENT).
	When struct {
		Source     *List
		Test       Instruction
		Consequent Instruction
	}

	// An If node represents a two-armed conditional;
	// (if (result ...) TEST CONSEQUENT ALTERNATE).
	If struct {
		Source     *List
		Results    []DataType
		Test       Instruction
		Consequent Instruction
		Alternate  Instruction
	}

	// A BranchCase is one (case TEST CONSEQUENT) arm of a
	// branch instruction.
	BranchCase struct {
		Source     *List
		Test       Instruction
		Consequent Instruction
	}

	// A Branch node represents a multi-armed conditional;
	// (branch (result ...) (case ...) ... (default ...)).
	Branch struct {
		Source  *List
		Results []DataType
		Cases   []*BranchCase
		Default Instruction // or nil
	}

	// A For node represents a loop region that recur and
	// rerun target; (for (param ...) (result ...) CODE).
	For struct {
		Source  *List
		Params  []*Parameter
		Results []DataType
		Code    Instruction
	}

	// A SequenceKind distinguishes the block-like sequence
	// instructions, which share one syntax.
	//
	// The node sequences its items and then, depending on
	// the kind, falls through (do), exits the enclosing
	// block or function with the items as results (break,
	// return), or jumps back to the start of the enclosing
	// for loop or function with the items as new arguments
	// (recur, rerun).

	// A Sequence node represents (do ...), (break ...),
	// (recur ...), (return ...) or (rerun ...).
	Sequence struct {
		Source *List
		Kind   SequenceKind
		Items  []Instruction
	}

	// A Call node calls a function in the current module;
	// (call $name ARGS...).
	Call struct {
		Source *List
		Name   string
		Args   []Instruction
	}

	// A DynCall node calls a function through a function
	// address operand; (dyncall ADDR ARGS...).
	DynCall struct {
		Source *List
		Addr   Instruction
		Args   []Instruction
	}

	// An EnvCall node calls a runtime environment function
	// by number; (envcall NUM ARGS...).
	EnvCall struct {
		Source *List
		Num    uint32
		Args   []Instruction
	}

	// A SysCall node invokes an operating system call by
	// number; (syscall NUM ARGS...).
	SysCall struct {
		Source *List
		Num    uint32
		Args   []Instruction
	}

	// An AddrFunction node produces the address of a
	// function; (addr.function $name).
	AddrFunction struct {
		Source *List
		Name   string
	}

	// An AddrData node produces the address of a data
	// entry; (addr.data $name).
	AddrData struct {
		Source *List
		Name   string
	}

	// A Nop node represents (nop).
	Nop struct {
		Source *List
	}

	// A Panic node represents (panic), which terminates
	// the program abnormally.
	Panic struct {
		Source *List
	}
)

// A SequenceKind is the discriminator of a Sequence node.
type SequenceKind uint8

const (
	SeqDo SequenceKind = iota
	SeqBreak
	SeqRecur
	SeqReturn
	SeqRerun
)

var sequenceKinds = [...]string{
	SeqDo:     "do",
	SeqBreak:  "break",
	SeqRecur:  "recur",
	SeqReturn: "return",
	SeqRerun:  "rerun",
}

func (k SequenceKind) String() string {
	if int(k) < len(sequenceKinds) {
		return sequenceKinds[k]
	}

	return fmt.Sprintf("SequenceKind(%d)", uint8(k))
}

func (x *Imm) Pos() token.Pos          { return x.Source.Pos() }
func (x *LocalLoad) Pos() token.Pos    { return x.Source.Pos() }
func (x *LocalStore) Pos() token.Pos   { return x.Source.Pos() }
func (x *DataLoad) Pos() token.Pos     { return x.Source.Pos() }
func (x *DataStore) Pos() token.Pos    { return x.Source.Pos() }
func (x *MemoryLoad) Pos() token.Pos   { return x.Source.Pos() }
func (x *MemoryStore) Pos() token.Pos  { return x.Source.Pos() }
func (x *UnaryOp) Pos() token.Pos      { return x.Source.Pos() }
func (x *UnaryOpImm) Pos() token.Pos   { return x.Source.Pos() }
func (x *BinaryOp) Pos() token.Pos     { return x.Source.Pos() }
func (x *When) Pos() token.Pos         { return x.Source.Pos() }
func (x *If) Pos() token.Pos           { return x.Source.Pos() }
func (x *BranchCase) Pos() token.Pos   { return x.Source.Pos() }
func (x *Branch) Pos() token.Pos       { return x.Source.Pos() }
func (x *For) Pos() token.Pos          { return x.Source.Pos() }
func (x *Sequence) Pos() token.Pos     { return x.Source.Pos() }
func (x *Call) Pos() token.Pos         { return x.Source.Pos() }
func (x *DynCall) Pos() token.Pos      { return x.Source.Pos() }
func (x *EnvCall) Pos() token.Pos      { return x.Source.Pos() }
func (x *SysCall) Pos() token.Pos      { return x.Source.Pos() }
func (x *AddrFunction) Pos() token.Pos { return x.Source.Pos() }
func (x *AddrData) Pos() token.Pos     { return x.Source.Pos() }
func (x *Nop) Pos() token.Pos          { return x.Source.Pos() }
func (x *Panic) Pos() token.Pos        { return x.Source.Pos() }

func (x *Imm) End() token.Pos          { return x.Source.End() }
func (x *LocalLoad) End() token.Pos    { return x.Source.End() }
func (x *LocalStore) End() token.Pos   { return x.Source.End() }
func (x *DataLoad) End() token.Pos     { return x.Source.End() }
func (x *DataStore) End() token.Pos    { return x.Source.End() }
func (x *MemoryLoad) End() token.Pos   { return x.Source.End() }
func (x *MemoryStore) End() token.Pos  { return x.Source.End() }
func (x *UnaryOp) End() token.Pos      { return x.Source.End() }
func (x *UnaryOpImm) End() token.Pos   { return x.Source.End() }
func (x *BinaryOp) End() token.Pos     { return x.Source.End() }
func (x *When) End() token.Pos         { return x.Source.End() }
func (x *If) End() token.Pos           { return x.Source.End() }
func (x *BranchCase) End() token.Pos   { return x.Source.End() }
func (x *Branch) End() token.Pos       { return x.Source.End() }
func (x *For) End() token.Pos          { return x.Source.End() }
func (x *Sequence) End() token.Pos     { return x.Source.End() }
func (x *Call) End() token.Pos         { return x.Source.End() }
func (x *DynCall) End() token.Pos      { return x.Source.End() }
func (x *EnvCall) End() token.Pos      { return x.Source.End() }
func (x *SysCall) End() token.Pos      { return x.Source.End() }
func (x *AddrFunction) End() token.Pos { return x.Source.End() }
func (x *AddrData) End() token.Pos     { return x.Source.End() }
func (x *Nop) End() token.Pos          { return x.Source.End() }
func (x *Panic) End() token.Pos        { return x.Source.End() }

func (*Imm) instructionNode()          {}
func (*LocalLoad) instructionNode()    {}
func (*LocalStore) instructionNode()   {}
func (*DataLoad) instructionNode()     {}
func (*DataStore) instructionNode()    {}
func (*MemoryLoad) instructionNode()   {}
func (*MemoryStore) instructionNode()  {}
func (*UnaryOp) instructionNode()      {}
func (*UnaryOpImm) instructionNode()   {}
func (*BinaryOp) instructionNode()     {}
func (*When) instructionNode()         {}
func (*If) instructionNode()           {}
func (*Branch) instructionNode()       {}
func (*For) instructionNode()          {}
func (*Sequence) instructionNode()     {}
func (*Call) instructionNode()         {}
func (*DynCall) instructionNode()      {}
func (*EnvCall) instructionNode()      {}
func (*SysCall) instructionNode()      {}
func (*AddrFunction) instructionNode() {}
func (*AddrData) instructionNode()     {}
func (*Nop) instructionNode()          {}
func (*Panic) instructionNode()        {}

// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package ast

import (
	"fmt"
)

// A Visitor's Visit method is invoked for each node encountered by Walk.
// If the result visitor w is not nil, Walk visits each of the children
// of node with the visitor w, followed by a call of w.Visit(nil).
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Helper functions for common node lists. They may be empty.

func walkExprList(v Visitor, list []Expression) {
	for _, x := range list {
		Walk(v, x)
	}
}

func walkInstructions(v Visitor, list []Instruction) {
	for _, x := range list {
		Walk(v, x)
	}
}

// Walk traverses an AST in depth-first order: It starts by calling
// v.Visit(node); node must not be nil. If the visitor w returned by
// v.Visit(node) is not nil, Walk is invoked recursively with visitor
// w for each of the non-nil children of node, followed by a call of
// w.Visit(nil).
func Walk(v Visitor, node Node) {
	if v = v.Visit(node); v == nil {
		return
	}

	// walk children
	// (the order of the cases matches the order
	// of the corresponding node types in ast.go
	// and module.go)
	switch n := node.(type) {
	// Comments and fields
	case *Comment:
		// nothing to do

	case *CommentGroup:
		for _, c := range n.List {
			Walk(v, c)
		}

	// Expressions
	case *BadExpression, *Identifier, *Symbol, *Literal:
		// nothing to do

	case *List:
		walkExprList(v, n.Elements)

	// Modules
	case *Module:
		if n.Doc != nil {
			Walk(v, n.Doc)
		}
		for _, e := range n.Elements {
			Walk(v, e)
		}
		// don't walk n.Comments - they have been
		// visited already through the individual
		// nodes

	case *Parameter, *Local, *Data, *ExternalFunction, *ImportedFunction:
		// nothing to do

	case *Function:
		if n.Doc != nil {
			Walk(v, n.Doc)
		}
		for _, p := range n.Params {
			Walk(v, p)
		}
		for _, l := range n.Locals {
			Walk(v, l)
		}
		walkInstructions(v, n.Code)

	case *External:
		for _, f := range n.Functions {
			Walk(v, f)
		}

	case *Import:
		for _, f := range n.Functions {
			Walk(v, f)
		}

	// Instructions
	case *Imm, *LocalLoad, *DataLoad, *AddrFunction, *AddrData, *Nop, *Panic:
		// nothing to do

	case *LocalStore:
		Walk(v, n.Value)

	case *DataStore:
		Walk(v, n.Value)

	case *MemoryLoad:
		Walk(v, n.Addr)

	case *MemoryStore:
		Walk(v, n.Addr)
		Walk(v, n.Value)

	case *UnaryOp:
		Walk(v, n.Operand)

	case *UnaryOpImm:
		Walk(v, n.Operand)

	case *BinaryOp:
		Walk(v, n.Left)
		Walk(v, n.Right)

	case *When:
		Walk(v, n.Test)
		Walk(v, n.Consequent)

	case *If:
		Walk(v, n.Test)
		Walk(v, n.Consequent)
		Walk(v, n.Alternate)

	case *BranchCase:
		Walk(v, n.Test)
		Walk(v, n.Consequent)

	case *Branch:
		for _, c := range n.Cases {
			Walk(v, c)
		}
		if n.Default != nil {
			Walk(v, n.Default)
		}

	case *For:
		for _, p := range n.Params {
			Walk(v, p)
		}
		Walk(v, n.Code)

	case *Sequence:
		walkInstructions(v, n.Items)

	case *Call:
		walkInstructions(v, n.Args)

	case *DynCall:
		Walk(v, n.Addr)
		walkInstructions(v, n.Args)

	case *EnvCall:
		walkInstructions(v, n.Args)

	case *SysCall:
		walkInstructions(v, n.Args)

	default:
		panic(fmt.Sprintf("ast.Walk: unexpected node type %T", n))
	}

	v.Visit(nil)
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses an AST in depth-first order: It starts by calling
// f(node); node must not be nil.
//
// If f returns true, Inspect invokes f recursively for each of the
// non-nil children of node, followed by a call of f(nil).
func Inspect(node Node, f func(Node) bool) {
	Walk(inspector(f), node)
}

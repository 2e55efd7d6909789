// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package ast declares the types used to represent syntax trees for XiaoXuan
// assembly modules.
//
// The syntax has two layers. The lower layer is the S-expression structure:
// every form in a source file is an Expression, either an atom (Identifier,
// Symbol, Literal) or a parenthesised List. The upper layer gives those
// lists meaning: a Module containing Functions and Data declarations, whose
// code is a tree of Instruction nodes. The parser produces the upper layer,
// keeping each node's originating List for position reporting.
package ast

import (
	"strings"

	"github.com/hemashushu/xiaoxuan-assembly/token"
)

// ----------------------------------------------------------------------------
// Interfaces

// All node types implement the Node interface.
type Node interface {
	Pos() token.Pos // position of first character belonging to the node
	End() token.Pos // position of first character immediately after the node
}

// All expression nodes implement the Expression interface.
type Expression interface {
	Node
	Print() string  // Print a simple representation of the expr.
	String() string // Return a simple description of the element type.
	exprNode()
}

// ----------------------------------------------------------------------------
// Comments

// A Comment node represents a single ;-style comment.
type Comment struct {
	Semicolon token.Pos // position of ";" starting the comment
	Text      string    // comment text (excluding '\n')
}

func (c *Comment) Pos() token.Pos { return c.Semicolon }
func (c *Comment) End() token.Pos { return c.Semicolon + token.Pos(len(c.Text)) }

// A CommentGroup represents a sequence of comments
// with no other tokens and no empty lines between.
type CommentGroup struct {
	List []*Comment // len(List) > 0
}

func (g *CommentGroup) Pos() token.Pos { return g.List[0].Pos() }
func (g *CommentGroup) End() token.Pos { return g.List[len(g.List)-1].End() }

func isWhitespace(ch byte) bool { return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' }

func stripTrailingWhitespace(s string) string {
	i := len(s)
	for i > 0 && isWhitespace(s[i-1]) {
		i--
	}
	return s[0:i]
}

// Text returns the text of the comment group.
//
// Comment markers (';'), the first space of a line comment, and
// leading and trailing empty lines are removed. Multiple empty
// lines are reduced to one, and trailing space on lines is trimmed.
// Unless the result is empty, it is newline-terminated.
func (g *CommentGroup) Text() string {
	lines := g.Lines()
	if len(lines) == 0 {
		return ""
	}

	// Add final "" entry to get trailing newline from Join.
	if n := len(lines); n > 0 && lines[n-1] != "" {
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// Lines returns the text of the comment group, as a sequence of
// lines.
func (g *CommentGroup) Lines() []string {
	if g == nil {
		return nil
	}

	comments := make([]string, len(g.List))
	for i, c := range g.List {
		comments[i] = c.Text
	}

	lines := make([]string, 0, 10) // Most comments are fewer than 10 lines.
	for _, c := range comments {
		// Remove comment markers. Comments are written ;;
		// by convention but a single semicolon suffices.
		for len(c) > 0 && c[0] == ';' {
			c = c[1:]
		}
		if len(c) > 0 && c[0] == ' ' {
			c = c[1:]
		}

		lines = append(lines, stripTrailingWhitespace(c))
	}

	// Remove leading blank lines; convert runs of
	// interior blank lines to a single blank line.
	n := 0
	for _, line := range lines {
		if line != "" || n > 0 && lines[n-1] != "" {
			lines[n] = line
			n++
		}
	}
	lines = lines[:n]

	return lines
}

// ----------------------------------------------------------------------------
// Expressions

// An expression is represented by a tree consisting of one
// or more of the following concrete expression nodes.
type (
	// A BadExpression node is a placeholder for expressions containing
	// syntax errors for which no correct expression nodes can be
	// created.
	BadExpression struct {
		From, To token.Pos // position range of bad expression
	}

	// An Identifier node represents a bare identifier, such as a
	// keyword or an instruction mnemonic.
	Identifier struct {
		NamePos token.Pos // identifier position
		Name    string    // identifier name, such as "local.load32_i16"
	}

	// A Symbol node represents a $-prefixed name.
	Symbol struct {
		NamePos token.Pos // symbol position (the $)
		Name    string    // symbol name, without the leading $
	}

	// A Literal node represents a literal of basic type.
	Literal struct {
		ValuePos token.Pos   // literal position
		Kind     token.Token // Integer, Float, or String
		Value    string      // literal string; e.g. 42, 0x7f, 3.142, "foo"
	}

	// A List node represents a parenthesized list.
	List struct {
		ParenOpen  token.Pos    // position of "("
		Elements   []Expression // list elements
		ParenClose token.Pos    // position of ")"
	}
)

// Pos and End implementations for expression nodes.

func (x *BadExpression) Pos() token.Pos { return x.From }
func (x *Identifier) Pos() token.Pos    { return x.NamePos }
func (x *Symbol) Pos() token.Pos        { return x.NamePos }
func (x *Literal) Pos() token.Pos       { return x.ValuePos }
func (x *List) Pos() token.Pos          { return x.ParenOpen }

func (x *BadExpression) End() token.Pos { return x.To }
func (x *Identifier) End() token.Pos    { return token.Pos(int(x.NamePos) + len(x.Name)) }
func (x *Symbol) End() token.Pos        { return token.Pos(int(x.NamePos) + len(x.Name) + 1) }
func (x *Literal) End() token.Pos       { return token.Pos(int(x.ValuePos) + len(x.Value)) }
func (x *List) End() token.Pos          { return x.ParenClose + 1 }

func (x *BadExpression) Print() string { return "<bad expr>" }
func (x *Identifier) Print() string    { return x.Name }
func (x *Symbol) Print() string        { return "$" + x.Name }
func (x *Literal) Print() string       { return x.Value }
func (x *List) Print() string {
	var buf strings.Builder
	buf.WriteByte('(')
	for i, e := range x.Elements {
		if i > 0 {
			buf.WriteByte(' ')
		}

		buf.WriteString(e.Print())
	}

	buf.WriteByte(')')

	return buf.String()
}

func (x *BadExpression) String() string { return "bad expr" }
func (x *Identifier) String() string    { return "identifier" }
func (x *Symbol) String() string        { return "symbol" }
func (x *Literal) String() string       { return "literal" }
func (x *List) String() string          { return "list" }

// exprNode() ensures that only expression nodes can be
// assigned to an Expression.
func (*BadExpression) exprNode() {}
func (*Identifier) exprNode()    {}
func (*Symbol) exprNode()        {}
func (*Literal) exprNode()       {}
func (*List) exprNode()          {}

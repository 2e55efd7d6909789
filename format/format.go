// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package format contains functionality to format a XiaoXuan assembly
// file into the canonical style.
package format

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hemashushu/xiaoxuan-assembly/ast"
	"github.com/hemashushu/xiaoxuan-assembly/token"
)

// maxListWidth is the maximum width in bytes for a list.
//
// If a list is wider than this value, it will be split
// into a vertical list with all entries after the first
// indented by one. If the list is narrower than this,
// it will be printed on one line, separated by a space.
const maxListWidth = 80

// containsMultipleLists returns whether a set of expressions
// contains more than one list.
//
// Alongside maxListWidth above, this is used to determine
// whether to split a list onto multiple lines. We don't
// want to have multiple lists on a single line, as it can
// become quite hard to read.
func containsMultipleLists(elts []ast.Expression) bool {
	lists := 0
	for _, elt := range elts {
		if _, ok := elt.(*ast.List); ok {
			lists++
			if lists > 1 {
				return true
			}
		}
	}

	return false
}

// Fprint writes the module to w, according to the standard
// style.
func Fprint(w io.Writer, fset *token.FileSet, module *ast.Module) error {
	allocated := false
	var buf *bytes.Buffer
	if b, ok := w.(*bytes.Buffer); ok {
		buf = b
	} else {
		allocated = true
		buf = new(bytes.Buffer)
	}

	// We don't know the order in which comments
	// and module elements are interleaved, so we
	// track the position of the next node of each
	// type and print the earlier of the two.
	//
	// We make a copy of the comments slice so we
	// can advance it to track our progress without
	// modifying the module.
	comments := make([]*ast.CommentGroup, len(module.Comments))
	copy(comments, module.Comments)

	source := module.Source
	elements := source.Elements
	header := 0
	for header < len(elements) {
		if _, ok := elements[header].(*ast.List); ok {
			break
		}
		header++
	}
	items := elements[header:]

	// First, we check for any comments before
	// the module form and do those.
	for len(comments) > 0 && comments[0].Pos() < source.ParenOpen {
		comment := comments[0]
		comments = comments[1:]
		fprintCommentGroup(buf, 0, comment)
		buf.WriteByte('\n') // Add a line break.
	}

	// Print the module form's opening line: the
	// module keyword and the module name.
	buf.WriteByte('(')
	for i, elt := range elements[:header] {
		if i > 0 {
			buf.WriteByte(' ')
		}

		fprintExpr(buf, -1, elt)
	}

	prevEnd := source.ParenOpen
	if header > 0 {
		prevEnd = elements[header-1].End()
	}

	for len(items) != 0 || (len(comments) != 0 && comments[0].Pos() < source.ParenClose) {
		var comment *ast.CommentGroup
		var item ast.Expression
		var node ast.Node
		switch {
		case len(comments) == 0 || comments[0].Pos() > source.ParenClose:
			item = items[0]
			items = items[1:]
			node = item
		case len(items) == 0:
			comment = comments[0]
			comments = comments[1:]
			node = comment
		case fset.Position(comments[0].Pos()).Offset < fset.Position(items[0].Pos()).Offset:
			comment = comments[0]
			comments = comments[1:]
			node = comment
		default:
			item = items[0]
			items = items[1:]
			node = item
		}

		if fset.Position(prevEnd).Line+1 < fset.Position(node.Pos()).Line {
			// Add a line break between
			// statements.
			buf.WriteByte('\n')
		}

		buf.WriteByte('\n')
		writeIndent(buf, 1)
		if comment != nil {
			fprintCommentGroup(buf, 1, comment)
		} else {
			fprintExpr(buf, 1, item)
		}

		prevEnd = node.End()
	}

	buf.WriteByte(')')
	buf.WriteByte('\n')

	// Any comments after the module form.
	for len(comments) > 0 {
		comment := comments[0]
		comments = comments[1:]
		buf.WriteByte('\n')
		fprintCommentGroup(buf, 0, comment)
		buf.WriteByte('\n')
	}

	if allocated {
		_, err := w.Write(buf.Bytes())
		return err
	}

	return nil
}

func listWidth(list *ast.List) int {
	if len(list.Elements) == 0 {
		return 2 // Just the parentheses.
	}

	width := 2
	for i, elt := range list.Elements {
		if i != 0 {
			width++ // The intervening space.
		}

		switch x := elt.(type) {
		case *ast.List:
			width += listWidth(x)
		case *ast.Identifier:
			width += len(x.Name)
		case *ast.Symbol:
			width += len(x.Name) + 1
		case *ast.Literal:
			width += len(x.Value)
		default:
			panic(fmt.Sprintf("unexpected expression %#v", x))
		}
	}

	return width
}

// indent is one level of canonical indentation.
const indent = "    "

func writeIndent(buf *bytes.Buffer, indentation int) {
	for i := 0; i < indentation; i++ {
		buf.WriteString(indent)
	}
}

// fprintCommentGroup writes the comment group to buf.
func fprintCommentGroup(buf *bytes.Buffer, indentation int, group *ast.CommentGroup) {
	lines := group.Lines()
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte('\n')
			writeIndent(buf, indentation)
		}

		if line == "" {
			buf.WriteString(";;")
		} else {
			buf.WriteString(";; ")
			buf.WriteString(line)
		}
	}
}

// fprintExpr writes the node to buf, with the given indentation.
//
// fprintExpr does not write any spacing around the node.
//
// If indentation is negative, the expression is not broken into
// multiple lines.
func fprintExpr(buf *bytes.Buffer, indentation int, expr ast.Expression) {
	switch x := expr.(type) {
	case *ast.Identifier:
		buf.WriteString(x.Name)
	case *ast.Symbol:
		buf.WriteByte('$')
		buf.WriteString(x.Name)
	case *ast.Literal:
		buf.WriteString(x.Value)
	case *ast.List:
		// Function declarations always have their body
		// split onto separate lines, even when short.
		isFunc := indentation == 1 && len(x.Elements) >= 1
		if isFunc {
			ident, ok := x.Elements[0].(*ast.Identifier)
			isFunc = ok && ident.Name == "function"
		}

		width := listWidth(x)
		buf.WriteByte('(')
		if indentation < 0 || (!isFunc && width <= maxListWidth && !containsMultipleLists(x.Elements)) {
			// Nice and simple, all on one line.
			for i, elt := range x.Elements {
				if i > 0 {
					buf.WriteByte(' ')
				}

				fprintExpr(buf, -1, elt)
			}
		} else {
			// The leading atoms form the opening line,
			// then we add a newline and indent for all
			// subsequent elements. A list with no inner
			// lists keeps only its first element on the
			// opening line.
			header := 0
			for header < len(x.Elements) {
				if _, ok := x.Elements[header].(*ast.List); ok {
					break
				}
				header++
			}
			if header == len(x.Elements) {
				header = 1
			}

			for i, elt := range x.Elements[:header] {
				if i > 0 {
					buf.WriteByte(' ')
				}

				fprintExpr(buf, -1, elt)
			}

			for _, elt := range x.Elements[header:] {
				buf.WriteByte('\n')
				writeIndent(buf, indentation+1)
				fprintExpr(buf, indentation+1, elt)
			}
		}

		buf.WriteByte(')')
	default:
		panic(fmt.Sprintf("unexpected expression %#v", expr))
	}
}

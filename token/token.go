// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package token defines constants representing the lexical tokens of the
// XiaoXuan assembly language.
package token

import (
	"strconv"
)

// Token is the set of lexical tokens of the XiaoXuan assembly language.
type Token int

// Note that EndOfFile deliberately has the value zero so that an infinite
// stream of EndOfFile tokens is emitted by a closed channel of tokens.

// The list of tokens.
const (
	// Special tokens
	EndOfFile Token = iota
	Error
	Comment

	literal_beg
	// Identifiers and basic type literals
	// (these tokens stand for classes of literals)
	Identifier // local.load64_i64
	Symbol     // $main
	Integer    // 12345, 0x11, 0b1010
	Float      // 3.142, 0x1.4p3
	String     // "abc"
	literal_end

	// Delimiters
	ParenOpen  // (
	ParenClose // )
)

var tokens = [...]string{
	EndOfFile: "end of file",
	Error:     "error",
	Comment:   "comment",

	Identifier: "identifier",
	Symbol:     "symbol",
	Integer:    "integer",
	Float:      "float",
	String:     "string",

	ParenOpen:  "opening parenthesis",
	ParenClose: "closing parenthesis",
}

// String returns the string corresponding to the token tok.
func (tok Token) String() string {
	s := ""
	if 0 <= tok && tok < Token(len(tokens)) {
		s = tokens[tok]
	}

	if s == "" {
		s = "token(" + strconv.Itoa(int(tok)) + ")"
	}

	return s
}

// Predicates

// IsLiteral returns true for tokens corresponding to identifiers
// and basic type literals; it returns false otherwise.
func (tok Token) IsLiteral() bool { return literal_beg < tok && tok < literal_end }

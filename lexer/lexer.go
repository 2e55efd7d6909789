// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package lexer implements a lexical scanner for XiaoXuan assembly source
// text.
//
// It takes a []byte source, which is then tokenised into a channel of
// lexemes by Scan.
package lexer

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/hemashushu/xiaoxuan-assembly/token"
)

// Lexeme describes a token, its position, and its textual
// value.
type Lexeme struct {
	Token    token.Token
	Position token.Pos
	Value    string
}

func (l Lexeme) String(fset *token.FileSet) string {
	return fmt.Sprintf("%s: %s (%s)", fset.Position(l.Position), l.Token, l.Value)
}

// lexer scans a sequence of bytes, producing a sequence of
// assembly tokens.
type lexer struct {
	// Immutable state.
	src     []byte
	file    *token.File
	lexemes chan<- Lexeme

	// Mutable state as we progress through the source.
	offset     int // Offset into the file where the current token starts.
	nextOffset int // Offset into the file of the current location.
	width      int // Number of bytes in the last code point read.
}

// Scan scans the given assembly source, producing a sequence
// of lexical tokens.
//
// Once the end of the file is reached, or an error is encountered,
// the channel will be closed, resulting in an endless sequence
// of EndOfFile tokens.
func Scan(file *token.File, source []byte) <-chan Lexeme {
	c := make(chan Lexeme)
	l := &lexer{
		src:     source,
		file:    file,
		lexemes: c,

		offset:     0,
		nextOffset: 0,
		width:      0,
	}

	go l.run()

	return c
}

// run scans through the lexer's source, emitting tokens
// until the end of the file is reached or an error is
// encountered. In either case, the channel of lexemes
// is then closed.
func (l *lexer) run() {
	// Close the channel, producing an endless sequence
	// of EndOfFile tokens once we're done.
	defer close(l.lexemes)

	for {
		// Skip over any whitespace.
		for isWhitespace(l.next()) {
		}

		l.backup()
		l.advance()

		// Read the next rune.
		r := l.next()
		if r == eof {
			return
		}

		switch {
		case r == '(':
			l.lexeme(token.ParenOpen)
		case r == ')':
			l.lexeme(token.ParenClose)
		case r == '$':
			// A symbol, such as the name of a function,
			// data section, or local variable.
			r = l.next()
			if !isIdentifierInitial(r) {
				l.errorf("invalid token %q after $", r)
				continue
			}

			for r = l.next(); isIdentifierSubsequent(r) || r == ':'; r = l.next() {
			}

			l.delimitedLexeme(token.Symbol, r)
		case r == '-', r == '+':
			// A sign is only valid as the start of a
			// number.
			if isDigit(l.next()) {
				l.backup()
				l.scanNumber(r)
				break
			}

			l.backup()
			l.errorf("invalid token %q", r)
		case isIdentifierInitial(r):
			// Keep going until we get a non-identifier
			// rune. Mnemonics like local.load32_i16 are
			// single identifiers; the period does not
			// delimit.
			for r = l.next(); isIdentifierSubsequent(r); r = l.next() {
			}

			// Check the next token is appropriate; a
			// closing parenthesis, comment, or space.
			l.delimitedLexeme(token.Identifier, r)
		case isDigit(r):
			l.scanNumber(r)
		case r == '"':
			l.scanString()
		case r == ';':
			// Keep going until the end of the line or
			// the end of the file, whichever comes
			// first.
			for r = l.next(); r != eof && r != '\n'; r = l.next() {
			}

			// Don't include the trailing newline.
			if r == '\n' {
				l.backup()
			}

			l.lexeme(token.Comment)
		default:
			l.errorf("invalid token %q", r)
		}
	}
}

// End of file pseudo-rune.
const eof = -1

// eof returns whether the lexer has reached the end
// of the source.
func (l *lexer) eof() bool {
	return l.nextOffset >= len(l.src)
}

// errorf records the given error message.
func (l *lexer) errorf(format string, v ...any) {
	pos := l.file.Pos(l.offset)
	l.lexemes <- Lexeme{Token: token.Error, Position: pos, Value: fmt.Sprintf(format, v...)}
}

// next consumes the next code point, returning it.
func (l *lexer) next() (r rune) {
	if l.eof() {
		l.width = 0
		return eof
	}

	// Try an ASCII character first.
	r, l.width = rune(l.src[l.nextOffset]), 1
	if r >= utf8.RuneSelf {
		// Not ASCII.
		r, l.width = utf8.DecodeRune(l.src[l.nextOffset:])
		if r == utf8.RuneError && l.width == 1 {
			l.errorf("source is not valid UTF-8")
		}
	}

	l.nextOffset += l.width
	if r == '\n' {
		l.file.AddLine(l.nextOffset)
	}

	if r == 0 {
		l.errorf("illegal character NUL")
		return eof
	}

	return r
}

// backup steps back by one rune.
//
// If next was not called since the last call to
// backup, advance, or Scan, backup will panic.
func (l *lexer) backup() {
	if l.width == 0 && !l.eof() {
		panic("internal error: lexer.backup() called without preceeding call to lexer.next()")
	}

	if l.nextOffset == 0 && l.eof() || l.width == 0 {
		return
	}

	l.nextOffset -= l.width
	l.width = 0
}

// advance the source position.
func (l *lexer) advance() {
	l.offset = l.nextOffset
}

// lexeme emits a Lexeme at the current position,
// with the given token type.
func (l *lexer) lexeme(tok token.Token) {
	pos := l.file.Pos(l.offset)
	val := string(l.src[l.offset:l.nextOffset])
	l.lexemes <- Lexeme{Token: tok, Position: pos, Value: val}
	l.advance()
}

// delimitedLexeme emits a Lexeme at the current
// position, with the given token type and an
// error if the next rune is not a closing
// parenthesis, comment, or space.
func (l *lexer) delimitedLexeme(tok token.Token, next rune) {
	ok := isClosing(next) || (l.eof() && l.width == 0)
	l.backup()
	l.lexeme(tok)
	if !ok {
		r := l.next()
		l.errorf("invalid attached token: %q after %s", r, tok)
	}
}

// scanDigits consumes a run of digits in the given base,
// allowing single underscore separators between digits.
// It returns the first rune after the run, which remains
// consumed so the caller can backup. The boolean result
// is false if an error was emitted.
func (l *lexer) scanDigits(r rune, base int) (rune, bool) {
	for {
		if r == '_' {
			r = l.next()
			if r == '_' {
				l.errorf("invalid number: multiple successive separators")
				return r, false
			}
			if digitVal(r) >= base {
				l.errorf("invalid number: trailing separator")
				return r, false
			}
		}

		if digitVal(r) >= base {
			return r, true
		}

		r = l.next()
	}
}

// scanNumber is called after the opening digit/sign
// has been scanned.
func (l *lexer) scanNumber(r rune) {
	if r == '+' || r == '-' {
		r = l.next()
	}

	base := 10
	var prefix string
	if r == '0' {
		// Either decimal zero, the start of a radix
		// prefix, or a short (illegal) octal literal.
		r = l.next()
		switch r {
		case 'x':
			// Hexadecimal literal.
			base = 16
			prefix = "0x"
		case 'b':
			// Binary literal.
			base = 2
			prefix = "0b"
		}

		if prefix != "" {
			// We need at least one digit after a
			// radix prefix.
			r = l.next()
			if digitVal(r) >= base {
				if digitVal(r) < 16 {
					l.errorf("invalid number: %q is not a valid digit in base %d", r, base)
				} else {
					l.errorf("invalid number: radix prefix %q is not followed by a valid digit", prefix)
				}

				return
			}
		} else if isDigit(r) {
			l.errorf("invalid number: short octal literals are not supported")
			return
		}
	}

	var ok bool
	r, ok = l.scanDigits(r, base)
	if !ok {
		return
	}

	tok := token.Integer

	// A fractional part, which is only valid for
	// decimal and hexadecimal literals.
	if r == '.' && (base == 10 || base == 16) {
		tok = token.Float
		r = l.next()
		if digitVal(r) >= base {
			l.errorf("invalid number: no digits after decimal point")
			return
		}

		r, ok = l.scanDigits(r, base)
		if !ok {
			return
		}
	}

	// An exponent. Decimal floats use e; hexadecimal
	// floats require p, with a decimal exponent.
	switch {
	case base == 10 && (r == 'e' || r == 'E'),
		base == 16 && (r == 'p' || r == 'P'):
		tok = token.Float
		r = l.next()
		if r == '+' || r == '-' {
			r = l.next()
		}

		if !isDigit(r) {
			l.errorf("invalid number: exponent has no digits")
			return
		}

		r, ok = l.scanDigits(r, 10)
		if !ok {
			return
		}
	case base == 16 && tok == token.Float:
		l.errorf("invalid number: hexadecimal float requires a p exponent")
		return
	}

	// Check the next token is appropriate; a
	// closing parenthesis, comment, or space.
	ok = isClosing(r) || (l.eof() && l.width == 0)
	l.backup()
	l.lexeme(tok)
	if !ok {
		r = l.next()
		if digitVal(r) < 16 {
			l.errorf("invalid number: %q is not a valid digit in base %d", r, base)
		} else {
			l.errorf("invalid attached token: %q after %s", r, tok)
		}
	}
}

// scanString is called after the opening quote
// has been scanned.
func (l *lexer) scanString() {
	for {
		r := l.next()
		switch r {
		case '"':
			l.delimitedLexeme(token.String, l.next())
			return
		case '\n', eof:
			l.errorf("string literal not terminated")
			return
		case '\\':
			// Handle an escape sequence.
			var n int
			var base, max uint32
			switch r := l.next(); r {
			// Special characters.
			case 'a', 'b', 'f', 'n', 'r', 't', 'v', '\\', '"', '0':
				continue
			// Hexadecimal literal.
			case 'x':
				n, base, max = 2, 16, 255
			// Small Unicode code point hex literal.
			case 'u':
				n, base, max = 4, 16, unicode.MaxRune
			// Large Unicode code point hex literal.
			case 'U':
				n, base, max = 8, 16, unicode.MaxRune
			case eof:
				l.errorf("escape sequence not terminated")
				return
			default:
				l.errorf("unrecognised escape sequence character %q", r)
				return
			}

			// Handle the values of the escape sequence.
			var x uint32
			for n > 0 {
				r := l.next()
				if r == eof {
					l.errorf("escape sequence not terminated")
					return
				}

				d := uint32(digitVal(r))
				if d >= base {
					l.errorf("illegal character %q in escape sequence", r)
					return
				}

				x = x*base + d
				n--
			}

			if x > max || 0xD800 <= x && x < 0xE000 {
				l.errorf("escape sequence is not a valid Unicode code point")
				return
			}
		}
	}
}

// Rune predicates.

func isLetter(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || r == '_' || r >= utf8.RuneSelf && unicode.IsLetter(r)
}

func isIdentifierInitial(r rune) bool {
	return isLetter(r)
}

func isIdentifierSubsequent(r rune) bool {
	return isIdentifierInitial(r) || isDigit(r) || r == '.'
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n':
		return true
	default:
		return false
	}
}

func isClosing(r rune) bool {
	return r == ')' || r == ';' || isWhitespace(r)
}

func digitVal(r rune) int {
	switch {
	case '0' <= r && r <= '9':
		return int(r - '0')
	case 'a' <= r && r <= 'f':
		return int(r - 'a' + 10)
	case 'A' <= r && r <= 'F':
		return int(r - 'A' + 10)
	}

	return 16 // larger than any legal digit val
}

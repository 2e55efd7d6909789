// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"errors"
)

// Encoding failures wrap one of the following sentinel
// errors, so callers can classify a failure with
// errors.Is while still receiving the instruction
// context in the message.
var (
	// ErrUnsupportedInstruction indicates that the mnemonic
	// is not in the instruction definition table.
	ErrUnsupportedInstruction = errors.New("unsupported instruction")

	// ErrNoMatchingEncodingForm indicates that the mnemonic
	// is known but no encoding form matches the combination
	// of operands.
	ErrNoMatchingEncodingForm = errors.New("no matching encoding form")

	// ErrInvalidIndexRegister indicates a memory operand
	// using rsp as the index register, which the SIB byte
	// cannot express.
	ErrInvalidIndexRegister = errors.New("invalid index register")

	// ErrDisplacementOverflow indicates a displacement or
	// code offset that does not fit in a signed 32-bit
	// field.
	ErrDisplacementOverflow = errors.New("displacement overflow")

	// ErrUnsupportedAddressingMode indicates a memory
	// operand shape the encoder does not support, such as
	// a 32-bit base register or a rip-relative reference
	// with an index.
	ErrUnsupportedAddressingMode = errors.New("unsupported addressing mode")

	// ErrRexHighByteConflict indicates an instruction that
	// needs a REX prefix but also uses one of the high-byte
	// registers ah, ch, dh, or bh, which cannot be encoded
	// alongside REX.
	ErrRexHighByteConflict = errors.New("high-byte register cannot be used with a REX prefix")

	// ErrInvalidImmediateWidth indicates an immediate
	// operand whose value does not fit its declared width,
	// or a 64-bit immediate given to an instruction other
	// than mov r64, imm64.
	ErrInvalidImmediateWidth = errors.New("invalid immediate width")

	// ErrUnknownLabel indicates a reference to a label that
	// is not in the label table.
	ErrUnknownLabel = errors.New("unknown label")
)

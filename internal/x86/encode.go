// Copyright 2026 The XiaoXuan Assembly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Encode produces the machine code for the given
// instruction, as placed at address addr.
//
// The labels map resolves symbol references in code
// offsets and RIP-relative memory operands. A nil map
// selects the sizing pass: every symbol resolves to a
// zero offset, but the length of the result is already
// final, since the width of each field is fixed by the
// encoding form alone. A missing entry in a non-nil map
// is an error.
func Encode(inst *Instruction, addr uint64, labels map[string]uint64) ([]byte, error) {
	defs := Lookup(inst.Mnemonic)
	if defs == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInstruction, inst.Mnemonic)
	}

	var def *Definition
	for _, d := range defs {
		if d.Match(inst.Operands) {
			def = d
			break
		}
	}

	if def == nil {
		// A 64-bit immediate is only ever accepted by
		// mov r64, imm64, so any other use of one is an
		// immediate width error rather than a missing
		// form.
		for _, op := range inst.Operands {
			if imm, ok := op.(Immediate); ok && imm.Bits == 64 {
				return nil, fmt.Errorf("%w: %s takes no 64-bit immediate", ErrInvalidImmediateWidth, inst.Mnemonic)
			}
		}

		return nil, fmt.Errorf("%w: %s", ErrNoMatchingEncodingForm, inst)
	}

	var code Code
	if def.PrefixF3 {
		code.AddPrefix(PrefixRepeat)
	}
	if def.Prefix66 {
		code.AddPrefix(PrefixOperandSize)
	}

	copy(code.Opcode[:], def.Opcode)
	code.OpcodeLen = len(def.Opcode)
	if def.REXW {
		code.REX.SetW(true)
	}

	if def.Extension >= 0 {
		code.UseModRM = true
		code.ModRM.SetReg(byte(def.Extension))
	}

	// An 8-bit operand naming spl, bpl, sil, or dil
	// needs a REX prefix even when every REX bit is
	// clear. A high byte register is the opposite: it
	// cannot appear in any instruction with a REX
	// prefix.
	var forceREX, highByte bool
	var rip *Memory

	for i, op := range inst.Operands {
		form := def.Forms[i]
		switch {
		case form.IsRegisterOrMemory():
			switch v := op.(type) {
			case *Register:
				code.UseModRM = true
				code.ModRM.SetMod(ModRMmodRegister.Mod())
				field, reg := v.ModRM()
				code.ModRM.SetRM(reg)
				code.REX.SetB(field)
				forceREX = forceREX || v.RequiresREX()
				highByte = highByte || v.IsHighByte()
			case *Memory:
				isRIP, err := encodeMemory(&code, v)
				if err != nil {
					return nil, err
				}

				if isRIP {
					rip = v
				}
			}
		case form.IsRegister():
			r := op.(*Register)
			field, reg := r.ModRM()
			if def.RegInOpcode {
				code.Opcode[code.OpcodeLen-1] += reg
				code.REX.SetB(field)
			} else {
				code.UseModRM = true
				code.ModRM.SetReg(reg)
				code.REX.SetR(field)
			}

			forceREX = forceREX || r.RequiresREX()
			highByte = highByte || r.IsHighByte()
		case form.IsImmediate():
			imm := op.(Immediate)
			if !imm.Fits() {
				return nil, fmt.Errorf("%w: %#x does not fit in %d bits", ErrInvalidImmediateWidth, imm.Value, imm.Bits)
			}

			code.ImmediateLen = imm.Bits / 8
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(imm.Value))
			copy(code.Immediate[:], buf[:code.ImmediateLen])
		case form == FormRel32:
			code.CodeOffsetLen = 4
		case form == FormCL:
			// The count register is implicit in the
			// opcode.
		}
	}

	if code.REX != 0 || forceREX {
		code.REX.SetOn()
	}

	if code.REX != 0 && highByte {
		return nil, fmt.Errorf("%w: %s", ErrRexHighByteConflict, inst)
	}

	// The length is now fixed. Symbol references are
	// relative to the end of the instruction, so they
	// can only be resolved from here on.
	length := code.Len()

	if rip != nil {
		target, err := resolve(rip.Symbol, labels)
		if err != nil {
			return nil, err
		}

		rel := int64(target) - int64(addr) - int64(length) + int64(rip.Disp)
		if rel < math.MinInt32 || rel > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %s is %#x bytes away", ErrDisplacementOverflow, rip.Symbol, rel)
		}

		binary.LittleEndian.PutUint32(code.Displacement[:], uint32(int32(rel)))
	}

	if code.CodeOffsetLen != 0 {
		for i, op := range inst.Operands {
			if def.Forms[i] != FormRel32 {
				continue
			}

			target, err := resolve(op.(Rel).Label, labels)
			if err != nil {
				return nil, err
			}

			rel := int64(target) - int64(addr) - int64(length)
			if rel < math.MinInt32 || rel > math.MaxInt32 {
				return nil, fmt.Errorf("%w: %s is %#x bytes away", ErrDisplacementOverflow, op.(Rel).Label, rel)
			}

			binary.LittleEndian.PutUint32(code.CodeOffset[:], uint32(int32(rel)))
		}
	}

	var out bytes.Buffer
	code.EncodeTo(&out)

	return out.Bytes(), nil
}

// resolve looks up a symbol in the label map. A nil map
// is the sizing pass, where every symbol is zero.
func resolve(symbol string, labels map[string]uint64) (uint64, error) {
	if labels == nil {
		return 0, nil
	}

	target, ok := labels[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLabel, symbol)
	}

	return target, nil
}

// encodeMemory fills in the ModR/M, SIB, and displacement
// fields of code for the given memory operand. It returns
// whether the operand is RIP-relative, in which case the
// displacement value is left for the caller to resolve.
func encodeMemory(code *Code, mem *Memory) (isRIP bool, err error) {
	code.UseModRM = true

	switch mem.Segment {
	case nil:
	case FS:
		code.AddPrefix(PrefixFS)
	case GS:
		code.AddPrefix(PrefixGS)
	default:
		return false, fmt.Errorf("%w: segment %s cannot be overridden", ErrUnsupportedAddressingMode, mem.Segment.Name)
	}

	if mem.Base == RIP {
		if mem.Index != nil {
			return false, fmt.Errorf("%w: rip-relative address cannot have an index", ErrUnsupportedAddressingMode)
		}

		code.ModRM.SetMod(ModRMmodDereferenceRegister.Mod())
		code.ModRM.SetRM(ModRMrmRIPRelative.RM())
		code.DisplacementLen = 4

		return true, nil
	}

	if mem.Index != nil {
		if mem.Index == RSP {
			return false, fmt.Errorf("%w: %s", ErrInvalidIndexRegister, mem.Index.Name)
		}

		if mem.Index.Type != TypeGeneralPurpose || mem.Index.Bits != 64 {
			return false, fmt.Errorf("%w: index register %s", ErrUnsupportedAddressingMode, mem.Index.Name)
		}
	}

	if mem.Base == nil {
		// With no base register, the reference always
		// takes the SIB form: base 101 under mod 00
		// means no base, with a mandatory 32-bit
		// displacement.
		code.ModRM.SetMod(ModRMmodDereferenceRegister.Mod())
		code.ModRM.SetRM(ModRMrmSIB.RM())
		code.UseSIB = true
		code.SIB.SetBase(0b101)
		code.DisplacementLen = 4
		binary.LittleEndian.PutUint32(code.Displacement[:], uint32(mem.Disp))

		return false, encodeSIBIndex(code, mem)
	}

	if mem.Base.Type != TypeGeneralPurpose || mem.Base.Bits != 64 {
		return false, fmt.Errorf("%w: base register %s", ErrUnsupportedAddressingMode, mem.Base.Name)
	}

	baseField, baseReg := mem.Base.ModRM()
	code.REX.SetB(baseField)

	// With rbp or r13 as the base, mod 00 means
	// RIP-relative instead, so a zero displacement is
	// encoded as an explicit 8-bit zero.
	switch {
	case mem.Disp == 0 && baseReg != 0b101:
		code.ModRM.SetMod(ModRMmodDereferenceRegister.Mod())
	case mem.Disp >= math.MinInt8 && mem.Disp <= math.MaxInt8:
		code.ModRM.SetMod(ModRMmodSmallDisplacedRegister.Mod())
		code.DisplacementLen = 1
		code.Displacement[0] = byte(int8(mem.Disp))
	default:
		code.ModRM.SetMod(ModRMmodLargeDisplacedRegister.Mod())
		code.DisplacementLen = 4
		binary.LittleEndian.PutUint32(code.Displacement[:], uint32(mem.Disp))
	}

	// A base of rsp or r12 collides with the SIB escape
	// in the r/m field, so those always take the SIB
	// form, even without an index.
	if mem.Index == nil && baseReg != 0b100 {
		code.ModRM.SetRM(baseReg)
		return false, nil
	}

	code.ModRM.SetRM(ModRMrmSIB.RM())
	code.UseSIB = true
	code.SIB.SetBase(baseReg)

	return false, encodeSIBIndex(code, mem)
}

// encodeSIBIndex fills in the index and scale fields of an
// SIB byte, or marks the index absent.
func encodeSIBIndex(code *Code, mem *Memory) error {
	if mem.Index == nil {
		code.SIB |= SIBindexNone
		return nil
	}

	indexField, indexReg := mem.Index.ModRM()
	code.REX.SetX(indexField)
	code.SIB.SetIndex(indexReg)

	switch mem.Scale {
	case 0, 1:
		code.SIB |= SIBscale1
	case 2:
		code.SIB |= SIBscale2
	case 4:
		code.SIB |= SIBscale4
	case 8:
		code.SIB |= SIBscale8
	default:
		return fmt.Errorf("%w: scale %d", ErrUnsupportedAddressingMode, mem.Scale)
	}

	return nil
}

// Copyright 2024 The dxbcpatch Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sm5 decodes (and, for a handful of fixed shapes, encodes) Shader
// Model 5 bytecode tokens: the 32-bit words that make up a DXBC SHEX/SHDR
// chunk's instruction stream.
//
// Every function here is pure: it reads one or more uint32 values and
// returns decoded fields, or builds a token from fields. Nothing in this
// package allocates or retains a reference to a caller's buffer; walking an
// instruction stream is the caller's job (see the sibling "patch" package),
// this package only knows how to interpret the tokens once you're pointed
// at them.
package sm5

// Opcode is the low-11-bit instruction discriminant of an instruction
// token. Only the opcodes the patch passes and their tests refer to are
// named; unlisted opcodes still decode correctly via DecodeInstruction, they
// just have no symbolic constant.
type Opcode uint32

const (
	OpAnd                   Opcode = 1
	OpIShr                  Opcode = 42
	OpItoF                  Opcode = 43
	OpLabel                 Opcode = 44
	OpLD                    Opcode = 45
	OpMov                   Opcode = 54
	OpMul                   Opcode = 56
	OpNop                   Opcode = 58
	OpUtoF                  Opcode = 86
	OpDclResource           Opcode = 88
	OpDclConstantBuffer     Opcode = 89
	OpDclResourceRaw        Opcode = 160
	OpDclResourceStructured Opcode = 161
	OpLDStructured          Opcode = 166
)

// opcodeMask covers bits 0-10: the 11-bit opcode id.
const opcodeMask = 0x7FF

// instructionLengthShift/Mask cover bits 24-30: instruction length in
// DWORDs, including the instruction token itself.
const (
	instructionLengthShift = 24
	instructionLengthMask  = 0x7F
)

// DecodeInstruction reads an instruction token's opcode and length. A
// length of zero (seen on some declaration tokens) is clamped to 1 so a
// caller summing lengths to walk instruction boundaries never stalls.
func DecodeInstruction(tok uint32) (op Opcode, lengthDWords int) {
	op = Opcode(tok & opcodeMask)
	lengthDWords = int((tok >> instructionLengthShift) & instructionLengthMask)
	if lengthDWords == 0 {
		lengthDWords = 1
	}
	return op, lengthDWords
}

// EncodeInstruction builds an instruction token from an opcode and a DWORD
// length (including the token itself), preserving bits of extra that the
// core doesn't otherwise model (the saturate bit, extended-opcode bit,
// etc.) by ORing them in verbatim. Callers pass extra = 0 unless they need
// to carry bits forward from an original token (see the uber-flag pass,
// which preserves the source token's non-opcode/non-length bits).
func EncodeInstruction(op Opcode, lengthDWords int, extraBits uint32) uint32 {
	const preserveMask = ^uint32(opcodeMask | (instructionLengthMask << instructionLengthShift))
	return uint32(op) | (uint32(lengthDWords&instructionLengthMask) << instructionLengthShift) | (extraBits & preserveMask)
}

// PrimaryType is the low 4 bits of an operand token's 8-bit type field —
// the subset of D3D's operand-type enum this core needs to recognize.
type PrimaryType uint32

const (
	Temp        PrimaryType = 0
	Input       PrimaryType = 1
	Output      PrimaryType = 2
	Immediate32 PrimaryType = 4
	Immediate64 PrimaryType = 5
	Resource    PrimaryType = 7
	CBuffer     PrimaryType = 8
	Sampler     PrimaryType = 9
	Label       PrimaryType = 10
)

// isSystemValue reports whether a primary type is one of the zero-DWORD
// system-value operand kinds. None of those types are matched by any patch
// pass, so the core never needs to name them individually; it only needs
// to know their footprint is zero index DWORDs.
func isSystemValue(t PrimaryType) bool {
	switch t {
	case Temp, Input, Output, Immediate32, Immediate64, Resource, CBuffer, Sampler, Label:
		return false
	default:
		return true
	}
}

// ComponentMode is an operand token's component-selection discriminant
// (bits 2-3).
type ComponentMode uint32

const (
	ModeMask    ComponentMode = 0
	ModeSwizzle ComponentMode = 1
	ModeSelect1 ComponentMode = 2
)

const (
	numComponentsMask  = 0x3
	componentModeShift = 2
	componentModeMask  = 0x3
	componentBitsShift = 4
	maskBitsMask       = 0xF  // bits 4-7
	swizzleBitsMask    = 0xFF // bits 4-11
	select1BitsMask    = 0x3  // bits 4-5

	operandTypeShift = 12
	operandTypeMask  = 0xFF // full 8-bit type field; PrimaryType is its low nibble

	indexDimShift = 20
	indexDimMask  = 0x3

	extendedBit = uint32(1) << 31
)

// Operand is a decoded operand token: everything needed to both match a
// pattern against it and to compute how many trailing index DWORDs follow
// it in the instruction stream.
type Operand struct {
	NumComponents uint32
	Mode          ComponentMode
	ComponentBits uint32 // meaning depends on Mode: mask bits, swizzle bits, or a 2-bit select1 index
	Type          uint32 // full 8-bit type field
	Primary       PrimaryType
	IndexDim      uint32
	Extended      bool
}

// DecodeOperand reads a single operand token.
func DecodeOperand(tok uint32) Operand {
	mode := ComponentMode((tok >> componentModeShift) & componentModeMask)
	var bits uint32
	switch mode {
	case ModeMask:
		bits = (tok >> componentBitsShift) & maskBitsMask
	case ModeSwizzle:
		bits = (tok >> componentBitsShift) & swizzleBitsMask
	case ModeSelect1:
		bits = (tok >> componentBitsShift) & select1BitsMask
	}
	fullType := (tok >> operandTypeShift) & operandTypeMask
	return Operand{
		NumComponents: tok & numComponentsMask,
		Mode:          mode,
		ComponentBits: bits,
		Type:          fullType,
		Primary:       PrimaryType(fullType & 0xF),
		IndexDim:      (tok >> indexDimShift) & indexDimMask,
		Extended:      tok&extendedBit != 0,
	}
}

// popcount4 counts set bits in the low 4 bits of x.
func popcount4(x uint32) int {
	n := 0
	for i := 0; i < 4; i++ {
		if x&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

// Footprint returns the number of DWORDs this operand consumes in the
// instruction stream, including the operand token itself. A mask-mode
// Immediate32 operand with no mask bits set is a bare scalar immediate
// (the mask is omitted), so it falls back to a single index DWORD rather
// than zero.
func (op Operand) Footprint() int {
	afterToken := 0
	switch {
	case isSystemValue(op.Primary):
		afterToken = 0
	case op.Primary == CBuffer:
		afterToken = 2
	case op.Primary == Immediate64:
		afterToken = 2
	case op.Primary == Immediate32 && op.Mode == ModeMask:
		n := popcount4(op.ComponentBits)
		if n == 0 {
			n = 1 // scalar fallback
		}
		afterToken = n
	case op.Primary == Immediate32:
		afterToken = 1
	default:
		// temp / input / output / resource / sampler / label
		afterToken = 1
	}

	total := 1 + afterToken
	if op.Extended {
		total++
	}
	return total
}

// HasComponentW reports whether the operand selects (reads or writes)
// exactly the .w (4th, index 3) component under mask or select1 mode, or
// leads with it under swizzle mode. Used to detect "cb2[11].w" and "rN.w"
// shaped operands; a wider mask like .zw does not qualify, since rewriting
// an instruction that legitimately writes two components would corrupt it.
func (op Operand) HasComponentW() bool {
	switch op.Mode {
	case ModeMask:
		return op.ComponentBits == 0x8
	case ModeSwizzle:
		// Accept .wwww (0xFF) or any swizzle whose first component selects w.
		if op.ComponentBits == 0xFF {
			return true
		}
		return op.ComponentBits&0x3 == 3
	case ModeSelect1:
		return op.ComponentBits == 3
	default:
		return false
	}
}

// NOPToken is the fixed encoding of a no-op instruction: opcode NOP,
// instruction length 1 DWORD, no other bits set.
const NOPToken uint32 = 0x0100003A

// ImmediateScalarToken is the fixed operand-token encoding of a 1-component
// (scalar) 32-bit immediate: NumComponents=1, Mode=mask (mode bits zero),
// Type=Immediate32, IndexDim=0, not extended.
const ImmediateScalarToken uint32 = 0x00004001

// Float1 is the IEEE-754 bit pattern for 1.0f.
const Float1 uint32 = 0x3F800000

// FillNOPs overwrites dst[0:n] with NOPToken. Used by every patch pass that
// shortens an instruction in place: the replacement writes fewer DWORDs
// than the original instruction length, and the remainder must still
// decode (as harmless no-ops) rather than be left as stale data.
func FillNOPs(dst []uint32) {
	for i := range dst {
		dst[i] = NOPToken
	}
}

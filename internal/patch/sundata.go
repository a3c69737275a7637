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

package patch

import (
	"math"

	"github.com/r5reborn/dxbcpatch/internal/sm5"
)

const (
	sunDataCBBuffer    = 2
	sunDataCBElement   = 11
	sunExtractMaskLow  = 0xFFFF
	sunExtractShift16  = 16
	sunConvertScanMax  = 200
	sunScaleScanMax    = 600
	sunScaleWindowLow  = 2.5e-5
	sunScaleWindowHigh = 3.5e-5
)

// sunSequence is one candidate sun-data unpack found by the extract scan,
// carried forward through the convert and scale scans.
type sunSequence struct {
	ts      *TokenStream
	extract instr
	dstReg  uint32
	srcIsCB bool
	srcReg  uint32
	isUpper bool // true: ishr (upper half), false: and (lower half)

	convert  *instr
	scalePos int // dword position of the scale immediate, -1 if not found
}

// sunData removes the new engine's integer sun-visibility/intensity unpack
// (an ishr/and pair reading cb2[11].w, optionally followed by an int->float
// convert and a scale multiply) leaving behind the direct [0,1] float the
// legacy engine already provides at the same storage location post-swap.
func sunData(blob []byte) (PatchReport, error) {
	var report PatchReport

	streams, err := bytecodeChunks(blob)
	if err != nil {
		return report, err
	}

	for _, ts := range streams {
		ins := instructions(ts)
		sequences := findSunExtracts(ts, ins)

		for i := range sequences {
			findSunConvert(ts, ins, &sequences[i])
			findSunScale(ts, ins, &sequences[i])
		}

		for _, seq := range sequences {
			if !seq.srcIsCB && seq.scalePos < 0 {
				// A temp-sourced ishr/and with no scale corroboration is
				// not diagnostic on its own; leave it alone.
				continue
			}
			applySunSequence(ts, seq, &report)
		}
	}

	return report, nil
}

func findSunExtracts(ts *TokenStream, ins []instr) []sunSequence {
	var out []sunSequence
	for _, in := range ins {
		var isUpper bool
		switch in.Op {
		case sm5.OpIShr:
			isUpper = true
		case sm5.OpAnd:
			isUpper = false
		default:
			continue
		}

		ops := operandsOf(ts, in)
		if len(ops) != 3 {
			continue
		}
		dst, src, imm := ops[0], ops[1], ops[2]

		if dst.Primary != sm5.Temp || !dst.HasComponentW() || len(dst.Indices) == 0 {
			continue
		}
		if imm.Primary != sm5.Immediate32 || len(imm.Indices) != 1 {
			continue
		}
		if isUpper && imm.Indices[0] != sunExtractShift16 {
			continue
		}
		if !isUpper && imm.Indices[0] != sunExtractMaskLow {
			continue
		}

		seq := sunSequence{ts: ts, extract: in, dstReg: dst.Indices[0], isUpper: isUpper, scalePos: -1}

		switch {
		case src.Primary == sm5.CBuffer && len(src.Indices) >= 2 &&
			src.Indices[0] == sunDataCBBuffer && src.Indices[1] == sunDataCBElement && src.HasComponentW():
			seq.srcIsCB = true
		case src.Primary == sm5.Temp && src.HasComponentW() && len(src.Indices) > 0:
			seq.srcIsCB = false
			seq.srcReg = src.Indices[0]
		default:
			continue
		}

		out = append(out, seq)
	}
	return out
}

func findSunConvert(ts *TokenStream, ins []instr, seq *sunSequence) {
	for _, in := range ins {
		if in.Pos <= seq.extract.Pos || in.Pos-seq.extract.Pos > sunConvertScanMax {
			continue
		}
		if in.Op != sm5.OpItoF && in.Op != sm5.OpUtoF {
			continue
		}
		ops := operandsOf(ts, in)
		if len(ops) != 2 {
			continue
		}
		dst, src := ops[0], ops[1]
		if dst.Primary != sm5.Temp || !dst.HasComponentW() || len(dst.Indices) == 0 || dst.Indices[0] != seq.dstReg {
			continue
		}
		if src.Primary != sm5.Temp || !src.HasComponentW() || len(src.Indices) == 0 || src.Indices[0] != seq.dstReg {
			continue
		}
		found := in
		seq.convert = &found
		return
	}
}

func findSunScale(ts *TokenStream, ins []instr, seq *sunSequence) {
	for _, in := range ins {
		if in.Pos <= seq.extract.Pos || in.Pos-seq.extract.Pos > sunScaleScanMax {
			continue
		}
		if in.Op != sm5.OpMul {
			continue
		}
		ops := operandsOf(ts, in)
		if len(ops) != 3 {
			continue
		}
		// The scale multiply writes a temp register; a mul into an output
		// register is a consumer, not the unpack's own scale step.
		if ops[0].Primary != sm5.Temp {
			continue
		}
		a, b := ops[1], ops[2]
		if pos, ok := matchSunScaleOperands(a, b, seq.dstReg); ok {
			seq.scalePos = pos
			return
		}
	}
}

// matchSunScaleOperands checks whether (a, b) is the scale multiply's
// operand pair in either order: one operand is the converted temp
// register, the other an immediate32 scalar whose float value lies in the
// sun-scale detection window.
func matchSunScaleOperands(a, b operand, tempReg uint32) (int, bool) {
	if p, ok := matchSunScalePair(a, b, tempReg); ok {
		return p, true
	}
	return matchSunScalePair(b, a, tempReg)
}

func matchSunScalePair(tempSide, immSide operand, tempReg uint32) (int, bool) {
	if tempSide.Primary != sm5.Temp || len(tempSide.Indices) == 0 || tempSide.Indices[0] != tempReg {
		return 0, false
	}
	if immSide.Primary != sm5.Immediate32 || len(immSide.Indices) != 1 {
		return 0, false
	}
	v := math.Float32frombits(immSide.Indices[0])
	if v <= sunScaleWindowLow || v >= sunScaleWindowHigh {
		return 0, false
	}
	return immSide.IndexPos[0], true
}

func applySunSequence(ts *TokenStream, seq sunSequence, report *PatchReport) {
	// Rewrite the extract as a plain mov of its first two operands (dst,
	// src), which already sit at the same dword offsets the ishr/and used;
	// only the trailing immediate and any further dwords need NOP fill.
	ops := operandsOf(ts, seq.extract)
	dst, src := ops[0], ops[1]

	// The mov's declared length must reflect only what it actually writes
	// (token + dst + src), not the original and/ishr's length, which also
	// counted the now-removed immediate operand; the difference between
	// the two is left as independently-decodable NOP filler below.
	movLength := 1 + dst.Footprint() + src.Footprint()

	originalTok := ts.Get(seq.extract.Pos)
	ts.Set(seq.extract.Pos, sm5.EncodeInstruction(sm5.OpMov, movLength, originalTok))

	fillStart := src.Pos + src.Footprint()
	fillEnd := seq.extract.Pos + seq.extract.Length
	if fillEnd > fillStart {
		buf := make([]uint32, fillEnd-fillStart)
		sm5.FillNOPs(buf)
		for i, v := range buf {
			ts.Set(fillStart+i, v)
		}
	}
	report.BytecodeMutations++

	if seq.convert != nil {
		buf := make([]uint32, seq.convert.Length)
		sm5.FillNOPs(buf)
		for i, v := range buf {
			ts.Set(seq.convert.Pos+i, v)
		}
		report.BytecodeMutations++
	}

	if seq.scalePos >= 0 {
		ts.Set(seq.scalePos, sm5.Float1)
		report.BytecodeMutations++
	}
}

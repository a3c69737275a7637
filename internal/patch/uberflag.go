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

import "github.com/r5reborn/dxbcpatch/internal/sm5"

// uberFlagBufferIndex and uberFlagElementIndex pin the uber-flag word to
// cb0[24], the only cbuffer location these two passes key on.
const (
	uberFlagBufferIndex  = 0
	uberFlagElementIndex = 24

	// uberMovLength is the declared DWORD length of the replacement `mov
	// dst, l(0)`: instruction token + dst operand (token+1 index dword) +
	// scalar immediate operand (token+1 value dword). It is fixed, not
	// copied from the matched `and`'s own length, so the mov's token
	// correctly claims only the dwords it actually writes; anything past
	// it is separately-decodable NOP filler rather than swallowed into an
	// over-long mov.
	uberMovLength = 5
)

// uberFlag finds every `and dst, cb0[24].?, l(n)` in every bytecode chunk
// and rewrites it to `mov dst, l(0)`, preserving the destination operand
// and NOP-filling whatever dwords the shorter mov leaves behind.
func uberFlag(blob []byte, n uint32) (PatchReport, error) {
	var report PatchReport

	streams, err := bytecodeChunks(blob)
	if err != nil {
		return report, err
	}

	for _, ts := range streams {
		for _, in := range instructions(ts) {
			if in.Op != sm5.OpAnd {
				continue
			}
			ops := operandsOf(ts, in)
			if len(ops) != 3 {
				continue
			}
			dst, src1, src2 := ops[0], ops[1], ops[2]

			if src1.Primary != sm5.CBuffer {
				continue
			}
			if src1.Indices[0] != uberFlagBufferIndex || src1.Indices[1] != uberFlagElementIndex {
				continue
			}
			if src2.Primary != sm5.Immediate32 || len(src2.Indices) != 1 {
				continue
			}
			if src2.Indices[0] != n {
				continue
			}

			originalTok := ts.Get(in.Pos)
			ts.Set(in.Pos, sm5.EncodeInstruction(sm5.OpMov, uberMovLength, originalTok))

			// dst is unchanged; write the l(0) immediate right after it and
			// NOP-fill anything left over from the wider `and`.
			immTokPos := dst.Pos + dst.Footprint()
			ts.Set(immTokPos, sm5.ImmediateScalarToken)
			ts.Set(immTokPos+1, 0)

			fillStart := immTokPos + 2
			fillEnd := in.Pos + in.Length
			if fillEnd > fillStart {
				nopBuf := make([]uint32, fillEnd-fillStart)
				sm5.FillNOPs(nopBuf)
				for i, v := range nopBuf {
					ts.Set(fillStart+i, v)
				}
			}

			report.BytecodeMutations++
		}
	}

	return report, nil
}

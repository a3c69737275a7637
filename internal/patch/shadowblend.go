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

// shadowBlend removes `mul dst.w, srcA.w, srcB.w` where dst aliases one of
// its two sources and the other source is a distinct temp register. Once
// the sun-data pass has turned sunVis into a direct [0,1] float, this
// multiply squares it against itself under aliasing and produces visible
// flicker; removing it is gated behind Options.EnableShadowBlend because
// the upstream engine ships it disabled and the reason was never recorded.
func shadowBlend(blob []byte) (PatchReport, error) {
	var report PatchReport

	streams, err := bytecodeChunks(blob)
	if err != nil {
		return report, err
	}

	for _, ts := range streams {
		for _, in := range instructions(ts) {
			if in.Op != sm5.OpMul {
				continue
			}
			ops := operandsOf(ts, in)
			if len(ops) != 3 {
				continue
			}
			dst, a, b := ops[0], ops[1], ops[2]
			if dst.Primary != sm5.Temp || !dst.HasComponentW() {
				continue
			}
			if a.Primary != sm5.Temp || b.Primary != sm5.Temp {
				continue
			}
			if !a.HasComponentW() || !b.HasComponentW() {
				continue
			}
			if len(a.Indices) == 0 || len(b.Indices) == 0 || len(dst.Indices) == 0 {
				continue
			}

			dstReg := dst.Indices[0]
			aliasesA := a.Indices[0] == dstReg
			aliasesB := b.Indices[0] == dstReg
			if aliasesA == aliasesB {
				// Either neither source aliases dst, or both do (a
				// genuine square, not the sunVis*shadowBlend pattern).
				continue
			}
			if a.Indices[0] == b.Indices[0] {
				continue
			}

			buf := make([]uint32, in.Length)
			sm5.FillNOPs(buf)
			for i, v := range buf {
				ts.Set(in.Pos+i, v)
			}
			report.BytecodeMutations++
		}
	}

	return report, nil
}

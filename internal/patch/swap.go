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
	"github.com/r5reborn/dxbcpatch/internal/rdef"
	"github.com/r5reborn/dxbcpatch/internal/sm5"
)

func swappedCBIndex(i uint32) (uint32, bool) {
	switch i {
	case 2:
		return 3, true
	case 3:
		return 2, true
	default:
		return 0, false
	}
}

// cbSwap exchanges every reference to constant buffer 2 and constant buffer
// 3, in both the SHEX/SHDR bytecode and the RDEF binding table. It collects
// every dword position to rewrite before writing any of them, so a single
// pass never sees its own output and swaps a value twice.
func cbSwap(blob []byte) (PatchReport, error) {
	var report PatchReport

	streams, err := bytecodeChunks(blob)
	if err != nil {
		return report, err
	}

	type pending struct {
		ts  *TokenStream
		pos int
		val uint32
	}
	var writes []pending

	for _, ts := range streams {
		for _, in := range instructions(ts) {
			for _, op := range operandsOf(ts, in) {
				if op.Primary != sm5.CBuffer || len(op.Indices) == 0 {
					continue
				}
				newIdx, ok := swappedCBIndex(op.Indices[0])
				if !ok {
					continue
				}
				writes = append(writes, pending{ts, op.IndexPos[0], newIdx})
			}
		}
	}

	for _, w := range writes {
		w.ts.Set(w.pos, w.val)
		report.BytecodeMutations++
	}

	r, err := findRDEF(blob)
	if err != nil {
		return report, err
	}
	if r == nil {
		return report, nil
	}

	type bindingWrite struct {
		index   int
		newSlot uint32
	}
	var bindingWrites []bindingWrite
	for i := range r.Bindings {
		b := &r.Bindings[i]
		if b.Class != rdef.ClassCBuffer {
			continue
		}
		newSlot, ok := swappedCBIndex(b.BindPoint)
		if !ok {
			continue
		}
		bindingWrites = append(bindingWrites, bindingWrite{i, newSlot})
	}
	for _, w := range bindingWrites {
		r.Bindings[w.index].SetBindPoint(blob, w.newSlot)
		report.RDEFMutations++
	}

	return report, nil
}

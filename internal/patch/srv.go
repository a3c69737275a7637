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

// namedSRVRemap is one of the built-in, name-and-slot-qualified remap
// rules: only a binding matching both Name and OldSlot is remapped.
type namedSRVRemap struct {
	Name    string
	OldSlot uint32
	NewSlot uint32
}

var legacySRVRemaps = []namedSRVRemap{
	{Name: "g_modelInst", OldSlot: 75, NewSlot: 61},
	{Name: "g_boneWeightsExtra", OldSlot: 63, NewSlot: 1},
}

// isSRVClass reports whether c is one of the RDEF resource classes the
// remap considers; samplers and plain cbuffers never carry an SRV slot.
func isSRVClass(c rdef.ResourceClass) bool {
	switch c {
	case rdef.ClassTexture, rdef.ClassTBuffer, rdef.ClassStructured, rdef.ClassByteAddress:
		return true
	default:
		return false
	}
}

// srvRemap renumbers resource slots: first a name-keyed RDEF pass records
// which old slots must move and where, then a bytecode pass rewrites every
// resource declaration and operand that references one of those slots.
func srvRemap(blob []byte, opts Options) (PatchReport, error) {
	var report PatchReport

	r, err := findRDEF(blob)
	if err != nil {
		return report, err
	}
	if r == nil {
		return report, nil
	}

	slotRemap := map[uint32]uint32{}

	for i := range r.Bindings {
		b := &r.Bindings[i]
		if !isSRVClass(b.Class) {
			continue
		}
		name, _ := r.BindingName(blob, *b)

		newSlot, matched := uint32(0), false
		if opts.LegacySRV {
			for _, rule := range legacySRVRemaps {
				if name == rule.Name && b.BindPoint == rule.OldSlot {
					newSlot, matched = rule.NewSlot, true
					break
				}
			}
		}
		if !matched {
			for _, custom := range opts.CustomSRVRemaps {
				if b.BindPoint == custom.OldSlot {
					newSlot, matched = custom.NewSlot, true
					break
				}
			}
		}
		if !matched {
			continue
		}

		slotRemap[b.BindPoint] = newSlot
		b.SetBindPoint(blob, newSlot)
		report.SRVMutations++
	}

	if len(slotRemap) == 0 {
		return report, nil
	}

	streams, err := bytecodeChunks(blob)
	if err != nil {
		return report, err
	}

	// Declaration opcodes and ordinary instructions are both covered by the
	// same scan: any Resource-typed operand's slot is a candidate, whether
	// it's the sole operand of a dcl_resource* or one operand among several
	// in e.g. ld_structured.
	for _, ts := range streams {
		for _, in := range instructions(ts) {
			rewriteResourceOperands(ts, in, slotRemap, &report)
		}
	}

	return report, nil
}

// rewriteResourceOperands scans every operand of in for a Resource-typed
// operand whose slot appears in slotRemap, rewriting the slot dword in
// place.
func rewriteResourceOperands(ts *TokenStream, in instr, slotRemap map[uint32]uint32, report *PatchReport) {
	for _, op := range operandsOf(ts, in) {
		if op.Primary != sm5.Resource || len(op.Indices) == 0 {
			continue
		}
		oldSlot := op.Indices[0]
		newSlot, ok := slotRemap[oldSlot]
		if !ok {
			continue
		}
		ts.Set(op.IndexPos[0], newSlot)
		report.SRVMutations++
	}
}

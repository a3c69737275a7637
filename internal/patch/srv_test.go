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
	"testing"

	"github.com/r5reborn/dxbcpatch/internal/dxbc"
	"github.com/r5reborn/dxbcpatch/internal/rdef"
	"github.com/r5reborn/dxbcpatch/internal/sm5"
)

// TestSRVRemapNameKeyed mirrors scenario S4.
func TestSRVRemapNameKeyed(t *testing.T) {
	rdefPayload := buildRDEFPayload(nil, []rdefBinding{
		{Name: "g_modelInst", Class: rdef.ClassStructured, BindPoint: 75},
		{Name: "g_boneWeightsExtra", Class: rdef.ClassStructured, BindPoint: 63},
	})

	decl := buildInstr(sm5.OpDclResourceStructured, opResource(75))
	ld := buildInstr(sm5.OpLDStructured, opTempMask(0, 0xF), opTempMask(1, 0b0001), opImmScalar(0), opResource(75))
	shex := buildSHEXPayload(decl, ld)

	blob := buildContainer([][2]interface{}{{"RDEF", rdefPayload}, {"SHEX", shex}})

	report, err := srvRemap(blob, Options{LegacySRV: true})
	if err != nil {
		t.Fatalf("srvRemap: %v", err)
	}
	if report.SRVMutations == 0 {
		t.Fatal("expected at least one SRV mutation")
	}

	off, size, ok, err := dxbc.FindChunk(blob, "RDEF")
	if err != nil || !ok {
		t.Fatalf("FindChunk: ok=%v err=%v", ok, err)
	}
	r, err := rdef.Parse(blob, off, size)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Bindings[0].BindPoint != 61 {
		t.Fatalf("g_modelInst BindPoint = %d, want 61", r.Bindings[0].BindPoint)
	}
	if r.Bindings[1].BindPoint != 1 {
		t.Fatalf("g_boneWeightsExtra BindPoint = %d, want 1", r.Bindings[1].BindPoint)
	}

	ts := mustSHEXStream(t, blob)
	ins := instructions(ts)
	for _, in := range ins {
		for _, op := range operandsOf(ts, in) {
			if op.Primary == sm5.Resource && len(op.Indices) > 0 && op.Indices[0] == 75 {
				t.Fatal("slot 75 must not remain referenced after the remap")
			}
		}
	}
}

func TestSRVRemapCustomOverridesUnmatchedSlot(t *testing.T) {
	rdefPayload := buildRDEFPayload(nil, []rdefBinding{
		{Name: "g_customTexture", Class: rdef.ClassTexture, BindPoint: 9},
	})
	blob := buildContainer([][2]interface{}{{"RDEF", rdefPayload}})

	report, err := srvRemap(blob, Options{CustomSRVRemaps: []SRVRemap{{OldSlot: 9, NewSlot: 20}}})
	if err != nil {
		t.Fatalf("srvRemap: %v", err)
	}
	if report.SRVMutations != 1 {
		t.Fatalf("SRVMutations = %d, want 1", report.SRVMutations)
	}

	off, size, _, _ := dxbc.FindChunk(blob, "RDEF")
	r, err := rdef.Parse(blob, off, size)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Bindings[0].BindPoint != 20 {
		t.Fatalf("BindPoint = %d, want 20", r.Bindings[0].BindPoint)
	}
}

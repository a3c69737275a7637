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

	"github.com/r5reborn/dxbcpatch/internal/hash"
	"github.com/r5reborn/dxbcpatch/internal/rdef"
	"github.com/r5reborn/dxbcpatch/internal/sm5"
)

// TestPatchLegacyPassthrough mirrors scenario S1: a blob already in the
// legacy layout with nothing for any pass to match reports all-zero counts
// and still ends up with a valid hash.
func TestPatchLegacyPassthrough(t *testing.T) {
	rdefPayload := buildRDEFPayload(
		[]rdefCBuffer{{Name: "CBufCommonPerCamera", Size: 16, VarCount: 1}},
		[]rdefBinding{
			{Name: "CBufCommonPerCamera", Class: rdef.ClassCBuffer, BindPoint: 2},
			{Name: "CBufModelInstance", Class: rdef.ClassCBuffer, BindPoint: 3},
		},
	)
	mov := buildInstr(sm5.OpMov, opTempMask(0, 0xF), opImmScalar(0))
	shex := buildSHEXPayload(mov)

	blob := buildContainer([][2]interface{}{{"RDEF", rdefPayload}, {"SHEX", shex}})
	hash.Update(blob)
	bodyBefore := append([]byte(nil), blob[20:]...)

	report, err := Patch(blob, Options{LegacySRV: true})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if report.Mutated() {
		t.Fatalf("expected zero mutations on a legacy-layout passthrough blob, got %+v", report)
	}

	for i := range bodyBefore {
		if bodyBefore[i] != blob[20+i] {
			t.Fatalf("body byte %d changed despite zero reported mutations", i)
		}
	}
	if !hash.Verify(blob) {
		t.Fatal("expected a valid hash after Patch")
	}
}

// TestPatchIsIdempotent exercises scenario-independent idempotence across a
// blob that exercises several passes at once.
func TestPatchIsIdempotent(t *testing.T) {
	rdefPayload := buildRDEFPayload(
		[]rdefCBuffer{{Name: "CBufCommonPerCamera", Size: 784, VarCount: 42}},
		[]rdefBinding{
			{Name: "CBufCommonPerCamera", Class: rdef.ClassCBuffer, BindPoint: 3},
			{Name: "CBufModelInstance", Class: rdef.ClassCBuffer, BindPoint: 2},
		},
	)

	uber := buildInstr(sm5.OpAnd, opTempMask(1, 0b0010), opCBuffer(0, 24, 0b0010), opImmScalar(2))
	extract := buildInstr(sm5.OpIShr, opTempW(6), opCBufferW(2, 11), opImmScalar(16))
	convert := buildInstr(sm5.OpItoF, opTempW(6), opTempW(6))
	scale := buildInstr(sm5.OpMul, opTempW(0), opTempW(6), opImmScalar(0x38000000))
	shex := buildSHEXPayload(uber, extract, convert, scale)

	blob := buildContainer([][2]interface{}{{"RDEF", rdefPayload}, {"SHEX", shex}})

	if _, err := Patch(blob, Options{LegacySRV: true}); err != nil {
		t.Fatalf("first Patch: %v", err)
	}
	once := append([]byte(nil), blob...)

	report, err := Patch(blob, Options{LegacySRV: true})
	if err != nil {
		t.Fatalf("second Patch: %v", err)
	}
	if report.Mutated() {
		t.Fatalf("expected zero mutations on the second Patch call, got %+v", report)
	}
	for i := range once {
		if once[i] != blob[i] {
			t.Fatalf("byte %d changed between first and second Patch", i)
		}
	}
	if !hash.Verify(blob) {
		t.Fatal("expected a valid hash after the second Patch")
	}
}

func TestPatchRejectsStructurallyInvalidBlob(t *testing.T) {
	blob := make([]byte, 32)
	copy(blob[0:4], "XXXX")

	_, err := Patch(blob, Options{})
	if err == nil {
		t.Fatal("expected an error for a blob with bad magic")
	}
}

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

const (
	clusteredCBufferName = "CBufCommonPerCamera"
	clusteredLegacySize  = 784
	clusteredPatchedSize = 752
)

// clusteredLighting drops the ClusteredLighting fields from
// CBufCommonPerCamera: 32 bytes and one variable-table entry, only when the
// descriptor is still at its pre-removal size. No bytecode is touched.
func clusteredLighting(blob []byte) (PatchReport, error) {
	var report PatchReport

	r, err := findRDEF(blob)
	if err != nil {
		return report, err
	}
	if r == nil {
		return report, nil
	}

	for i := range r.CBuffers {
		d := &r.CBuffers[i]
		name, ok := r.CBufferName(blob, *d)
		if !ok || name != clusteredCBufferName {
			continue
		}
		if d.Size != clusteredLegacySize {
			continue
		}
		d.SetSize(blob, clusteredPatchedSize)
		d.SetVariableCount(blob, d.VariableCount-1)
		report.RDEFMutations += 2
	}

	return report, nil
}

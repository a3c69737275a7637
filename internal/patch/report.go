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

// PatchReport aggregates what the driver's passes changed in one blob.
// Every count is non-negative; a pass that found nothing to do reports all
// zeros rather than an error.
type PatchReport struct {
	BytecodeMutations int
	RDEFMutations     int
	SRVMutations      int
	Notes             []string
}

// Mutated reports whether any pass made a change, the condition that
// decides whether the driver must repair the integrity hash.
func (r PatchReport) Mutated() bool {
	return r.BytecodeMutations > 0 || r.RDEFMutations > 0 || r.SRVMutations > 0
}

func (r *PatchReport) merge(other PatchReport) {
	r.BytecodeMutations += other.BytecodeMutations
	r.RDEFMutations += other.RDEFMutations
	r.SRVMutations += other.SRVMutations
	r.Notes = append(r.Notes, other.Notes...)
}

func (r *PatchReport) note(s string) {
	r.Notes = append(r.Notes, s)
}

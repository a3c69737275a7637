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

// SRVRemap is a caller-supplied slot-to-slot resource remapping, applied in
// addition to the built-in name-keyed rules.
type SRVRemap struct {
	OldSlot uint32
	NewSlot uint32
}

// Options configures one Patch call.
type Options struct {
	// LegacySRV enables the built-in name-keyed SRV remap rules
	// (g_modelInst, g_boneWeightsExtra). Disable it to apply only
	// CustomSRVRemaps.
	LegacySRV bool

	// EnableShadowBlend turns on the shadow-blend multiply removal pass.
	// The upstream engine ships this disabled; see DESIGN.md for why it
	// defaults to off here too.
	EnableShadowBlend bool

	// CustomSRVRemaps are additional slot-keyed remap rules applied
	// alongside (or instead of) the built-in ones.
	CustomSRVRemaps []SRVRemap
}

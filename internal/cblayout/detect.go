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

// Package cblayout classifies a shader's constant-buffer layout as "new"
// (CB2<->CB3 swap required) or "legacy" (already in the engine's expected
// slots), by reading which bind points host the two well-known buffers the
// two engine revisions disagree about.
package cblayout

import (
	"github.com/r5reborn/dxbcpatch/internal/dxbc"
	"github.com/r5reborn/dxbcpatch/internal/rdef"
)

const (
	cameraBufferName        = "CBufCommonPerCamera"
	modelInstanceBufferName = "CBufModelInstance"
)

// Info is the outcome of detecting a shader's constant-buffer layout.
type Info struct {
	CameraSlot        int // -1 if CBufCommonPerCamera wasn't found
	ModelInstanceSlot int // -1 if CBufModelInstance wasn't found
	NeedsSwap         bool
	Reason            string
}

// Detect locates the RDEF chunk in blob and reads the two slots that decide
// whether the CB2<->CB3 swap pass must run. It never mutates blob.
//
// A blob with no RDEF chunk, or one where neither buffer is found, is not a
// structural reject: it simply reports NeedsSwap == false with an
// explanatory Reason, the same as an unrecognized camera-buffer slot.
func Detect(blob []byte) (Info, error) {
	off, size, ok, err := dxbc.FindChunk(blob, "RDEF")
	if err != nil {
		return Info{}, err
	}
	if !ok {
		return Info{CameraSlot: -1, ModelInstanceSlot: -1, Reason: "no RDEF chunk"}, nil
	}

	r, err := rdef.Parse(blob, off, size)
	if err != nil {
		return Info{}, err
	}

	info := Info{CameraSlot: -1, ModelInstanceSlot: -1}
	for _, b := range r.Bindings {
		if b.Class != rdef.ClassCBuffer {
			continue
		}
		name, ok := r.BindingName(blob, b)
		if !ok {
			continue
		}
		switch name {
		case cameraBufferName:
			info.CameraSlot = int(b.BindPoint)
		case modelInstanceBufferName:
			info.ModelInstanceSlot = int(b.BindPoint)
		}
	}

	switch info.CameraSlot {
	case 3:
		info.NeedsSwap = true
		info.Reason = "camera buffer at slot 3 (new layout)"
	case 2:
		info.NeedsSwap = false
		info.Reason = "camera buffer at slot 2 (legacy layout)"
	default:
		info.NeedsSwap = false
		info.Reason = "unknown layout"
	}
	return info, nil
}

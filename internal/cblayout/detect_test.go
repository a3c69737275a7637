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

package cblayout

import (
	"encoding/binary"
	"testing"

	"github.com/r5reborn/dxbcpatch/internal/dxbc"
	"github.com/r5reborn/dxbcpatch/internal/rdef"
)

// rdefPayload builds a minimal RDEF payload with one cbuffer binding named
// cameraBufferName at the given bind point.
func rdefPayload(cameraSlot uint32) []byte {
	const (
		header       = 28
		cbufTableOff = header
		numCBufs     = 1
		bindTableOff = cbufTableOff + 24
		numBindings  = 1
		stringOff    = bindTableOff + 32
	)

	name := cameraBufferName + "\x00"
	payload := make([]byte, stringOff+len(name))

	binary.LittleEndian.PutUint32(payload[0:4], numCBufs)
	binary.LittleEndian.PutUint32(payload[4:8], cbufTableOff)
	binary.LittleEndian.PutUint32(payload[8:12], numBindings)
	binary.LittleEndian.PutUint32(payload[12:16], bindTableOff)

	cd := payload[cbufTableOff : cbufTableOff+24]
	binary.LittleEndian.PutUint32(cd[0:4], uint32(stringOff))

	bd := payload[bindTableOff : bindTableOff+32]
	binary.LittleEndian.PutUint32(bd[0:4], uint32(stringOff))
	binary.LittleEndian.PutUint32(bd[4:8], uint32(rdef.ClassCBuffer))
	binary.LittleEndian.PutUint32(bd[20:24], cameraSlot)

	copy(payload[stringOff:], name)
	return payload
}

// wrapInContainer builds a single-chunk DXBC blob holding an RDEF chunk with
// the given payload.
func wrapInContainer(payload []byte) []byte {
	const n = 1
	headerAndTable := dxbc.HeaderSize + 4*n
	chunkOff := headerAndTable
	size := chunkOff + 8 + len(payload)

	blob := make([]byte, size)
	copy(blob[0:4], dxbc.Magic[:])
	binary.LittleEndian.PutUint32(blob[24:28], uint32(size))
	binary.LittleEndian.PutUint32(blob[28:32], n)
	binary.LittleEndian.PutUint32(blob[dxbc.HeaderSize:], uint32(chunkOff))
	copy(blob[chunkOff:chunkOff+4], "RDEF")
	binary.LittleEndian.PutUint32(blob[chunkOff+4:], uint32(len(payload)))
	copy(blob[chunkOff+8:], payload)
	return blob
}

func TestDetectNewLayoutNeedsSwap(t *testing.T) {
	blob := wrapInContainer(rdefPayload(3))
	info, err := Detect(blob)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !info.NeedsSwap {
		t.Fatal("expected NeedsSwap == true for camera buffer at slot 3")
	}
	if info.CameraSlot != 3 {
		t.Fatalf("CameraSlot = %d, want 3", info.CameraSlot)
	}
	if info.Reason != "camera buffer at slot 3 (new layout)" {
		t.Fatalf("Reason = %q", info.Reason)
	}
}

func TestDetectLegacyLayoutNoSwap(t *testing.T) {
	blob := wrapInContainer(rdefPayload(2))
	info, err := Detect(blob)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.NeedsSwap {
		t.Fatal("expected NeedsSwap == false for camera buffer at slot 2")
	}
	if info.Reason != "camera buffer at slot 2 (legacy layout)" {
		t.Fatalf("Reason = %q", info.Reason)
	}
}

func TestDetectUnknownSlot(t *testing.T) {
	blob := wrapInContainer(rdefPayload(5))
	info, err := Detect(blob)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.NeedsSwap {
		t.Fatal("expected NeedsSwap == false for an unrecognized slot")
	}
	if info.Reason != "unknown layout" {
		t.Fatalf("Reason = %q", info.Reason)
	}
}

func TestDetectNoRDEFChunk(t *testing.T) {
	// A bare header with a zero chunk count: no RDEF chunk present.
	blob := make([]byte, dxbc.HeaderSize)
	copy(blob[0:4], dxbc.Magic[:])
	binary.LittleEndian.PutUint32(blob[24:28], uint32(len(blob)))

	info, err := Detect(blob)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.CameraSlot != -1 || info.ModelInstanceSlot != -1 {
		t.Fatalf("got CameraSlot=%d ModelInstanceSlot=%d, want -1, -1", info.CameraSlot, info.ModelInstanceSlot)
	}
	if info.Reason != "no RDEF chunk" {
		t.Fatalf("Reason = %q", info.Reason)
	}
}

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

// Package rdef reads the RDEF ("resource definition") chunk of a DXBC
// container: the reflection table listing every resource binding and
// constant-buffer descriptor, plus the string pool their name offsets
// point into.
//
// Each parsed record remembers its absolute offset (relative to the start
// of the whole blob, not the RDEF payload), so the Set* mutators write
// through it directly with encoding/binary without re-deriving the chunk's
// base address. Name offsets are kept as stored in the chunk, relative to
// the RDEF payload, and Name resolves them against it.
package rdef

import (
	"encoding/binary"
	"errors"
)

// headerSize is the fixed 28-byte RDEF sub-header.
const headerSize = 28

// ResourceClass is the D3D_SHADER_INPUT_TYPE discriminant of a resource
// binding. Only the values the patch passes care about are named.
type ResourceClass uint32

const (
	ClassCBuffer     ResourceClass = 0
	ClassTBuffer     ResourceClass = 1
	ClassTexture     ResourceClass = 2
	ClassSampler     ResourceClass = 3
	ClassStructured  ResourceClass = 5
	ClassByteAddress ResourceClass = 7
)

// Binding is one 32-byte resource-binding record.
type Binding struct {
	NameOffset uint32
	Class      ResourceClass
	ReturnType uint32
	Dimension  uint32
	NumSamples uint32
	BindPoint  uint32
	BindCount  uint32
	Flags      uint32

	// recordOffset is this binding's absolute byte offset in the blob.
	recordOffset int
}

// bindingSize is the fixed 32-byte resource-binding record.
const bindingSize = 32

// SetBindPoint rewrites this binding's bind-point field in blob in place
// and updates the in-memory copy so repeated reads stay consistent within
// one pass.
func (b *Binding) SetBindPoint(blob []byte, newSlot uint32) {
	binary.LittleEndian.PutUint32(blob[b.recordOffset+20:], newSlot)
	b.BindPoint = newSlot
}

// CBufferDesc is one 24-byte constant-buffer descriptor.
type CBufferDesc struct {
	NameOffset     uint32
	VariableCount  uint32
	VariableOffset uint32
	Size           uint32
	Flags          uint32
	Type           uint32

	recordOffset int
}

// cbufferDescSize is the fixed 24-byte cbuffer-descriptor record.
const cbufferDescSize = 24

// SetSize rewrites this descriptor's byte-size field in place.
func (d *CBufferDesc) SetSize(blob []byte, newSize uint32) {
	binary.LittleEndian.PutUint32(blob[d.recordOffset+12:], newSize)
	d.Size = newSize
}

// SetVariableCount rewrites this descriptor's variable-count field in place.
func (d *CBufferDesc) SetVariableCount(blob []byte, newCount uint32) {
	binary.LittleEndian.PutUint32(blob[d.recordOffset+4:], newCount)
	d.VariableCount = newCount
}

// RDEF is the parsed reflection table for one shader.
type RDEF struct {
	// payloadOffset/payloadSize bound the RDEF chunk within the blob; name
	// lookups must never read outside this window.
	payloadOffset int
	payloadSize   int

	CBuffers []CBufferDesc
	Bindings []Binding
}

// Parse reads the RDEF chunk payload starting at blob[payloadOffset:payloadOffset+payloadSize].
func Parse(blob []byte, payloadOffset, payloadSize int) (*RDEF, error) {
	if payloadSize < headerSize {
		return nil, errors.New("rdef: payload smaller than fixed header")
	}
	p := blob[payloadOffset : payloadOffset+payloadSize]

	cbufCount := binary.LittleEndian.Uint32(p[0:4])
	cbufOffset := binary.LittleEndian.Uint32(p[4:8])
	bindingCount := binary.LittleEndian.Uint32(p[8:12])
	bindingOffset := binary.LittleEndian.Uint32(p[12:16])

	r := &RDEF{payloadOffset: payloadOffset, payloadSize: payloadSize}

	for i := uint32(0); i < cbufCount; i++ {
		rel := int(cbufOffset) + int(i)*cbufferDescSize
		if rel+cbufferDescSize > payloadSize {
			return nil, errors.New("rdef: cbuffer descriptor table overruns payload")
		}
		d := p[rel : rel+cbufferDescSize]
		r.CBuffers = append(r.CBuffers, CBufferDesc{
			NameOffset:     binary.LittleEndian.Uint32(d[0:4]),
			VariableCount:  binary.LittleEndian.Uint32(d[4:8]),
			VariableOffset: binary.LittleEndian.Uint32(d[8:12]),
			Size:           binary.LittleEndian.Uint32(d[12:16]),
			Flags:          binary.LittleEndian.Uint32(d[16:20]),
			Type:           binary.LittleEndian.Uint32(d[20:24]),
			recordOffset:   payloadOffset + rel,
		})
	}

	for i := uint32(0); i < bindingCount; i++ {
		rel := int(bindingOffset) + int(i)*bindingSize
		if rel+bindingSize > payloadSize {
			return nil, errors.New("rdef: resource binding table overruns payload")
		}
		d := p[rel : rel+bindingSize]
		r.Bindings = append(r.Bindings, Binding{
			NameOffset:   binary.LittleEndian.Uint32(d[0:4]),
			Class:        ResourceClass(binary.LittleEndian.Uint32(d[4:8])),
			ReturnType:   binary.LittleEndian.Uint32(d[8:12]),
			Dimension:    binary.LittleEndian.Uint32(d[12:16]),
			NumSamples:   binary.LittleEndian.Uint32(d[16:20]),
			BindPoint:    binary.LittleEndian.Uint32(d[20:24]),
			BindCount:    binary.LittleEndian.Uint32(d[24:28]),
			Flags:        binary.LittleEndian.Uint32(d[28:32]),
			recordOffset: payloadOffset + rel,
		})
	}

	return r, nil
}

// Name reads a NUL-terminated ASCII string starting at nameOffset, an
// offset relative to the start of the RDEF chunk payload. A name that runs
// past the end of the payload without a NUL is treated as non-matching: it
// returns ok == false rather than risk reading past the chunk.
func (r *RDEF) Name(blob []byte, nameOffset uint32) (string, bool) {
	start := r.payloadOffset + int(nameOffset)
	if nameOffset == 0 || start < r.payloadOffset || start >= r.payloadOffset+r.payloadSize {
		return "", false
	}
	end := r.payloadOffset + r.payloadSize
	for i := start; i < end; i++ {
		if blob[i] == 0 {
			return string(blob[start:i]), true
		}
	}
	return "", false
}

// BindingName is a convenience wrapper combining Name with a binding's
// NameOffset.
func (r *RDEF) BindingName(blob []byte, b Binding) (string, bool) {
	return r.Name(blob, b.NameOffset)
}

// CBufferName is a convenience wrapper combining Name with a cbuffer
// descriptor's NameOffset.
func (r *RDEF) CBufferName(blob []byte, d CBufferDesc) (string, bool) {
	return r.Name(blob, d.NameOffset)
}

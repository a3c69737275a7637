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

// Package dxbc walks a DXBC (DirectX Bytecode) container: a small header
// followed by an array of 32-bit chunk offsets, each pointing at an 8-byte
// fourCC+size sub-header immediately followed by the chunk's payload.
//
// This package only reads structure. It never copies the blob and never
// resizes it; every returned offset indexes directly into the caller's
// byte slice. See the sibling "hash" package for the container's integrity
// hash and "sm5" for the bytecode dialect carried by SHEX/SHDR chunks.
package dxbc

import "encoding/binary"

// HeaderSize is the fixed size, in bytes, of the DXBC header: magic, hash,
// version, total size and chunk count.
const HeaderSize = 32

// Magic is the 4-byte ASCII identifier every DXBC container starts with.
var Magic = [4]byte{'D', 'X', 'B', 'C'}

// chunkSubHeaderSize is the 8-byte fourCC+payload-size prefix on every chunk.
const chunkSubHeaderSize = 8

// FourCC is a 4-byte chunk type tag, e.g. "RDEF" or "SHEX".
type FourCC [4]byte

func (f FourCC) String() string { return string(f[:]) }

// RejectKind classifies why a blob was rejected as structurally invalid.
type RejectKind int

const (
	// RejectBadMagic means the blob does not start with "DXBC".
	RejectBadMagic RejectKind = iota
	// RejectChunkCountOverrun means the chunk-offset table runs past the blob.
	RejectChunkCountOverrun
	// RejectChunkOverrun means a chunk's sub-header or payload runs past the
	// blob's declared total size.
	RejectChunkOverrun
	// RejectTruncated means the blob is smaller than the fixed header.
	RejectTruncated
)

func (k RejectKind) String() string {
	switch k {
	case RejectBadMagic:
		return "bad magic"
	case RejectChunkCountOverrun:
		return "chunk count overrun"
	case RejectChunkOverrun:
		return "chunk overrun"
	case RejectTruncated:
		return "truncated header"
	default:
		return "unknown reject kind"
	}
}

// ContainerError is a structural reject: the driver must not mutate the
// blob or touch the hash when one of these is returned.
type ContainerError struct {
	Kind   RejectKind
	Offset int
	Msg    string
}

func (e *ContainerError) Error() string {
	return "dxbc: invalid container: " + e.Msg
}

// Header is the fixed 32-byte DXBC preamble, decoded in place.
type Header struct {
	Hash       [16]byte
	Version    uint32
	TotalSize  uint32
	ChunkCount uint32
}

// Chunk describes one top-level chunk: its fourCC, and the offset/size of
// its payload (i.e. immediately past the 8-byte sub-header).
type Chunk struct {
	FourCC        FourCC
	SubHeaderOff  int
	PayloadOffset int
	PayloadSize   int
}

// ParseHeader decodes the fixed 32-byte header and validates it against the
// blob's actual length. It does not look at the chunk-offset table.
func ParseHeader(blob []byte) (Header, error) {
	if len(blob) < HeaderSize {
		return Header{}, &ContainerError{RejectTruncated, 0, "blob shorter than DXBC header"}
	}
	if blob[0] != Magic[0] || blob[1] != Magic[1] || blob[2] != Magic[2] || blob[3] != Magic[3] {
		return Header{}, &ContainerError{RejectBadMagic, 0, "missing DXBC magic"}
	}
	h := Header{
		Version:    binary.LittleEndian.Uint32(blob[20:24]),
		TotalSize:  binary.LittleEndian.Uint32(blob[24:28]),
		ChunkCount: binary.LittleEndian.Uint32(blob[28:32]),
	}
	copy(h.Hash[:], blob[4:20])
	if int(h.TotalSize) > len(blob) {
		return Header{}, &ContainerError{RejectTruncated, 24, "declared total size exceeds blob length"}
	}
	return h, nil
}

// Walk enumerates every top-level chunk of blob, calling visit once per
// chunk in offset-table order. It rejects the blob (without calling visit
// at all) if the magic is wrong, the offset table overruns the blob, or any
// individual chunk's sub-header or payload overruns the declared total
// size.
func Walk(blob []byte, visit func(Chunk) error) error {
	h, err := ParseHeader(blob)
	if err != nil {
		return err
	}

	offsetTableEnd := HeaderSize + 4*int(h.ChunkCount)
	if offsetTableEnd > int(h.TotalSize) || offsetTableEnd > len(blob) {
		return &ContainerError{RejectChunkCountOverrun, HeaderSize, "chunk-offset table overruns blob"}
	}

	for i := 0; i < int(h.ChunkCount); i++ {
		offPos := HeaderSize + 4*i
		off := int(binary.LittleEndian.Uint32(blob[offPos : offPos+4]))
		if off < offsetTableEnd || off+chunkSubHeaderSize > int(h.TotalSize) || off+chunkSubHeaderSize > len(blob) {
			return &ContainerError{RejectChunkOverrun, off, "chunk sub-header overruns blob"}
		}

		var fourCC FourCC
		copy(fourCC[:], blob[off:off+4])
		size := int(binary.LittleEndian.Uint32(blob[off+4 : off+8]))
		payloadOff := off + chunkSubHeaderSize
		if size < 0 || payloadOff+size > int(h.TotalSize) || payloadOff+size > len(blob) {
			return &ContainerError{RejectChunkOverrun, off, "chunk payload overruns blob"}
		}

		if err := visit(Chunk{
			FourCC:        fourCC,
			SubHeaderOff:  off,
			PayloadOffset: payloadOff,
			PayloadSize:   size,
		}); err != nil {
			return err
		}
	}
	return nil
}

// FindChunk returns the payload offset and size of the first chunk whose
// fourCC matches want, or ok == false if the blob is well-formed but has no
// such chunk. A structurally invalid blob is reported via err, per Walk.
func FindChunk(blob []byte, want string) (offset, size int, ok bool, err error) {
	var wantFourCC FourCC
	copy(wantFourCC[:], want)

	found := false
	walkErr := Walk(blob, func(c Chunk) error {
		if !found && c.FourCC == wantFourCC {
			offset, size, found = c.PayloadOffset, c.PayloadSize, true
		}
		return nil
	})
	if walkErr != nil {
		return 0, 0, false, walkErr
	}
	return offset, size, found, nil
}

// AllChunks returns every top-level chunk of blob in offset-table order.
func AllChunks(blob []byte) ([]Chunk, error) {
	var chunks []Chunk
	err := Walk(blob, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

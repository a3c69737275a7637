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

// Package msw reads and writes MultiShaderWrapper archives: a small
// container that bundles one JSON metadata record with the N per-permutation
// FXC blobs it describes.
//
// The framing is a flat record table of (offset, size) pairs behind a magic
// and checksummed header, the same shape RAC (github.com/google/wuffs,
// lib/rac) uses for its chunk index, with RAC's multi-level node/arity tree
// dropped: an MSW archive holds at most a few hundred permutations, never
// the gigabyte-scale streams RAC's tree exists to seek into, so one flat
// table is enough.
package msw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// magic identifies an MSW archive. Its trailing '1' is a fixed part of the
// tag; the format version Parse checks is the separate header field after
// it.
var magic = [4]byte{'M', 'S', 'W', '1'}

const (
	// headerSize is magic(4) + version(4) + fileType(4) + entryCount(4) +
	// metadataOffset(4) + metadataSize(4) + checksum(4).
	headerSize = 28

	// recordSize is offset(4) + size(4) per entry.
	recordSize = 8
)

// FileType distinguishes the two archive shapes the original tool handles.
type FileType uint32

const (
	// FileTypeShader bundles one compiled shader's permutation entries.
	FileTypeShader FileType = 0
	// FileTypeShaderSet bundles the paired pixel/vertex shader set record;
	// it carries no blob entries of its own, only the metadata record.
	FileTypeShaderSet FileType = 1
)

var (
	errTruncated  = errors.New("msw: archive shorter than its header")
	errBadMagic   = errors.New("msw: missing MSW1 magic")
	errBadVersion = errors.New("msw: unsupported archive version")
	errChecksum   = errors.New("msw: header checksum mismatch")
	errOverrun    = errors.New("msw: record table or payload overruns archive")
)

// version is the only archive layout this package understands.
const version = 1

// Entry is one bundled shader permutation. A nil Blob means this slot owns
// no bytes of its own in the container; whether that is because it aliases
// another entry's bytes is recorded in the metadata record's entryRefs
// table (see the metadata package), not in the container framing.
type Entry struct {
	Blob []byte
}

// Archive is the parsed, in-memory form of an MSW file.
type Archive struct {
	Type     FileType
	Metadata []byte // raw JSON, see the metadata package for its shape
	Entries  []Entry
}

// Parse decodes blob as an MSW archive. It does not mutate blob; Entry.Blob
// slices alias into it.
func Parse(blob []byte) (*Archive, error) {
	if len(blob) < headerSize {
		return nil, errTruncated
	}
	if blob[0] != magic[0] || blob[1] != magic[1] || blob[2] != magic[2] || blob[3] != magic[3] {
		return nil, errBadMagic
	}
	ver := binary.LittleEndian.Uint32(blob[4:8])
	if ver != version {
		return nil, errBadVersion
	}
	fileType := FileType(binary.LittleEndian.Uint32(blob[8:12]))
	entryCount := binary.LittleEndian.Uint32(blob[12:16])
	metaOff := binary.LittleEndian.Uint32(blob[16:20])
	metaSize := binary.LittleEndian.Uint32(blob[20:24])
	wantChecksum := binary.LittleEndian.Uint32(blob[24:28])

	if gotChecksum := crc32.ChecksumIEEE(blob[:24]); gotChecksum != wantChecksum {
		return nil, errChecksum
	}

	tableEnd := headerSize + int(entryCount)*recordSize
	if tableEnd < headerSize || tableEnd > len(blob) {
		return nil, errOverrun
	}
	if int(metaOff)+int(metaSize) > len(blob) || int(metaOff) < tableEnd {
		return nil, errOverrun
	}

	a := &Archive{
		Type:     fileType,
		Metadata: blob[metaOff : metaOff+metaSize],
		Entries:  make([]Entry, entryCount),
	}
	for i := uint32(0); i < entryCount; i++ {
		rec := blob[headerSize+int(i)*recordSize:]
		off := binary.LittleEndian.Uint32(rec[0:4])
		size := binary.LittleEndian.Uint32(rec[4:8])
		if size == 0 {
			a.Entries[i] = Entry{}
			continue
		}
		if int(off)+int(size) > len(blob) || int(off) < tableEnd {
			return nil, fmt.Errorf("msw: entry %d: %w", i, errOverrun)
		}
		a.Entries[i] = Entry{Blob: blob[off : off+size]}
	}
	return a, nil
}

// Build serializes an archive to its on-disk form.
func Build(a *Archive) ([]byte, error) {
	if uint64(len(a.Entries)) >= 1<<32 {
		return nil, errors.New("msw: too many entries")
	}

	tableEnd := headerSize + len(a.Entries)*recordSize
	dataOff := tableEnd

	offsets := make([]uint32, len(a.Entries))
	sizes := make([]uint32, len(a.Entries))
	for i, e := range a.Entries {
		if len(e.Blob) == 0 {
			continue
		}
		offsets[i] = uint32(dataOff)
		sizes[i] = uint32(len(e.Blob))
		dataOff += len(e.Blob)
	}
	metaOff := dataOff
	dataOff += len(a.Metadata)

	out := make([]byte, dataOff)
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint32(out[4:8], version)
	binary.LittleEndian.PutUint32(out[8:12], uint32(a.Type))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(a.Entries)))
	binary.LittleEndian.PutUint32(out[16:20], uint32(metaOff))
	binary.LittleEndian.PutUint32(out[20:24], uint32(len(a.Metadata)))
	binary.LittleEndian.PutUint32(out[24:28], crc32.ChecksumIEEE(out[:24]))

	for i, e := range a.Entries {
		rec := out[headerSize+i*recordSize:]
		binary.LittleEndian.PutUint32(rec[0:4], offsets[i])
		binary.LittleEndian.PutUint32(rec[4:8], sizes[i])
		if len(e.Blob) > 0 {
			copy(out[offsets[i]:offsets[i]+sizes[i]], e.Blob)
		}
	}
	copy(out[metaOff:], a.Metadata)

	return out, nil
}

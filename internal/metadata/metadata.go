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

// Package metadata decodes and transforms the JSON record an MSW archive
// carries alongside its FXC blobs, and upgrades/downgrades it between the
// schema versions the engine's MSW revisions have shipped: v11/v12/v14 for
// shaderset records, v12/v15 for shader records.
//
// Field names and shapes follow the original MSWUnPacker tool's rapidjson
// writer/reader (type, shaderType, name, features, entryFlags, entryRefs for
// shader records; pixelShaderGuid, vertexShaderGuid, numPixelShaderTextures,
// numVertexShaderTextures, numSamplers, firstResourceBindPoint, numResources
// for shaderset records). That tool's on-disk JSON is the v12 shader schema
// and a v12-equivalent shaderset schema; the v11, v14 and v15 schemas are
// reconstructed around it, with the decisions recorded in DESIGN.md.
package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FileType mirrors the original tool's MultiShaderWrapperFileType_e.
type FileType int

const (
	FileTypeShader    FileType = 0
	FileTypeShaderSet FileType = 1
)

// ShaderStage mirrors MultiShaderWrapperShaderType_e. The original source
// never enumerates its members; Pixel/Vertex is the only pairing the rest
// of this repository's domain (pixel and vertex shader patching) supports.
type ShaderStage int

const (
	ShaderStagePixel  ShaderStage = 0
	ShaderStageVertex ShaderStage = 1
)

// ShaderV12 is the shader record schema the original MSWUnPacker.cpp reads
// and writes verbatim.
type ShaderV12 struct {
	Type       FileType       `json:"type"`
	ShaderType ShaderStage    `json:"shaderType"`
	Name       string         `json:"name"`
	Features   [7]int32       `json:"features"`
	EntryFlags [][2]uint64    `json:"entryFlags"`
	EntryRefs  map[string]int `json:"entryRefs,omitempty"`
}

// ShaderV15 adds a stable identifier per permutation entry so a rebuild can
// recognize "the same" permutation even after entries are reordered or
// inserted, instead of relying on its position in EntryFlags.
type ShaderV15 struct {
	Type       FileType       `json:"type"`
	ShaderType ShaderStage    `json:"shaderType"`
	Name       string         `json:"name"`
	Features   [7]int32       `json:"features"`
	EntryFlags [][2]uint64    `json:"entryFlags"`
	EntryRefs  map[string]int `json:"entryRefs,omitempty"`
	EntryIDs   []string       `json:"entryIds"`
}

// UnmarshalShaderV12 decodes a v12 shader record.
func UnmarshalShaderV12(blob []byte) (ShaderV12, error) {
	var s ShaderV12
	if err := json.Unmarshal(blob, &s); err != nil {
		return ShaderV12{}, fmt.Errorf("metadata: decode shader v12: %w", err)
	}
	return s, nil
}

// MarshalShaderV12 encodes s as v12 JSON, matching the original tool's
// PrettyWriter key order.
func MarshalShaderV12(s ShaderV12) ([]byte, error) {
	return json.MarshalIndent(s, "", "    ")
}

// UpgradeShaderV12ToV15 assigns a fresh stable ID to every entry that does
// not already have one. Entries that are aliases (present in EntryRefs) get
// the same ID as the entry they reference, so the alias survives the
// upgrade as an identity rather than an index.
func UpgradeShaderV12ToV15(s ShaderV12) ShaderV15 {
	ids := make([]string, len(s.EntryFlags))
	assigned := make(map[int]string, len(s.EntryFlags))
	for i := range s.EntryFlags {
		if ref, isAlias := s.EntryRefs[fmt.Sprint(i)]; isAlias {
			if id, ok := assigned[ref]; ok {
				ids[i] = id
				continue
			}
		}
		id := uuid.New().String()
		ids[i] = id
		assigned[i] = id
	}
	return ShaderV15{
		Type:       s.Type,
		ShaderType: s.ShaderType,
		Name:       s.Name,
		Features:   s.Features,
		EntryFlags: s.EntryFlags,
		EntryRefs:  s.EntryRefs,
		EntryIDs:   ids,
	}
}

// DowngradeShaderV15ToV12 drops the stable-ID list a v12 reader doesn't
// understand. The downgrade is lossy by construction: re-upgrading the
// result produces new IDs, not the originals.
func DowngradeShaderV15ToV12(s ShaderV15) ShaderV12 {
	return ShaderV12{
		Type:       s.Type,
		ShaderType: s.ShaderType,
		Name:       s.Name,
		Features:   s.Features,
		EntryFlags: s.EntryFlags,
		EntryRefs:  s.EntryRefs,
	}
}

// ShaderSetV11 is the oldest shaderset schema this package reconstructs:
// the two referenced shaders are plain registry indices rather than GUIDs,
// and a permutation is identified by its bare position within the owning
// shader's entry list.
type ShaderSetV11 struct {
	Type                    FileType `json:"type"`
	PixelShaderIndex        uint32   `json:"pixelShaderIndex"`
	VertexShaderIndex       uint32   `json:"vertexShaderIndex"`
	NumPixelShaderTextures  uint32   `json:"numPixelShaderTextures"`
	NumVertexShaderTextures uint32   `json:"numVertexShaderTextures"`
	NumSamplers             uint32   `json:"numSamplers"`
	FirstResourceBindPoint  uint32   `json:"firstResourceBindPoint"`
	NumResources            uint32   `json:"numResources"`
	PermutationIndex        uint32   `json:"permutationIndex"`
}

// ShaderSetV12 is the schema MSWUnPacker.cpp's pack()/unpack() read and
// write: the two shader references are resolved to stable 64-bit GUIDs, but
// a permutation is still just the bare index v11 used.
type ShaderSetV12 struct {
	Type                    FileType `json:"type"`
	PixelShaderGuid         uint64   `json:"pixelShaderGuid"`
	VertexShaderGuid        uint64   `json:"vertexShaderGuid"`
	NumPixelShaderTextures  uint32   `json:"numPixelShaderTextures"`
	NumVertexShaderTextures uint32   `json:"numVertexShaderTextures"`
	NumSamplers             uint32   `json:"numSamplers"`
	FirstResourceBindPoint  uint32   `json:"firstResourceBindPoint"`
	NumResources            uint32   `json:"numResources"`
	PermutationIndex        uint32   `json:"permutationIndex"`
}

// ShaderSetV14 promotes PermutationIndex to a stable string identifier, so
// that a shaderset keeps the same identity across a rebuild that reorders
// or renumbers its owning shader's permutation table.
type ShaderSetV14 struct {
	Type                    FileType `json:"type"`
	PixelShaderGuid         uint64   `json:"pixelShaderGuid"`
	VertexShaderGuid        uint64   `json:"vertexShaderGuid"`
	NumPixelShaderTextures  uint32   `json:"numPixelShaderTextures"`
	NumVertexShaderTextures uint32   `json:"numVertexShaderTextures"`
	NumSamplers             uint32   `json:"numSamplers"`
	FirstResourceBindPoint  uint32   `json:"firstResourceBindPoint"`
	NumResources            uint32   `json:"numResources"`
	PermutationID           string   `json:"permutationId"`
}

// UnmarshalShaderSetV12 decodes a v12 shaderset record.
func UnmarshalShaderSetV12(blob []byte) (ShaderSetV12, error) {
	var s ShaderSetV12
	if err := json.Unmarshal(blob, &s); err != nil {
		return ShaderSetV12{}, fmt.Errorf("metadata: decode shaderset v12: %w", err)
	}
	return s, nil
}

// MarshalShaderSetV12 encodes s as v12 JSON.
func MarshalShaderSetV12(s ShaderSetV12) ([]byte, error) {
	return json.MarshalIndent(s, "", "    ")
}

// GUIDResolver looks up the 64-bit GUID a v11 registry index refers to.
// Upgrading v11 to v12 needs one because the index alone does not carry
// enough information to derive a GUID.
type GUIDResolver func(index uint32) (uint64, error)

// UpgradeShaderSetV11ToV12 resolves both shader references to GUIDs via
// resolve and carries every other field forward unchanged.
func UpgradeShaderSetV11ToV12(s ShaderSetV11, resolve GUIDResolver) (ShaderSetV12, error) {
	pixelGUID, err := resolve(s.PixelShaderIndex)
	if err != nil {
		return ShaderSetV12{}, fmt.Errorf("metadata: resolve pixel shader index %d: %w", s.PixelShaderIndex, err)
	}
	vertexGUID, err := resolve(s.VertexShaderIndex)
	if err != nil {
		return ShaderSetV12{}, fmt.Errorf("metadata: resolve vertex shader index %d: %w", s.VertexShaderIndex, err)
	}
	return ShaderSetV12{
		Type:                    s.Type,
		PixelShaderGuid:         pixelGUID,
		VertexShaderGuid:        vertexGUID,
		NumPixelShaderTextures:  s.NumPixelShaderTextures,
		NumVertexShaderTextures: s.NumVertexShaderTextures,
		NumSamplers:             s.NumSamplers,
		FirstResourceBindPoint:  s.FirstResourceBindPoint,
		NumResources:            s.NumResources,
		PermutationIndex:        s.PermutationIndex,
	}, nil
}

// UpgradeShaderSetV12ToV14 promotes PermutationIndex to a freshly generated
// stable ID.
func UpgradeShaderSetV12ToV14(s ShaderSetV12) ShaderSetV14 {
	return ShaderSetV14{
		Type:                    s.Type,
		PixelShaderGuid:         s.PixelShaderGuid,
		VertexShaderGuid:        s.VertexShaderGuid,
		NumPixelShaderTextures:  s.NumPixelShaderTextures,
		NumVertexShaderTextures: s.NumVertexShaderTextures,
		NumSamplers:             s.NumSamplers,
		FirstResourceBindPoint:  s.FirstResourceBindPoint,
		NumResources:            s.NumResources,
		PermutationID:           uuid.New().String(),
	}
}

// DowngradeShaderSetV14ToV12 drops the stable ID, recovering permutationIndex
// from index, the position this shaderset occupies among its shader's
// entries — the only information a v12 reader has to identify it by.
func DowngradeShaderSetV14ToV12(s ShaderSetV14, index uint32) ShaderSetV12 {
	return ShaderSetV12{
		Type:                    s.Type,
		PixelShaderGuid:         s.PixelShaderGuid,
		VertexShaderGuid:        s.VertexShaderGuid,
		NumPixelShaderTextures:  s.NumPixelShaderTextures,
		NumVertexShaderTextures: s.NumVertexShaderTextures,
		NumSamplers:             s.NumSamplers,
		FirstResourceBindPoint:  s.FirstResourceBindPoint,
		NumResources:            s.NumResources,
		PermutationIndex:        index,
	}
}

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
	"github.com/r5reborn/dxbcpatch/internal/dxbc"
	"github.com/r5reborn/dxbcpatch/internal/rdef"
)

// findRDEF locates and parses the blob's RDEF chunk. It returns a nil
// *rdef.RDEF (not an error) when the blob has no such chunk, mirroring
// cblayout.Detect's treatment of a missing RDEF as a non-fatal condition.
func findRDEF(blob []byte) (*rdef.RDEF, error) {
	off, size, ok, err := dxbc.FindChunk(blob, "RDEF")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return rdef.Parse(blob, off, size)
}

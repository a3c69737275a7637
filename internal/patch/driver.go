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

// Package patch implements the DXBC patching engine: the ordered set of
// rewriters that convert a newer-revision compiled shader's constant-buffer
// layout, resource slots, and a handful of specific bytecode sequences into
// the shape an older engine revision expects, in place.
//
// Patch is safe to call concurrently from many goroutines as long as each
// call operates on a disjoint blob; nothing in this package retains
// process-wide state or a reference to a caller's buffer past the call that
// received it.
package patch

import (
	"github.com/r5reborn/dxbcpatch/internal/cblayout"
	"github.com/r5reborn/dxbcpatch/internal/hash"
)

// Patch runs every pass over blob in the fixed order the driver requires,
// mutating it in place, and returns the aggregated report. A structural
// reject (bad magic, an overrunning chunk table, and the like) is returned
// as an error without any mutation, including the hash.
func Patch(blob []byte, opts Options) (PatchReport, error) {
	var report PatchReport

	info, err := cblayout.Detect(blob)
	if err != nil {
		return report, err
	}

	if info.NeedsSwap {
		r, err := sunData(blob)
		if err != nil {
			return report, err
		}
		report.merge(r)
	}

	r, err := uberFlag(blob, 2)
	if err != nil {
		return report, err
	}
	report.merge(r)

	r, err = uberFlag(blob, 1)
	if err != nil {
		return report, err
	}
	report.merge(r)

	r, err = srvRemap(blob, opts)
	if err != nil {
		return report, err
	}
	report.merge(r)

	r, err = clusteredLighting(blob)
	if err != nil {
		return report, err
	}
	report.merge(r)

	if opts.EnableShadowBlend {
		r, err := shadowBlend(blob)
		if err != nil {
			return report, err
		}
		report.merge(r)
	}

	if info.NeedsSwap {
		r, err := cbSwap(blob)
		if err != nil {
			return report, err
		}
		report.merge(r)
	}

	if !info.NeedsSwap {
		report.note("layout unknown or legacy: swap and sun-data passes skipped")
	}

	if report.Mutated() {
		hash.Update(blob)
	}

	return report, nil
}

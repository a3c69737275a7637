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

package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/r5reborn/dxbcpatch/internal/patch"
)

// Result is the outcome of patching a single FXC file.
type Result struct {
	Path   string
	Report patch.PatchReport
	Err    error
}

// RunDirectory patches every ".fxc" file directly inside dir, one goroutine
// per file bounded by concurrency, and writes each mutated blob back in
// place. patch.Patch holds no state across blobs, so concurrent calls on
// disjoint files are safe.
//
// A per-file error is recorded in that file's Result rather than aborting
// the run: one malformed blob in a directory of hundreds should not stop
// the rest from being patched.
func RunDirectory(ctx context.Context, dir DirectoryConfig, concurrency int) ([]Result, error) {
	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		return nil, fmt.Errorf("batch: read directory %s: %w", dir.Path, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".fxc" {
			continue
		}
		paths = append(paths, filepath.Join(dir.Path, e.Name()))
	}

	results := make([]Result, len(paths))
	opts := dir.Options()

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	var mu sync.Mutex // guards nothing shared beyond results[i], kept for clarity under -race
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			r := patchFile(p, opts)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func patchFile(path string, opts patch.Options) Result {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path, Err: fmt.Errorf("batch: read %s: %w", path, err)}
	}

	report, err := patch.Patch(blob, opts)
	if err != nil {
		return Result{Path: path, Err: fmt.Errorf("batch: patch %s: %w", path, err)}
	}
	if !report.Mutated() {
		return Result{Path: path, Report: report}
	}

	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return Result{Path: path, Err: fmt.Errorf("batch: write %s: %w", path, err)}
	}
	return Result{Path: path, Report: report}
}

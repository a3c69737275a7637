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

// ----------------

/*
dxbcpatch rewrites compiled DXBC shaders bundled in a MultiShaderWrapper
(MSW) archive from the new engine revision's constant-buffer/resource
layout to the legacy revision's, and repairs the container's integrity
hash.

Usage:

	dxbcpatch patch [flags] input.msw
	dxbcpatch verify input.msw
	dxbcpatch batch [flags] config.yaml

"patch" rewrites every FXC entry in the archive and writes the result to
-o/--output (default: input.msw.patched). "verify" is read-only: it reports which
entries already satisfy the integrity hash without mutating anything.
"batch" drives internal/batch over a YAML config file describing one or
more directories of loose ".fxc" files, for the rex-rsx import pipeline
this package's own patch.Patch is not responsible for.

Flags for patch:

	--legacy-srv
	    apply the built-in name-keyed SRV remap rules (g_modelInst,
	    g_boneWeightsExtra)
	--shadow-blend
	    enable the shadow-blend multiply removal pass (off upstream; see
	    DESIGN.md)
	--srv-remap
	    "old:new" slot remap, repeatable
	-o, --output
	    output path (default: input path + ".patched")
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/r5reborn/dxbcpatch/internal/batch"
	"github.com/r5reborn/dxbcpatch/internal/dxbc"
	"github.com/r5reborn/dxbcpatch/internal/hash"
	"github.com/r5reborn/dxbcpatch/internal/msw"
	"github.com/r5reborn/dxbcpatch/internal/patch"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

func main() {
	if err := main1(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func main1() error {
	if len(os.Args) < 2 {
		return errors.New("usage: dxbcpatch <patch|verify|batch> [flags] <file>")
	}
	verb, args := os.Args[1], os.Args[2:]
	switch verb {
	case "patch":
		return runPatch(args)
	case "verify":
		return runVerify(args)
	case "batch":
		return runBatch(args)
	default:
		return fmt.Errorf("unknown verb %q; want patch, verify, or batch", verb)
	}
}

func runPatch(args []string) error {
	fs := pflag.NewFlagSet("patch", pflag.ContinueOnError)
	legacySRV := fs.Bool("legacy-srv", true, "apply the built-in name-keyed SRV remap rules")
	shadowBlend := fs.Bool("shadow-blend", false, "enable the shadow-blend multiply removal pass")
	output := fs.StringP("output", "o", "", "output path (default: input path + \".patched\")")
	remapFlags := fs.StringSlice("srv-remap", nil, "additional \"old:new\" slot remap, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("patch: expected exactly one input file, got %d", fs.NArg())
	}
	inPath := fs.Arg(0)
	outPath := *output
	if outPath == "" {
		outPath = inPath + ".patched"
	}

	remaps, err := parseSRVRemaps(*remapFlags)
	if err != nil {
		return err
	}
	opts := patch.Options{
		LegacySRV:         *legacySRV,
		EnableShadowBlend: *shadowBlend,
		CustomSRVRemaps:   remaps,
	}

	raw, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("dxbcpatch: read %s: %w", inPath, err)
	}
	archive, err := msw.Parse(raw)
	if err != nil {
		return fmt.Errorf("dxbcpatch: parse %s: %w", inPath, err)
	}

	for i := range archive.Entries {
		blob := archive.Entries[i].Blob
		if len(blob) == 0 {
			continue
		}
		report, err := patch.Patch(blob, opts)
		if err != nil {
			logPatchReject(inPath, i, err)
			continue
		}
		logger.Info("patched entry",
			"file", inPath, "entry", i,
			"bytecode_mutations", report.BytecodeMutations,
			"rdef_mutations", report.RDEFMutations,
			"srv_mutations", report.SRVMutations,
		)
	}

	out, err := msw.Build(archive)
	if err != nil {
		return fmt.Errorf("dxbcpatch: rebuild %s: %w", inPath, err)
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("dxbcpatch: write %s: %w", outPath, err)
	}
	logger.Info("wrote patched archive", "path", outPath, "entries", len(archive.Entries))
	return nil
}

func runVerify(args []string) error {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("verify: expected exactly one input file, got %d", fs.NArg())
	}
	inPath := fs.Arg(0)

	raw, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("dxbcpatch: read %s: %w", inPath, err)
	}
	archive, err := msw.Parse(raw)
	if err != nil {
		return fmt.Errorf("dxbcpatch: parse %s: %w", inPath, err)
	}

	bad := 0
	for i, e := range archive.Entries {
		if len(e.Blob) == 0 {
			continue
		}
		if _, err := dxbc.ParseHeader(e.Blob); err != nil {
			logger.Warn("structurally invalid entry", "file", inPath, "entry", i, "err", err)
			bad++
			continue
		}
		ok := hash.Verify(e.Blob)
		if !ok {
			bad++
		}
		logger.Info("verified entry", "file", inPath, "entry", i, "hash_ok", ok)
	}
	if bad > 0 {
		return fmt.Errorf("dxbcpatch: %d of %d entries failed verification", bad, len(archive.Entries))
	}
	return nil
}

func runBatch(args []string) error {
	fs := pflag.NewFlagSet("batch", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("batch: expected exactly one config file, got %d", fs.NArg())
	}

	cfg, err := batch.LoadConfig(fs.Arg(0))
	if err != nil {
		return err
	}

	for _, dir := range cfg.Directories {
		results, err := batch.RunDirectory(context.Background(), dir, cfg.Concurrency)
		if err != nil {
			return fmt.Errorf("dxbcpatch: batch %s: %w", dir.Path, err)
		}
		for _, r := range results {
			if r.Err != nil {
				logger.Error("batch entry failed", "path", r.Path, "err", r.Err)
				continue
			}
			logger.Info("batch entry patched",
				"path", r.Path,
				"bytecode_mutations", r.Report.BytecodeMutations,
				"rdef_mutations", r.Report.RDEFMutations,
				"srv_mutations", r.Report.SRVMutations,
			)
		}
	}
	return nil
}

func logPatchReject(path string, entry int, err error) {
	if cerr, ok := err.(*dxbc.ContainerError); ok {
		logger.Warn("structural reject, entry left unmodified",
			"file", path, "entry", entry, "kind", cerr.Kind, "offset", cerr.Offset)
		return
	}
	logger.Warn("patch error, entry left unmodified", "file", path, "entry", entry, "err", err)
}

// parseSRVRemaps parses a list of "old:new" strings into patch.SRVRemap
// values.
func parseSRVRemaps(raw []string) ([]patch.SRVRemap, error) {
	remaps := make([]patch.SRVRemap, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("dxbcpatch: bad -srv-remap %q; want \"old:new\"", s)
		}
		old, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("dxbcpatch: bad -srv-remap %q: %w", s, err)
		}
		new_, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("dxbcpatch: bad -srv-remap %q: %w", s, err)
		}
		remaps = append(remaps, patch.SRVRemap{OldSlot: uint32(old), NewSlot: uint32(new_)})
	}
	return remaps, nil
}

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

// Package batch drives the patch passes over the FXC blobs directly inside
// one or more directories (subdirectories are not descended into),
// concurrently, with per-directory overrides read from a YAML config file.
package batch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/r5reborn/dxbcpatch/internal/patch"
)

// SRVRemapConfig is one srv_remaps entry from the config file.
type SRVRemapConfig struct {
	From uint32 `yaml:"from"`
	To   uint32 `yaml:"to"`
}

// DirectoryConfig is one directory's patching policy.
type DirectoryConfig struct {
	Path              string           `yaml:"path"`
	LegacySRV         bool             `yaml:"legacy_srv"`
	EnableShadowBlend bool             `yaml:"enable_shadow_blend"`
	SRVRemaps         []SRVRemapConfig `yaml:"srv_remaps"`
}

// Config is the top-level batch config file shape.
type Config struct {
	Concurrency int               `yaml:"concurrency"`
	Directories []DirectoryConfig `yaml:"directories"`
}

// Options converts a directory's config into patch.Options.
func (d DirectoryConfig) Options() patch.Options {
	remaps := make([]patch.SRVRemap, len(d.SRVRemaps))
	for i, r := range d.SRVRemaps {
		remaps[i] = patch.SRVRemap{OldSlot: r.From, NewSlot: r.To}
	}
	return patch.Options{
		LegacySRV:         d.LegacySRV,
		EnableShadowBlend: d.EnableShadowBlend,
		CustomSRVRemaps:   remaps,
	}
}

// LoadConfig reads and parses a batch config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("batch: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("batch: parse config %s: %w", path, err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return cfg, nil
}

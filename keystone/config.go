package keystone

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
)

// EngineConfig is the plain bootstrap configuration for an Environment,
// loaded from a JSON file the embedding application owns — the same plain
// struct + encoding/json pattern the config tooling in this codebase's
// lineage uses, with no config framework in between.
type EngineConfig struct {
	// AssetRoot is the physical directory mounted under the "assets://"
	// alias.
	AssetRoot string `json:"asset_root"`
	// ScriptRoot is the physical directory mounted under the "scripts://"
	// alias and searched for required modules.
	ScriptRoot string `json:"script_root"`
	// EntryScript is a scripts:// virtual path executed once the
	// environment is built.
	EntryScript string `json:"entry_script"`
	// MinScriptAPIVersion is the floor CheckScriptAPIVersion compares a
	// declared script API version against. The Environment does not call
	// CheckScriptAPIVersion when it loads scripts or assets.
	MinScriptAPIVersion string `json:"min_script_api_version"`
	// HotReload enables the file watch on the entry script and on modules
	// loaded by the module searcher. The asset manager watches loaded asset
	// files whether or not it is set. Disabled in a shipped build.
	HotReload bool `json:"hot_reload"`
	// JobWorkers is decoded from the config file but not passed to the job
	// manager: New always starts the manager's default worker count
	// (cores-1, at least one).
	JobWorkers int `json:"job_workers"`
	// FrameArenaSize sizes the memory manager's per-frame linear arena, in
	// bytes.
	FrameArenaSize uint64 `json:"frame_arena_size"`
}

// DefaultEngineConfig returns the configuration a freshly scaffolded
// embedding application starts from.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AssetRoot:           "assets",
		ScriptRoot:          "scripts",
		EntryScript:         "scripts://main.lua",
		MinScriptAPIVersion: "1.0.0",
		HotReload:           true,
		FrameArenaSize:      4 << 20,
	}
}

// LoadEngineConfig reads and decodes path into an EngineConfig.
func LoadEngineConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("keystone: read config: %w", err)
	}

	cfg := DefaultEngineConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("keystone: parse config: %w", err)
	}
	return cfg, nil
}

// minAPIVersion parses cfg's floor version, defaulting to 0.0.0 (no gate)
// if unset or malformed.
func (cfg EngineConfig) minAPIVersion() *semver.Version {
	if cfg.MinScriptAPIVersion == "" {
		return semver.MustParse("0.0.0")
	}
	v, err := semver.NewVersion(cfg.MinScriptAPIVersion)
	if err != nil {
		return semver.MustParse("0.0.0")
	}
	return v
}

// CheckScriptAPIVersion reports whether declared (a module or asset's
// self-reported API version string) satisfies cfg's MinScriptAPIVersion
// floor. A malformed declared version fails the check.
func (cfg EngineConfig) CheckScriptAPIVersion(declared string) error {
	dv, err := semver.NewVersion(declared)
	if err != nil {
		return fmt.Errorf("keystone: malformed script API version %q: %w", declared, err)
	}
	if dv.LessThan(cfg.minAPIVersion()) {
		return fmt.Errorf("keystone: script API version %s below required %s", dv, cfg.minAPIVersion())
	}
	return nil
}

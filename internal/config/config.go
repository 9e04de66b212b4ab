// Package config loads the engine's tuning knobs from an optional TOML
// file, falling back to built-in defaults when absent.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Tuning holds every numeric constant the engine exposes an override for.
// Fields left zero in the TOML file are overlaid onto Default() rather
// than left at zero, so a partial config file only overrides what it names.
type Tuning struct {
	GC struct {
		InitialThresholdBytes int64   `toml:"initial_threshold_bytes"`
		GrowthFactor          float64 `toml:"growth_factor"`
	} `toml:"gc"`
	VM struct {
		StackSlots  int `toml:"stack_slots"`
		FrameSlots  int `toml:"frame_slots"`
		AwaitPollMS int `toml:"await_poll_ms"`
	} `toml:"vm"`
}

// Default returns the engine's built-in tuning, used when no config file
// is present and as the base a loaded file's values are overlaid onto.
func Default() Tuning {
	var t Tuning
	t.GC.InitialThresholdBytes = 1 << 20
	t.GC.GrowthFactor = 2.0
	t.VM.StackSlots = 4096
	t.VM.FrameSlots = 256
	t.VM.AwaitPollMS = 1
	return t
}

// Load reads path (typically "esl.toml" in the working directory) and
// overlays it onto Default(). A missing file is not an error: it returns
// Default() unchanged.
func Load(path string) (Tuning, error) {
	t := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return t, nil
	}
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

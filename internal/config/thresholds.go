// Package config implements the reloadable subset of the channel
// pipeline's tuning knobs: the loudness and silence-classification
// thresholds operators adjust most often, loaded from a YAML file and
// watched for changes so that Holder.Get returns the latest valid edit.
// The serve command reads Get once at startup to build the pipeline
// configuration it hands to the processor, deleter and pipeline-run
// handlers; a later reload does not change that configuration until the
// receiver restarts.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"audioreceiver/internal/channelpipeline"
)

// Thresholds is the file-backed slice of channelpipeline.Config an operator
// can retune live. Everything else in channelpipeline.Config (concurrency,
// encode quality, object-store prefixes) stays fixed for the process
// lifetime and is not part of this file.
type Thresholds struct {
	QuietThresholdDB    float64 `yaml:"quietThresholdDB"`
	SilenceThresholdDB  float64 `yaml:"silenceThresholdDB"`
	NormalizeEnabled    bool    `yaml:"normalizeEnabled"`
	MinGainLU           float64 `yaml:"minGainLU"`
	HighGainThresholdDB float64 `yaml:"highGainThresholdDB"`
	TargetLUFS          float64 `yaml:"targetLUFS"`
	TargetTruePeakDB    float64 `yaml:"targetTruePeakDB"`
	TargetLRA           float64 `yaml:"targetLRA"`
}

// DefaultThresholds mirrors channelpipeline.DefaultConfig's threshold
// fields, so a receiver started without a thresholds file behaves exactly
// as it did before this package existed.
func DefaultThresholds() Thresholds {
	d := channelpipeline.DefaultConfig()
	return Thresholds{
		QuietThresholdDB:    d.QuietThresholdDB,
		SilenceThresholdDB:  d.SilenceThresholdDB,
		NormalizeEnabled:    d.NormalizeEnabled,
		MinGainLU:           d.MinGainLU,
		HighGainThresholdDB: d.HighGainThresholdDB,
		TargetLUFS:          d.TargetLUFS,
		TargetTruePeakDB:    d.TargetTruePeakDB,
		TargetLRA:           d.TargetLRA,
	}
}

// Apply overlays t onto base, returning a channelpipeline.Config with every
// other field left untouched.
func (t Thresholds) Apply(base channelpipeline.Config) channelpipeline.Config {
	base.QuietThresholdDB = t.QuietThresholdDB
	base.SilenceThresholdDB = t.SilenceThresholdDB
	base.NormalizeEnabled = t.NormalizeEnabled
	base.MinGainLU = t.MinGainLU
	base.HighGainThresholdDB = t.HighGainThresholdDB
	base.TargetLUFS = t.TargetLUFS
	base.TargetTruePeakDB = t.TargetTruePeakDB
	base.TargetLRA = t.TargetLRA
	return base
}

// Validate rejects threshold values that would make the pipeline behave
// nonsensically rather than merely aggressively.
func Validate(t Thresholds) error {
	if t.SilenceThresholdDB > t.QuietThresholdDB {
		return fmt.Errorf("silenceThresholdDB (%.1f) must not exceed quietThresholdDB (%.1f)", t.SilenceThresholdDB, t.QuietThresholdDB)
	}
	if t.TargetLUFS > 0 {
		return fmt.Errorf("targetLUFS must be negative, got %.1f", t.TargetLUFS)
	}
	if t.TargetTruePeakDB > 0 {
		return fmt.Errorf("targetTruePeakDB must be negative, got %.1f", t.TargetTruePeakDB)
	}
	if t.TargetLRA <= 0 {
		return fmt.Errorf("targetLRA must be positive, got %.1f", t.TargetLRA)
	}
	if t.MinGainLU < 0 {
		return fmt.Errorf("minGainLU must not be negative, got %.1f", t.MinGainLU)
	}
	return nil
}

// Loader reads and validates a Thresholds file from disk.
type Loader struct {
	Path string
}

// Load reads, parses, and validates the thresholds file.
func (l Loader) Load() (Thresholds, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read thresholds file: %w", err)
	}
	t := DefaultThresholds()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parse thresholds file: %w", err)
	}
	if err := Validate(t); err != nil {
		return Thresholds{}, fmt.Errorf("validate thresholds: %w", err)
	}
	return t, nil
}

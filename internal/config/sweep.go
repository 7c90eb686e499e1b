package config

import (
	"fmt"
	"sort"
	"strings"
)

// SweepConfig fans one job config out into a family of jobs, one per
// combination of the listed backend argument values.
type SweepConfig struct {
	Args map[string][]any `mapstructure:"args" yaml:"args"`
}

// Enabled reports whether the config declares a sweep.
func (s SweepConfig) Enabled() bool {
	return len(s.Args) > 0
}

// Expand returns one derived config per point of the cartesian product of the
// sweep's argument lists. Keys are walked in sorted order so expansion is
// deterministic; each derived config gets the swept values overlaid onto its
// backend args and a name suffix encoding the combination. A config without a
// sweep section expands to itself.
func Expand(cfg Config) []Config {
	if !cfg.Sweep.Enabled() {
		return []Config{cfg}
	}

	keys := make([]string, 0, len(cfg.Sweep.Args))
	for k := range cfg.Sweep.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := [][]any{{}}
	for _, key := range keys {
		var next [][]any
		for _, combo := range combos {
			for _, value := range cfg.Sweep.Args[key] {
				extended := make([]any, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, value))
			}
		}
		combos = next
	}

	expanded := make([]Config, 0, len(combos))
	for _, combo := range combos {
		derived := cfg
		derived.Sweep = SweepConfig{}

		args := make(map[string]any, len(cfg.Backend.Args)+len(keys))
		for k, v := range cfg.Backend.Args {
			args[k] = v
		}

		suffixes := make([]string, 0, len(keys))
		for i, key := range keys {
			args[key] = combo[i]
			suffixes = append(suffixes, fmt.Sprintf("%s-%v", sweepNameKey(key), combo[i]))
		}
		derived.Backend.Args = args
		derived.Name = cfg.Name + "_" + strings.Join(suffixes, "_")

		expanded = append(expanded, derived)
	}
	return expanded
}

// sweepNameKey shortens an argument key for use in derived job names.
func sweepNameKey(key string) string {
	key = strings.ReplaceAll(key, "_", "-")
	parts := strings.Split(key, "-")
	if len(parts) == 1 {
		return key
	}
	var b strings.Builder
	for _, p := range parts {
		if p != "" {
			b.WriteByte(p[0])
		}
	}
	return b.String()
}

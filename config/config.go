// Package config holds the engine's tunable knobs, loaded from YAML the
// way the teacher's ecosystem conventionally does (gopkg.in/yaml.v2 is a
// direct teacher dependency).
package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config controls the execution engine and transpilers. There is no
// persisted query state (spec.md §6), so this is the only configuration
// surface in the module.
type Config struct {
	// BatchSize is the default concurrency for stream.BatchedMap: how many
	// resolver/edge calls may be in flight at once per batch (spec.md §5).
	BatchSize int `yaml:"batch_size"`

	// TeeQueueDepth bounds the buffered channel depth used by stream.Tee
	// when fanning a stream out to the arms of a BRANCHED_UNION.
	TeeQueueDepth int `yaml:"tee_queue_depth"`

	// AllowAsyncOrderKeys enables order_by/group_by on an "async"-tagged
	// key expression (spec.md §4.3). Dialects that transpile rather than
	// execute ignore this; it only affects the execution visitor.
	AllowAsyncOrderKeys bool `yaml:"allow_async_order_keys"`

	// StrictMode turns TranspileUnsupported from "silently drop the node"
	// into a hard error, per spec.md §7's documented contract that a
	// transpiler "may silently drop such nodes" — StrictMode opts out of
	// that leniency for callers that want every dialect to round-trip a
	// query identically or fail loudly.
	StrictMode bool `yaml:"strict_mode"`
}

// Default returns the engine's default configuration.
func Default() Config {
	return Config{
		BatchSize:           16,
		TeeQueueDepth:       64,
		AllowAsyncOrderKeys: true,
		StrictMode:          false,
	}
}

// Load reads a Config from a YAML file, starting from Default() so an
// incomplete file still produces sane values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

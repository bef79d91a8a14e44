package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/actionbus/internal/engine"
)

// loadConfig overlays the YAML file at path onto cfg. Keys absent from
// the file keep cfg's values; unknown keys are rejected.
//
//	allow_circular_call: true
//	log_max_size: 50
//	enabled_validation: false
//	bind:
//	  notifier: notifier.email
func loadConfig(path string, cfg *engine.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.LogMaxSize < 0 {
		return fmt.Errorf("config %s: log_max_size must not be negative", path)
	}
	return nil
}

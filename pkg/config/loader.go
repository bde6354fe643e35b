// Package config loads, merges, and validates the engine's configuration.
// The pipeline is ExpandEnv, then yaml.Unmarshal, then mergo.Merge over
// compiled-in defaults, then Validate.
package config

import (
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads path, expands environment variables, merges the parsed document
// over Default(), and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newConfigErr("config.Load", err)
	}
	return Parse(data)
}

// Parse expands and unmarshals raw YAML bytes into a validated Config,
// merged over Default(). Exported separately from Load so tests and
// in-process callers (e.g. an embedded default config) can skip the
// filesystem.
func Parse(data []byte) (Config, error) {
	expanded := ExpandEnv(data)

	var doc Config
	if err := yaml.Unmarshal(expanded, &doc); err != nil {
		return Config{}, newConfigErr("config.Parse", err)
	}

	cfg := Default()
	if err := mergo.Merge(&cfg, doc, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return Config{}, newConfigErr("config.Parse", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

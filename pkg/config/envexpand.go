package config

import "os"

// ExpandEnv expands environment variables in YAML content using the standard
// library's shell-style ${VAR}/$VAR substitution. Missing variables expand to
// empty string; validation catches required fields left empty by a missing
// variable.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

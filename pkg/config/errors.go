package config

import "github.com/codeready-toolchain/agentflow/pkg/orcherr"

// newConfigErr wraps err as a KindConfig orcherr.Error. Configuration errors
// are fatal at startup.
func newConfigErr(op string, err error) error {
	return orcherr.New(orcherr.KindConfig, op, err)
}

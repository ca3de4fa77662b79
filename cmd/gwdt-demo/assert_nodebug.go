//go:build !debug

package main

import (
	"github.com/gordian-engine/gwdt/gassert"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// No-op functions to match the debug build.

func addAssertRuleFlag(fs *pflag.FlagSet) {}

func getAssertEnv(v *viper.Viper) (_ gassert.Env, _ error) {
	return
}

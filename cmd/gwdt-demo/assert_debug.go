//go:build debug

package main

import (
	"github.com/gordian-engine/gwdt/gassert"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const assertRuleFlag = "assert-rules"

func addAssertRuleFlag(fs *pflag.FlagSet) {
	// Default to all rules.
	fs.String(assertRuleFlag, "*", "Comma-separated assertion rules. Only available in debug builds. See package docs for github.com/gordian-engine/gwdt/gassert.")
}

func getAssertEnv(v *viper.Viper) (gassert.Env, error) {
	return gassert.EnvironmentFromString(v.GetString(assertRuleFlag))
}

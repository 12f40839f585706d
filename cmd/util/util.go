// Package util provides helpers shared by the spf13/cobra commands.
package util

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

// Binding ties a config key to the flag that overrides it.
type Binding struct {
	Key  string
	Flag string
}

// BindAll binds every binding against flags. Commands call it when they run
// so that commands sharing a key do not steal each other's flag.
func BindAll(flags *pflag.FlagSet, bindings []Binding) {
	for _, b := range bindings {
		MustBindPFlag(b.Key, flags.Lookup(b.Flag))
	}
}

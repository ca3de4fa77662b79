//go:build !debug

package gassert

// Env is the assertion environment.
//
// In non-debug builds, Env is an empty struct with no methods,
// so that components can carry an Env field at no cost.
// In debug builds, Env is an alias to *Environment.
//
// Code that calls methods on an Env must be guarded by the "debug" build tag.
type Env struct{}

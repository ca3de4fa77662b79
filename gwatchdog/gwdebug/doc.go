// Package gwdebug contains utilities useful for debugging a watchdog supervisor
// and the platform underneath it.
//
// Most types have exported fields that must be set directly.
//
// None of the APIs in this package should be considered stable.
package gwdebug

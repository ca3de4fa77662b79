// Package gwsoftdog contains a software emulation of a hardware watchdog timer,
// implementing [gwatchdog.Platform].
//
// A [Dog] counts wrapping ticks from a monotonic clock,
// and once armed, it expects to be kicked at least once per expiry window.
// On expiry, the Dog calls its pre-reset hook
// and then cancels its context with an [ExpiredError] cause.
// The process that owns the Dog is expected to treat that cancellation
// the way a device treats a watchdog reset.
package gwsoftdog

// Package gwatchdog provides a Supervisor that gates the servicing
// of a hardware watchdog on the liveness of a fixed set of tasks.
//
// Each protected task is described by a [TaskConfig] in a [Registry]
// and must call [*Supervisor.Report] at least once per its configured timeout.
// A periodic handler ([*Supervisor.HandlerTick], usually driven by [RunHandler])
// checks every enabled task and kicks the hardware watchdog through the [Platform]
// no more often than the configured kick period.
// Once any enabled task misses its deadline, the supervisor stops kicking
// until the next call to [*Supervisor.Start],
// so that the hardware watchdog expires and resets the system.
//
// All timestamps are platform ticks held in a uint32,
// and all elapsed-time arithmetic wraps.
package gwatchdog

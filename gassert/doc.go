// Package gassert provides runtime assertions that are compiled in
// only for debug builds.
//
// Checking every invariant on every call is too expensive for a supervisor
// that runs from a high-frequency handler,
// but when a misbehaving caller is suspected,
// enabling the checks may immediately reveal the problem.
//
// Enabling assertions is a two-step process.
// First, build with the "debug" build tag,
// i.e. "go build -tags debug" or "go test -tags debug".
// Second, produce an [Env] with [EnvironmentFromString] or [ParseEnvironment]
// (only available in debug builds) and pass it to the component being checked.
//
// Rules are dot-separated paths:
//   - Components call [*Environment.Enabled] with the path of an assertion
//     before making it, e.g. "gwatchdog.task_id".
//   - No rules are enabled by default.
//   - "*" enables every assertion.
//   - "foo.*" enables every assertion below foo, but not "foo" itself.
//     The wildcard may only be the last segment.
//   - "!foo.bar" excludes an exact path from any wildcard match.
//   - Any other rule is an exact match.
package gassert

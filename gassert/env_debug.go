//go:build debug

package gassert

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// Env is an alias to *Environment in debug builds.
// See the non-debug declaration for details.
type Env = *Environment

// Environment is a set of rules deciding which assertions to make.
//
// An Environment is immutable after parsing,
// apart from [*Environment.OnlyLogFailures],
// which must be called before concurrent use.
type Environment struct {
	// Wildcard prefixes, without the trailing "*".
	// An empty prefix matches everything.
	prefixes [][]string

	excludes [][]string
	exacts   [][]string

	// When non-nil, failures are logged instead of panicking.
	log *slog.Logger
}

// EnvironmentFromString parses a comma-separated list of rules.
func EnvironmentFromString(in string) (*Environment, error) {
	e := new(Environment)
	if in == "" {
		return e, nil
	}

	for _, r := range strings.Split(in, ",") {
		if err := e.addRule(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ParseEnvironment parses one rule per line from r.
// Blank lines and lines starting with "#" are ignored.
func ParseEnvironment(r io.Reader) (*Environment, error) {
	e := new(Environment)

	const errLimit = 5
	var errs error
	nErrs := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := e.addRule(line); err != nil {
			errs = errors.Join(errs, err)
			nErrs++
			if nErrs >= errLimit {
				return nil, errors.Join(errs, fmt.Errorf("stopped parsing after %d errors", nErrs))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		errs = errors.Join(errs, err)
	}

	if errs != nil {
		return nil, errs
	}
	return e, nil
}

func (e *Environment) addRule(r string) error {
	if r == "" {
		return errors.New("received empty rule")
	}

	if strings.Contains(r, "..") || strings.HasPrefix(r, ".") || strings.HasSuffix(r, ".") {
		return fmt.Errorf("invalid rule %q: dot-separated sections may not be empty", r)
	}

	if ex, ok := strings.CutPrefix(r, "!"); ok {
		if ex == "" || strings.ContainsAny(ex, "!*") {
			return fmt.Errorf("invalid rule %q: exclusions must be exact paths", r)
		}
		e.excludes = append(e.excludes, strings.Split(ex, "."))
		return nil
	}
	if strings.Contains(r, "!") {
		return fmt.Errorf("invalid rule %q: ! may only start a rule", r)
	}

	if r == "*" {
		e.prefixes = append(e.prefixes, []string{})
		return nil
	}

	if p, ok := strings.CutSuffix(r, ".*"); ok {
		if strings.Contains(p, "*") {
			return fmt.Errorf("invalid rule %q: * may only be the last segment", r)
		}
		e.prefixes = append(e.prefixes, strings.Split(p, "."))
		return nil
	}

	if strings.Contains(r, "*") {
		return fmt.Errorf("invalid rule %q: * may only be the last segment", r)
	}

	e.exacts = append(e.exacts, strings.Split(r, "."))
	return nil
}

// Enabled reports whether the assertion at path should be made.
//
// A wildcard match enables the path unless an exclusion names it exactly;
// otherwise the path must match an exact rule.
func (e *Environment) Enabled(path string) bool {
	if len(e.prefixes) == 0 && len(e.exacts) == 0 {
		return false
	}

	parts := strings.Split(path, ".")

	for _, p := range e.prefixes {
		// Strict prefix: "foo.*" does not match "foo".
		if len(p) < len(parts) && slices.Equal(p, parts[:len(p)]) {
			return !slices.ContainsFunc(e.excludes, func(ex []string) bool {
				return slices.Equal(ex, parts)
			})
		}
	}

	return slices.ContainsFunc(e.exacts, func(ex []string) bool {
		return slices.Equal(ex, parts)
	})
}

// OnlyLogFailures makes e log assertion failures at Error level
// instead of panicking.
//
// OnlyLogFailures must be called before any concurrent use of e.
func (e *Environment) OnlyLogFailures(log *slog.Logger) {
	e.log = log
}

// HandleAssertionFailure panics with err,
// or only logs it if [*Environment.OnlyLogFailures] was called.
//
// A nil err is a bug in the caller and always panics.
func (e *Environment) HandleAssertionFailure(err error) {
	if err == nil {
		panic(errors.New("BUG: HandleAssertionFailure called with nil error"))
	}

	if e.log == nil {
		panic(fmt.Errorf("assertion failure: %w", err))
	}

	e.log.Error("Assertion failure", "err", err)
}

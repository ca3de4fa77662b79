// Package gwconfig loads a supervisor task registry and its timing parameters
// from a YAML file.
package gwconfig

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/gordian-engine/gwdt/gwatchdog"
	"gopkg.in/yaml.v2"
)

// File is the root of a configuration file.
//
// An example file:
//
//	supervisor:
//	  tick: 1ms
//	  kick_period: 10
//	  hardware_expiry: 500ms
//	  stats: true
//	tasks:
//	  - name: net
//	    timeout: 200
//	  - name: storage
//	    timeout: 1000
//	    disabled: true
type File struct {
	Supervisor Supervisor `yaml:"supervisor"`
	Tasks      []Task     `yaml:"tasks"`
}

// Supervisor holds timing parameters for the supervisor and its platform.
// Periods given as plain integers are in ticks.
type Supervisor struct {
	// Duration of one tick.
	Tick time.Duration `yaml:"tick" default:"1ms"`

	// How often the handler runs.
	HandlerPeriod time.Duration `yaml:"handler_period" default:"1ms"`

	// Minimum ticks between hardware watchdog kicks.
	KickPeriod uint32 `yaml:"kick_period" default:"10"`

	// Expiry window of the (software) hardware watchdog.
	HardwareExpiry time.Duration `yaml:"hardware_expiry" default:"1s"`

	Stats bool `yaml:"stats"`
}

// Task is one entry in the task registry.
// The position of the entry in the file is the task's ID.
type Task struct {
	Name string `yaml:"name"`

	// Ticks allowed between reports.
	Timeout uint32 `yaml:"timeout"`

	// Tasks are supervised from startup unless disabled.
	Disabled bool `yaml:"disabled"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates configuration from YAML data.
// Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File

	// Set defaults from struct tags,
	// then again after decoding for any fields the file zeroed out.
	if err := defaults.Set(&f); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := defaults.Set(&f); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// Validate reports every problem in f that would prevent a supervisor from running.
func (f *File) Validate() error {
	var err error

	s := f.Supervisor
	if s.Tick <= 0 {
		err = errors.Join(err, errors.New("supervisor.tick must be positive"))
	}
	if s.HandlerPeriod <= 0 {
		err = errors.Join(err, errors.New("supervisor.handler_period must be positive"))
	}
	if s.HardwareExpiry <= 0 {
		err = errors.Join(err, errors.New("supervisor.hardware_expiry must be positive"))
	}
	if s.KickPeriod == 0 {
		err = errors.Join(err, errors.New("supervisor.kick_period must be positive"))
	}
	if s.Tick > 0 && s.HardwareExpiry > 0 && s.KickPeriodDuration() >= s.HardwareExpiry {
		err = errors.Join(err, fmt.Errorf(
			"supervisor.kick_period (%s) must be shorter than supervisor.hardware_expiry (%s)",
			s.KickPeriodDuration(), s.HardwareExpiry,
		))
	}

	if len(f.Tasks) == 0 {
		err = errors.Join(err, errors.New("tasks must not be empty"))
	}

	seen := make(map[string]int, len(f.Tasks))
	for i, t := range f.Tasks {
		if t.Name == "" {
			err = errors.Join(err, fmt.Errorf("tasks[%d]: name must not be empty", i))
		} else if j, ok := seen[t.Name]; ok {
			err = errors.Join(err, fmt.Errorf("tasks[%d]: name %q already used by tasks[%d]", i, t.Name, j))
		} else {
			seen[t.Name] = i
		}

		if t.Timeout == 0 {
			err = errors.Join(err, fmt.Errorf("tasks[%d] (%q): timeout must be positive", i, t.Name))
		}
	}

	return err
}

// Warnings returns descriptions of settings that are valid
// but likely to cause spurious resets.
func (f *File) Warnings() []string {
	var out []string

	s := f.Supervisor
	if s.KickPeriodDuration() > s.HardwareExpiry/2 {
		out = append(out, fmt.Sprintf(
			"kick period %s is more than half the hardware expiry %s",
			s.KickPeriodDuration(), s.HardwareExpiry,
		))
	}
	if s.HandlerPeriod > s.HardwareExpiry/10 {
		out = append(out, fmt.Sprintf(
			"handler period %s is more than a tenth of the hardware expiry %s",
			s.HandlerPeriod, s.HardwareExpiry,
		))
	}

	for _, t := range f.Tasks {
		if time.Duration(t.Timeout)*s.Tick < s.HandlerPeriod {
			out = append(out, fmt.Sprintf(
				"task %q timeout of %d ticks is shorter than the handler period %s",
				t.Name, t.Timeout, s.HandlerPeriod,
			))
		}
	}

	return out
}

// KickPeriodDuration returns the kick period as a duration.
func (s Supervisor) KickPeriodDuration() time.Duration {
	return time.Duration(s.KickPeriod) * s.Tick
}

// Registry returns the task table of f.
func (f *File) Registry() gwatchdog.StaticRegistry {
	reg := make(gwatchdog.StaticRegistry, len(f.Tasks))
	for i, t := range f.Tasks {
		reg[i] = gwatchdog.TaskConfig{
			Name:    t.Name,
			Timeout: t.Timeout,
			Enabled: !t.Disabled,
		}
	}
	return reg
}

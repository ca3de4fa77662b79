package gwatchdog

import (
	"errors"
	"fmt"
	"math"
)

// TaskID identifies a protected task.
// Task IDs are dense indices into the registry's task table.
type TaskID uint16

// TaskConfig is the static configuration of a single protected task.
type TaskConfig struct {
	// Name of the task, for diagnostics only.
	Name string

	// The task must report at least once every Timeout ticks
	// while it is enabled.
	Timeout uint32

	// Whether protection is enabled when the supervisor is initialized.
	Enabled bool
}

func (c TaskConfig) validate() error {
	var err error
	if c.Name == "" {
		err = errors.Join(err, errors.New("TaskConfig.Name must not be empty"))
	}

	if c.Timeout == 0 {
		err = errors.Join(err, errors.New("TaskConfig.Timeout must be positive"))
	}

	return err
}

// Registry supplies the static task table to the [Supervisor].
// The table is read exactly once, during [*Supervisor.Init].
//
// TaskConfigs returns nil if the table is unavailable.
// The returned slice is indexed by [TaskID] and must not be modified afterwards.
type Registry interface {
	TaskConfigs() []TaskConfig
}

// StaticRegistry is a [Registry] backed by a fixed slice.
type StaticRegistry []TaskConfig

func (r StaticRegistry) TaskConfigs() []TaskConfig {
	return r
}

// validateTaskConfigs checks every entry in cfgs
// and reports all problems at once.
func validateTaskConfigs(cfgs []TaskConfig) error {
	var err error
	if len(cfgs) > math.MaxUint16+1 {
		err = fmt.Errorf("registry has %d tasks, more than TaskID can address", len(cfgs))
	}

	for i, c := range cfgs {
		if e := c.validate(); e != nil {
			err = errors.Join(err, fmt.Errorf("task %d (%q): %w", i, c.Name, e))
		}
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return nil
}

package gwatchdog

// Metrics receives notifications of supervisor events.
// Implementations are called from the handler and from reporting tasks,
// so they must be safe for concurrent use and must not block.
//
// See the gwprom package for a Prometheus implementation.
type Metrics interface {
	// Kicked is called after every hardware watchdog kick.
	Kicked()

	// Reported is called after every successful task report,
	// with the ticks elapsed since the task's previous report
	// (or since the task was started or re-enabled).
	Reported(task string, interval uint32)

	// DeadlineMissed is called once, when the supervisor stops kicking.
	DeadlineMissed(task string, elapsed uint32)

	// ValidityChanged is called whenever the validity flag is set,
	// which happens on every start and on the first missed deadline.
	ValidityChanged(valid bool)
}

type nopMetrics struct{}

func (nopMetrics) Kicked()                       {}
func (nopMetrics) Reported(string, uint32)       {}
func (nopMetrics) DeadlineMissed(string, uint32) {}
func (nopMetrics) ValidityChanged(bool)          {}

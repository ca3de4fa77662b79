package gwatchdog

import (
	"log/slog"

	"github.com/google/uuid"
)

// Valid reports whether every enabled task has been on time since the last start.
// Valid is false before the first start.
func (s *Supervisor) Valid() bool {
	return s.valid.Load()
}

// Violation returns the missed deadline that stopped kicking,
// if one has occurred since the last start.
func (s *Supervisor) Violation() (MissedDeadlineError, bool) {
	v := s.violation.Load()
	if v == nil {
		return MissedDeadlineError{}, false
	}
	return *v, true
}

// Session returns the ID assigned by the most recent call to [*Supervisor.Start],
// or [uuid.Nil] if s has never been started.
func (s *Supervisor) Session() uuid.UUID {
	id := s.session.Load()
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// Diagnostics is a point-in-time summary of a [Supervisor],
// suitable for logging from a pre-reset callback.
type Diagnostics struct {
	Session uuid.UUID
	Valid   bool

	// Nil unless a deadline was missed.
	Violation *MissedDeadlineError

	Tasks []TaskDiagnostics

	// Most recent reporters, newest first.
	// Nil if statistics are disabled.
	Trace []TaskID
}

type TaskDiagnostics struct {
	Name       string
	Enabled    bool
	ReportedAt uint32

	// Nil if statistics are disabled.
	Stats *TaskStats
}

// Diagnostics collects a [Diagnostics] value from s.
// It returns the zero value if s is not initialized.
func (s *Supervisor) Diagnostics() Diagnostics {
	if !s.initialized.Load() {
		return Diagnostics{}
	}

	d := Diagnostics{
		Session: s.Session(),
		Valid:   s.Valid(),
		Tasks:   make([]TaskDiagnostics, len(s.cfgs)),
	}
	if v, ok := s.Violation(); ok {
		d.Violation = &v
	}

	snap, hasStats := s.rec.(StatsSnapshotter)
	for i, c := range s.cfgs {
		st := s.tasks[i].load()
		td := TaskDiagnostics{
			Name:       c.Name,
			Enabled:    st.Enabled,
			ReportedAt: st.ReportedAt,
		}
		if hasStats {
			if ts, ok := snap.Stats(TaskID(i)); ok {
				td.Stats = &ts
			}
		}
		d.Tasks[i] = td
	}

	if hasStats {
		d.Trace = snap.Trace()
	}

	return d
}

func (d Diagnostics) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("session", d.Session.String()),
		slog.Bool("valid", d.Valid),
	}
	if d.Violation != nil {
		attrs = append(attrs, slog.String("violation", d.Violation.Error()))
	}

	for _, t := range d.Tasks {
		if t.Stats == nil {
			attrs = append(attrs, slog.Group(t.Name,
				slog.Bool("enabled", t.Enabled),
				slog.Uint64("reported_at", uint64(t.ReportedAt)),
			))
			continue
		}
		attrs = append(attrs, slog.Group(t.Name,
			slog.Bool("enabled", t.Enabled),
			slog.Uint64("reported_at", uint64(t.ReportedAt)),
			slog.Any("stats", *t.Stats),
		))
	}

	if d.Trace != nil {
		trace := make([]uint16, len(d.Trace))
		for i, id := range d.Trace {
			trace[i] = uint16(id)
		}
		attrs = append(attrs, slog.Any("trace", trace))
	}

	return slog.GroupValue(attrs...)
}

// Package glog contains small helpers for consistent structured logging.
package glog

import "log/slog"

// Task returns a copy of log that includes fields identifying a protected task.
//
// This is a convenient shorthand in many log calls where
// the task is the pertinent detail.
func Task(log *slog.Logger, id uint16, name string) *slog.Logger {
	return log.With("task_id", id, "task", name)
}

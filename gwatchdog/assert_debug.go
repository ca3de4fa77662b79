//go:build debug

package gwatchdog

import (
	"fmt"

	"github.com/gordian-engine/gwdt/gassert"
)

// invariantKnownTask asserts that id is within the registry.
// An unknown task ID is always a programming error in the caller.
func invariantKnownTask(env gassert.Env, id TaskID, nTasks int) {
	if env == nil || !env.Enabled("gwatchdog.task_id") {
		return
	}

	if int(id) < nTasks {
		return
	}

	env.HandleAssertionFailure(fmt.Errorf(
		"task ID %d used with registry of %d tasks", id, nTasks,
	))
}

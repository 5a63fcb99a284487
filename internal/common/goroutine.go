// -----------------------------------------------------------------------
// Safe Run - Panic-protected execution for scheduled and background work
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"runtime"

	"github.com/ternarybob/arbor"
)

// SafeRun executes fn and converts a panic into a logged error.
// Used for cron callbacks so one bad run does not take the scheduler down.
func SafeRun(logger arbor.ILogger, name string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)

			if logger != nil {
				logger.Error().
					Str("task", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(buf[:n])).
					Msg("Recovered from panic in task")
			}
		}
	}()

	fn()
	return false
}

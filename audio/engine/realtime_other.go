//go:build !linux

package engine

import "errors"

// setRealtimePriority is a no-op outside Linux; SCHED_FIFO has no portable
// equivalent and the failure path is already non-fatal.
func setRealtimePriority() error {
	return errors.New("realtime scheduling not supported on this platform")
}

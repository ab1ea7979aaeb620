//go:build linux

package engine

import "golang.org/x/sys/unix"

// realtimePriority is a fixed, modest SCHED_FIFO priority; CRAS itself uses
// a similarly conservative value rather than the maximum, to avoid starving
// unrelated system threads if the estimate misbehaves.
const realtimePriority = 12

// setRealtimePriority attempts to raise the calling OS thread to
// SCHED_FIFO. Most deployments run without CAP_SYS_NICE, so failure here
// is expected and must not be fatal.
func setRealtimePriority() error {
	return unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: realtimePriority})
}

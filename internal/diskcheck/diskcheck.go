// Package diskcheck implements the advisory free-space check behind
// --skip-log-check: before a run starts writing per-process log files,
// warn if the log directory's filesystem is nearly full. No ecosystem
// library wraps a disk-usage check this narrow, so this is a deliberate,
// justified stdlib syscall.Statfs use (see DESIGN.md).
package diskcheck

import "syscall"

// lowSpaceThreshold is the free-space cutoff below which the log
// directory's filesystem is reported low.
const lowSpaceThreshold = 0.01

// CheckLogDir reports whether dir's filesystem has less than 1% of its
// total space free. A Statfs failure (e.g. dir does not exist yet) is
// treated as "not low", since the directory is created before first use
// and this check is advisory, never fatal.
func CheckLogDir(dir string) (low bool, percentFree float64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return false, 1.0
	}
	if stat.Blocks == 0 {
		return false, 1.0
	}
	percentFree = float64(stat.Bavail) / float64(stat.Blocks)
	return percentFree < lowSpaceThreshold, percentFree
}

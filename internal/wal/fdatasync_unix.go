//go:build unix || linux || darwin

package wal

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes file's data (and only as much metadata as required to
// retrieve it) to stable storage. Grounded on the teacher's mmap_unix.go /
// mmap_windows.go per-platform split for msync/FlushViewOfFile, applied here
// to the log file's durability point instead of a memory-mapped page.
func fdatasync(file *os.File) error {
	return unix.Fdatasync(int(file.Fd()))
}

package preflight

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

const (
	// MinDiskSpaceBytes is the free space required on the project volume.
	MinDiskSpaceBytes = 100 << 20
	// MinFileDescriptors is the lowest acceptable soft RLIMIT_NOFILE.
	MinFileDescriptors = 1024
)

// CheckDiskSpace requires MinDiskSpaceBytes available to unprivileged
// users on the filesystem holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	const name = "disk_space"
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return failed(name, "cannot read filesystem stats", err.Error())
	}
	free := st.Bavail * uint64(st.Bsize)
	msg := fmt.Sprintf("%s free, %s required", humanize.IBytes(free), humanize.IBytes(MinDiskSpaceBytes))
	if free < MinDiskSpaceBytes {
		return failed(name, msg, "Free space on "+path)
	}
	return passed(name, msg)
}

// CheckFileDescriptors requires a soft open file limit of at least
// MinFileDescriptors. The watcher holds one descriptor per directory.
func (c *Checker) CheckFileDescriptors() CheckResult {
	const name = "file_descriptors"
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return failed(name, "cannot read open file limit", err.Error())
	}
	msg := fmt.Sprintf("soft limit %d, %d required", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		return failed(name, msg, fmt.Sprintf("Raise it with 'ulimit -n %d'", 10*MinFileDescriptors))
	}
	return passed(name, msg)
}

//go:build !windows

package sandbox

import "golang.org/x/sys/unix"

// FreeBytes returns the free space available on the filesystem
// backing path, in bytes. Used by the queue's back-pressure check
// (spec.md §4.5: "initTransfer fails fast ... when the spool free
// space falls below a configured floor"). 64-bit sizes only, per the
// §9 Open Question (a) resolution — no 32-bit statfs branch.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// UsedBytes returns the space already consumed on the filesystem
// backing path, in bytes (total minus free), for the diskUsed verb.
func UsedBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	total := uint64(st.Blocks) * uint64(st.Bsize)
	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free > total {
		return 0, nil
	}
	return total - free, nil
}

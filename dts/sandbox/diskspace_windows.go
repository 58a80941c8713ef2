//go:build windows

package sandbox

import (
	"syscall"
	"unsafe"
)

// FreeBytes returns the free space available on the volume backing
// path, in bytes, via GetDiskFreeSpaceExW.
func FreeBytes(path string) (uint64, error) {
	freeBytesAvailable, _, err := getDiskFreeSpaceEx(path)
	return freeBytesAvailable, err
}

// UsedBytes returns the space already consumed on the volume backing
// path, in bytes (total minus free), for the diskUsed verb.
func UsedBytes(path string) (uint64, error) {
	freeBytesAvailable, totalBytes, err := getDiskFreeSpaceEx(path)
	if err != nil {
		return 0, err
	}
	if freeBytesAvailable > totalBytes {
		return 0, nil
	}
	return totalBytes - freeBytesAvailable, nil
}

func getDiskFreeSpaceEx(path string) (free, total uint64, err error) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	proc := kernel32.NewProc("GetDiskFreeSpaceExW")
	r1, _, callErr := proc.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&free)),
		uintptr(unsafe.Pointer(&total)),
		0,
	)
	if r1 == 0 {
		return 0, 0, callErr
	}
	return free, total, nil
}

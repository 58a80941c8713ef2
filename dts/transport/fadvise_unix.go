//go:build !windows

package transport

import (
	"os"

	"golang.org/x/sys/unix"
)

// fadviseSequential hints the kernel readahead for a file we are about
// to write or read stripe-by-stripe but overall sequentially (spec.md
// §4.3 "Flow" note on POSIX_FADV_SEQUENTIAL).
func fadviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

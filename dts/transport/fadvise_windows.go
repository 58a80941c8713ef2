//go:build windows

package transport

import "os"

// fadviseSequential is a no-op on Windows, which has no FADV_SEQUENTIAL
// equivalent exposed through os.File.
func fadviseSequential(f *os.File) {}

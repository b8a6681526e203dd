//go:build linux || darwin || freebsd || netbsd || openbsd

package tracelog

import "golang.org/x/sys/unix"

// adviseSequential hints that the mapping is read or written front to back.
// The hint is best effort.
func adviseSequential(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Madvise(b, unix.MADV_SEQUENTIAL)
}

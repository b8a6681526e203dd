//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package tracelog

func adviseSequential([]byte) {}

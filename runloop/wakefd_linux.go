//go:build linux

package runloop

import (
	"golang.org/x/sys/unix"
)

// createWakeFd creates an eventfd, returned as both the read and write end.
func createWakeFd() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}

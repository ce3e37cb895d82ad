package common

import (
	"golang.org/x/sys/unix"
)

// SetRestrictiveUmask masks the group and world bits so that the databases and sockets the node creates are not
// group- or world-readable.
func SetRestrictiveUmask() int {
	return unix.Umask(0077)
}

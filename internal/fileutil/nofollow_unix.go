//go:build unix

package fileutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenNoFollow opens path read-only, failing if the final component is a
// symlink.
func OpenNoFollow(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
}

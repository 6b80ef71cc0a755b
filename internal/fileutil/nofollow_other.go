//go:build !unix

package fileutil

import (
	"fmt"
	"os"
)

// OpenNoFollow opens path read-only. Without O_NOFOLLOW the symlink check
// is done with Lstat first, which leaves a small race.
func OpenNoFollow(path string) (*os.File, error) {
	st, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if st.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("open %s: refusing to follow symlink", path)
	}
	return os.Open(path)
}

package health

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// NewDiskCheck verifies the filesystem holding path has at least
// minFreeBytes available.
func NewDiskCheck(path string, minFreeBytes uint64) Check {
	return NewCheck("disk", false, func(ctx context.Context) error {
		var stat unix.Statfs_t
		if err := unix.Statfs(path, &stat); err != nil {
			return fmt.Errorf("failed to stat filesystem: %w", err)
		}
		free := stat.Bavail * uint64(stat.Bsize)
		if free < minFreeBytes {
			return fmt.Errorf("only %d bytes free, need %d", free, minFreeBytes)
		}
		return nil
	})
}

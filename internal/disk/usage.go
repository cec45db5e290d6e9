// Package disk samples filesystem usage so a reclaim run can tell how
// much space it freed.
package disk

import (
	"errors"
	"fmt"
)

var ErrUnsupported = errors.New("filesystem usage is not supported on this platform")

type FilesystemUsage struct {
	Path       string  `json:"path"`
	TotalBytes uint64  `json:"total_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	Percent    float64 `json:"percent"`
}

// Usage reports the filesystem holding path. FreeBytes is the space
// available to unprivileged users, matching the Avail column of df.
func Usage(path string) (FilesystemUsage, error) {
	total, free, avail, err := statfs(path)
	if err != nil {
		return FilesystemUsage{Path: path}, fmt.Errorf("failed to stat filesystem %s: %w", path, err)
	}

	used := total - free

	var percent float64
	if used+avail > 0 {
		percent = float64(used) / float64(used+avail) * 100
	}

	return FilesystemUsage{
		Path:       path,
		TotalBytes: total,
		FreeBytes:  avail,
		UsedBytes:  used,
		Percent:    percent,
	}, nil
}

func HumanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}

	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

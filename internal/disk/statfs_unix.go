//go:build linux || darwin || freebsd

package disk

import "golang.org/x/sys/unix"

func statfs(path string) (total, free, avail uint64, err error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0, 0, err
	}

	bsize := uint64(fs.Bsize)
	return fs.Blocks * bsize, fs.Bfree * bsize, uint64(fs.Bavail) * bsize, nil
}

//go:build !(linux || darwin || freebsd)

package disk

func statfs(string) (total, free, avail uint64, err error) {
	return 0, 0, 0, ErrUnsupported
}

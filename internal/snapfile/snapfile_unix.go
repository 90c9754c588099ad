//go:build unix

package snapfile

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Map maps the file at path read-only and returns its contents with a
// cleanup func that unmaps it. The slice must not be used after cleanup.
func Map(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close() // the mapping keeps the pages alive

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := info.Size()
	if size == 0 {
		return []byte{}, func() error { return nil }, nil
	}
	if size > int64(^uint(0)>>1) {
		return nil, nil, errors.Newf("snapfile: %s too large to map (%d bytes)", path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "snapfile: mmap %s", path)
	}
	cleanup := func() error {
		if data == nil {
			return nil
		}
		err := unix.Munmap(data)
		data = nil
		return err
	}
	return data, cleanup, nil
}

// Write stores data at path. The bytes go to a temporary file in the same
// directory through a shared mapping, are flushed with msync and fsync, and
// the file is then renamed over path.
func Write(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if len(data) > 0 {
		if err = tmp.Truncate(int64(len(data))); err != nil {
			return err
		}
		fd := int(tmp.Fd())
		var m []byte
		m, err = unix.Mmap(fd, 0, len(data), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return errors.Wrapf(err, "snapfile: mmap %s", tmp.Name())
		}
		copy(m, data)
		if err = unix.Msync(m, unix.MS_SYNC); err != nil {
			unix.Munmap(m)
			return errors.Wrap(err, "snapfile: msync")
		}
		if err = unix.Munmap(m); err != nil {
			return err
		}
		if err = unix.Fsync(fd); err != nil {
			return errors.Wrap(err, "snapfile: fsync")
		}
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

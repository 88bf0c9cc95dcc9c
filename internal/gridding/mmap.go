package gridding

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MappedFile is a memory-mapped view of a file. Data aliases the mapping
// directly; it becomes invalid once Close is called.
type MappedFile struct {
	Data []byte

	file     *os.File
	writable bool
}

// OpenMappedInput maps size bytes of an existing file read-only.
func OpenMappedInput(path string, size int64) (*MappedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not stat input file %s", path)
	}
	if info.Size() < size {
		return nil, errors.Errorf("input file %s is too small (expected %d bytes, have %d)",
			path, size, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open input file %s", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "could not map %d bytes of %s", size, path)
	}

	return &MappedFile{Data: data, file: f}, nil
}

// CreateMappedOutput creates (or truncates) a file, extends it to size
// bytes and maps it read-write.
func CreateMappedOutput(path string, size int64) (*MappedFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create output file %s", path)
	}
	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "could not allocate %d bytes in %s", size, path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "could not map %d bytes of %s", size, path)
	}

	return &MappedFile{Data: data, file: f, writable: true}, nil
}

// Close flushes writable mappings, unmaps the view and closes the file.
func (m *MappedFile) Close() error {
	var firstErr error
	if m.writable {
		if err := unix.Msync(m.Data, unix.MS_SYNC); err != nil {
			firstErr = errors.Wrap(err, "could not sync mapping")
		}
	}
	if err := unix.Munmap(m.Data); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "could not unmap file")
	}
	m.Data = nil
	if err := m.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

package logbuffer

import (
	"os"

	"github.com/pkg/errors"
	"github.com/tysontate/gommap"
)

var (
	ErrBufferAlreadyExists = errors.New("term buffer already exists")
	ErrBufferDoesNotExist  = errors.New("term buffer does not exist")
	ErrMMapFailed          = errors.New("mmap failed")
	ErrFSyncFailed         = errors.New("file sync failed")
	ErrMSyncFailed         = errors.New("mmap sync failed")
	ErrInvalidBufferSize   = errors.New("invalid term buffer file size")
)

// MappedBuffer is a Buffer backed by a memory mapped file, shared with every
// process mapping the same file. The term region comes first, followed by
// the state region.
type MappedBuffer struct {
	*Buffer
	path string
	fd   *os.File
	data gommap.MMap
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// Create creates and maps a new term buffer file holding capacity bytes of frames.
func Create(path string, capacity int) (*MappedBuffer, error) {
	if err := CheckTermLength(capacity); err != nil {
		return nil, err
	}
	if fileExists(path) {
		return nil, ErrBufferAlreadyExists
	}
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, err
	}
	err = fd.Truncate(int64(capacity + StateLength))
	if err != nil {
		fd.Close()
		os.Remove(path)
		return nil, err
	}
	m := &MappedBuffer{path: path, fd: fd}
	if err := m.mmap(capacity); err != nil {
		fd.Close()
		os.Remove(path)
		return nil, err
	}
	return m, nil
}

// OpenMapped maps an existing term buffer file. The capacity is derived from
// the file size.
func OpenMapped(path string) (*MappedBuffer, error) {
	if !fileExists(path) {
		return nil, ErrBufferDoesNotExist
	}
	fd, err := os.OpenFile(path, os.O_RDWR, 0640)
	if err != nil {
		return nil, err
	}
	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}
	capacity := int(info.Size()) - StateLength
	if err := CheckTermLength(capacity); err != nil {
		fd.Close()
		return nil, errors.Wrapf(ErrInvalidBufferSize, "%s: %v", path, err)
	}
	m := &MappedBuffer{path: path, fd: fd}
	if err := m.mmap(capacity); err != nil {
		fd.Close()
		return nil, err
	}
	return m, nil
}

func (m *MappedBuffer) mmap(capacity int) error {
	data, err := gommap.Map(m.fd.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		return ErrMMapFailed
	}
	b, err := NewBuffer(data[:capacity], data[capacity:])
	if err != nil {
		data.UnsafeUnmap()
		return err
	}
	m.data = data
	m.Buffer = b
	return nil
}

func (m *MappedBuffer) FilePath() string {
	return m.path
}

func (m *MappedBuffer) Sync() error {
	if err := m.data.Sync(gommap.MS_SYNC); err != nil {
		return ErrMSyncFailed
	}
	if err := m.fd.Sync(); err != nil {
		return ErrFSyncFailed
	}
	return nil
}

func (m *MappedBuffer) Close() error {
	err := m.Sync()
	if err != nil {
		return err
	}
	err = m.data.UnsafeUnmap()
	if err != nil {
		return err
	}
	return m.fd.Close()
}

func (m *MappedBuffer) Delete() error {
	m.Close()
	return os.Remove(m.path)
}

//go:build linux || darwin || freebsd || netbsd || openbsd

package container

import (
	"fmt"
	"io"
	"os"
	"syscall"
)

type mapping struct {
	data []byte
	f    *os.File
}

// Close unmaps the memory and closes the underlying file.
func (m *mapping) Close() error {
	var err1, err2 error
	if m.data != nil {
		err1 = syscall.Munmap(m.data)
		m.data = nil
	}
	if m.f != nil {
		err2 = m.f.Close()
		m.f = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func mapFile(path string) ([]byte, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w: empty file", path, ErrMalformedContainer)
	}

	all, err := syscall.Mmap(int(f.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap file: %w", err)
	}
	return all, &mapping{data: all, f: f}, nil
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package container

import (
	"fmt"
	"io"
	"os"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func mapFile(path string) ([]byte, io.Closer, error) {
	all, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	return all, nopCloser{}, nil
}

// Package container parses executable images (ELF, PE/COFF and Mach-O) into
// a flat list of file-backed sections with their virtual address ranges.
package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedContainer is returned for input that cannot be parsed as a
// supported executable image.
var ErrMalformedContainer = errors.New("malformed container")

// Format identifies the container flavour.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatPE
	FormatMachO
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatPE:
		return "pe"
	case FormatMachO:
		return "macho"
	default:
		return "unknown"
	}
}

// Arch names the instruction set of an image using GOARCH spelling.
type Arch string

const (
	ArchUnknown Arch = ""
	Arch386     Arch = "386"
	ArchAMD64   Arch = "amd64"
	ArchARM64   Arch = "arm64"
)

// Section is a contiguous, file-backed virtual address range.
// Data aliases the image's backing buffer.
type Section struct {
	Name   string
	Addr   uint64 // virtual address base
	Size   uint64 // length in bytes, equal to len(Data)
	Offset uint64 // file offset of the first byte
	Data   []byte
}

// End returns the first address past the section.
func (s Section) End() uint64 {
	return s.Addr + s.Size
}

// Contains reports whether va lies in [Addr, Addr+Size).
func (s Section) Contains(va uint64) bool {
	return va >= s.Addr && va-s.Addr < s.Size
}

// Image is a parsed executable.
type Image struct {
	Path string

	format   Format
	arch     Arch
	width    int
	entry    uint64
	all      []byte
	sections []Section
	closer   io.Closer
}

// Sections returns the file-backed sections in file order.
func (im *Image) Sections() []Section { return im.sections }

// AddrWidth returns the native address width in bytes (4 or 8).
func (im *Image) AddrWidth() int { return im.width }

// Arch returns the instruction set recorded in the image header.
func (im *Image) Arch() Arch { return im.arch }

// Entry returns the entry point address, or 0 if the format has none.
func (im *Image) Entry() uint64 { return im.entry }

// Format returns the container flavour.
func (im *Image) Format() Format { return im.format }

// Bytes returns the whole file contents.
func (im *Image) Bytes() []byte { return im.all }

// Close releases the backing buffer if it was mapped from a file.
// Sections must not be used afterwards.
func (im *Image) Close() error {
	var err error
	if im.closer != nil {
		err = im.closer.Close()
		im.closer = nil
	}
	im.all = nil
	im.sections = nil
	return err
}

// Detect reports the container format from the leading magic bytes.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("\x7fELF")):
		return FormatELF
	case bytes.HasPrefix(data, []byte("MZ")):
		return FormatPE
	case bytes.HasPrefix(data, []byte{0xce, 0xfa, 0xed, 0xfe}),
		bytes.HasPrefix(data, []byte{0xcf, 0xfa, 0xed, 0xfe}),
		bytes.HasPrefix(data, []byte{0xfe, 0xed, 0xfa, 0xce}),
		bytes.HasPrefix(data, []byte{0xfe, 0xed, 0xfa, 0xcf}):
		return FormatMachO
	}
	return FormatUnknown
}

// Parse parses an in-memory executable image. The returned sections alias
// data.
func Parse(data []byte) (*Image, error) {
	var (
		im  *Image
		err error
	)
	switch Detect(data) {
	case FormatELF:
		im, err = parseELF(data)
	case FormatPE:
		im, err = parsePE(data)
	case FormatMachO:
		im, err = parseMachO(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized file format", ErrMalformedContainer)
	}
	if err != nil {
		return nil, err
	}
	im.all = data
	return im, nil
}

// Open maps the file at path read-only and parses it.
func Open(path string) (*Image, error) {
	data, closer, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	im, err := Parse(data)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	im.Path = path
	im.closer = closer
	return im, nil
}

// fileSlice bounds-checks [off, off+size) against data.
func fileSlice(data []byte, off, size uint64) ([]byte, error) {
	end := off + size
	if end < off || end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: range [%#x, %#x) past end of file (%#x)", ErrMalformedContainer, off, end, len(data))
	}
	return data[off:end], nil
}

// Package executable couples the sections of a parsed image with a symbol
// resolver so that a function can be looked up by name and handed to a
// decoder as a borrowed byte slice.
package executable

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"fndisasm/internal/container"
	"fndisasm/internal/disasm"
	"fndisasm/internal/mapping"
	"fndisasm/internal/resolve"
)

var (
	// ErrAddressOutOfRange means no section contains the address, or a
	// function runs past the end of its section.
	ErrAddressOutOfRange = errors.New("address out of range")

	// ErrAmbiguousAddress means more than one section claims the address.
	ErrAmbiguousAddress = errors.New("ambiguous address")
)

// Container is the parsed image an Executable reads from.
type Container interface {
	Sections() []container.Section
	AddrWidth() int
}

// Executable is a read-only view of an image and its known functions.
type Executable struct {
	sections []container.Section
	width    int
	resolver *resolve.Resolver
}

// New builds an executable whose functions come from the mapping alone.
func New(c Container, m *mapping.Mapping) *Executable {
	return NewWithDebug(c, m, nil)
}

// NewWithDebug builds an executable that resolves names through db first
// and m second. A nil db behaves like New.
func NewWithDebug(c Container, m *mapping.Mapping, db resolve.Database) *Executable {
	return &Executable{
		sections: c.Sections(),
		width:    c.AddrWidth(),
		resolver: resolve.New(m, db),
	}
}

// AddrWidth returns the native address width in bytes.
func (e *Executable) AddrWidth() int { return e.width }

// Section returns the unique section containing addr.
func (e *Executable) Section(addr uint64) (container.Section, error) {
	var (
		found container.Section
		hits  int
	)
	for _, s := range e.sections {
		if !s.Contains(addr) {
			continue
		}
		if hits++; hits > 1 {
			return container.Section{}, fmt.Errorf("%w: %#x is in both %s and %s", ErrAmbiguousAddress, addr, found.Name, s.Name)
		}
		found = s
	}
	if hits == 0 {
		return container.Section{}, fmt.Errorf("%w: no section contains %#x", ErrAddressOutOfRange, addr)
	}
	return found, nil
}

// Offset translates a virtual address to a file offset.
func (e *Executable) Offset(addr uint64) (uint64, error) {
	s, err := e.Section(addr)
	if err != nil {
		return 0, err
	}
	return addr - s.Addr + s.Offset, nil
}

// Resolve reports where name lives without touching the image bytes.
func (e *Executable) Resolve(name string) (resolve.Resolution, bool) {
	return e.resolver.Resolve(name)
}

// Names returns every function name the executable can resolve.
func (e *Executable) Names() []string {
	return e.resolver.Names()
}

// GetFunction looks up name. A false result with a nil error means no
// source knows the name; an error means it resolved to an address the
// image cannot back.
func (e *Executable) GetFunction(name string) (*Function, bool, error) {
	r, ok := e.resolver.Resolve(name)
	if !ok {
		return nil, false, nil
	}

	sec, err := e.Section(r.Addr)
	if err != nil {
		return nil, true, fmt.Errorf("function %s: %w", name, err)
	}

	size := r.Size
	if size == 0 {
		size = e.inferSize(r.Addr, sec)
		slog.Debug("Inferred function size", "name", name, "addr", fmt.Sprintf("%#x", r.Addr), "size", size)
	}
	if end := r.Addr + size; end < r.Addr || end > sec.End() {
		return nil, true, fmt.Errorf("%w: function %s [%#x, %#x) runs past %s (ends %#x)",
			ErrAddressOutOfRange, name, r.Addr, r.Addr+size, sec.Name, sec.End())
	}

	start := r.Addr - sec.Addr
	return &Function{
		Name:    name,
		Addr:    r.Addr,
		Size:    size,
		Section: sec.Name,
		Source:  r.Source,
		Offset:  start + sec.Offset,
		code:    sec.Data[start : start+size : start+size],
	}, true, nil
}

// inferSize measures from addr to the next known symbol start in sec, or
// to the end of sec.
func (e *Executable) inferSize(addr uint64, sec container.Section) uint64 {
	if next, ok := e.resolver.Next(addr); ok && next < sec.End() {
		return next - addr
	}
	return sec.End() - addr
}

// Function is a resolved function. Its bytes alias the image.
type Function struct {
	Name    string
	Addr    uint64
	Size    uint64
	Section string
	Source  resolve.Source
	Offset  uint64 // file offset of the first byte

	code []byte
}

// Bytes returns the function's machine code. The slice aliases the image
// and must not be modified.
func (f *Function) Bytes() []byte { return f.code }

// Instructions streams the decoded instructions of f.
func (f *Function) Instructions(dec disasm.Decoder, cfg disasm.Config) iter.Seq2[disasm.Inst, error] {
	return disasm.Instructions(f.code, f.Addr, dec, cfg)
}

// Disassemble decodes all of f. See disasm.Disassemble for partial results.
func (f *Function) Disassemble(dec disasm.Decoder, cfg disasm.Config) (*disasm.Result, error) {
	return disasm.Disassemble(f.code, f.Addr, dec, cfg)
}

package debugdb

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fndisasm/internal/container"
)

// COFF symbol type for functions (DT_FUNCTION << 4).
const coffTypeFunction = 0x20

// Mach-O nlist type bits.
const (
	machoNStab = 0xe0
	machoNType = 0x0e
	machoNSect = 0x0e
)

// debugFile is the subset of the debug/* file types Parse needs.
type debugFile interface {
	DWARF() (*dwarf.Data, error)
}

// Parse reads a debug database from an ELF, PE or Mach-O file image. The
// image may be the executable itself or a separate debug file.
func Parse(data []byte) (*DB, error) {
	var (
		f      debugFile
		symtab func() ([]Symbol, error)
		err    error
	)
	format := container.Detect(data)
	reader := bytes.NewReader(data)
	switch format {
	case container.FormatELF:
		var ef *elf.File
		if ef, err = elf.NewFile(reader); err == nil {
			f, symtab = ef, func() ([]Symbol, error) { return elfSymbols(ef) }
		}
	case container.FormatPE:
		var pf *pe.File
		if pf, err = pe.NewFile(reader); err == nil {
			f, symtab = pf, func() ([]Symbol, error) { return peSymbols(pf) }
		}
	case container.FormatMachO:
		var mf *macho.File
		if mf, err = macho.NewFile(reader); err == nil {
			f, symtab = mf, func() ([]Symbol, error) { return machoSymbols(mf) }
		}
	default:
		return nil, fmt.Errorf("%w: unrecognized debug file format", container.ErrMalformedContainer)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", container.ErrMalformedContainer, format, err)
	}

	if d, err := f.DWARF(); err == nil {
		syms, err := dwarfSymbols(d)
		if err != nil {
			return nil, fmt.Errorf("read dwarf: %w", err)
		}
		if len(syms) > 0 {
			slog.Debug("Loaded DWARF subprograms", "count", len(syms))
			return New(syms...), nil
		}
	} else {
		slog.Debug("No DWARF data, falling back to symbol table", "format", format, "error", err)
	}

	syms, err := symtab()
	if err != nil {
		return nil, fmt.Errorf("read symbol table: %w", err)
	}
	if len(syms) == 0 {
		return nil, ErrNoSymbols
	}
	slog.Debug("Loaded symbol table", "format", format, "count", len(syms))
	return New(syms...), nil
}

// dwarfSymbols collects every subprogram with a code range.
func dwarfSymbols(d *dwarf.Data) ([]Symbol, error) {
	var syms []Symbol
	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}

		name, _ := e.Val(dwarf.AttrLinkageName).(string)
		if name == "" {
			name, _ = e.Val(dwarf.AttrName).(string)
		}
		if name == "" {
			continue
		}

		low, ok := e.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			// Split functions only carry DW_AT_ranges.
			if ranges, err := d.Ranges(e); err == nil && len(ranges) > 0 {
				syms = append(syms, Symbol{Name: name, Addr: ranges[0][0], Size: ranges[0][1] - ranges[0][0]})
			}
			continue
		}

		var size uint64
		if hf := e.AttrField(dwarf.AttrHighpc); hf != nil {
			switch hf.Class {
			case dwarf.ClassAddress:
				if high, ok := hf.Val.(uint64); ok && high > low {
					size = high - low
				}
			case dwarf.ClassConstant:
				if n, ok := hf.Val.(int64); ok && n > 0 {
					size = uint64(n)
				}
			}
		}
		syms = append(syms, Symbol{Name: name, Addr: low, Size: size})
	}
	return syms, nil
}

func elfSymbols(f *elf.File) ([]Symbol, error) {
	var syms []Symbol
	add := func(list []elf.Symbol) {
		for _, s := range list {
			if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 || s.Section == elf.SHN_UNDEF {
				continue
			}
			syms = append(syms, Symbol{Name: s.Name, Addr: s.Value, Size: s.Size})
		}
	}

	static, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, err
	}
	add(static)

	dynamic, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, err
	}
	add(dynamic)
	return syms, nil
}

func peSymbols(f *pe.File) ([]Symbol, error) {
	var base uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		base = uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		base = oh.ImageBase
	}

	var syms []Symbol
	for _, s := range f.Symbols {
		if s.SectionNumber <= 0 || int(s.SectionNumber) > len(f.Sections) || s.Type != coffTypeFunction {
			continue
		}
		sec := f.Sections[s.SectionNumber-1]
		syms = append(syms, Symbol{
			Name: s.Name,
			Addr: base + uint64(sec.VirtualAddress) + uint64(s.Value),
		})
	}
	return syms, nil
}

func machoSymbols(f *macho.File) ([]Symbol, error) {
	if f.Symtab == nil {
		return nil, nil
	}
	var syms []Symbol
	for _, s := range f.Symtab.Syms {
		if s.Type&machoNStab != 0 || s.Type&machoNType != machoNSect || s.Sect == 0 || int(s.Sect) > len(f.Sections) {
			continue
		}
		if f.Sections[s.Sect-1].Seg != "__TEXT" {
			continue
		}
		// C symbols carry a leading underscore in Mach-O.
		syms = append(syms, Symbol{Name: strings.TrimPrefix(s.Name, "_"), Addr: s.Value})
	}
	return syms, nil
}

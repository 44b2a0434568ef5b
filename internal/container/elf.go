package container

import (
	"bytes"
	"debug/elf"
	"fmt"
)

func parseELF(data []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open elf: %v", ErrMalformedContainer, err)
	}

	im := &Image{format: FormatELF, entry: f.Entry}
	switch f.Class {
	case elf.ELFCLASS32:
		im.width = 4
	case elf.ELFCLASS64:
		im.width = 8
	default:
		return nil, fmt.Errorf("%w: elf class %v", ErrMalformedContainer, f.Class)
	}
	switch f.Machine {
	case elf.EM_386:
		im.arch = Arch386
	case elf.EM_X86_64:
		im.arch = ArchAMD64
	case elf.EM_AARCH64:
		im.arch = ArchARM64
	}

	// Use true sections if present.
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS || s.Size == 0 {
			continue
		}
		raw, err := fileSlice(data, s.Offset, s.Size)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", s.Name, err)
		}
		im.sections = append(im.sections, Section{
			Name:   s.Name,
			Addr:   s.Addr,
			Size:   s.Size,
			Offset: s.Offset,
			Data:   raw,
		})
	}

	// Fallback if the section headers were stripped.
	if len(im.sections) == 0 {
		for _, p := range f.Progs {
			if p.Type != elf.PT_LOAD || p.Filesz == 0 {
				continue
			}
			raw, err := fileSlice(data, p.Off, p.Filesz)
			if err != nil {
				return nil, fmt.Errorf("segment at %#x: %w", p.Vaddr, err)
			}
			im.sections = append(im.sections, Section{
				Name:   loadName(p.Flags),
				Addr:   p.Vaddr,
				Size:   p.Filesz,
				Offset: p.Off,
				Data:   raw,
			})
		}
	}
	return im, nil
}

func loadName(flags elf.ProgFlag) string {
	switch {
	case flags&elf.PF_X != 0:
		return "LOAD(exec)"
	case flags&elf.PF_W != 0:
		return "LOAD(rw)"
	default:
		return "LOAD(ro)"
	}
}

package container

import (
	"bytes"
	"debug/macho"
	"fmt"
)

// Section types without file contents.
const (
	machoZerofill            = 0x1
	machoGBZerofill          = 0xc
	machoThreadLocalZerofill = 0x12
	machoSectionTypeMask     = 0xff
)

func parseMachO(data []byte) (*Image, error) {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open macho: %v", ErrMalformedContainer, err)
	}

	im := &Image{format: FormatMachO, width: 4}
	if f.Magic == macho.Magic64 {
		im.width = 8
	}
	switch f.Cpu {
	case macho.Cpu386:
		im.arch = Arch386
	case macho.CpuAmd64:
		im.arch = ArchAMD64
	case macho.CpuArm64:
		im.arch = ArchARM64
	}

	for _, s := range f.Sections {
		switch s.Flags & machoSectionTypeMask {
		case machoZerofill, machoGBZerofill, machoThreadLocalZerofill:
			continue
		}
		if s.Size == 0 || s.Offset == 0 {
			continue
		}
		raw, err := fileSlice(data, uint64(s.Offset), s.Size)
		if err != nil {
			return nil, fmt.Errorf("section %s,%s: %w", s.Seg, s.Name, err)
		}
		im.sections = append(im.sections, Section{
			Name:   s.Seg + "," + s.Name,
			Addr:   s.Addr,
			Size:   s.Size,
			Offset: uint64(s.Offset),
			Data:   raw,
		})
	}
	return im, nil
}

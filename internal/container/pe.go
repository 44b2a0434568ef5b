package container

import (
	"bytes"
	"debug/pe"
	"fmt"
)

func parsePE(data []byte) (*Image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open pe: %v", ErrMalformedContainer, err)
	}

	im := &Image{format: FormatPE}
	switch f.FileHeader.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		im.arch, im.width = Arch386, 4
	case pe.IMAGE_FILE_MACHINE_AMD64:
		im.arch, im.width = ArchAMD64, 8
	case pe.IMAGE_FILE_MACHINE_ARM64:
		im.arch, im.width = ArchARM64, 8
	default:
		im.width = 4
	}

	// Section addresses in the headers are RVAs.
	var base uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		base = uint64(oh.ImageBase)
		im.width = 4
		im.entry = base + uint64(oh.AddressOfEntryPoint)
	case *pe.OptionalHeader64:
		base = oh.ImageBase
		im.width = 8
		im.entry = base + uint64(oh.AddressOfEntryPoint)
	}

	for _, s := range f.Sections {
		// Uninitialized data has no raw bytes.
		if s.Size == 0 || s.Offset == 0 {
			continue
		}
		size := uint64(s.Size)
		if s.VirtualSize != 0 && uint64(s.VirtualSize) < size {
			// Raw data is padded to the file alignment.
			size = uint64(s.VirtualSize)
		}
		raw, err := fileSlice(data, uint64(s.Offset), size)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", s.Name, err)
		}
		im.sections = append(im.sections, Section{
			Name:   s.Name,
			Addr:   base + uint64(s.VirtualAddress),
			Size:   size,
			Offset: uint64(s.Offset),
			Data:   raw,
		})
	}
	return im, nil
}

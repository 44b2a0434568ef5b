package containertest

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"strings"
)

// MachO describes a synthetic little-endian Mach-O executable. Section
// names are "segment,section", for example "__TEXT,__text".
type MachO struct {
	Cpu      macho.Cpu
	Sections []Section
	Symbols  []Symbol
}

const (
	machoSectionZerofill = 0x1
	machoNSectExt        = 0x0e | 0x01 // N_SECT | N_EXT
)

// Build renders the image with one segment command per section. amd64 and
// arm64 images use the 64-bit layouts.
func (m MachO) Build() []byte {
	le := binary.LittleEndian
	is64 := m.Cpu == macho.CpuAmd64 || m.Cpu == macho.CpuArm64
	hdrLen, segLen, sectLen, nlistLen := 28, 56, 68, 12
	if is64 {
		hdrLen, segLen, sectLen, nlistLen = 32, 72, 80, 16
	}
	const symtabLen = 24

	cmdsLen := (segLen + sectLen) * len(m.Sections)
	ncmds := len(m.Sections)
	if len(m.Symbols) > 0 {
		cmdsLen += symtabLen
		ncmds++
	}
	dataStart := hdrLen + cmdsLen

	var body bytes.Buffer
	offsets := make([]uint64, len(m.Sections))
	for i, s := range m.Sections {
		if s.Data == nil {
			continue
		}
		pad(&body, dataStart, 16)
		offsets[i] = uint64(dataStart + body.Len())
		body.Write(s.Data)
	}

	var symOff, strOff, strLen int
	if len(m.Symbols) > 0 {
		strtab := bytes.NewBuffer([]byte{0})
		pad(&body, dataStart, 8)
		symOff = dataStart + body.Len()
		for _, sym := range m.Symbols {
			nl := make([]byte, nlistLen)
			le.PutUint32(nl[0:], uint32(strtab.Len()))
			nl[4] = machoNSectExt
			nl[5] = byte(sym.Section)
			if is64 {
				le.PutUint64(nl[8:], sym.Value)
			} else {
				le.PutUint32(nl[8:], uint32(sym.Value))
			}
			body.Write(nl)
			strtab.WriteString(sym.Name)
			strtab.WriteByte(0)
		}
		strOff = dataStart + body.Len()
		strLen = strtab.Len()
		body.Write(strtab.Bytes())
	}

	var out bytes.Buffer
	put32 := func(v uint32) { out.Write(le.AppendUint32(nil, v)) }
	putWord := func(v uint64) {
		if is64 {
			out.Write(le.AppendUint64(nil, v))
		} else {
			put32(uint32(v))
		}
	}
	name16 := func(s string) {
		var b [16]byte
		copy(b[:], s)
		out.Write(b[:])
	}

	magic := macho.Magic32
	if is64 {
		magic = macho.Magic64
	}
	put32(magic)
	put32(uint32(m.Cpu))
	put32(0) // cpusubtype
	put32(uint32(macho.TypeExec))
	put32(uint32(ncmds))
	put32(uint32(cmdsLen))
	put32(0) // flags
	if is64 {
		put32(0) // reserved
	}

	for i, s := range m.Sections {
		seg, sect, _ := strings.Cut(s.Name, ",")
		size, fileSize := uint64(len(s.Data)), uint64(len(s.Data))
		var flags uint32
		if s.Data == nil {
			size, fileSize = s.Zero, 0
			flags = machoSectionZerofill
		}

		cmd := macho.LoadCmdSegment
		if is64 {
			cmd = macho.LoadCmdSegment64
		}
		put32(uint32(cmd))
		put32(uint32(segLen + sectLen))
		name16(seg)
		putWord(s.Addr)
		putWord(size)
		putWord(offsets[i])
		putWord(fileSize)
		put32(7) // maxprot
		put32(5) // initprot
		put32(1) // nsects
		put32(0) // flags

		name16(sect)
		name16(seg)
		putWord(s.Addr)
		putWord(size)
		put32(uint32(offsets[i]))
		put32(0) // align
		put32(0) // reloff
		put32(0) // nreloc
		put32(flags)
		put32(0)
		put32(0)
		if is64 {
			put32(0)
		}
	}

	if len(m.Symbols) > 0 {
		put32(uint32(macho.LoadCmdSymtab))
		put32(symtabLen)
		put32(uint32(symOff))
		put32(uint32(len(m.Symbols)))
		put32(uint32(strOff))
		put32(uint32(strLen))
	}

	out.Write(body.Bytes())
	return out.Bytes()
}

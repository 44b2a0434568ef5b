// Package containertest builds small synthetic executable images for tests.
package containertest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Section describes one section of a synthetic image.
type Section struct {
	Name  string
	Addr  uint64
	Data  []byte
	Exec  bool
	Write bool

	// Debug marks an ELF section that is not loaded, such as .debug_info.
	Debug bool
	// Zero is the size of a PE or Mach-O section with no file contents.
	// Data must be nil.
	Zero uint64
}

// Symbol is a symbol table entry of a PE or Mach-O image. Section is the
// 1-based section ordinal. Value is section-relative for PE and an
// absolute address for Mach-O.
type Symbol struct {
	Name    string
	Section int
	Value   uint64
	Func    bool
}

// ELF describes a synthetic little-endian ELF executable.
type ELF struct {
	Class   elf.Class
	Machine elf.Machine
	Entry   uint64

	Sections []Section

	// StripSections omits the section header table and emits one PT_LOAD
	// segment per section instead.
	StripSections bool
}

// Build renders the image.
func (e ELF) Build() []byte {
	is64 := e.Class != elf.ELFCLASS32
	ehsize, shentsize, phentsize := 52, 40, 32
	if is64 {
		ehsize, shentsize, phentsize = 64, 64, 56
	}

	var body bytes.Buffer
	offsets := make([]uint64, len(e.Sections))
	for i, s := range e.Sections {
		pad(&body, ehsize, 16)
		offsets[i] = uint64(ehsize + body.Len())
		body.Write(s.Data)
	}

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	nameOff := make([]uint32, len(e.Sections))
	for i, s := range e.Sections {
		nameOff[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(s.Name)
		shstrtab.WriteByte(0)
	}
	shstrName := uint32(shstrtab.Len())
	shstrtab.WriteString(".shstrtab\x00")

	var (
		shoff, phoff        uint64
		shnum, phnum, shstr int
	)
	if e.StripSections {
		pad(&body, ehsize, 8)
		phoff = uint64(ehsize + body.Len())
		phnum = len(e.Sections)
		for i, s := range e.Sections {
			flags := elf.PF_R
			if s.Exec {
				flags |= elf.PF_X
			}
			if s.Write {
				flags |= elf.PF_W
			}
			writeProg(&body, is64, uint32(flags), offsets[i], s.Addr, uint64(len(s.Data)))
		}
	} else {
		shstrOff := uint64(ehsize + body.Len())
		body.Write(shstrtab.Bytes())
		pad(&body, ehsize, 8)
		shoff = uint64(ehsize + body.Len())
		shnum = len(e.Sections) + 2
		shstr = shnum - 1

		// SHN_UNDEF
		body.Write(make([]byte, shentsize))
		for i, s := range e.Sections {
			flags := uint64(elf.SHF_ALLOC)
			if s.Debug {
				flags = 0
			}
			if s.Exec {
				flags |= uint64(elf.SHF_EXECINSTR)
			}
			if s.Write {
				flags |= uint64(elf.SHF_WRITE)
			}
			writeSection(&body, is64, nameOff[i], uint32(elf.SHT_PROGBITS), flags, s.Addr, offsets[i], uint64(len(s.Data)))
		}
		writeSection(&body, is64, shstrName, uint32(elf.SHT_STRTAB), 0, 0, shstrOff, uint64(shstrtab.Len()))
	}

	var out bytes.Buffer
	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)}
	if !is64 {
		ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	}
	out.Write(ident[:])
	le := binary.LittleEndian
	put16 := func(v int) { out.Write(le.AppendUint16(nil, uint16(v))) }
	put32 := func(v uint32) { out.Write(le.AppendUint32(nil, v)) }
	putAddr := func(v uint64) {
		if is64 {
			out.Write(le.AppendUint64(nil, v))
		} else {
			put32(uint32(v))
		}
	}
	put16(int(elf.ET_EXEC))
	put16(int(e.Machine))
	put32(uint32(elf.EV_CURRENT))
	putAddr(e.Entry)
	putAddr(phoff)
	putAddr(shoff)
	put32(0) // flags
	put16(ehsize)
	put16(phentsize)
	put16(phnum)
	put16(shentsize)
	put16(shnum)
	put16(shstr)
	out.Write(body.Bytes())
	return out.Bytes()
}

// pad grows b so that base+b.Len() is a multiple of align.
func pad(b *bytes.Buffer, base, align int) {
	for (base+b.Len())%align != 0 {
		b.WriteByte(0)
	}
}

func writeSection(b *bytes.Buffer, is64 bool, name, typ uint32, flags, addr, off, size uint64) {
	le := binary.LittleEndian
	if is64 {
		var h [64]byte
		le.PutUint32(h[0:], name)
		le.PutUint32(h[4:], typ)
		le.PutUint64(h[8:], flags)
		le.PutUint64(h[16:], addr)
		le.PutUint64(h[24:], off)
		le.PutUint64(h[32:], size)
		le.PutUint64(h[48:], 1) // addralign
		b.Write(h[:])
		return
	}
	var h [40]byte
	le.PutUint32(h[0:], name)
	le.PutUint32(h[4:], typ)
	le.PutUint32(h[8:], uint32(flags))
	le.PutUint32(h[12:], uint32(addr))
	le.PutUint32(h[16:], uint32(off))
	le.PutUint32(h[20:], uint32(size))
	le.PutUint32(h[32:], 1) // addralign
	b.Write(h[:])
}

func writeProg(b *bytes.Buffer, is64 bool, flags uint32, off, addr, size uint64) {
	le := binary.LittleEndian
	if is64 {
		var h [56]byte
		le.PutUint32(h[0:], uint32(elf.PT_LOAD))
		le.PutUint32(h[4:], flags)
		le.PutUint64(h[8:], off)
		le.PutUint64(h[16:], addr)
		le.PutUint64(h[24:], addr)
		le.PutUint64(h[32:], size)
		le.PutUint64(h[40:], size)
		le.PutUint64(h[48:], 1)
		b.Write(h[:])
		return
	}
	var h [32]byte
	le.PutUint32(h[0:], uint32(elf.PT_LOAD))
	le.PutUint32(h[4:], uint32(off))
	le.PutUint32(h[8:], uint32(addr))
	le.PutUint32(h[12:], uint32(addr))
	le.PutUint32(h[16:], uint32(size))
	le.PutUint32(h[20:], uint32(size))
	le.PutUint32(h[24:], flags)
	le.PutUint32(h[28:], 1)
	b.Write(h[:])
}

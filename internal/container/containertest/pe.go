package containertest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
)

// PE describes a synthetic PE/COFF executable. Section addresses and the
// entry point are RVAs.
type PE struct {
	Machine   uint16
	ImageBase uint64
	Entry     uint32

	Sections []Section
	Symbols  []Symbol
}

const (
	peHeaderOffset  = 0x40
	peFileHeaderLen = 20
	peSectionLen    = 40
	coffSymbolLen   = 18
)

// Build renders the image. PE32+ is used for 64-bit machines.
func (p PE) Build() []byte {
	le := binary.LittleEndian
	is64 := p.Machine == pe.IMAGE_FILE_MACHINE_AMD64 || p.Machine == pe.IMAGE_FILE_MACHINE_ARM64
	optLen := 96
	if is64 {
		optLen = 112
	}
	hdrEnd := peHeaderOffset + 4 + peFileHeaderLen + optLen + peSectionLen*len(p.Sections)

	var body bytes.Buffer
	offsets := make([]uint32, len(p.Sections))
	for i, s := range p.Sections {
		if s.Data == nil {
			continue
		}
		pad(&body, hdrEnd, 16)
		offsets[i] = uint32(hdrEnd + body.Len())
		body.Write(s.Data)
	}

	var symOff uint32
	if len(p.Symbols) > 0 {
		pad(&body, hdrEnd, 4)
		symOff = uint32(hdrEnd + body.Len())
		// The string table length includes its own four bytes.
		strtab := bytes.NewBuffer(make([]byte, 4))
		for _, sym := range p.Symbols {
			var rec [coffSymbolLen]byte
			if len(sym.Name) <= 8 {
				copy(rec[:8], sym.Name)
			} else {
				le.PutUint32(rec[4:], uint32(strtab.Len()))
				strtab.WriteString(sym.Name)
				strtab.WriteByte(0)
			}
			le.PutUint32(rec[8:], uint32(sym.Value))
			le.PutUint16(rec[12:], uint16(sym.Section))
			if sym.Func {
				le.PutUint16(rec[14:], 0x20)
			}
			rec[16] = 2 // IMAGE_SYM_CLASS_EXTERNAL
			body.Write(rec[:])
		}
		st := strtab.Bytes()
		le.PutUint32(st, uint32(len(st)))
		body.Write(st)
	}

	var out bytes.Buffer
	dos := make([]byte, peHeaderOffset)
	dos[0], dos[1] = 'M', 'Z'
	le.PutUint32(dos[0x3c:], peHeaderOffset)
	out.Write(dos)
	out.WriteString("PE\x00\x00")

	var fh [peFileHeaderLen]byte
	le.PutUint16(fh[0:], p.Machine)
	le.PutUint16(fh[2:], uint16(len(p.Sections)))
	le.PutUint32(fh[8:], symOff)
	le.PutUint32(fh[12:], uint32(len(p.Symbols)))
	le.PutUint16(fh[16:], uint16(optLen))
	le.PutUint16(fh[18:], pe.IMAGE_FILE_EXECUTABLE_IMAGE)
	out.Write(fh[:])

	// Optional header without data directories.
	opt := make([]byte, optLen)
	le.PutUint32(opt[16:], p.Entry)
	if is64 {
		le.PutUint16(opt[0:], 0x20b)
		le.PutUint64(opt[24:], p.ImageBase)
	} else {
		le.PutUint16(opt[0:], 0x10b)
		le.PutUint32(opt[28:], uint32(p.ImageBase))
	}
	le.PutUint32(opt[32:], 0x1000) // SectionAlignment
	le.PutUint32(opt[36:], 0x200)  // FileAlignment
	out.Write(opt)

	for i, s := range p.Sections {
		var sh [peSectionLen]byte
		copy(sh[:8], s.Name)
		virtual := uint32(len(s.Data))
		chars := uint32(pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ)
		switch {
		case s.Data == nil:
			virtual = uint32(s.Zero)
			chars = pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE
		case s.Exec:
			chars = pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ
		case s.Write:
			chars |= pe.IMAGE_SCN_MEM_WRITE
		}
		le.PutUint32(sh[8:], virtual)
		le.PutUint32(sh[12:], uint32(s.Addr))
		le.PutUint32(sh[16:], uint32(len(s.Data)))
		le.PutUint32(sh[20:], offsets[i])
		le.PutUint32(sh[36:], chars)
		out.Write(sh[:])
	}

	out.Write(body.Bytes())
	return out.Bytes()
}

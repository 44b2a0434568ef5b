package containertest

import (
	"bytes"
	"encoding/binary"
)

// Subprogram is a DW_TAG_subprogram entry. With LinkageName set the entry
// also carries DW_AT_linkage_name and encodes High as an address; otherwise
// High is written as a length. A zero Low and High leaves out the code range.
type Subprogram struct {
	Name        string
	LinkageName string
	Low, High   uint64
}

// DWARF4 builds .debug_abbrev and .debug_info holding one compile unit with
// the given subprograms. addrSize is 4 or 8.
func DWARF4(addrSize int, subprograms ...Subprogram) []Section {
	const (
		tagCompileUnit = 0x11
		tagSubprogram  = 0x2e
		atName         = 0x03
		atLowpc        = 0x11
		atHighpc       = 0x12
		atLinkageName  = 0x6e
		formAddr       = 0x01
		formData4      = 0x06
		formString     = 0x08
	)
	const (
		abbrevUnit = 1 + iota
		abbrevSized
		abbrevLinked
		abbrevDecl
	)

	abbrev := []byte{
		abbrevUnit, tagCompileUnit, 1, atName, formString, 0, 0,
		abbrevSized, tagSubprogram, 0, atName, formString, atLowpc, formAddr, atHighpc, formData4, 0, 0,
		abbrevLinked, tagSubprogram, 0, atLinkageName, formString, atName, formString, atLowpc, formAddr, atHighpc, formAddr, 0, 0,
		abbrevDecl, tagSubprogram, 0, atName, formString, 0, 0,
		0,
	}

	le := binary.LittleEndian
	var dies bytes.Buffer
	cstring := func(s string) {
		dies.WriteString(s)
		dies.WriteByte(0)
	}
	addr := func(v uint64) {
		if addrSize == 8 {
			dies.Write(le.AppendUint64(nil, v))
		} else {
			dies.Write(le.AppendUint32(nil, uint32(v)))
		}
	}

	dies.WriteByte(abbrevUnit)
	cstring("synthetic.c")
	for _, sp := range subprograms {
		switch {
		case sp.Low == 0 && sp.High == 0:
			dies.WriteByte(abbrevDecl)
			cstring(sp.Name)
		case sp.LinkageName != "":
			dies.WriteByte(abbrevLinked)
			cstring(sp.LinkageName)
			cstring(sp.Name)
			addr(sp.Low)
			addr(sp.High)
		default:
			dies.WriteByte(abbrevSized)
			cstring(sp.Name)
			addr(sp.Low)
			dies.Write(le.AppendUint32(nil, uint32(sp.High-sp.Low)))
		}
	}
	dies.WriteByte(0) // end of the unit's children

	var info bytes.Buffer
	// unit_length counts everything after itself: version, abbrev offset,
	// address size and the entries.
	info.Write(le.AppendUint32(nil, uint32(2+4+1+dies.Len())))
	info.Write(le.AppendUint16(nil, 4))
	info.Write(le.AppendUint32(nil, 0))
	info.WriteByte(byte(addrSize))
	info.Write(dies.Bytes())

	return []Section{
		{Name: ".debug_abbrev", Data: abbrev, Debug: true},
		{Name: ".debug_info", Data: info.Bytes(), Debug: true},
	}
}

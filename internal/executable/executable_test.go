package executable

import (
	"bytes"
	"debug/elf"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fndisasm/internal/container"
	"fndisasm/internal/container/containertest"
	"fndisasm/internal/debugdb"
	"fndisasm/internal/disasm"
	"fndisasm/internal/mapping"
	"fndisasm/internal/resolve"
)

type fakeImage struct {
	sections []container.Section
	width    int
}

func (f fakeImage) Sections() []container.Section { return f.sections }
func (f fakeImage) AddrWidth() int                { return f.width }

func section(name string, addr, off uint64, size int) container.Section {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return container.Section{Name: name, Addr: addr, Size: uint64(size), Offset: off, Data: data}
}

func mustMapping(t *testing.T, text string) *mapping.Mapping {
	t.Helper()
	m, err := mapping.Parse(text)
	if err != nil {
		t.Fatalf("mapping.Parse() error = %v", err)
	}
	return m
}

func TestSectionTranslation(t *testing.T) {
	exe := New(fakeImage{
		sections: []container.Section{
			section(".text", 0x1000, 0x400, 0x100),
			section(".data", 0x2000, 0x600, 0x100),
		},
		width: 4,
	}, nil)

	tests := []struct {
		name    string
		addr    uint64
		section string
		offset  uint64
		err     error
	}{
		{"text start", 0x1000, ".text", 0x400, nil},
		{"inside text", 0x1050, ".text", 0x450, nil},
		{"last data byte", 0x20ff, ".data", 0x6ff, nil},
		{"gap between sections", 0x1500, "", 0, ErrAddressOutOfRange},
		{"one past text", 0x1100, "", 0, ErrAddressOutOfRange},
		{"below everything", 0x10, "", 0, ErrAddressOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := exe.Section(tt.addr)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Section(%#x) error = %v, want %v", tt.addr, err, tt.err)
			}
			if err != nil {
				return
			}
			if s.Name != tt.section {
				t.Errorf("Section(%#x) = %s, want %s", tt.addr, s.Name, tt.section)
			}
			off, err := exe.Offset(tt.addr)
			if err != nil || off != tt.offset {
				t.Errorf("Offset(%#x) = %#x, %v; want %#x", tt.addr, off, err, tt.offset)
			}
		})
	}
}

func TestAmbiguousAddress(t *testing.T) {
	exe := New(fakeImage{
		sections: []container.Section{
			section("a", 0x1000, 0, 0x100),
			section("b", 0x1080, 0x100, 0x100),
		},
		width: 4,
	}, nil)

	if _, err := exe.Section(0x1090); !errors.Is(err, ErrAmbiguousAddress) {
		t.Errorf("Section(0x1090) error = %v, want ErrAmbiguousAddress", err)
	}
	if _, err := exe.Offset(0x1090); !errors.Is(err, ErrAmbiguousAddress) {
		t.Errorf("Offset(0x1090) error = %v, want ErrAmbiguousAddress", err)
	}
	if s, err := exe.Section(0x1010); err != nil || s.Name != "a" {
		t.Errorf("Section(0x1010) = %s, %v; want a", s.Name, err)
	}
}

func TestGetFunctionPrecedence(t *testing.T) {
	img := fakeImage{sections: []container.Section{section(".text", 0x1000, 0x400, 0x100)}, width: 4}
	m := mustMapping(t, `
[[function]]
name = "main"
address = 0x1000
size = 0x10

[[function]]
name = "helper"
address = 0x1040
size = 0x8
`)
	db := debugdb.New(debugdb.Symbol{Name: "main", Addr: 0x1020, Size: 0x20})

	exe := NewWithDebug(img, m, db)

	fn, ok, err := exe.GetFunction("main")
	if err != nil || !ok {
		t.Fatalf("GetFunction(main) = %v, %v", ok, err)
	}
	if fn.Addr != 0x1020 || fn.Size != 0x20 || fn.Source != resolve.SourceDebug {
		t.Errorf("main = %#x+%#x from %v, want debug 0x1020+0x20", fn.Addr, fn.Size, fn.Source)
	}

	fn, ok, err = exe.GetFunction("helper")
	if err != nil || !ok {
		t.Fatalf("GetFunction(helper) = %v, %v", ok, err)
	}
	if fn.Addr != 0x1040 || fn.Size != 0x8 || fn.Source != resolve.SourceMapping {
		t.Errorf("helper = %#x+%#x from %v, want mapping 0x1040+0x8", fn.Addr, fn.Size, fn.Source)
	}
	if fn.Offset != 0x440 {
		t.Errorf("helper Offset = %#x, want 0x440", fn.Offset)
	}
	if want := img.sections[0].Data[0x40:0x48]; !bytes.Equal(fn.Bytes(), want) {
		t.Errorf("helper Bytes() = % x, want % x", fn.Bytes(), want)
	}
}

func TestGetFunctionNotFound(t *testing.T) {
	exe := New(fakeImage{sections: []container.Section{section(".text", 0x1000, 0, 0x10)}, width: 4},
		mustMapping(t, "[[function]]\nname = \"main\"\naddress = 0x1000\n"))

	fn, ok, err := exe.GetFunction("nope")
	if fn != nil || ok || err != nil {
		t.Errorf("GetFunction(nope) = %v, %v, %v; want nil, false, nil", fn, ok, err)
	}

	// A failed lookup leaves the executable usable.
	if _, ok, err := exe.GetFunction("main"); !ok || err != nil {
		t.Errorf("GetFunction(main) after miss = %v, %v", ok, err)
	}
}

func TestGetFunctionOutOfRange(t *testing.T) {
	exe := New(fakeImage{sections: []container.Section{section(".text", 0x1000, 0, 0x10)}, width: 4},
		mustMapping(t, `
[[function]]
name = "nowhere"
address = 0x9000

[[function]]
name = "spills"
address = 0x1008
size = 0x10
`))

	for _, name := range []string{"nowhere", "spills"} {
		_, ok, err := exe.GetFunction(name)
		if !ok {
			t.Errorf("GetFunction(%s) not found, want resolved", name)
		}
		if !errors.Is(err, ErrAddressOutOfRange) {
			t.Errorf("GetFunction(%s) error = %v, want ErrAddressOutOfRange", name, err)
		}
	}
}

func TestSizeInference(t *testing.T) {
	img := fakeImage{
		sections: []container.Section{
			section(".text", 0x1000, 0, 0x100),
			section(".text2", 0x2000, 0x100, 0x40),
		},
		width: 8,
	}
	m := mustMapping(t, `
[[function]]
name = "first"
address = 0x1000

[[function]]
name = "last"
address = 0x10c0

[[function]]
name = "other"
address = 0x2000
`)
	db := debugdb.New(debugdb.Symbol{Name: "between", Addr: 0x1030})
	exe := NewWithDebug(img, m, db)

	tests := map[string]uint64{
		"first":   0x30, // up to the debug symbol
		"between": 0x90, // up to the mapping entry "last"
		"last":    0x40, // up to the end of .text, not into .text2
		"other":   0x40, // alone in .text2
	}
	for name, want := range tests {
		fn, ok, err := exe.GetFunction(name)
		if err != nil || !ok {
			t.Fatalf("GetFunction(%s) = %v, %v", name, ok, err)
		}
		if fn.Size != want {
			t.Errorf("%s size = %#x, want %#x", name, fn.Size, want)
		}
		if uint64(len(fn.Bytes())) != want {
			t.Errorf("%s has %d bytes, want %#x", name, len(fn.Bytes()), want)
		}
	}
}

func TestNames(t *testing.T) {
	exe := NewWithDebug(fakeImage{width: 4},
		mustMapping(t, "[[function]]\nname = \"b\"\naddress = 0x10\n"),
		debugdb.New(debugdb.Symbol{Name: "a", Addr: 0x20}))
	if diff := cmp.Diff([]string{"a", "b"}, exe.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestDisassembleMain(t *testing.T) {
	text := make([]byte, 16)
	text[0] = 0xc3
	for i := 1; i < len(text); i++ {
		text[i] = 0xcc
	}
	raw := containertest.ELF{
		Class:   elf.ELFCLASS32,
		Machine: elf.EM_386,
		Sections: []containertest.Section{
			{Name: ".text", Addr: 0x1000, Data: text, Exec: true},
		},
	}.Build()
	img, err := container.Parse(raw)
	if err != nil {
		t.Fatalf("container.Parse() error = %v", err)
	}

	exe := New(img, mustMapping(t, "[[function]]\nname = \"main\"\naddress = 0x1000\nsize = 16\n"))
	fn, ok, err := exe.GetFunction("main")
	if err != nil || !ok {
		t.Fatalf("GetFunction(main) = %v, %v", ok, err)
	}
	if !bytes.Equal(raw[fn.Offset:fn.Offset+fn.Size], text) {
		t.Errorf("Offset %#x does not point at the function bytes", fn.Offset)
	}

	cfg := disasm.Config{Mode: disasm.ModeForArch(img.Arch())}
	dec, err := disasm.NewDecoder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := fn.Disassemble(dec, cfg)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if len(res.Insts) != 16 {
		t.Fatalf("decoded %d instructions, want 16", len(res.Insts))
	}
	first := res.Insts[0]
	if first.VA != 0x1000 || first.Op != "ret" || !bytes.Equal(first.Raw, []byte{0xc3}) {
		t.Errorf("first instruction = %+v, want ret at 0x1000", first)
	}

	n := 0
	for inst, err := range fn.Instructions(dec, cfg) {
		if err != nil {
			t.Fatal(err)
		}
		if inst.VA != 0x1000+uint64(n) {
			t.Errorf("streamed inst %d at %#x", n, inst.VA)
		}
		n++
	}
	if n != 16 {
		t.Errorf("streamed %d instructions, want 16", n)
	}
}

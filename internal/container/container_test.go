package container_test

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fndisasm/internal/container"
	"fndisasm/internal/container/containertest"
)

type sectionSummary struct {
	Name string
	Addr uint64
	Size uint64
}

func summarize(im *container.Image) []sectionSummary {
	var out []sectionSummary
	for _, s := range im.Sections() {
		out = append(out, sectionSummary{s.Name, s.Addr, s.Size})
	}
	return out
}

func TestParseELF(t *testing.T) {
	text := []byte{0x55, 0x89, 0xe5, 0x5d, 0xc3}
	rodata := []byte("hello\x00")
	img := containertest.ELF{
		Class:   elf.ELFCLASS32,
		Machine: elf.EM_386,
		Entry:   0x1000,
		Sections: []containertest.Section{
			{Name: ".text", Addr: 0x1000, Data: text, Exec: true},
			{Name: ".rodata", Addr: 0x2000, Data: rodata},
		},
	}.Build()

	im, err := container.Parse(img)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if im.Format() != container.FormatELF {
		t.Errorf("Format() = %v, want elf", im.Format())
	}
	if im.Arch() != container.Arch386 {
		t.Errorf("Arch() = %q, want %q", im.Arch(), container.Arch386)
	}
	if im.AddrWidth() != 4 {
		t.Errorf("AddrWidth() = %d, want 4", im.AddrWidth())
	}
	if im.Entry() != 0x1000 {
		t.Errorf("Entry() = %#x, want 0x1000", im.Entry())
	}

	want := []sectionSummary{
		{".text", 0x1000, uint64(len(text))},
		{".rodata", 0x2000, uint64(len(rodata))},
	}
	if diff := cmp.Diff(want, summarize(im)); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	s := im.Sections()[0]
	if !bytes.Equal(s.Data, text) {
		t.Errorf(".text data = % x, want % x", s.Data, text)
	}
	if !bytes.Equal(img[s.Offset:s.Offset+s.Size], text) {
		t.Errorf(".text offset %#x does not point at its bytes", s.Offset)
	}
}

func TestParseELFStripped(t *testing.T) {
	img := containertest.ELF{
		Class:         elf.ELFCLASS64,
		Machine:       elf.EM_AARCH64,
		StripSections: true,
		Sections: []containertest.Section{
			{Name: ".text", Addr: 0x400000, Data: make([]byte, 32), Exec: true},
			{Name: ".data", Addr: 0x410000, Data: make([]byte, 16), Write: true},
		},
	}.Build()

	im, err := container.Parse(img)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if im.Arch() != container.ArchARM64 || im.AddrWidth() != 8 {
		t.Errorf("Arch() = %q, AddrWidth() = %d", im.Arch(), im.AddrWidth())
	}
	want := []sectionSummary{
		{"LOAD(exec)", 0x400000, 32},
		{"LOAD(rw)", 0x410000, 16},
	}
	if diff := cmp.Diff(want, summarize(im)); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePE(t *testing.T) {
	text := []byte{0x55, 0x48, 0x89, 0xe5, 0x5d, 0xc3}
	data := []byte{1, 2, 3, 4}
	tests := []struct {
		name    string
		machine uint16
		base    uint64
		arch    container.Arch
		width   int
	}{
		{"pe32", pe.IMAGE_FILE_MACHINE_I386, 0x400000, container.Arch386, 4},
		{"pe32+", pe.IMAGE_FILE_MACHINE_AMD64, 0x140000000, container.ArchAMD64, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := containertest.PE{
				Machine:   tt.machine,
				ImageBase: tt.base,
				Entry:     0x1000,
				Sections: []containertest.Section{
					{Name: ".text", Addr: 0x1000, Data: text, Exec: true},
					{Name: ".bss", Addr: 0x2000, Zero: 0x100},
					{Name: ".data", Addr: 0x3000, Data: data, Write: true},
				},
			}.Build()

			im, err := container.Parse(img)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if im.Format() != container.FormatPE {
				t.Errorf("Format() = %v, want pe", im.Format())
			}
			if im.Arch() != tt.arch || im.AddrWidth() != tt.width {
				t.Errorf("Arch() = %q, AddrWidth() = %d; want %q, %d", im.Arch(), im.AddrWidth(), tt.arch, tt.width)
			}
			if im.Entry() != tt.base+0x1000 {
				t.Errorf("Entry() = %#x, want %#x", im.Entry(), tt.base+0x1000)
			}

			// RVAs are rebased on the image base and .bss has no file bytes.
			want := []sectionSummary{
				{".text", tt.base + 0x1000, uint64(len(text))},
				{".data", tt.base + 0x3000, uint64(len(data))},
			}
			if diff := cmp.Diff(want, summarize(im)); diff != "" {
				t.Errorf("sections mismatch (-want +got):\n%s", diff)
			}
			for i, wantData := range [][]byte{text, data} {
				s := im.Sections()[i]
				if !bytes.Equal(img[s.Offset:s.Offset+s.Size], wantData) || !bytes.Equal(s.Data, wantData) {
					t.Errorf("%s offset %#x does not point at its bytes", s.Name, s.Offset)
				}
			}
		})
	}
}

func TestParseMachO(t *testing.T) {
	text := []byte{0xc0, 0x03, 0x5f, 0xd6}
	cstr := []byte("hi\x00")
	tests := []struct {
		name  string
		cpu   macho.Cpu
		arch  container.Arch
		width int
		base  uint64
	}{
		{"arm64", macho.CpuArm64, container.ArchARM64, 8, 0x100000000},
		{"386", macho.Cpu386, container.Arch386, 4, 0x1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := containertest.MachO{
				Cpu: tt.cpu,
				Sections: []containertest.Section{
					{Name: "__TEXT,__text", Addr: tt.base + 0x1000, Data: text, Exec: true},
					{Name: "__TEXT,__cstring", Addr: tt.base + 0x1004, Data: cstr},
					{Name: "__DATA,__bss", Addr: tt.base + 0x2000, Zero: 0x40},
				},
			}.Build()

			im, err := container.Parse(img)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if im.Format() != container.FormatMachO {
				t.Errorf("Format() = %v, want macho", im.Format())
			}
			if im.Arch() != tt.arch || im.AddrWidth() != tt.width {
				t.Errorf("Arch() = %q, AddrWidth() = %d; want %q, %d", im.Arch(), im.AddrWidth(), tt.arch, tt.width)
			}

			// Zero-fill sections are not file-backed.
			want := []sectionSummary{
				{"__TEXT,__text", tt.base + 0x1000, uint64(len(text))},
				{"__TEXT,__cstring", tt.base + 0x1004, uint64(len(cstr))},
			}
			if diff := cmp.Diff(want, summarize(im)); diff != "" {
				t.Errorf("sections mismatch (-want +got):\n%s", diff)
			}
			s := im.Sections()[0]
			if !bytes.Equal(img[s.Offset:s.Offset+s.Size], text) || !bytes.Equal(s.Data, text) {
				t.Errorf("__text offset %#x does not point at its bytes", s.Offset)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text file", []byte("#!/bin/sh\necho hi\n")},
		{"truncated elf", []byte("\x7fELF\x02\x01\x01")},
		{"truncated pe", []byte("MZ\x90\x00")},
		{"truncated macho", []byte{0xcf, 0xfa, 0xed, 0xfe, 0x07}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := container.Parse(tt.data)
			if !errors.Is(err, container.ErrMalformedContainer) {
				t.Fatalf("Parse() error = %v, want ErrMalformedContainer", err)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		data []byte
		want container.Format
	}{
		{[]byte("\x7fELF\x01"), container.FormatELF},
		{[]byte("MZ\x90\x00"), container.FormatPE},
		{[]byte{0xce, 0xfa, 0xed, 0xfe}, container.FormatMachO},
		{[]byte{0xfe, 0xed, 0xfa, 0xcf}, container.FormatMachO},
		{[]byte("PK\x03\x04"), container.FormatUnknown},
	}
	for _, tt := range tests {
		if got := container.Detect(tt.data); got != tt.want {
			t.Errorf("Detect(% x) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	img := containertest.ELF{
		Class:   elf.ELFCLASS64,
		Machine: elf.EM_X86_64,
		Sections: []containertest.Section{
			{Name: ".text", Addr: 0x401000, Data: []byte{0xc3}, Exec: true},
		},
	}.Build()
	path := filepath.Join(t.TempDir(), "a.out")
	if err := os.WriteFile(path, img, 0o755); err != nil {
		t.Fatal(err)
	}

	im, err := container.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if im.Path != path {
		t.Errorf("Path = %q, want %q", im.Path, path)
	}
	if got := im.Sections()[0].Data; !bytes.Equal(got, []byte{0xc3}) {
		t.Errorf(".text data = % x", got)
	}
	if err := im.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSectionContains(t *testing.T) {
	s := container.Section{Addr: 0x1000, Size: 0x100}
	for va, want := range map[uint64]bool{
		0x0fff: false,
		0x1000: true,
		0x10ff: true,
		0x1100: false,
	} {
		if got := s.Contains(va); got != want {
			t.Errorf("Contains(%#x) = %v, want %v", va, got, want)
		}
	}
}

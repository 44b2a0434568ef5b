// Package disasm defines a common instruction representation used
// across architecture-specific disassemblers, and drives a decoder over the
// bytes of one function.
package disasm

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"fndisasm/internal/container"
)

var (
	// ErrDecodeFailure means no decoder exists for the requested
	// mode/syntax combination. It is a static configuration error.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrPartialDecode means decoding stopped before the end of the
	// function because the remaining bytes are not a valid instruction.
	ErrPartialDecode = errors.New("partial decode")
)

// Mode selects the instruction set.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeX86_16
	ModeX86_32
	ModeX86_64
	ModeARM64
)

func (m Mode) String() string {
	switch m {
	case ModeX86_16:
		return "x86-16"
	case ModeX86_32:
		return "x86-32"
	case ModeX86_64:
		return "x86-64"
	case ModeARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// ParseMode accepts the names printed by Mode.String plus the GOARCH
// spellings 386 and amd64.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "x86-16", "16":
		return ModeX86_16, nil
	case "x86-32", "32", "386", "x86":
		return ModeX86_32, nil
	case "x86-64", "64", "amd64", "x64":
		return ModeX86_64, nil
	case "arm64", "aarch64":
		return ModeARM64, nil
	}
	return ModeUnknown, fmt.Errorf("%w: unknown instruction set %q", ErrDecodeFailure, s)
}

// ModeForArch returns the natural mode for an image architecture.
func ModeForArch(a container.Arch) Mode {
	switch a {
	case container.Arch386:
		return ModeX86_32
	case container.ArchAMD64:
		return ModeX86_64
	case container.ArchARM64:
		return ModeARM64
	}
	return ModeUnknown
}

// Syntax selects the assembly flavour.
type Syntax int

const (
	// SyntaxNative is Intel for x86 and GNU for arm64.
	SyntaxNative Syntax = iota
	// SyntaxAlternate is AT&T for x86 and Go (Plan 9) for arm64.
	SyntaxAlternate
	// SyntaxGo is the Go assembler flavour on every architecture.
	SyntaxGo
)

func (s Syntax) String() string {
	switch s {
	case SyntaxNative:
		return "native"
	case SyntaxAlternate:
		return "alternate"
	case SyntaxGo:
		return "go"
	default:
		return fmt.Sprintf("Syntax(%d)", int(s))
	}
}

// ParseSyntax accepts native, alternate, go, and the conventional names
// intel and att.
func ParseSyntax(s string) (Syntax, error) {
	switch strings.ToLower(s) {
	case "", "native", "intel":
		return SyntaxNative, nil
	case "alternate", "att", "at&t":
		return SyntaxAlternate, nil
	case "go", "plan9":
		return SyntaxGo, nil
	}
	return 0, fmt.Errorf("%w: unknown syntax %q", ErrDecodeFailure, s)
}

// Config holds the per-invocation decoder settings.
type Config struct {
	Mode          Mode
	Syntax        Syntax
	ForceZeroBase bool // decode as if the function started at address 0
}

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 // virtual address of instruction
	Raw  []byte // raw encoding, aliases the function bytes
	Op   string // mnemonic as spelled by the selected syntax
	Args string // operand text, may be empty
}

// Text returns the mnemonic and operands separated by a space.
func (i Inst) Text() string {
	if i.Args == "" {
		return i.Op
	}
	return i.Op + " " + i.Args
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// Decoder turns machine code into instructions.
type Decoder interface {
	// Decode lazily decodes code as if its first byte lived at origin.
	// The sequence ends when code is consumed or at the first undecodable
	// byte, which is reported once as a *PartialDecodeError.
	Decode(code []byte, origin uint64) iter.Seq2[Inst, error]

	// MaxInstLen is the longest encoding the decoder accepts.
	MaxInstLen() int
}

// NewDecoder returns the decoder for cfg.Mode and cfg.Syntax.
func NewDecoder(cfg Config) (Decoder, error) {
	var (
		dec Decoder
		err error
	)
	switch cfg.Mode {
	case ModeX86_16, ModeX86_32, ModeX86_64:
		dec, err = newX86Decoder(cfg)
	case ModeARM64:
		dec, err = newARM64Decoder(cfg)
	default:
		return nil, fmt.Errorf("%w: no decoder for mode %v", ErrDecodeFailure, cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return dec, nil
}

// PartialDecodeError reports undecodable bytes at the tail of a function.
type PartialDecodeError struct {
	Offset    int    // offset of the first undecodable byte within the function
	VA        uint64 // its address, relative to the decoding origin
	Remaining []byte // undecoded bytes
	Err       error  // underlying decoder error
}

func (e *PartialDecodeError) Error() string {
	return fmt.Sprintf("partial decode: %d undecodable bytes at %#x: %v", len(e.Remaining), e.VA, e.Err)
}

func (e *PartialDecodeError) Unwrap() []error {
	return []error{ErrPartialDecode, e.Err}
}

// Origin returns the decoding origin for a function at addr.
func (c Config) Origin(addr uint64) uint64 {
	if c.ForceZeroBase {
		return 0
	}
	return addr
}

// Instructions streams the decoded instructions of code, a function whose
// true address is addr.
func Instructions(code []byte, addr uint64, dec Decoder, cfg Config) iter.Seq2[Inst, error] {
	return dec.Decode(code, cfg.Origin(addr))
}

// Result is a fully decoded function.
type Result struct {
	Origin   uint64
	Insts    Stream
	Trailing []byte // undecodable tail, empty on a clean decode
}

// Disassemble decodes code, a function whose true address is addr.
// On a partial decode the decoded prefix is returned together with a
// *PartialDecodeError.
func Disassemble(code []byte, addr uint64, dec Decoder, cfg Config) (*Result, error) {
	res := &Result{Origin: cfg.Origin(addr)}
	for inst, err := range dec.Decode(code, res.Origin) {
		if err != nil {
			var pe *PartialDecodeError
			if errors.As(err, &pe) {
				res.Trailing = pe.Remaining
			}
			return res, err
		}
		res.Insts = append(res.Insts, inst)
	}
	return res, nil
}

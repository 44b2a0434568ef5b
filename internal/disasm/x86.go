package disasm

import (
	"fmt"
	"iter"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// x86MaxInstLen is the architectural limit on an x86 encoding.
const x86MaxInstLen = 15

type x86Decoder struct {
	bits   int
	format func(inst x86asm.Inst, pc uint64) string
}

func newX86Decoder(cfg Config) (*x86Decoder, error) {
	d := &x86Decoder{}
	switch cfg.Mode {
	case ModeX86_16:
		d.bits = 16
	case ModeX86_32:
		d.bits = 32
	case ModeX86_64:
		d.bits = 64
	default:
		return nil, fmt.Errorf("%w: %v is not an x86 mode", ErrDecodeFailure, cfg.Mode)
	}
	switch cfg.Syntax {
	case SyntaxNative:
		d.format = func(inst x86asm.Inst, pc uint64) string { return x86asm.IntelSyntax(inst, pc, nil) }
	case SyntaxAlternate:
		d.format = func(inst x86asm.Inst, pc uint64) string { return x86asm.GNUSyntax(inst, pc, nil) }
	case SyntaxGo:
		d.format = func(inst x86asm.Inst, pc uint64) string { return x86asm.GoSyntax(inst, pc, nil) }
	default:
		return nil, fmt.Errorf("%w: syntax %v unsupported for %v", ErrDecodeFailure, cfg.Syntax, cfg.Mode)
	}
	return d, nil
}

func (d *x86Decoder) MaxInstLen() int { return x86MaxInstLen }

func (d *x86Decoder) Decode(code []byte, origin uint64) iter.Seq2[Inst, error] {
	return func(yield func(Inst, error) bool) {
		pc := origin
		for off := 0; off < len(code); {
			inst, err := x86asm.Decode(code[off:], d.bits)
			if err != nil || inst.Len == 0 {
				if err == nil {
					err = x86asm.ErrUnrecognized
				}
				yield(Inst{}, &PartialDecodeError{Offset: off, VA: pc, Remaining: code[off:], Err: err})
				return
			}

			op, args := splitX86(d.format(inst, pc))
			if !yield(Inst{VA: pc, Raw: code[off : off+inst.Len], Op: op, Args: args}, nil) {
				return
			}
			off += inst.Len
			pc += uint64(inst.Len)
		}
	}
}

// x86PrefixWords are the prefix spellings the x86asm printers emit ahead of
// the mnemonic, lower-cased and without the Go syntax ';' separator.
var x86PrefixWords = map[string]bool{
	"rep": true, "repn": true, "repne": true, "lock": true,
	"xacquire": true, "xrelease": true, "bnd": true, "pt": true, "pn": true,
	"cs": true, "ds": true, "es": true, "fs": true, "gs": true, "ss": true,
	"addrsize": true, "datasize": true, "rex": true,
	"addr16": true, "addr32": true, "addr64": true,
	"data16": true, "data32": true, "data64": true,
}

func isX86Prefix(word string) bool {
	w := strings.ToLower(strings.TrimSuffix(word, ";"))
	return x86PrefixWords[w] || strings.HasPrefix(w, "rex.") || strings.HasPrefix(w, "hint-")
}

// splitX86 splits printed instruction text into mnemonic and operands.
// Prefixes stay with the mnemonic: "rep stos %eax,%es:(%edi)" yields
// "rep stos" and "%eax,%es:(%edi)".
func splitX86(text string) (op, args string) {
	rest := text
	for {
		word, tail, ok := strings.Cut(rest, " ")
		if !ok || !isX86Prefix(word) {
			break
		}
		rest = tail
	}
	mnemonic, args, _ := strings.Cut(rest, " ")
	return text[:len(text)-len(rest)] + mnemonic, args
}

package disasm

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

const arm64InstLen = 4

var errTruncated = errors.New("truncated instruction")

type arm64Decoder struct {
	goSyntax bool
}

func newARM64Decoder(cfg Config) (*arm64Decoder, error) {
	switch cfg.Syntax {
	case SyntaxNative:
		return &arm64Decoder{}, nil
	case SyntaxAlternate, SyntaxGo:
		return &arm64Decoder{goSyntax: true}, nil
	}
	return nil, fmt.Errorf("%w: syntax %v unsupported for %v", ErrDecodeFailure, cfg.Syntax, cfg.Mode)
}

func (d *arm64Decoder) MaxInstLen() int { return arm64InstLen }

func (d *arm64Decoder) Decode(code []byte, origin uint64) iter.Seq2[Inst, error] {
	return func(yield func(Inst, error) bool) {
		pc := origin
		for off := 0; off < len(code); off += arm64InstLen {
			if len(code)-off < arm64InstLen {
				yield(Inst{}, &PartialDecodeError{Offset: off, VA: pc, Remaining: code[off:], Err: errTruncated})
				return
			}
			raw := code[off : off+arm64InstLen]
			inst, err := arm64asm.Decode(raw)
			if err != nil {
				yield(Inst{}, &PartialDecodeError{Offset: off, VA: pc, Remaining: code[off:], Err: err})
				return
			}

			var text string
			if d.goSyntax {
				text = arm64asm.GoSyntax(inst, pc, nil, nil)
			} else {
				text = arm64asm.GNUSyntax(inst)
			}
			op, args, _ := strings.Cut(text, " ")
			if !yield(Inst{VA: pc, Raw: raw, Op: op, Args: args}, nil) {
				return
			}
			pc += arm64InstLen
		}
	}
}

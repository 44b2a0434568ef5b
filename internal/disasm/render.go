package disasm

import (
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"strings"
)

// FormatLine renders one instruction as
//
//	<address>: <bytes-hex>  <mnemonic> <operands>
//
// with the address zero-padded to width bytes (4 or 8).
func FormatLine(inst Inst, width int) string {
	return fmt.Sprintf("%0*x: %s  %s", width*2, inst.VA, hex.EncodeToString(inst.Raw), inst.Text())
}

// Render writes one line per instruction as the sequence yields them and
// returns the number written. A decode error stops rendering and is
// returned after the lines already written.
func Render(w io.Writer, seq iter.Seq2[Inst, error], width int) (int, error) {
	n := 0
	for inst, err := range seq {
		if err != nil {
			return n, err
		}
		if _, err := io.WriteString(w, FormatLine(inst, width)+"\n"); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Format renders the whole result, one instruction per line.
func (r *Result) Format(width int) string {
	var b strings.Builder
	for _, inst := range r.Insts {
		b.WriteString(FormatLine(inst, width))
		b.WriteByte('\n')
	}
	return b.String()
}

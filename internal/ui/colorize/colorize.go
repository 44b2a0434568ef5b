package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"fndisasm/internal/disasm"
)

// Enabled reports whether colour output is allowed. FNDISASM_NO_COLOR
// disables it.
func Enabled() bool {
	return os.Getenv("FNDISASM_NO_COLOR") == ""
}

// LexerName returns the chroma lexer best suited to the given assembly
// flavour.
func LexerName(cfg disasm.Config) string {
	if l := getAssemblyLexer(cfg); l != nil {
		return l.Config().Name
	}
	return ""
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer(cfg disasm.Config) chroma.Lexer {
	var candidates []string
	switch {
	case cfg.Mode == disasm.ModeARM64 && cfg.Syntax == disasm.SyntaxNative:
		candidates = []string{"armasm", "gas"}
	case cfg.Syntax == disasm.SyntaxNative:
		candidates = []string{"nasm", "gas"}
	default:
		// AT&T and Plan 9 both read best as GAS.
		candidates = []string{"gas", "nasm"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{DisasmDark.Name, "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights a block of assembly text.
func Assembly(code string, cfg disasm.Config) (string, error) {
	if !Enabled() {
		return code, nil
	}

	lexer := getAssemblyLexer(cfg)
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// Line colours one rendered instruction line of the form
//
//	<address>: <bytes>  <instruction>
//
// Lines of any other shape go through the lexer whole.
func Line(line string, cfg disasm.Config) string {
	if !Enabled() {
		return line
	}

	addr, rest, ok := strings.Cut(line, ": ")
	if !ok || !isHex(addr) {
		return colorizeFullLine(line, cfg)
	}
	raw, text, ok := strings.Cut(rest, "  ")
	if !ok || !isHex(raw) {
		return colorizeFullLine(line, cfg)
	}

	return fmt.Sprintf("\033[38;2;79;79;79m%s:\033[0m \033[38;2;133;133;133m%s\033[0m  %s",
		addr, raw, colorizeFullLine(text, cfg))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

// colorizeFullLine uses Chroma to colorize an assembly line
func colorizeFullLine(line string, cfg disasm.Config) string {
	out, err := Assembly(line, cfg)
	if err != nil {
		return line
	}
	// Lexers that ensure a trailing newline add one we did not ask for,
	// possibly followed by a reset sequence.
	if !strings.Contains(line, "\n") {
		out = strings.ReplaceAll(out, "\n", "")
	}
	return out
}

// Package colorize highlights rendered disassembly for terminal output.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// DisasmDark is the disassembly colour scheme. Registering it also makes it
// available to glamour code blocks by name.
var DisasmDark = styles.Register(chroma.MustNewStyle("disasm-dark", chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#6A9955",

	// Mnemonics. nasm tokenizes them as functions, gas as keywords.
	chroma.Keyword:       "#FFFFFF",
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.KeywordType:   "#569CD6", // dword, qword, ptr
	chroma.NameFunction:  "#FFFFFF",

	// Registers
	chroma.Name:          "#7C9C9D",
	chroma.NameBuiltin:   "#7C9C9D",
	chroma.NameVariable:  "#7C9C9D",
	chroma.NameAttribute: "#7C9C9D",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberBin:     "#FF5F87",
	chroma.LiteralNumberOct:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.NameLabel:   "#FFD700",
	chroma.Operator:    "#D4D4D4",
	chroma.Punctuation: "#D4D4D4",
	chroma.String:      "#EACD53",
}))

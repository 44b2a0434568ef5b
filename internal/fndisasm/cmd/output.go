package cmd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"fndisasm/internal/disasm"
	"fndisasm/internal/executable"
	"fndisasm/internal/fndisasm/styles"
	"fndisasm/internal/ui/colorize"
	"fndisasm/internal/ui/pager"
)

// maxSuggestions bounds the "did you mean" list.
const maxSuggestions = 3

var runPager = pager.Run

// JSONOutput is the --format json document.
type JSONOutput struct {
	Function     string     `json:"function"`
	Address      string     `json:"address"`
	Size         uint64     `json:"size"`
	Section      string     `json:"section"`
	Offset       string     `json:"offset"`
	Source       string     `json:"source"`
	Mode         string     `json:"mode"`
	Syntax       string     `json:"syntax"`
	Origin       string     `json:"origin"`
	Instructions []JSONInst `json:"instructions"`
	Trailing     string     `json:"trailing,omitempty"`
	Warning      string     `json:"warning,omitempty"`
}

// JSONInst is one decoded instruction in JSON output.
type JSONInst struct {
	Address  string `json:"address"`
	Bytes    string `json:"bytes"`
	Mnemonic string `json:"mnemonic"`
	Operands string `json:"operands,omitempty"`
}

type output struct {
	fn    *executable.Function
	dec   disasm.Decoder
	cfg   disasm.Config
	width int
}

func (o output) write(w io.Writer, format string, cmd *cobra.Command) error {
	switch format {
	case "", "text":
		_, err := o.text(w)
		return reportPartial(cmd, err)
	case "json":
		return o.json(w)
	case "markdown", "md":
		return o.markdown(w)
	}
	return fmt.Errorf("unknown output format %q (want text, json or markdown)", format)
}

// text streams the listing. A partial decode is returned after the decoded
// prefix has been written.
func (o output) text(w io.Writer) (int, error) {
	seq := o.fn.Instructions(o.dec, o.cfg)
	if !colorize.Enabled() {
		return disasm.Render(w, seq, o.width)
	}

	n := 0
	for inst, err := range seq {
		if err != nil {
			return n, err
		}
		if _, err := fmt.Fprintln(w, colorize.Line(disasm.FormatLine(inst, o.width), o.cfg)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// listing renders the whole function for the pager.
func (o output) listing() (string, int, error) {
	var b strings.Builder
	n, err := o.text(&b)
	if err != nil && !errors.Is(err, disasm.ErrPartialDecode) {
		return "", 0, err
	}
	return strings.TrimSuffix(b.String(), "\n"), n, err
}

// page shows the listing in the pager. A decode failure other than a
// partial decode is returned before the pager opens.
func (o output) page(cmd *cobra.Command) error {
	content, n, perr := o.listing()
	if perr != nil && !errors.Is(perr, disasm.ErrPartialDecode) {
		return perr
	}
	if err := runPager(cmd.Context(), fmt.Sprintf("%s @ %#x", o.fn.Name, o.fn.Addr), content, n); err != nil {
		return err
	}
	return reportPartial(cmd, perr)
}

func (o output) json(w io.Writer) error {
	res, err := o.fn.Disassemble(o.dec, o.cfg)
	if err != nil && !errors.Is(err, disasm.ErrPartialDecode) {
		return err
	}

	doc := JSONOutput{
		Function:     o.fn.Name,
		Address:      fmt.Sprintf("%#x", o.fn.Addr),
		Size:         o.fn.Size,
		Section:      o.fn.Section,
		Offset:       fmt.Sprintf("%#x", o.fn.Offset),
		Source:       o.fn.Source.String(),
		Mode:         o.cfg.Mode.String(),
		Syntax:       o.cfg.Syntax.String(),
		Origin:       fmt.Sprintf("%#x", res.Origin),
		Instructions: make([]JSONInst, 0, len(res.Insts)),
		Trailing:     hex.EncodeToString(res.Trailing),
	}
	if err != nil {
		doc.Warning = err.Error()
	}
	for _, inst := range res.Insts {
		doc.Instructions = append(doc.Instructions, JSONInst{
			Address:  fmt.Sprintf("%#x", inst.VA),
			Bytes:    hex.EncodeToString(inst.Raw),
			Mnemonic: inst.Op,
			Operands: inst.Args,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// markdownReport builds the report source before glamour renders it.
func (o output) markdownReport() (string, error) {
	res, err := o.fn.Disassemble(o.dec, o.cfg)
	if err != nil && !errors.Is(err, disasm.ErrPartialDecode) {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", o.fn.Name)
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Address | `%#x` |\n", o.fn.Addr)
	fmt.Fprintf(&b, "| Size | %d bytes |\n", o.fn.Size)
	fmt.Fprintf(&b, "| Section | `%s` |\n", o.fn.Section)
	fmt.Fprintf(&b, "| File offset | `%#x` |\n", o.fn.Offset)
	fmt.Fprintf(&b, "| Source | %s |\n", o.fn.Source)
	fmt.Fprintf(&b, "| Decoder | %s, %s syntax |\n\n", o.cfg.Mode, o.cfg.Syntax)

	fmt.Fprintf(&b, "## Instructions (%d)\n\n", len(res.Insts))
	fmt.Fprintf(&b, "```%s\n", strings.ToLower(colorize.LexerName(o.cfg)))
	b.WriteString(res.Format(o.width))
	b.WriteString("```\n")

	if err != nil {
		fmt.Fprintf(&b, "\n> %d trailing bytes could not be decoded: `%s`\n", len(res.Trailing), hex.EncodeToString(res.Trailing))
	}
	return b.String(), nil
}

func (o output) markdown(w io.Writer) error {
	src, err := o.markdownReport()
	if err != nil {
		return err
	}

	width := 100
	if tw, _, err := term.GetSize(os.Stdout.Fd()); err == nil && tw > 0 {
		width = tw
	}
	r, err := styles.MarkdownRenderer(width, colorize.Enabled())
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	rendered, err := r.Render(src)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, rendered)
	return err
}

// reportPartial turns a partial decode into a warning. Other errors pass
// through.
func reportPartial(cmd *cobra.Command, err error) error {
	var pe *disasm.PartialDecodeError
	if !errors.As(err, &pe) {
		return err
	}
	slog.Warn("Function ends with undecodable bytes", "offset", pe.Offset, "addr", fmt.Sprintf("%#x", pe.VA),
		"bytes", hex.EncodeToString(pe.Remaining), "error", pe.Err)
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d undecodable bytes at %#x: %s\n",
		len(pe.Remaining), pe.VA, hex.EncodeToString(pe.Remaining))
	return nil
}

// notFound builds the lookup failure, suggesting close names.
func notFound(name string, known []string) error {
	matches := fuzzy.Find(name, known)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", errFunctionNotFound, name)
	}
	var suggestions []string
	for i, m := range matches {
		if i == maxSuggestions {
			break
		}
		suggestions = append(suggestions, m.Str)
	}
	return fmt.Errorf("%w: %s (did you mean %s?)", errFunctionNotFound, name, strings.Join(suggestions, ", "))
}

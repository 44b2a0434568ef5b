package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	pathpkg "path/filepath"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"fndisasm/internal/container"
	"fndisasm/internal/debugdb"
	"fndisasm/internal/disasm"
	"fndisasm/internal/executable"
	"fndisasm/internal/fndisasm/log"
	"fndisasm/internal/mapping"
	"fndisasm/internal/resolve"
)

// debugSelf as --debug-file reads symbols from the executable itself.
const debugSelf = "self"

var (
	errNoSymbolSource   = errors.New("at least one of --mapping or --debug-file is required")
	errFunctionNotFound = errors.New("function not found in executable")
)

func init() {
	rootCmd.PersistentFlags().StringP("mapping", "m", "", "Mapping TOML file related to the executable")
	rootCmd.PersistentFlags().String("debug-file", "", `Debug file related to the executable ("self" to use the executable's own symbols)`)
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("force-address-zero", "z", false, "Force usage of address zero when disassembling")
	rootCmd.Flags().Bool("att", false, "Use AT&T syntax when printing x86 assembly (same as --syntax alternate)")
	rootCmd.Flags().String("syntax", "native", "Assembly syntax: native, alternate (att), or go")
	rootCmd.Flags().String("mode", "", "Instruction set: x86-16, x86-32, x86-64 or arm64 (default: from the executable)")
	rootCmd.Flags().StringP("format", "f", "text", "Output format: text, json or markdown")
	rootCmd.Flags().BoolP("tui", "t", false, "Show the listing in a scrollable pager")
	rootCmd.Flags().Bool("no-color", false, "Disable syntax highlighting")
}

var rootCmd = &cobra.Command{
	Use:   "fndisasm <executable> <function>",
	Short: "Disassemble a function by name",
	Long: `Fndisasm resolves a named function inside an executable and prints its
machine code as assembly.

Function addresses come from a mapping file, from debug information, or both.
When both know a function, the debug information wins.`,
	Example: `
# Disassemble main using a hand-written mapping
fndisasm --mapping game.toml game.exe main

# Use the executable's own DWARF or symbol table, in AT&T syntax
fndisasm --debug-file self --att ./server handleRequest

# Decode as if the function lived at address zero
fndisasm -m game.toml -z game.exe FUN_00401000
  `,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		noColor, _ := cmd.Flags().GetBool("no-color")
		if noColor || !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv("FNDISASM_NO_COLOR", "1")
		}

		cfg, err := decoderFlags(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		tui, _ := cmd.Flags().GetBool("tui")

		return withFunction(cmd, args[0], args[1], func(img *container.Image, fn *executable.Function) error {
			if cfg.Mode == disasm.ModeUnknown {
				cfg.Mode = disasm.ModeForArch(img.Arch())
			}
			dec, err := disasm.NewDecoder(cfg)
			if err != nil {
				return fmt.Errorf("%s (%s image): %w", fn.Name, img.Arch(), err)
			}
			slog.Debug("Disassembling", "function", fn.Name, "addr", fmt.Sprintf("%#x", fn.Addr),
				"size", fn.Size, "source", fn.Source, "mode", cfg.Mode, "syntax", cfg.Syntax)

			out := output{fn: fn, dec: dec, cfg: cfg, width: img.AddrWidth()}
			if tui {
				return out.page(cmd)
			}
			return out.write(cmd.OutOrStdout(), format, cmd)
		})
	},
}

// decoderFlags reads the disassembly flags. The mode is left unknown when
// it should come from the image.
func decoderFlags(cmd *cobra.Command) (disasm.Config, error) {
	var cfg disasm.Config

	syntax, _ := cmd.Flags().GetString("syntax")
	s, err := disasm.ParseSyntax(syntax)
	if err != nil {
		return cfg, err
	}
	if att, _ := cmd.Flags().GetBool("att"); att {
		s = disasm.SyntaxAlternate
	}
	cfg.Syntax = s

	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		m, err := disasm.ParseMode(mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = m
	}

	cfg.ForceZeroBase, _ = cmd.Flags().GetBool("force-address-zero")
	return cfg, nil
}

// withFunction opens the executable and its symbol sources, resolves name
// and calls fn while the image is still mapped.
func withFunction(cmd *cobra.Command, exePath, name string, fn func(*container.Image, *executable.Function) error) error {
	exe, img, err := openExecutable(cmd, exePath)
	if err != nil {
		return err
	}
	defer img.Close()

	f, ok, err := exe.GetFunction(name)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(name, exe.Names())
	}
	return fn(img, f)
}

func openExecutable(cmd *cobra.Command, exePath string) (*executable.Executable, *container.Image, error) {
	mappingPath, _ := cmd.Flags().GetString("mapping")
	debugPath, _ := cmd.Flags().GetString("debug-file")
	if mappingPath == "" && debugPath == "" {
		return nil, nil, errNoSymbolSource
	}

	absPath, err := pathpkg.Abs(exePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("executable not found: %s", exePath)
		}
		return nil, nil, fmt.Errorf("cannot access executable: %w", err)
	}

	var m *mapping.Mapping
	if mappingPath != "" {
		if m, err = mapping.Load(mappingPath); err != nil {
			return nil, nil, err
		}
		slog.Debug("Loaded mapping", "path", mappingPath, "functions", m.Len())
	}

	img, err := container.Open(absPath)
	if err != nil {
		return nil, nil, err
	}

	var db resolve.Database
	switch debugPath {
	case "":
	case debugSelf:
		d, err := debugdb.Parse(img.Bytes())
		if err != nil {
			img.Close()
			return nil, nil, fmt.Errorf("%s: %w", exePath, err)
		}
		slog.Debug("Loaded debug symbols from executable", "symbols", d.Len())
		db = d
	default:
		d, err := debugdb.Open(debugPath)
		if err != nil {
			img.Close()
			return nil, nil, err
		}
		slog.Debug("Loaded debug symbols", "path", debugPath, "symbols", d.Len())
		db = d
	}

	return executable.NewWithDebug(img, m, db), img, nil
}

func Execute() {
	// Bypass fang's styled output when piping
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

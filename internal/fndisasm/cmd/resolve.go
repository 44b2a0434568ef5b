package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fndisasm/internal/container"
	"fndisasm/internal/executable"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <executable> <function>",
	Short: "Print where a function lives without disassembling it",
	Long: `Resolve looks a function up the same way the main command does and
prints its address, size, section, file offset and the source that
provided it, followed by the image format and entry point.`,
	Example: `
# Check which source wins for main
fndisasm resolve --mapping game.toml --debug-file game.debug game.exe main
  `,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFunction(cmd, args[0], args[1], func(img *container.Image, fn *executable.Function) error {
			w := cmd.OutOrStdout()
			digits := img.AddrWidth() * 2
			fmt.Fprintf(w, "%s\n", fn.Name)
			fmt.Fprintf(w, "  address  0x%0*x\n", digits, fn.Addr)
			fmt.Fprintf(w, "  end      0x%0*x\n", digits, fn.Addr+fn.Size)
			fmt.Fprintf(w, "  size     %d\n", fn.Size)
			fmt.Fprintf(w, "  section  %s\n", fn.Section)
			fmt.Fprintf(w, "  offset   %#x\n", fn.Offset)
			fmt.Fprintf(w, "  source   %s\n", fn.Source)
			fmt.Fprintf(w, "  image    %s %s, entry 0x%0*x\n", img.Format(), img.Arch(), digits, img.Entry())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

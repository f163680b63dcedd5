package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vela/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "vela",
	Short: "Vela bytecode runtime",
	Long:  `Vela runs compiled .vbc modules on a reference-counted bytecode interpreter`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("color")
		switch mode {
		case "on":
			color.NoColor = false
		case "off":
			color.NoColor = true
		default:
			color.NoColor = !isTerminal(os.Stdout)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vela/internal/bytecode"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <module.vbc>",
	Short: "Disassemble a compiled module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, _, err := bytecode.LoadModule(args[0])
		if err != nil {
			return err
		}
		listing, err := bytecode.Disassemble(mod)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), listing)
		return nil
	},
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vela/internal/bytecode"
	"vela/internal/vm"
)

var statsGCThreshold int

func init() {
	statsCmd.Flags().IntVar(&statsGCThreshold, "gc-threshold", 0, "suspect buffer size that triggers a collection (0 = default)")
}

var statsCmd = &cobra.Command{
	Use:   "stats <module.vbc>",
	Short: "Execute a module and print its heap statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, _, err := bytecode.LoadModule(args[0])
		if err != nil {
			return err
		}
		machine := vm.NewWithOptions(vm.Options{
			GCThreshold: statsGCThreshold,
			Hosts:       vm.DefaultHosts(cmd.OutOrStdout()),
		})
		result, verr := machine.Execute(mod)
		if verr != nil {
			machine.Close()
			printStats(os.Stdout, machine.Heap().Stats())
			return verr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", machine.Heap().Format(result))
		machine.ReleaseValue(result)
		machine.Close()
		printStats(os.Stdout, machine.Heap().Stats())
		return nil
	},
}

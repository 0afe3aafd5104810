package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagewalk",
		Short: "pagewalk simulates address translation and data caching for a memory-reference trace.",
		Long: `pagewalk drives a stream of memory-reference records through a two-level ` +
			`TLB, a three-level page-walk cache, a radix page table, and an inclusive ` +
			`three-level data cache, and reports the resulting hit rates, miss ` +
			`classification, and cycle cost.`,
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Command pagewalk runs the address-translation and data-cache simulator
// against a binary reference trace and reports the resulting statistics.
package main

import "os"

// rootCmd is the base command when pagewalk is invoked without a
// subcommand.
var rootCmd = newRootCmd()

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

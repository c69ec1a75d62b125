// Package cmd provides the command-line interface of nachos.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nachos",
	Short: "Nachos runs user programs on a simulated MIPS-like machine.",
	Long: `Nachos runs user programs on a simulated machine with a software ` +
		`managed TLB, demand paging and swapping. It can also run the ` +
		`thread and synchronization self tests of the kernel.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return applyEnv(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It runs the exit handlers before leaving.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

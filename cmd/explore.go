package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/cmd/explore"
)

// exploreCmd represents the explore command
var exploreCmd = &cobra.Command{
	Use:   "explore <binary>",
	Short: "interactively explore the debugging information",
	Long: `Open an interactive session on the binary's debugging information,
with commands to print DIE trees, look up functions, map source lines,
walk unwind tables, disassemble code and evaluate location expressions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("expect exactly one binary")
		}
		return explore.Load(args[0])
	},
	PostRunE: func(cmd *cobra.Command, args []string) error {
		explore.NewSession().Start()
		return explore.Unload()
	},
}

func init() {
	rootCmd.AddCommand(exploreCmd)
}

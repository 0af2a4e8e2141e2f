package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/pkg/symbol"
)

// lineCmd represents the line command
var lineCmd = &cobra.Command{
	Use:   "line <binary> <file:lineno | pc>",
	Short: "map between source positions and addresses",
	Long: `Map a source position to an address, or an address back to a source
position. A location of the form file:lineno resolves forward, a
hexadecimal or decimal address resolves backward.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return errors.New("expect a binary and a location")
		}
		bi, err := symbol.Analyze(args[0])
		if err != nil {
			return err
		}

		loc := args[1]
		if strings.Contains(loc, ":") {
			pc, err := bi.LocToPC(loc)
			if err != nil {
				return err
			}
			fmt.Printf("%s => %s\n", colorName.Sprint(loc), colorAddr.Sprintf("%#x", pc))
			return nil
		}

		pc, err := strconv.ParseUint(loc, 0, 64)
		if err != nil {
			return fmt.Errorf("bad location %q: %v", loc, err)
		}
		file, lineno, err := bi.PCToFileLine(pc)
		if err != nil {
			return err
		}
		fmt.Printf("%s => %s\n", colorAddr.Sprintf("%#x", pc), colorName.Sprintf("%s:%d", file, lineno))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lineCmd)
}

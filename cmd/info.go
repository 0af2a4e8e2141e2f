package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/pkg/symbol"
)

var (
	colorHeader = color.New(color.FgWhite, color.Bold)
	colorAddr   = color.New(color.FgCyan)
	colorName   = color.New(color.FgGreen)
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <binary>",
	Short: "list compilation units and functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("expect exactly one binary")
		}
		bi, err := symbol.Analyze(args[0])
		if err != nil {
			return err
		}

		colorHeader.Println("compilation units:")
		for _, cu := range bi.CompileUnits {
			fmt.Printf("  %s\n", colorName.Sprint(cu.Name()))
		}

		colorHeader.Println("functions:")
		for _, fn := range bi.Functions {
			lo, hi := fn.Range()
			fmt.Printf("  %s  %s\n",
				colorAddr.Sprintf("[%#x, %#x)", lo, hi),
				colorName.Sprint(fn.Name()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

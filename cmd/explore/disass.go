package explore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/arch/x86/x86asm"
)

var disassCmd = &cobra.Command{
	Use:   "disass <pc>",
	Short: "disassemble machine code at the address",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	Aliases: []string{"dis", "disassemble"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			max, _    = cmd.Flags().GetUint64("max")
			syntax, _ = cmd.Flags().GetString("syntax")
		)
		t, err := target()
		if err != nil {
			return err
		}
		if len(args) != 1 {
			return errors.New("expect one address")
		}
		addr, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("bad address %q: %v", args[0], err)
		}

		dat, err := t.ReadCode(addr, 1024)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 8, ' ', 0)

		offset := uint64(0)
		count := uint64(0)

		for count < max && offset < uint64(len(dat)) {
			inst, err := x86asm.Decode(dat[offset:], 64)
			if err != nil {
				return fmt.Errorf("x86asm decode error: %v", err)
			}

			asm, err := instSyntax(inst, syntax)
			if err != nil {
				return fmt.Errorf("x86asm syntax error: %v", err)
			}

			end := offset + uint64(inst.Len)
			fmt.Fprintf(tw, "%#x:\t% x\t%s\n", addr+offset, dat[offset:end], asm)
			offset = end
			count++
		}
		return tw.Flush()
	},
}

func instSyntax(inst x86asm.Inst, syntax string) (string, error) {
	asm := ""
	switch syntax {
	case "go":
		asm = x86asm.GoSyntax(inst, uint64(inst.PCRel), nil)
	case "gnu":
		asm = x86asm.GNUSyntax(inst, uint64(inst.PCRel), nil)
	case "intel":
		asm = x86asm.IntelSyntax(inst, uint64(inst.PCRel), nil)
	default:
		return "", fmt.Errorf("invalid asm syntax error")
	}
	return asm, nil
}

func init() {
	exploreRootCmd.AddCommand(disassCmd)

	disassCmd.Flags().Uint64P("max", "n", 10, "number of instructions to disassemble")
	disassCmd.Flags().StringP("syntax", "s", "gnu", "assembly syntax: go, gnu, intel")
}

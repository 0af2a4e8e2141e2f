package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/frame"
	"github.com/hitzhangjie/gdwarf/pkg/symbol"
)

// frameCmd represents the frame command
var frameCmd = &cobra.Command{
	Use:   "frame <binary>",
	Short: "list call frame entries, or the unwind table of one",
	Long: `List the frame description entries of the binary. With --pc, print
the full unwind table of the entry covering that address instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("expect exactly one binary")
		}
		bi, err := symbol.Analyze(args[0])
		if err != nil {
			return err
		}

		pc, _ := cmd.Flags().GetUint64("pc")
		if pc == 0 {
			for i, fde := range bi.FdeEntries {
				fmt.Printf("#%d %s\n", i, colorAddr.Sprintf("[%#x, %#x)", fde.Begin(), fde.End()))
			}
			return nil
		}

		fde, err := bi.PCToFDE(pc)
		if err != nil {
			return err
		}
		rows, err := fde.UnwindTable()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "loc\tcfa\tsaved registers")
		for i := range rows {
			fmt.Fprintf(tw, "%#x\t%s\t%s\n",
				rows[i].Loc, cfaString(rows[i].CFA), regsString(&rows[i]))
		}
		return tw.Flush()
	},
}

func cfaString(r frame.DWRule) string {
	switch r.Rule {
	case frame.RuleCFA:
		return fmt.Sprintf("r%d%+d", r.Reg, r.Offset)
	case frame.RuleExpression:
		return "expr"
	default:
		return "?"
	}
}

func regsString(row *frame.UnwindRow) string {
	regs := make([]uint64, 0, len(row.Regs))
	for reg := range row.Regs {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })

	s := ""
	for _, reg := range regs {
		rule := row.Regs[reg]
		if s != "" {
			s += " "
		}
		switch rule.Rule {
		case frame.RuleOffset:
			s += fmt.Sprintf("r%d=[cfa%+d]", reg, rule.Offset)
		case frame.RuleValOffset:
			s += fmt.Sprintf("r%d=cfa%+d", reg, rule.Offset)
		case frame.RuleRegister:
			s += fmt.Sprintf("r%d=r%d", reg, rule.Reg)
		case frame.RuleUndefined:
			s += fmt.Sprintf("r%d=undef", reg)
		case frame.RuleSameVal:
			s += fmt.Sprintf("r%d=same", reg)
		default:
			s += fmt.Sprintf("r%d=expr", reg)
		}
	}
	return s
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.Flags().Uint64("pc", 0, "print the unwind table of the FDE covering this address")
}

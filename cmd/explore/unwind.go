package explore

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/frame"
)

var unwindCmd = &cobra.Command{
	Use:   "unwind <pc>",
	Short: "print the unwind table covering the address",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupUnwind,
	},
	Aliases: []string{"uw"},
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target()
		if err != nil {
			return err
		}
		if len(args) != 1 {
			return errors.New("expect one address")
		}
		pc, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("bad address %q: %v", args[0], err)
		}

		fde, err := t.Bi.PCToFDE(pc)
		if err != nil {
			return err
		}
		rows, err := fde.UnwindTable()
		if err != nil {
			return err
		}

		fmt.Printf("fde [%#x, %#x), return address register %d\n",
			fde.Begin(), fde.End(), fde.CIE.ReturnAddressRegister)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "loc\tcfa\tsaved registers")
		for i := range rows {
			fmt.Fprintf(tw, "%#x\t%s\t%s\n",
				rows[i].Loc, ruleString(rows[i].CFA), rowRegsString(&rows[i]))
		}
		return tw.Flush()
	},
}

func ruleString(r frame.DWRule) string {
	switch r.Rule {
	case frame.RuleCFA:
		return fmt.Sprintf("r%d%+d", r.Reg, r.Offset)
	case frame.RuleOffset:
		return fmt.Sprintf("[cfa%+d]", r.Offset)
	case frame.RuleValOffset:
		return fmt.Sprintf("cfa%+d", r.Offset)
	case frame.RuleRegister:
		return fmt.Sprintf("r%d", r.Reg)
	case frame.RuleExpression, frame.RuleValExpression:
		return "expr"
	case frame.RuleSameVal:
		return "same"
	default:
		return "undef"
	}
}

func rowRegsString(row *frame.UnwindRow) string {
	regs := make([]uint64, 0, len(row.Regs))
	for reg := range row.Regs {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })

	s := ""
	for _, reg := range regs {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("r%d=%s", reg, ruleString(row.Regs[reg]))
	}
	return s
}

func init() {
	exploreRootCmd.AddCommand(unwindCmd)
}

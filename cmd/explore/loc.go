package explore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var locCmd = &cobra.Command{
	Use:   "loc <file:lineno | pc>",
	Short: "map a source position to an address, or back",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target()
		if err != nil {
			return err
		}
		if len(args) != 1 {
			return errors.New("expect one location")
		}

		loc := args[0]
		if strings.Contains(loc, ":") {
			pc, err := t.Bi.LocToPC(loc)
			if err != nil {
				return err
			}
			fmt.Printf("%s => %#x\n", loc, pc)

			// the breakpoint address may differ when a prologue_end
			// row exists
			if bp, err := t.Bi.FileLineToPCForBreakpoint(splitLoc(loc)); err == nil && bp != pc {
				fmt.Printf("%s => %#x (breakpoint)\n", loc, bp)
			}
			return nil
		}

		pc, err := strconv.ParseUint(loc, 0, 64)
		if err != nil {
			return fmt.Errorf("bad location %q: %v", loc, err)
		}
		file, lineno, err := t.Bi.PCToFileLine(pc)
		if err != nil {
			return err
		}
		fmt.Printf("%#x => %s:%d", pc, file, lineno)
		if fn, err := t.Bi.PCToFunction(pc); err == nil {
			fmt.Printf(" (%s)", fn.Name())
		}
		fmt.Println()
		return nil
	},
}

func splitLoc(loc string) (string, int) {
	i := strings.LastIndex(loc, ":")
	lineno, _ := strconv.Atoi(loc[i+1:])
	return loc[:i], lineno
}

func init() {
	exploreRootCmd.AddCommand(locCmd)
}

package explore

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
)

var funcsCmd = &cobra.Command{
	Use:   "funcs [pattern]",
	Short: "list functions matching the pattern",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	Aliases: []string{"fn"},
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target()
		if err != nil {
			return err
		}

		pattern := ".*"
		if len(args) != 0 {
			pattern = args[0]
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("bad pattern %q: %v", pattern, err)
		}

		for _, fn := range t.Bi.Functions {
			if !re.MatchString(fn.Name()) {
				continue
			}
			lo, hi := fn.Range()
			fmt.Printf("[%#x, %#x) %s\n", lo, hi, fn.Name())
			for _, v := range fn.Variables() {
				if name, ok := v.Val(godwarf.AttrName).(string); ok {
					fmt.Printf("    var %s\n", name)
				}
			}
		}
		return nil
	},
}

func init() {
	exploreRootCmd.AddCommand(funcsCmd)
}

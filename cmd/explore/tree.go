package explore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/godwarf"
)

var treeCmd = &cobra.Command{
	Use:   "tree [unit-offset]",
	Short: "print the DIE tree of a compilation unit",
	Long: `Print the DIE tree of the compilation unit at the given section
offset, or of every unit when no offset is given.`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target()
		if err != nil {
			return err
		}

		var only uint64
		filtered := false
		if len(args) != 0 {
			if only, err = strconv.ParseUint(args[0], 0, 64); err != nil {
				return fmt.Errorf("bad unit offset %q: %v", args[0], err)
			}
			filtered = true
		}

		units := t.Dwarf.Units()
		for {
			u, err := units.Next()
			if err != nil {
				return err
			}
			if u == nil {
				return nil
			}
			if filtered && u.Header.Offset != only {
				continue
			}

			fmt.Printf("unit at %#x: DWARF version %d, %d-byte offsets\n",
				u.Header.Offset, u.Header.Version, u.Header.OffsetSize)

			cursor := u.Cursor()
			depth := 0
			for {
				e, err := cursor.Next()
				if err != nil {
					return err
				}
				if e == nil {
					break
				}
				if e.IsNull() {
					depth--
					continue
				}

				indent := strings.Repeat("  ", depth)
				fmt.Printf("%s%#x: %s%s\n", indent, e.Offset, e.Tag, nameSuffix(e.Val(godwarf.AttrName)))
				for _, f := range e.Field {
					fmt.Printf("%s    %s [%s] = %v\n", indent, f.Attr, f.Class, f.Val)
				}

				if e.Children {
					depth++
				}
			}
		}
	},
}

func nameSuffix(v interface{}) string {
	if name, ok := v.(string); ok {
		return " " + strconv.Quote(name)
	}
	return ""
}

func init() {
	exploreRootCmd.AddCommand(treeCmd)
}

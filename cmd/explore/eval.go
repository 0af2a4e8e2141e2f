package explore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/gdwarf/pkg/dwarf/op"
)

var evalCmd = &cobra.Command{
	Use:   "eval <hex bytes...>",
	Short: "evaluate a location expression",
	Long: `Evaluate a DWARF location expression given as hex bytes, e.g.
"eval 91 70" for DW_OP_fbreg -16. Register and memory reads the
expression performs are answered with zero, there is no live process.`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupUnwind,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("expect expression bytes")
		}
		expr, err := hex.DecodeString(strings.Join(args, ""))
		if err != nil {
			return fmt.Errorf("bad expression: %v", err)
		}

		cfa, _ := cmd.Flags().GetUint64("cfa")
		fb, _ := cmd.Flags().GetUint64("fb")
		cfg := op.Config{}
		if cfa != 0 {
			cfg.CFA, cfg.HasCFA = cfa, true
		}
		if fb != 0 {
			cfg.FrameBase, cfg.HasFrameBase = int64(fb), true
		}

		sess := op.New(expr, cfg)
		loc, req, err := sess.Run()
		for err == nil && req != nil {
			switch req.Kind {
			case op.NeedRegister:
				fmt.Printf("reading register %d => 0\n", req.Reg)
			case op.NeedMemory:
				fmt.Printf("reading %d bytes at %#x => 0\n", req.Size, req.Addr)
			}
			loc, req, err = sess.Resume(0)
		}
		if err != nil {
			return err
		}

		switch loc.Kind {
		case op.LocEmpty:
			fmt.Println("empty location")
		case op.LocAddress:
			fmt.Printf("memory address %#x\n", loc.Addr)
		case op.LocRegister:
			fmt.Printf("register %d\n", loc.Reg)
		case op.LocImplicit:
			fmt.Printf("implicit value % x\n", loc.Value)
		case op.LocComposite:
			fmt.Printf("composite of %d pieces\n", len(loc.Pieces))
			for i, p := range loc.Pieces {
				fmt.Printf("  piece %d: %+v\n", i, p)
			}
		}
		return nil
	},
}

func init() {
	exploreRootCmd.AddCommand(evalCmd)

	evalCmd.Flags().Uint64("cfa", 0, "canonical frame address for DW_OP_call_frame_cfa")
	evalCmd.Flags().Uint64("fb", 0, "frame base for DW_OP_fbreg")
}

package explore

import (
	"github.com/spf13/cobra"
)

var exitCmd = &cobra.Command{
	Use:   "exit",
	Short: "end the exploration session",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	Aliases: []string{"quit", "q"},
	Run: func(cmd *cobra.Command, args []string) {
		CurrentSession.Stop()
	},
}

func init() {
	exploreRootCmd.AddCommand(exitCmd)
}

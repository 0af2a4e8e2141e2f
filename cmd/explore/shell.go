package explore

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupInfo   = "1-info"
	cmdGroupSource = "2-source"
	cmdGroupUnwind = "3-unwind"
	cmdGroupOthers = "4-other"
	cmdGroupCobra  = "other"
	groupDelimiter = "-"

	prompt    = "gdwarf> "
	descShort = "gdwarf interactive exploration commands"
)

var exploreRootCmd = &cobra.Command{
	Use:   "help [command]",
	Short: descShort,
}

// CurrentSession is the running interactive session, if any.
var CurrentSession *Session

// Session drives the interactive read-eval loop.
type Session struct {
	done   chan bool
	prefix string
	root   *cobra.Command
	liner  *liner.State
	last   string
}

// NewSession creates the interactive session manager.
func NewSession() *Session {
	fn := func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.Short)
		fmt.Println()
		fmt.Println(cmd.Use)
		fmt.Println(cmd.Flags().FlagUsages())
		fmt.Println(helpMessageByGroups(cmd))
	}
	exploreRootCmd.SetHelpFunc(fn)

	CurrentSession = &Session{
		done:   make(chan bool),
		prefix: prompt,
		root:   exploreRootCmd,
		liner:  liner.NewLiner(),
		last:   "",
	}
	return CurrentSession
}

func (s *Session) Start() {
	s.liner.SetCompleter(completer)
	s.liner.SetTabCompletionStyle(liner.TabPrints)

	for {
		select {
		case <-s.done:
			s.liner.Close()
			return
		default:
		}

		txt, err := s.liner.Prompt(s.prefix)
		if err != nil {
			s.liner.Close()
			return
		}

		txt = strings.TrimSpace(txt)
		if len(txt) != 0 {
			s.last = txt
			s.liner.AppendHistory(txt)
		} else {
			txt = s.last
		}
		if len(txt) == 0 {
			continue
		}

		s.root.SetArgs(strings.Split(txt, " "))
		s.root.Execute()
	}
}

func (s *Session) Stop() {
	close(s.done)
}

func completer(line string) []string {
	cmds := []string{}
	for _, c := range exploreRootCmd.Commands() {
		// complete cmd
		if strings.HasPrefix(c.Use, line) {
			cmds = append(cmds, strings.Split(c.Use, " ")[0])
		}
		// complete cmd's aliases
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				cmds = append(cmds, alias)
			}
		}
	}
	return cmds
}

// helpMessageByGroups groups the commands and renders per-group help.
func helpMessageByGroups(cmd *cobra.Command) string {
	// key:group, val:sorted commands in same group
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		// commands without a group go to the other group
		groupName, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = cmdGroupCobra
		}

		groupCmds := append(groups[groupName], fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)
		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	groupNames := []string{}
	for k := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		commands := groups[groupName]

		group := strings.Split(groupName, groupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))

		for _, cmd := range commands {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

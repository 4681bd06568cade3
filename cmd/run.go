package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute pipeline steps",
	Long: `Execute the specified pipeline steps. Use -p to specify which steps to run.
A file argument is the starting point for pipelines that do not record first,
e.g. 'voicenote run memo.m4a -p cs --to <id>'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rs)")
		}

		steps := []rune(strings.ToLower(pipeline))
		st := &pipelineState{}
		if len(args) == 1 {
			st.file = args[0]
		} else if steps[0] != 'r' {
			return fmt.Errorf("pipeline '%s' needs a file argument or must start with 'r'", pipeline)
		}

		svc, closeEngine := newService(cmd)
		defer closeEngine()

		return runSteps(cmd.Context(), svc, st, steps)
	},
}

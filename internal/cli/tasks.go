package cli

import (
	"github.com/spf13/cobra"
)

// NewTasksCmd создаёт команду списка task приложения.
func NewTasksCmd(load Loader) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "tasks APP",
		Short: "List tasks registered by APP",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(args[0])
			if err != nil {
				return err
			}

			names := a.Tasks().Names()
			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{name}
			}

			out := NewOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), jsonOutput)
			out.Print([]string{"TASK"}, rows, names)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

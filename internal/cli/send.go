package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/canvas"
	"github.com/shaiso/Courier/internal/mq"
)

// sendFlags - флаги команды send.
type sendFlags struct {
	args       string
	kwargs     string
	queue      string
	priority   int
	countdown  float64
	maxRetries int
	then       []string
	jsonOutput bool
}

// NewSendCmd создаёт команду отправки task.
func NewSendCmd(load Loader) *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send APP TASK",
		Short: "Send a task (or a chain with --then) to the broker",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := f.signature(cmd, args[1])
			if err != nil {
				return err
			}

			a, err := load(args[0])
			if err != nil {
				return err
			}

			gw, closeConn, err := a.Connect(cmd.Context(), mq.ModeClient, mq.Topology{})
			if err != nil {
				return err
			}
			defer closeConn()

			env, err := a.Send(cmd.Context(), gw, sig)
			if err != nil {
				return err
			}

			out := NewOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), f.jsonOutput)
			if f.jsonOutput {
				out.JSON(env)
				return nil
			}
			out.Line(env.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.args, "args", "", `Positional arguments as a JSON array, e.g. '[2, 2]'`)
	cmd.Flags().StringVar(&f.kwargs, "kwargs", "", `Keyword arguments as a JSON object, e.g. '{"url": "..."}'`)
	cmd.Flags().StringVarP(&f.queue, "queue", "Q", "", "Destination queue (default: TASK_DEFAULT_QUEUE)")
	cmd.Flags().IntVar(&f.priority, "priority", 0, "Message priority")
	cmd.Flags().Float64Var(&f.countdown, "countdown", 0, "Delay before execution in seconds")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "Retry limit for this task")
	cmd.Flags().StringArrayVar(&f.then, "then", nil, "Task to run with the result (repeatable, builds a chain)")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the sent envelope as JSON")

	return cmd
}

// signature строит signature (или chain) из аргументов команды.
func (f sendFlags) signature(cmd *cobra.Command, taskName string) (canvas.Signature, error) {
	var args []any
	if f.args != "" {
		if err := json.Unmarshal([]byte(f.args), &args); err != nil {
			return canvas.Signature{}, usageError("--args must be a JSON array: %v", err)
		}
	}

	var kwargs map[string]any
	if f.kwargs != "" {
		if err := json.Unmarshal([]byte(f.kwargs), &kwargs); err != nil {
			return canvas.Signature{}, usageError("--kwargs must be a JSON object: %v", err)
		}
	}

	var opts []canvas.Option
	if f.queue != "" {
		opts = append(opts, canvas.WithQueue(f.queue))
	}
	if cmd.Flags().Changed("priority") {
		opts = append(opts, canvas.WithPriority(f.priority))
	}
	if f.countdown > 0 {
		opts = append(opts, canvas.WithCountdown(f.countdown))
	}
	if cmd.Flags().Changed("max-retries") {
		if f.maxRetries < 0 {
			return canvas.Signature{}, usageError("--max-retries must not be negative, got %d", f.maxRetries)
		}
		opts = append(opts, canvas.WithMaxRetries(f.maxRetries))
	}

	sig := canvas.New(taskName, args, kwargs, opts...)
	if len(f.then) == 0 {
		return sig, nil
	}

	links := []canvas.Signature{sig}
	for _, name := range f.then {
		links = append(links, canvas.New(name, nil, nil))
	}

	chain, err := canvas.Chain(links...)
	if err != nil {
		return canvas.Signature{}, fmt.Errorf("build chain: %w", err)
	}
	return chain, nil
}

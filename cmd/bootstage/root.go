package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	logLevel string
	order    string
	deadline time.Duration
}

// buildRootCmd constructs the command tree.
func buildRootCmd() *cobra.Command {
	opts := &options{logLevel: "info", deadline: 30 * time.Second}
	if v := os.Getenv("BOOTSTAGE_LOG_LEVEL"); v != "" {
		opts.logLevel = v
	}

	root := &cobra.Command{
		Use:           "bootstage",
		Short:         "Validate and simulate stage launch plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug|info|warn|error (defaults BOOTSTAGE_LOG_LEVEL or info)")

	validateCmd := &cobra.Command{
		Use:     "validate <plan>",
		Short:   "Check a plan file for unknown stages, bad durations and prevention cycles",
		Example: "  bootstage validate plan.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0])
		},
	}

	runCmd := &cobra.Command{
		Use:     "run <plan>",
		Short:   "Launch the stages of a plan, simulating their asynchronous work",
		Example: "  bootstage run plan.toml --order 'config > db' --deadline 10s",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
			if err != nil {
				return err
			}
			return runPlan(cmd.Context(), cmd.OutOrStdout(), log, args[0], opts)
		},
	}
	runCmd.Flags().StringVar(&opts.order, "order", "", "Launch order formula overriding the plan, e.g. 'config > db'")
	runCmd.Flags().DurationVar(&opts.deadline, "deadline", opts.deadline, "How long to wait for the launched stages to finish")

	root.AddCommand(validateCmd, runCmd)
	root.SetErr(os.Stderr)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})

	return root
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

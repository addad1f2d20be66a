// Command bkernel drives the simulated kernel core: either freestanding,
// on a real ticker, or through one of the scripted end-to-end scenarios
// from this kernel's design documents.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jnwu/bkernel/pkg/kernel/dispatch"
	"github.com/jnwu/bkernel/pkg/kernel/hal"
	"github.com/jnwu/bkernel/pkg/kernel/klog"
	"github.com/jnwu/bkernel/pkg/kernel/ktime"
	"github.com/jnwu/bkernel/pkg/kernel/proc"
)

var (
	logLevel string
	maxProc  int
)

func main() {
	root := &cobra.Command{
		Use:           "bkernel",
		Short:         "a simulated preemptive single-CPU kernel core",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("bkernel: invalid --log-level %q: %w", logLevel, err)
			}
			klog.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	root.PersistentFlags().IntVar(&maxProc, "max-proc", proc.DefaultMaxProc, "process table capacity")

	root.AddCommand(newRunCmd(), newScenarioCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "boot the kernel against a real timer and a small demo process tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			alloc := hal.NewHeapAllocator(0)
			ticks := hal.NewTickerSource(ktime.Quantum)
			console := hal.NewWriterConsole(os.Stdout)

			d := dispatch.New(maxProc, alloc, ticks, console)

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			go ticks.Run(ctx)

			if _, err := d.Create(demoRootEntry, 0); err != nil {
				return fmt.Errorf("bkernel: seeding root process: %w", err)
			}

			d.Run(ctx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "how long to let the kernel run before stopping")
	return cmd
}

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "scenario [name]",
		Short:     "run one of the scripted end-to-end scenarios deterministically",
		Args:      cobra.ExactArgs(1),
		ValidArgs: scenarioNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, ok := scenarios[args[0]]
			if !ok {
				return fmt.Errorf("bkernel: unknown scenario %q (want one of %v)", args[0], scenarioNames())
			}
			return fn(cmd.OutOrStdout())
		},
	}
	return cmd
}

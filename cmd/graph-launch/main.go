// Command graph-launch builds the graph from launch description or config
// file, plays it and prints bus messages until EOS or error.
//
//	graph-launch tonesrc num-buffers=100 ! tee name=t ! queue ! fakesink t. ! queue ! fakesink
//	graph-launch --config graph.yaml --seek 2s --metrics :9090
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"pipelined.dev/graph/registry"
)

var (
	successExitCode = 0
	errorExitCode   = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := successExitCode
	if err := newRootCommand(registry.Default()).ExecuteContext(ctx); err != nil {
		code = errorExitCode
	}
	stop()
	os.Exit(code)
}

func newRootCommand(r *registry.Registry) *cobra.Command {
	cmd := &launchCommand{registry: r}
	root := &cobra.Command{
		Use:          "graph-launch [flags] DESCRIPTION...",
		Short:        "Build and play a graph",
		Long:         "Build the graph from launch description or config file, play it and print bus messages until end of stream or error.",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE:         cmd.run,
	}
	cmd.register(root)
	root.AddCommand(newListCommand(r))
	return root
}

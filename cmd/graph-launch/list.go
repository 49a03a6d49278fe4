package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pipelined.dev/graph/registry"
)

var errProperty = fmt.Errorf("property must be KEY=VALUE: %w", registry.ErrInvalidProperty)

func newListCommand(r *registry.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "list [FACTORY [PROPERTY=VALUE...]]",
		Short: "Show the list of available elements or pad templates of one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range r.Factories() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			props := registry.Props{}
			for _, arg := range args[1:] {
				k, v, ok := strings.Cut(arg, "=")
				if !ok || k == "" {
					return fmt.Errorf("%s: %w", arg, errProperty)
				}
				props[k] = v
			}
			class, err := r.Describe(args[0], props)
			if err != nil {
				return err
			}
			printTemplates(cmd.OutOrStdout(), args[0], class)
			return nil
		},
	}
}

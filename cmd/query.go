package cmd

import (
	"bufio"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file> <key>...",
		Short: "look up keys in a tree file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTree(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, arg := range args[1:] {
				k, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return errors.Wrapf(err, "bad key %q", arg)
				}
				if v, ok := t.search(k); ok {
					fmt.Fprintf(out, "%d %d\n", k, v)
				} else {
					fmt.Fprintf(out, "%d not found\n", k)
				}
			}
			return nil
		},
	}
}

func (a *app) dumpCmd() *cobra.Command {
	var (
		from  uint64
		limit int
		nodes bool
	)
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "print the pairs of a tree file in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTree(args[0])
			if err != nil {
				return err
			}
			if nodes {
				return t.Print(cmd.OutOrStdout())
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			n := 0
			t.scan(from, func(k, v uint64) bool {
				fmt.Fprintf(w, "%d %d\n", k, v)
				n++
				return limit <= 0 || n < limit
			})
			return errors.Wrap(w.Flush(), "failed to write pairs")
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first key to print")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of pairs (0 prints all)")
	cmd.Flags().BoolVar(&nodes, "tree", false, "print the node structure instead of the pairs")
	return cmd
}

func (a *app) dotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dot <file>",
		Short: "print a tree file as a Graphviz digraph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTree(args[0])
			if err != nil {
				return err
			}
			return t.WriteDot(cmd.OutOrStdout())
		},
	}
}

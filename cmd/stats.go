package cmd

import (
	"fmt"
	"strings"

	"go-arenakv/pkg/metrics"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (a *app) statsCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "print tree and arena metrics of a tree file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTree(args[0])
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			if err := reg.Register(metrics.NewTreeCollector(t, prometheus.Labels{"tree": name})); err != nil {
				return err
			}
			samples, err := metrics.Gather(reg)
			if err != nil {
				return err
			}

			tbl := tablewriter.NewWriter(cmd.OutOrStdout())
			tbl.SetHeader([]string{"metric", "value"})
			tbl.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, s := range samples {
				tbl.Append([]string{
					strings.TrimPrefix(s.Name, "arenakv_tree_"),
					fmt.Sprintf("%.0f", s.Value),
				})
			}
			tbl.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "default", "value of the tree label")
	return cmd
}

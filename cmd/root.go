// Package cmd implements the arenakv command line tool.
package cmd

import (
	"os"

	"go-arenakv/config"
	"go-arenakv/pkg/compress"
	"go-arenakv/util/logger"

	"github.com/spf13/cobra"
)

var log = logger.Component("arenakv")

type app struct {
	cfg         *config.AppConfig
	compression string
}

// NewRootCmd builds the command tree around cfg. Flags write straight into
// the config fields.
func NewRootCmd(cfg *config.AppConfig) *cobra.Command {
	a := &app{cfg: cfg, compression: cfg.Storage.Compression.String()}

	root := &cobra.Command{
		Use:           "arenakv [command] (flags)",
		Short:         "arena backed B+Tree index tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.SetLevel(cfg.Log.Level); err != nil {
				return err
			}
			kind, err := compress.Parse(a.compression)
			if err != nil {
				return err
			}
			cfg.Storage.Compression = kind
			return nil
		},
	}

	root.PersistentFlags().StringVar(
		&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(
		&a.compression, "compression", a.compression, "codec for written files (none, snappy, lz4, zstd)")

	cobra.EnableCommandSorting = false
	root.AddCommand(
		a.buildCmd(),
		a.getCmd(),
		a.dumpCmd(),
		a.dotCmd(),
		a.saveCmd(),
		a.verifyCmd(),
		a.benchCmd(),
		a.statsCmd(),
	)
	return root
}

func Execute() {
	if err := NewRootCmd(config.New()).Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func (a *app) treeFlags(cmd *cobra.Command) {
	c := a.cfg.Tree
	cmd.Flags().IntVar(
		&c.NodeCapacity, "capacity", c.NodeCapacity, "maximum entries per node")
	cmd.Flags().IntVar(
		&c.EstimatedCount, "estimate", c.EstimatedCount, "expected number of keys, used to size arena blocks")
	cmd.Flags().IntVar(
		&c.BlockCapacity, "block-capacity", c.BlockCapacity, "arena block size in bytes (0 derives it from --estimate)")
	cmd.Flags().BoolVar(
		&c.Wide, "wide", c.Wide, "use 64-bit keys and values")
}

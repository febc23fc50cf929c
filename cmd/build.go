package cmd

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go-arenakv/util/timer"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const progressInterval = 5 * time.Second

type buildOptions struct {
	input  string
	random int
	seed   int64
}

func (a *app) buildCmd() *cobra.Command {
	o := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build <out>",
		Short: "build a tree and write it to a file",
		Long: `
Build a tree from "key [value]" lines read from --input (stdin when empty)
or from --random generated keys, and write its serialized form to <out>.
A missing value defaults to the key. Duplicate keys are skipped.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, args[0], o)
		},
	}
	a.treeFlags(cmd)
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "file with one \"key [value]\" pair per line")
	cmd.Flags().IntVarP(&o.random, "random", "n", 0, "insert this many random keys instead of reading input")
	cmd.Flags().Int64Var(&o.seed, "seed", 1, "seed for --random")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, out string, o *buildOptions) error {
	t, err := newIndex(a.cfg.Tree)
	if err != nil {
		return err
	}

	var inserted, skipped int64
	start := time.Now()
	ticker := timer.SetInterval(progressInterval, func() {
		log.Infof("%d keys inserted in %s", atomic.LoadInt64(&inserted), time.Since(start).Round(time.Millisecond))
	})
	defer ticker.Stop()

	add := func(k, v uint64) error {
		ok, err := t.insert(k, v)
		if err != nil {
			return err
		}
		if ok {
			atomic.AddInt64(&inserted, 1)
		} else {
			skipped++
		}
		return nil
	}

	if o.random > 0 {
		rng := rand.New(rand.NewSource(o.seed))
		for i := 0; i < o.random; i++ {
			k := rng.Uint64()
			if !a.cfg.Tree.Wide {
				k &= 0xFFFFFFFF
			}
			if err := add(k, uint64(i)); err != nil {
				return err
			}
		}
	} else {
		in := cmd.InOrStdin()
		if o.input != "" {
			f, err := os.Open(o.input)
			if err != nil {
				return errors.Wrap(err, "failed to open input")
			}
			defer f.Close()
			in = f
		}
		if err := readPairs(in, add); err != nil {
			return err
		}
	}

	if err := writeTree(out, t, a.cfg.Storage.Compression); err != nil {
		return err
	}
	log.Infof("built %s in %s", t, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "%d keys inserted, %d duplicates skipped\n", inserted, skipped)
	return nil
}

// readPairs parses "key [value]" lines. Blank lines and lines starting with
// '#' are ignored.
func readPairs(r io.Reader, fn func(k, v uint64) error) error {
	s := bufio.NewScanner(r)
	line := 0
	for s.Scan() {
		line++
		fields := strings.Fields(s.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) > 2 {
			return errors.Errorf("line %d: expected \"key [value]\"", line)
		}

		k, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		v := k
		if len(fields) == 2 {
			if v, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
				return errors.Wrapf(err, "line %d", line)
			}
		}
		if err := fn(k, v); err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
	}
	return errors.Wrap(s.Err(), "failed to read input")
}

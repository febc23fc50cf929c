package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const (
	minLatency = 10 * time.Nanosecond
	maxLatency = 10 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 2)
}

func clampLatency(d time.Duration) time.Duration {
	if d < minLatency {
		return minLatency
	}
	if d > maxLatency {
		return maxLatency
	}
	return d
}

func (a *app) benchCmd() *cobra.Command {
	var (
		count int
		seed  int64
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "measure insert and search latency on random keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := newIndex(a.cfg.Tree)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(seed))
			keys := make([]uint64, count)
			for i := range keys {
				keys[i] = rng.Uint64()
				if !a.cfg.Tree.Wide {
					keys[i] &= 0xFFFFFFFF
				}
			}

			inserts, searches := newHistogram(), newHistogram()
			start := time.Now()
			for i, k := range keys {
				begin := time.Now()
				if _, err := t.insert(k, uint64(i)); err != nil {
					return err
				}
				_ = inserts.RecordValue(clampLatency(time.Since(begin)).Nanoseconds())
			}
			insertTime := time.Since(start)

			rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
			start = time.Now()
			for _, k := range keys {
				begin := time.Now()
				t.search(k)
				_ = searches.RecordValue(clampLatency(time.Since(begin)).Nanoseconds())
			}
			searchTime := time.Since(start)

			out := cmd.OutOrStdout()
			tbl := tablewriter.NewWriter(out)
			tbl.SetHeader([]string{"op", "ops", "ops/sec", "p50", "p95", "p99", "max"})
			row := func(name string, h *hdrhistogram.Histogram, total time.Duration) {
				q := func(p float64) string { return time.Duration(h.ValueAtQuantile(p)).String() }
				tbl.Append([]string{
					name,
					fmt.Sprintf("%d", h.TotalCount()),
					fmt.Sprintf("%.0f", float64(h.TotalCount())/total.Seconds()),
					q(50), q(95), q(99),
					time.Duration(h.Max()).String(),
				})
			}
			row("insert", inserts, insertTime)
			row("search", searches, searchTime)
			tbl.Render()

			st := t.Stats()
			fmt.Fprintf(out, "%d keys, height %d, arena %s used of %s\n",
				st.Size, st.Height,
				humanize.IBytes(uint64(st.ArenaUsed)), humanize.IBytes(uint64(st.ArenaAllocated)))
			return nil
		},
	}
	a.treeFlags(cmd)
	cmd.Flags().IntVarP(&count, "count", "n", 100000, "number of random keys")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}

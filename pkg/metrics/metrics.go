// Package metrics exposes tree statistics as prometheus metrics.
package metrics

import (
	"sort"

	"go-arenakv/pkg/bptree"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "arenakv"

// Source is anything that can report tree statistics, usually a
// *bptree.BPlusTree of either key width.
type Source interface {
	Stats() bptree.Stats
}

type gauge struct {
	desc  *prometheus.Desc
	value func(st bptree.Stats) float64
}

// TreeCollector reads Stats from its source on every scrape. The source is
// not safe for concurrent use, so callers must not scrape while writing.
type TreeCollector struct {
	src    Source
	gauges []gauge
}

var _ prometheus.Collector = (*TreeCollector)(nil)

func NewTreeCollector(src Source, labels prometheus.Labels) *TreeCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "tree", name), help, nil, labels)
	}

	return &TreeCollector{
		src: src,
		gauges: []gauge{
			{desc("keys", "Number of keys stored in the tree"),
				func(st bptree.Stats) float64 { return float64(st.Size) }},
			{desc("height", "Number of levels, leaves included"),
				func(st bptree.Stats) float64 { return float64(st.Height) }},
			{desc("leaves", "Number of leaf nodes"),
				func(st bptree.Stats) float64 { return float64(st.Leaves) }},
			{desc("containers", "Number of container nodes"),
				func(st bptree.Stats) float64 { return float64(st.Containers) }},
			{desc("node_size_bytes", "Size of a single node"),
				func(st bptree.Stats) float64 { return float64(st.NodeSize) }},
			{desc("arena_blocks", "Number of arena blocks"),
				func(st bptree.Stats) float64 { return float64(st.ArenaBlocks) }},
			{desc("arena_allocated_bytes", "Bytes reserved by arena blocks"),
				func(st bptree.Stats) float64 { return float64(st.ArenaAllocated) }},
			{desc("arena_used_bytes", "Bytes handed out to nodes"),
				func(st bptree.Stats) float64 { return float64(st.ArenaUsed) }},
		},
	}
}

func (c *TreeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *TreeCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.value(st))
	}
}

// Sample is one gathered gauge or counter value.
type Sample struct {
	Name  string
	Value float64
}

// Gather collects every gauge and counter from g, sorted by name.
func Gather(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "failed to gather metrics")
	}

	samples := []Sample{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if v, ok := value(mf.GetType(), m); ok {
				samples = append(samples, Sample{Name: mf.GetName(), Value: v})
			}
		}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}

func value(t dto.MetricType, m *dto.Metric) (float64, bool) {
	switch t {
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	}
	return 0, false
}

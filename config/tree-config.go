package config

import "go-arenakv/pkg/bptree"

type TreeConfig struct {
	NodeCapacity   int
	EstimatedCount int
	BlockCapacity  int
	// Wide selects 64-bit keys and values.
	Wide bool
}

func NewTreeConfig() *TreeConfig {
	o := bptree.DefaultOptions()
	return &TreeConfig{
		NodeCapacity:   o.NodeCapacity,
		EstimatedCount: o.EstimatedCount,
	}
}

func (c *TreeConfig) Options() *bptree.Options {
	return &bptree.Options{
		NodeCapacity:   c.NodeCapacity,
		EstimatedCount: c.EstimatedCount,
		BlockCapacity:  c.BlockCapacity,
	}
}

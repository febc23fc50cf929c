package bptree

import (
	"math"

	"go-arenakv/pkg/arena"
	"go-arenakv/util/helpers"
)

const (
	// MinNodeCapacity is the smallest number of entries a node can hold.
	MinNodeCapacity = 3
	// MaxNodeCapacity is bounded by the one byte size field of a node.
	MaxNodeCapacity = math.MaxUint8

	// maxBlockCapacity caps the arena block size derived from EstimatedCount.
	maxBlockCapacity = 64 << 20

	// average fill of nodes after random inserts, used for block sizing
	occupancyRatio = 1.45
)

var defaultOptions = Options{
	NodeCapacity:   16,
	EstimatedCount: 1024,
}

// Options represents the configuration options for the tree.
type Options struct {
	// NodeCapacity is the maximum number of entries per node, between
	// MinNodeCapacity and MaxNodeCapacity. Fixed for the life of the tree.
	NodeCapacity int `json:"node_capacity"`

	// EstimatedCount is the expected number of keys. It only sizes arena
	// blocks; the tree grows past it without limit.
	EstimatedCount int `json:"estimated_count"`

	// BlockCapacity overrides the arena block size computed from
	// EstimatedCount. Values smaller than one node are raised to one node.
	BlockCapacity int `json:"block_capacity"`

	// Scratch provides the temporary buffers used by Serialize. Its regions
	// must fit a full leaf, see ScratchCapacity. When nil
	// the tree creates its own.
	Scratch *arena.RecycleRegion `json:"-"`
}

// DefaultOptions returns a copy of the options used when nil is passed.
func DefaultOptions() Options { return defaultOptions }

func nodeSize(capacity, width int) int {
	return nodeHeaderSz + capacity*2*width
}

// scratchSize is the largest buffer Serialize takes for one node: the
// stream header of a full leaf and its entries.
func scratchSize(capacity, width int) int {
	return 2 + capacity*2*width
}

// ScratchCapacity returns a region capacity suitable for Options.Scratch
// of trees with the given node capacity and key width in bytes.
func ScratchCapacity(capacity, width int) int {
	return helpers.Max(arena.MinRegionCapacity, 4*nodeSize(capacity, width))
}

// blockCapacity estimates the arena needed to hold count keys in a tree with
// the given node capacity: the leaf level at the expected occupancy plus
// every container level above it.
func blockCapacity(capacity, size, count int) int {
	leaves := float64(count/capacity) * occupancyRatio

	nodes := 0
	for depth := 0; ; depth++ {
		levelNodes := math.Pow(float64(capacity+1), float64(depth))
		nodes += int(levelNodes)
		if levelNodes*float64(capacity+1) >= leaves {
			break
		}
	}

	total := float64(nodes*size) + leaves*float64(size)
	return helpers.Max(size, int(helpers.Min(total, maxBlockCapacity)))
}

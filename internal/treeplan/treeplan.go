// Package treeplan sizes concurrent merkle trees for compressed collections.
package treeplan

import "sort"

// DepthSize is a (maxDepth, maxBufferSize) pair accepted by the account compression program.
type DepthSize struct {
	MaxDepth      uint32
	MaxBufferSize uint32
}

// AllDepthSizePairs lists every pair the on-chain program accepts.
var AllDepthSizePairs = []DepthSize{
	{3, 8}, {5, 8},
	{14, 64}, {14, 256}, {14, 1024}, {14, 2048},
	{15, 64}, {16, 64}, {17, 64}, {18, 64}, {19, 64},
	{20, 64}, {20, 256}, {20, 1024}, {20, 2048},
	{24, 64}, {24, 256}, {24, 512}, {24, 1024}, {24, 2048},
	{26, 512}, {26, 1024}, {26, 2048},
	{30, 512}, {30, 1024}, {30, 2048},
}

var DefaultPair = DepthSize{MaxDepth: 3, MaxBufferSize: 8}

const maxCanopyDepth = 17

type Plan struct {
	MaxDepth      uint32 `json:"max_depth"`
	MaxBufferSize uint32 `json:"max_buffer_size"`
	CanopyDepth   uint32 `json:"canopy_depth"`
}

// Capacity is the number of leaves the tree can hold.
func (p Plan) Capacity() uint64 {
	return uint64(1) << p.MaxDepth
}

type Planner struct {
	depths  []uint32
	buffers map[uint32]uint32
}

// NewPlanner builds a planner from a depth table. For depths listed more than once the
// smallest buffer wins, since it is the cheapest tree of that depth.
func NewPlanner(pairs []DepthSize) *Planner {
	p := &Planner{buffers: map[uint32]uint32{}}
	for _, pair := range pairs {
		cur, ok := p.buffers[pair.MaxDepth]
		if !ok {
			p.depths = append(p.depths, pair.MaxDepth)
		}
		if !ok || pair.MaxBufferSize < cur {
			p.buffers[pair.MaxDepth] = pair.MaxBufferSize
		}
	}
	sort.Slice(p.depths, func(i, j int) bool { return p.depths[i] < p.depths[j] })
	return p
}

// NewPlannerFromTables takes the supported depths and a depth to buffer size table separately.
// Depths missing from buffers are planned with the default buffer size.
func NewPlannerFromTables(depths []uint32, buffers map[uint32]uint32) *Planner {
	p := &Planner{
		depths:  append([]uint32(nil), depths...),
		buffers: make(map[uint32]uint32, len(buffers)),
	}
	for d, b := range buffers {
		p.buffers[d] = b
	}
	sort.Slice(p.depths, func(i, j int) bool { return p.depths[i] < p.depths[j] })
	return p
}

// NewDefaultPlanner uses the pairs supported on chain.
func NewDefaultPlanner() *Planner {
	return NewPlanner(AllDepthSizePairs)
}

// Plan picks the smallest depth whose capacity covers size. Sizes beyond the table get the deepest tree.
func (p *Planner) Plan(size int) Plan {
	if size <= 0 || len(p.depths) == 0 {
		return withCanopy(DefaultPair)
	}

	depth := p.depths[len(p.depths)-1]
	for _, d := range p.depths {
		if uint64(1)<<d >= uint64(size) {
			depth = d
			break
		}
	}

	buffer, ok := p.buffers[depth]
	if !ok {
		buffer = DefaultPair.MaxBufferSize
	}
	return withCanopy(DepthSize{MaxDepth: depth, MaxBufferSize: buffer})
}

// Fits reports whether a collection of size leaves fits in a tree of maxDepth.
func Fits(size int, maxDepth uint32) bool {
	return size >= 1 && uint64(size) <= uint64(1)<<maxDepth
}

func withCanopy(pair DepthSize) Plan {
	canopy := int(pair.MaxDepth)
	if canopy > maxCanopyDepth {
		canopy = maxCanopyDepth
	}
	canopy -= 3
	if canopy < 0 {
		canopy = 0
	}
	return Plan{MaxDepth: pair.MaxDepth, MaxBufferSize: pair.MaxBufferSize, CanopyDepth: uint32(canopy)}
}

package render

import (
	"sort"

	"cfgrec/internal/cfg"
)

// Block is a maximal straight-line run of graph nodes: one entry at
// the top, control leaves only from the bottom.
type Block struct {
	ID    int
	Addrs []uint64 // instruction addresses in flow order
}

// Start returns the block's entry address.
func (b *Block) Start() uint64 { return b.Addrs[0] }

// Last returns the address of the block's final instruction.
func (b *Block) Last() uint64 { return b.Addrs[len(b.Addrs)-1] }

// Blocks partitions a graph into basic blocks.
// The algorithm:
//  1. Find block leaders: the entry node, every edge target of a jump
//     or switch, and every node with more than one predecessor.
//  2. Grow each leader downward along pure fallthrough edges until the
//     next leader or a flow-changing instruction.
//  3. Number blocks by ascending start address, entry block first.
func Blocks(g *cfg.Graph) []*Block {
	if g == nil || g.Len() == 0 {
		return nil
	}

	leaders := map[uint64]bool{g.Entry: true}
	for _, addr := range g.Nodes() {
		for _, e := range g.Succs(addr) {
			if e.Kind != cfg.EdgeFallthrough {
				leaders[e.To] = true
			}
		}
		if len(g.Preds(addr)) > 1 {
			leaders[addr] = true
		}
	}

	starts := make([]uint64, 0, len(leaders))
	for addr := range leaders {
		if g.Has(addr) {
			starts = append(starts, addr)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	// Entry block always comes first.
	for i, a := range starts {
		if a == g.Entry {
			copy(starts[1:i+1], starts[:i])
			starts[0] = g.Entry
			break
		}
	}

	blocks := make([]*Block, 0, len(starts))
	for id, start := range starts {
		b := &Block{ID: id, Addrs: []uint64{start}}
		cur := start
		for {
			succs := g.Succs(cur)
			if len(succs) != 1 || succs[0].Kind != cfg.EdgeFallthrough {
				break
			}
			next := succs[0].To
			if leaders[next] {
				break
			}
			b.Addrs = append(b.Addrs, next)
			cur = next
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// BlockEdge is a successor edge between two blocks.
type BlockEdge struct {
	BlockID int
	Kind    cfg.EdgeKind
}

// BlockSuccs maps each block ID to its successor edges, expressed
// against the block numbering returned by Blocks.
func BlockSuccs(g *cfg.Graph, blocks []*Block) map[int][]BlockEdge {
	blockOf := make(map[uint64]int)
	for _, b := range blocks {
		blockOf[b.Start()] = b.ID
	}

	out := make(map[int][]BlockEdge, len(blocks))
	for _, b := range blocks {
		for _, e := range g.Succs(b.Last()) {
			if id, ok := blockOf[e.To]; ok {
				out[b.ID] = append(out[b.ID], BlockEdge{BlockID: id, Kind: e.Kind})
			}
		}
	}
	return out
}

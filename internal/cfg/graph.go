// Package cfg builds control-flow graphs over lazily disassembled
// instructions. The graph is instruction-granular: every decoded and
// reached instruction is a node, and edges are the possible execution
// transfers between them.
package cfg

import (
	"sort"

	"cfgrec/internal/arch"
)

// EdgeKind distinguishes how control reaches a successor.
type EdgeKind uint8

const (
	// EdgeFallthrough is plain sequential flow (including past calls).
	EdgeFallthrough EdgeKind = iota
	// EdgeUncond is the single target of an unconditional jump.
	EdgeUncond
	// EdgeCondTaken is the taken side of a conditional jump.
	EdgeCondTaken
	// EdgeCondFall is the not-taken side of a conditional jump.
	EdgeCondFall
	// EdgeSwitch is one fan-out edge of a registered jump table.
	EdgeSwitch
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeFallthrough:
		return "fallthrough"
	case EdgeUncond:
		return "uncond"
	case EdgeCondTaken:
		return "cond-taken"
	case EdgeCondFall:
		return "cond-fall"
	case EdgeSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Edge is one outgoing transfer.
type Edge struct {
	To   uint64
	Kind EdgeKind
}

// Graph owns both adjacency directions and keeps them exact inverses:
// an outgoing edge a->b always has a matching entry in b's predecessor
// set. Mutation goes through AddNode, AddEdge and Retract only, so the
// inverse invariant cannot be broken from outside. After construction
// finishes, every edge endpoint is a node.
type Graph struct {
	Entry uint64

	nodes    map[uint64]*arch.Instruction
	out      map[uint64][]Edge
	in       map[uint64]map[uint64]struct{}
	uncond   map[uint64]struct{}
	cond     map[uint64]struct{}
	prefetch map[uint64]*arch.Instruction
}

// NewGraph returns an empty graph rooted at entry.
func NewGraph(entry uint64) *Graph {
	return &Graph{
		Entry:    entry,
		nodes:    make(map[uint64]*arch.Instruction),
		out:      make(map[uint64][]Edge),
		in:       make(map[uint64]map[uint64]struct{}),
		uncond:   make(map[uint64]struct{}),
		cond:     make(map[uint64]struct{}),
		prefetch: make(map[uint64]*arch.Instruction),
	}
}

// Has reports whether addr is a node.
func (g *Graph) Has(addr uint64) bool {
	_, ok := g.nodes[addr]
	return ok
}

// Node returns the instruction at addr, or nil.
func (g *Graph) Node(addr uint64) *arch.Instruction {
	return g.nodes[addr]
}

// Len is the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all node addresses in ascending order.
func (g *Graph) Nodes() []uint64 {
	addrs := make([]uint64, 0, len(g.nodes))
	for a := range g.nodes {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// AddNode inserts inst as a node. Re-adding an existing address is a
// no-op. delaySlot, when non-nil, is the instruction executing in the
// branch's delay slot, kept for rendering.
func (g *Graph) AddNode(inst *arch.Instruction, delaySlot *arch.Instruction) {
	if _, ok := g.nodes[inst.Addr]; ok {
		return
	}
	g.nodes[inst.Addr] = inst
	if delaySlot != nil {
		g.prefetch[inst.Addr] = delaySlot
	}
}

// DelaySlot returns the delay-slot instruction recorded for a branch
// node, or nil.
func (g *Graph) DelaySlot(addr uint64) *arch.Instruction {
	return g.prefetch[addr]
}

// AddEdge records the transfer from -> to. Duplicate (to, kind) pairs
// from the same source collapse into one edge, so a jump table with
// repeated destinations yields a single switch edge per destination.
func (g *Graph) AddEdge(from, to uint64, kind EdgeKind) {
	for _, e := range g.out[from] {
		if e.To == to && e.Kind == kind {
			return
		}
	}
	g.out[from] = append(g.out[from], Edge{To: to, Kind: kind})
	set, ok := g.in[to]
	if !ok {
		set = make(map[uint64]struct{})
		g.in[to] = set
	}
	set[from] = struct{}{}
}

// Retract removes every edge into addr from both adjacency directions.
// Predecessors whose outgoing list becomes empty lose their outgoing
// entry entirely. Used when addr later proves undecodable.
func (g *Graph) Retract(addr uint64) {
	preds, ok := g.in[addr]
	if !ok {
		return
	}
	for p := range preds {
		kept := g.out[p][:0]
		for _, e := range g.out[p] {
			if e.To != addr {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(g.out, p)
		} else {
			g.out[p] = kept
		}
	}
	delete(g.in, addr)
}

// Succs returns a copy of addr's outgoing edges in insertion order.
func (g *Graph) Succs(addr uint64) []Edge {
	edges := g.out[addr]
	if len(edges) == 0 {
		return nil
	}
	cp := make([]Edge, len(edges))
	copy(cp, edges)
	return cp
}

// Preds returns addr's predecessor addresses in ascending order.
func (g *Graph) Preds(addr uint64) []uint64 {
	set := g.in[addr]
	if len(set) == 0 {
		return nil
	}
	preds := make([]uint64, 0, len(set))
	for p := range set {
		preds = append(preds, p)
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i] < preds[j] })
	return preds
}

// MarkUncondSource records addr as an unconditional-jump site.
func (g *Graph) MarkUncondSource(addr uint64) {
	g.uncond[addr] = struct{}{}
}

// MarkCondSource records addr as a conditional-jump site.
func (g *Graph) MarkCondSource(addr uint64) {
	g.cond[addr] = struct{}{}
}

// IsUncondSource reports whether addr performs an unconditional jump.
func (g *Graph) IsUncondSource(addr uint64) bool {
	_, ok := g.uncond[addr]
	return ok
}

// IsCondSource reports whether addr performs a conditional jump.
func (g *Graph) IsCondSource(addr uint64) bool {
	_, ok := g.cond[addr]
	return ok
}

// sweepDangling retracts every edge whose target never became a node.
// Needed only when construction stops early on a node budget.
func (g *Graph) sweepDangling() {
	var stale []uint64
	for to := range g.in {
		if !g.Has(to) {
			stale = append(stale, to)
		}
	}
	for _, to := range stale {
		g.Retract(to)
	}
}

package render

import (
	"fmt"

	"github.com/zboralski/lattice"
	latticerender "github.com/zboralski/lattice/render"

	"cfgrec/internal/arch"
	"cfgrec/internal/cfg"
	"cfgrec/internal/elfx"
)

// DOT renders a recovered graph as a Graphviz digraph, one node per
// basic block. Call sites inside a block are listed on the node, using
// the symbol name of the callee when one exists.
func DOT(g *cfg.Graph, a arch.Arch, img *elfx.Image, name string) string {
	blocks := Blocks(g)
	if len(blocks) == 0 {
		return ""
	}
	succs := BlockSuccs(g, blocks)

	fcfg := &lattice.FuncCFG{Name: name}
	idx := 0
	for _, b := range blocks {
		lb := &lattice.BasicBlock{
			ID:    b.ID,
			Start: idx,
			End:   idx + len(b.Addrs),
		}

		for off, addr := range b.Addrs {
			inst := g.Node(addr)
			if inst == nil {
				continue
			}
			if a.IsCall(inst) {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx + off,
					Callee: calleeName(a, img, inst),
				})
			}
		}
		idx += len(b.Addrs)

		for _, e := range succs[b.ID] {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: e.BlockID,
				Cond:    condLabel(e.Kind),
			})
		}
		lb.Term = len(lb.Succs) == 0

		fcfg.Blocks = append(fcfg.Blocks, lb)
	}

	graph := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{fcfg}}
	return latticerender.DOTCFG(graph, name)
}

func condLabel(k cfg.EdgeKind) string {
	switch k {
	case cfg.EdgeCondTaken:
		return "T"
	case cfg.EdgeCondFall:
		return "F"
	default:
		return ""
	}
}

func calleeName(a arch.Arch, img *elfx.Image, inst *arch.Instruction) string {
	target, ok := a.Target(inst)
	if !ok {
		return "indirect"
	}
	if name, ok := img.RevSymbols[target]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", target)
}

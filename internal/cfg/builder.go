package cfg

import (
	"errors"

	"cfgrec/internal/arch"
)

// ErrNoGraph reports that nothing reachable from the entry address
// decoded; callers can tell an invalid entry apart from a small but
// valid graph.
var ErrNoGraph = errors.New("no reachable instructions at entry")

// Decoder resolves addresses to decoded instructions, memoized by the
// caller. A nil result means the address does not decode.
type Decoder interface {
	DecodeAt(addr uint64) *arch.Instruction
}

// TableRegistry exposes jump tables registered ahead of graph
// construction, keyed by the address of the indirect jump that uses
// them.
type TableRegistry interface {
	JumpTableEntries(instAddr uint64) ([]uint64, bool)
}

// Build explores the code reachable from entry and assembles its
// control-flow graph.
//
// The walk is driven by an explicit LIFO worklist rather than
// recursion, so arbitrarily deep or irregular flow cannot overflow the
// stack. Successor edges are recorded speculatively when their source
// is expanded; a target that later fails to decode has every edge into
// it retracted, which is how optimistic exploration into padding or
// data is undone. Revisiting an address already in the graph is a
// no-op, which also absorbs cycles.
//
// maxNodes bounds exploration (0 means unbounded); when the budget is
// hit the partial graph is returned with dangling speculative edges
// swept out.
func Build(a arch.Arch, dec Decoder, tables TableRegistry, entry uint64, maxNodes int) (*Graph, error) {
	g := NewGraph(entry)
	stack := []uint64{entry}

	for len(stack) > 0 {
		ad := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		inst := dec.DecodeAt(ad)
		if inst == nil {
			g.Retract(ad)
			continue
		}
		if g.Has(inst.Addr) {
			continue
		}
		if maxNodes > 0 && g.Len() >= maxNodes {
			break
		}

		delaySlot := a.PrefetchSuccessor(inst, dec.DecodeAt)

		switch {
		case a.IsReturn(inst):
			g.AddNode(inst, delaySlot)

		case a.IsUncondJump(inst):
			g.MarkUncondSource(ad)
			g.AddNode(inst, delaySlot)
			if target, ok := a.Target(inst); ok {
				g.AddEdge(ad, target, EdgeUncond)
				stack = append(stack, target)
				break
			}
			if entries, ok := lookupTable(tables, ad); ok {
				for _, target := range entries {
					g.AddEdge(ad, target, EdgeSwitch)
					stack = append(stack, target)
				}
				break
			}
			// Unresolvable indirect jump: deliberate leaf.

		case a.IsCondJump(inst):
			g.MarkCondSource(ad)
			g.AddNode(inst, delaySlot)
			target, ok := a.Target(inst)
			if !ok {
				// Indirect condition target, same leaf policy.
				break
			}
			fall := inst.End()
			if delaySlot != nil {
				fall = delaySlot.End()
			}
			g.AddEdge(ad, target, EdgeCondTaken)
			g.AddEdge(ad, fall, EdgeCondFall)
			stack = append(stack, fall, target)

		default:
			// Calls and every other instruction flow sequentially.
			next := inst.End()
			g.AddNode(inst, nil)
			g.AddEdge(ad, next, EdgeFallthrough)
			stack = append(stack, next)
		}
	}

	g.sweepDangling()

	if g.Len() == 0 {
		return nil, ErrNoGraph
	}
	return g, nil
}

func lookupTable(tables TableRegistry, instAddr uint64) ([]uint64, bool) {
	if tables == nil {
		return nil, false
	}
	return tables.JumpTableEntries(instAddr)
}

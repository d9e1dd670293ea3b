package disasm

import (
	"fmt"
	"strconv"
	"strings"
)

// JumpTable is one resolved indirect-jump table: the jump site, the
// table's own address, its destination addresses in table order
// (duplicates preserved), and the symbol generated for the table.
// Immutable once registered.
type JumpTable struct {
	InstAddr  uint64
	TableAddr uint64
	Entries   []uint64
	Name      string
}

// RegisterJumpTable reads count words of wordSize bytes at tableAddr
// and records them as the jump table used by the indirect jump at
// instAddr. Reads crossing the owning section's end truncate the table
// rather than failing. The table gets a generated symbol, the jump
// site an inline "switch statement" comment, and every destination a
// comment listing the case indices that reach it.
//
// Registration must happen before BuildCFG reaches instAddr: the
// builder only consults the registry, it never resolves tables itself.
func (d *Disassembler) RegisterJumpTable(instAddr, tableAddr uint64, wordSize, count int) (*JumpTable, error) {
	name := d.AddSymbol(tableAddr, fmt.Sprintf("jmptable_0x%x", tableAddr))

	entries, err := d.ReadArray(tableAddr, count, wordSize)
	if err != nil {
		return nil, err
	}

	jt := &JumpTable{
		InstAddr:  instAddr,
		TableAddr: tableAddr,
		Entries:   entries,
		Name:      name,
	}
	d.jumpTables[instAddr] = jt
	d.inline[instAddr] = fmt.Sprintf("switch statement %s", name)

	// Several case indices may share one destination (fallthrough
	// cases); they are merged into a single comment per destination.
	cases := make(map[uint64][]int)
	for idx, dest := range entries {
		cases[dest] = append(cases[dest], idx)
	}
	for dest, idxs := range cases {
		labels := make([]string, len(idxs))
		for i, n := range idxs {
			labels[i] = strconv.Itoa(n)
		}
		d.prev[dest] = []string{fmt.Sprintf("case %s  %s", strings.Join(labels, ", "), name)}
	}
	return jt, nil
}

// JumpTable returns the table registered for the jump at instAddr.
func (d *Disassembler) JumpTable(instAddr uint64) (*JumpTable, bool) {
	jt, ok := d.jumpTables[instAddr]
	return jt, ok
}

// JumpTableEntries implements cfg.TableRegistry.
func (d *Disassembler) JumpTableEntries(instAddr uint64) ([]uint64, bool) {
	jt, ok := d.jumpTables[instAddr]
	if !ok {
		return nil, false
	}
	return jt.Entries, true
}

// CaseIndices returns the table-entry indices that target dest in the
// table registered for instAddr.
func (d *Disassembler) CaseIndices(instAddr, dest uint64) []int {
	jt, ok := d.jumpTables[instAddr]
	if !ok {
		return nil
	}
	var idxs []int
	for i, e := range jt.Entries {
		if e == dest {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// InlineComment returns the same-line comment for addr, if any.
func (d *Disassembler) InlineComment(addr uint64) (string, bool) {
	c, ok := d.inline[addr]
	return c, ok
}

// PrevComments returns the comment lines shown above addr.
func (d *Disassembler) PrevComments(addr uint64) []string {
	return d.prev[addr]
}

// SetInlineComment attaches a same-line comment to addr.
func (d *Disassembler) SetInlineComment(addr uint64, comment string) {
	d.inline[addr] = comment
}

// Export snapshots the session's analysis products for persistence.
func (d *Disassembler) Export() State {
	return State{
		JumpTables:     d.jumpTables,
		InlineComments: d.inline,
		PrevComments:   d.prev,
	}
}

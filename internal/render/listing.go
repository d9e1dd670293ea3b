// Package render turns decoded instructions and recovered graphs into
// terminal listings, data dumps and DOT output.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/ianlancetaylor/demangle"

	"cfgrec/internal/arch"
	"cfgrec/internal/disasm"
	"cfgrec/internal/elfx"
	"cfgrec/internal/ui/colorize"
)

var (
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))  // Cyan for section names
	symbolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // Orange for symbols
	addrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // Gray for addresses
	stringStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("114")) // Green for string data
)

func styled(st lipgloss.Style, s string) string {
	if !colorize.Enabled() {
		return s
	}
	return st.Render(s)
}

func printSectionMeta(w io.Writer, s *elfx.Section) {
	fmt.Fprintf(w, "%s [ 0x%x - 0x%x - %d ]\n",
		styled(sectionStyle, fmt.Sprintf("%-20s", s.Name)),
		s.Start, s.End, s.End-s.Start+1)
}

// DumpAsm writes a linear listing of up to lines rows starting at
// entry. Decoding never crosses out of entry's section. A byte that
// fails to decode costs one listing row and advances the cursor by
// one so a later valid boundary can resynchronize.
func DumpAsm(w io.Writer, d *disasm.Disassembler, entry uint64, lines int) error {
	if err := d.CheckAddr(entry, true); err != nil {
		return err
	}
	s, _ := d.Image().SectionAt(entry)
	printSectionMeta(w, s)

	ad := entry
	for l := 0; l < lines && ad <= s.End; l++ {
		inst := d.DecodeAtBound(ad, s.Start)
		if inst == nil {
			fmt.Fprintln(w, colorize.Line(fmt.Sprintf("0x%-12x (bad)", ad)))
			ad++
			continue
		}
		printInst(w, d, inst)
		ad = inst.End()
	}
	return nil
}

// printInst writes one instruction row, preceded by its symbol label
// and any case comments, and followed inline by a jump-table comment.
func printInst(w io.Writer, d *disasm.Disassembler, inst *arch.Instruction) {
	if name, ok := d.Image().RevSymbols[inst.Addr]; ok {
		fmt.Fprintf(w, "%s:\n", styled(symbolStyle, name))
	}
	for _, c := range d.PrevComments(inst.Addr) {
		fmt.Fprintln(w, colorize.Line(fmt.Sprintf("; %s", c)))
	}
	line := fmt.Sprintf("0x%-12x %s", inst.Addr, inst.Text)
	if c, ok := d.InlineComment(inst.Addr); ok {
		line += fmt.Sprintf("  ; %s", c)
	}
	fmt.Fprintln(w, colorize.Line(line))
}

// DumpData writes lines words of wordSize bytes starting at addr,
// annotating words that land inside a mapped section.
func DumpData(w io.Writer, d *disasm.Disassembler, addr uint64, lines, wordSize int) error {
	if err := d.CheckAddr(addr, false); err != nil {
		return err
	}
	s, _ := d.Image().SectionAt(addr)
	printSectionMeta(w, s)

	words, err := d.ReadArray(addr, lines, wordSize)
	if err != nil {
		return err
	}

	img := d.Image()
	ad := addr
	for _, word := range words {
		if name, ok := img.RevSymbols[ad]; ok {
			fmt.Fprintf(w, "%s:\n", styled(symbolStyle, name))
		}
		fmt.Fprintf(w, "%s 0x%.2x", styled(addrStyle, fmt.Sprintf("0x%-12x", ad)), word)
		if sec, _, ok := img.IsAddress(word); ok {
			fmt.Fprintf(w, " (%s)", styled(sectionStyle, sec))
			if wordSize >= 4 {
				if name, ok := img.RevSymbols[word]; ok {
					fmt.Fprintf(w, " %s", styled(symbolStyle, name))
				}
			}
		}
		fmt.Fprintln(w)
		ad += uint64(wordSize)
	}
	return nil
}

const asciiBlockSize = 128

func printableByte(c byte) bool {
	return (c >= 0x20 && c < 0x7f) || c == '\n' || c == '\t' || c == '\r'
}

// DumpDataASCII writes lines rows starting at addr. Printable runs of
// at least two bytes ending in NUL print as quoted strings; everything
// else prints one byte per row.
func DumpDataASCII(w io.Writer, d *disasm.Disassembler, addr uint64, lines int) error {
	if err := d.CheckAddr(addr, false); err != nil {
		return err
	}
	s, _ := d.Image().SectionAt(addr)
	printSectionMeta(w, s)

	img := d.Image()
	l := 0
	for l < lines {
		buf := img.StreamRead(addr, asciiBlockSize)
		if len(buf) == 0 {
			return nil
		}

		i := 0
		for i < len(buf) {
			if addr > s.End {
				return nil
			}

			// Collect the printable run starting at i.
			runStart := addr
			j := i
			for j < len(buf) && printableByte(buf[j]) {
				j++
			}

			if j == len(buf) {
				if i > 0 {
					// The window ended mid-run; rescan the run with
					// a fresh block so its terminator is visible.
					break
				}
				// A run longer than the whole window degrades to
				// byte rows.
				fmt.Fprintf(w, "%s 0x%.2x\n",
					styled(addrStyle, fmt.Sprintf("0x%-12x", addr)),
					buf[i])
				addr++
				i++
				l++
				if l >= lines {
					return nil
				}
				continue
			}

			if buf[j] == 0 && j-i >= 2 {
				fmt.Fprintf(w, "%s %s, 0\n",
					styled(addrStyle, fmt.Sprintf("0x%-12x", runStart)),
					styled(stringStyle, quoteASCII(buf[i:j])))
				addr += uint64(j - i + 1)
				i = j + 1
			} else {
				fmt.Fprintf(w, "%s 0x%.2x\n",
					styled(addrStyle, fmt.Sprintf("0x%-12x", addr)),
					buf[i])
				addr++
				i++
			}

			l++
			if l >= lines {
				return nil
			}
		}
	}
	return nil
}

func quoteASCII(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		switch c {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// PrintCalls sweeps the whole section containing addr and lists every
// call instruction it decodes.
func PrintCalls(w io.Writer, d *disasm.Disassembler, addr uint64) error {
	if err := d.CheckAddr(addr, true); err != nil {
		return err
	}
	s, _ := d.Image().SectionAt(addr)
	printSectionMeta(w, s)

	a := d.Arch()
	ad := s.Start
	for ad <= s.End {
		inst := d.DecodeAtBound(ad, s.Start)
		if inst == nil {
			ad++
			continue
		}
		ad = inst.End()
		if a.IsCall(inst) {
			printInst(w, d, inst)
		}
	}
	return nil
}

// PrintSymbols dumps the symbol table sorted by address, demangling
// C++ names. filter is a case-insensitive substring match on the raw
// name; withSections appends the containing section of each symbol.
func PrintSymbols(w io.Writer, img *elfx.Image, filter string, withSections bool) {
	filter = strings.ToLower(filter)

	names := make([]string, 0, len(img.Symbols))
	for name := range img.Symbols {
		if name == "" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ai, aj := img.Symbols[names[i]], img.Symbols[names[j]]
		if ai != aj {
			return ai < aj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		addr := img.Symbols[name]
		shown := demangle.Filter(name)
		if shown == "" {
			shown = name
		}
		fmt.Fprintf(w, "%s %s", styled(addrStyle, fmt.Sprintf("0x%-12x", addr)), shown)
		if withSections {
			if sec, ok := img.SectionAt(addr); ok {
				fmt.Fprintf(w, " (%s)", styled(sectionStyle, sec.Name))
			}
		}
		fmt.Fprintln(w)
	}
}

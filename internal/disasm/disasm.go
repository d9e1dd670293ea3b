// Package disasm implements the disassembly session: a lazily filled,
// block-based instruction cache over a binary image, the jump-table
// registry, and the symbol bookkeeping shared with rendering.
package disasm

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"cfgrec/internal/arch"
	"cfgrec/internal/cfg"
	"cfgrec/internal/elfx"
)

// DecodeBlockSize is how many bytes one cache miss decodes ahead.
const DecodeBlockSize = 1024

// AnySection disables the bound-section check of DecodeAtBound.
const AnySection = ^uint64(0)

// Disassembler is one analysis session over a binary image. It owns
// the instruction cache, which grows monotonically and is never
// evicted: the same addresses are revisited across linear dumps, CFG
// walks and call scans, and a session is short-lived relative to
// available memory. Not safe for concurrent use; each session belongs
// to one caller.
type Disassembler struct {
	img  *elfx.Image
	arch arch.Arch
	log  *log.Logger

	code       map[uint64]*arch.Instruction
	jumpTables map[uint64]*JumpTable

	// inline holds same-line comments keyed by instruction address,
	// prev holds comment lines printed above an address. Both are fed
	// by jump-table registration and consumed by rendering.
	inline map[uint64]string
	prev   map[uint64][]string

	maxNodes int
}

// Option configures a Disassembler.
type Option func(*Disassembler)

// WithArch overrides the variant inferred from the image header.
func WithArch(a arch.Arch) Option {
	return func(d *Disassembler) { d.arch = a }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Disassembler) { d.log = l }
}

// WithMaxNodes bounds CFG exploration; 0 means unbounded.
func WithMaxNodes(n int) Option {
	return func(d *Disassembler) { d.maxNodes = n }
}

// State carries the mutable analysis products of a session so callers
// can persist them and restore them into a later session.
type State struct {
	JumpTables     map[uint64]*JumpTable
	InlineComments map[uint64]string
	PrevComments   map[uint64][]string
}

// WithState restores previously accumulated jump tables and comments.
func WithState(st State) Option {
	return func(d *Disassembler) {
		if st.JumpTables != nil {
			d.jumpTables = st.JumpTables
		}
		if st.InlineComments != nil {
			d.inline = st.InlineComments
		}
		if st.PrevComments != nil {
			d.prev = st.PrevComments
		}
	}
}

// New builds a session for img. The architecture variant is fixed here
// for the whole session; an image whose machine has no variant is a
// construction-time failure, since nothing works without a classifier.
func New(img *elfx.Image, opts ...Option) (*Disassembler, error) {
	d := &Disassembler{
		img:        img,
		code:       make(map[uint64]*arch.Instruction),
		jumpTables: make(map[uint64]*JumpTable),
		inline:     make(map[uint64]string),
		prev:       make(map[uint64][]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.arch == nil {
		a, err := arch.Lookup(img.Machine, img.Class)
		if err != nil {
			return nil, err
		}
		d.arch = a
	}
	if d.log == nil {
		d.log = log.Default()
	}
	return d, nil
}

// Arch returns the session's architecture capability object.
func (d *Disassembler) Arch() arch.Arch { return d.arch }

// Image returns the underlying binary image.
func (d *Disassembler) Image() *elfx.Image { return d.img }

// DecodeAt returns the instruction at addr, decoding on demand. It
// implements cfg.Decoder; nil means addr does not decode.
func (d *Disassembler) DecodeAt(addr uint64) *arch.Instruction {
	return d.DecodeAtBound(addr, AnySection)
}

// DecodeAtBound is DecodeAt constrained to one section: when
// sectionStart is not AnySection and the covering section starts
// elsewhere, it returns nil without touching the decoder. This stops
// linear passes from running across a section gap.
//
// On a miss, a DecodeBlockSize block starting at addr is decoded one
// instruction at a time and every result is cached under its own
// address. The pass stops early when it produces an address that is
// already cached, so overlapping passes never install duplicate or
// conflicting entries.
func (d *Disassembler) DecodeAtBound(addr, sectionStart uint64) *arch.Instruction {
	s, ok := d.img.SectionAt(addr)
	if !ok {
		return nil
	}
	if sectionStart != AnySection && s.Start != sectionStart {
		return nil
	}
	if inst, ok := d.code[addr]; ok {
		return inst
	}

	buf := d.img.StreamRead(addr, DecodeBlockSize)
	var first *arch.Instruction
	cur := addr
	for len(buf) > 0 {
		inst, err := d.arch.Decode(buf, cur)
		if err != nil {
			break
		}
		if first == nil {
			first = inst
		} else if _, seen := d.code[inst.Addr]; seen {
			break
		}
		d.code[inst.Addr] = inst
		buf = buf[inst.Size:]
		cur = inst.End()
	}
	return first
}

// Cached reports whether addr already has a decoded instruction,
// without triggering a decode pass.
func (d *Disassembler) Cached(addr uint64) bool {
	_, ok := d.code[addr]
	return ok
}

// CheckAddr validates an address for an operation. needExec rejects
// data addresses; callers displaying data views pass false.
func (d *Disassembler) CheckAddr(addr uint64, needExec bool) error {
	exists, exec := d.img.CheckAddr(addr)
	if needExec && !exec {
		return fmt.Errorf("%w: %#x", ErrNotExecutable, addr)
	}
	if !exists {
		return fmt.Errorf("%w: %#x", ErrUnresolvedAddress, addr)
	}
	return nil
}

// ReadArray reads up to maxLen words of wordSize bytes starting at
// addr, honoring the image byte order. The result is truncated where
// the read would cross the owning section's end or the stream runs
// out; partial arrays are not an error.
func (d *Disassembler) ReadArray(addr uint64, maxLen, wordSize int) ([]uint64, error) {
	switch wordSize {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadWordSize, wordSize)
	}
	if maxLen <= 0 {
		return nil, nil
	}
	if _, ok := d.img.SectionAt(addr); !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnresolvedAddress, addr)
	}

	buf := d.img.StreamRead(addr, wordSize*maxLen)
	order := d.img.ByteOrder
	out := make([]uint64, 0, maxLen)
	for i := 0; i+wordSize <= len(buf) && len(out) < maxLen; i += wordSize {
		var w uint64
		switch wordSize {
		case 1:
			w = uint64(buf[i])
		case 2:
			w = uint64(order.Uint16(buf[i : i+2]))
		case 4:
			w = uint64(order.Uint32(buf[i : i+4]))
		case 8:
			w = order.Uint64(buf[i : i+8])
		}
		out = append(out, w)
	}
	return out, nil
}

// AddSymbol binds name to addr, keeping names and addresses a
// bijection: a name previously bound to another address loses that
// binding, and an address previously carrying another name loses it.
func (d *Disassembler) AddSymbol(addr uint64, name string) string {
	if old, ok := d.img.Symbols[name]; ok && old != addr {
		delete(d.img.RevSymbols, old)
	}
	if oldName, ok := d.img.RevSymbols[addr]; ok && oldName != name {
		delete(d.img.Symbols, oldName)
	}
	d.img.Symbols[name] = addr
	d.img.RevSymbols[addr] = name
	return name
}

// ResolveEntry turns a user-supplied entry spec into an address. An
// empty spec tries "main" then "_main". Hex literals are taken as-is;
// anything else is looked up as a symbol, then as a section name.
func (d *Disassembler) ResolveEntry(spec string) (uint64, error) {
	search := []string{spec}
	if spec == "" {
		search = []string{"main", "_main"}
	}
	for _, s := range search {
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			var a uint64
			if _, err := fmt.Sscanf(s[2:], "%x", &a); err == nil {
				return a, nil
			}
			continue
		}
		if a, ok := d.img.Symbols[s]; ok {
			return a, nil
		}
		if a, ok := d.img.SectionNames[s]; ok {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, search[0])
}

// BuildCFG recovers the control-flow graph of the function at entry.
// Jump tables used by the function must be registered beforehand.
func (d *Disassembler) BuildCFG(entry uint64) (*cfg.Graph, error) {
	start := time.Now()
	g, err := cfg.Build(d.arch, d, d, entry, d.maxNodes)
	if err != nil {
		return nil, err
	}
	d.log.Debug("graph built",
		"entry", fmt.Sprintf("%#x", entry),
		"nodes", g.Len(),
		"elapsed", time.Since(start))
	return g, nil
}

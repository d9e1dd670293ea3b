// Package elfx provides the binary-image collaborator: opening ELF (or
// raw) images, indexing sections, streaming section bytes, and exposing
// the symbol tables for address/name lookup.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"syscall"
)

// Section is a read-only view of one allocated section. End is
// inclusive.
type Section struct {
	Name  string
	Start uint64
	End   uint64
	Exec  bool

	off  uint64 // file offset of Start
	size uint64 // bytes backed by the file (may be < End-Start+1 for .bss)
}

// Image is an opened binary. Sections are sorted by start address.
// Symbol maps are plain views; bijection maintenance on mutation is the
// disassembler session's job, not the image's.
type Image struct {
	Path      string
	Machine   elf.Machine
	Class     elf.Class
	ByteOrder binary.ByteOrder
	Sections  []Section

	// Symbols maps name to address, RevSymbols the reverse.
	Symbols    map[string]uint64
	RevSymbols map[uint64]string

	// SectionNames maps a section name to its start address, used as
	// the last entry-resolution fallback.
	SectionNames map[string]uint64

	all  []byte
	file *elf.File
	f    *os.File
}

// Open maps an ELF binary and indexes its allocated sections and
// symbol tables.
func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{
		Path:         path,
		Machine:      f.Machine,
		Class:        f.Class,
		ByteOrder:    f.ByteOrder,
		Symbols:      make(map[string]uint64),
		RevSymbols:   make(map[uint64]string),
		SectionNames: make(map[string]uint64),
		all:          all,
		file:         f,
		f:            of,
	}

	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Size == 0 {
			continue
		}
		backed := s.Size
		if s.Type == elf.SHT_NOBITS {
			backed = 0
		}
		im.Sections = append(im.Sections, Section{
			Name:  s.Name,
			Start: s.Addr,
			End:   s.Addr + s.Size - 1,
			Exec:  s.Flags&elf.SHF_EXECINSTR != 0,
			off:   s.Offset,
			size:  backed,
		})
		im.SectionNames[s.Name] = s.Addr
	}

	sort.Slice(im.Sections, func(i, j int) bool {
		return im.Sections[i].Start < im.Sections[j].Start
	})

	im.loadSymbols()
	return im, nil
}

// NewRaw wraps a flat byte buffer as a single-section executable image
// loaded at base. bigEndian selects the byte order for data reads.
func NewRaw(data []byte, base uint64, machine elf.Machine, bigEndian bool) *Image {
	var order binary.ByteOrder = binary.LittleEndian
	if bigEndian {
		order = binary.BigEndian
	}
	im := &Image{
		Path:         "raw",
		Machine:      machine,
		Class:        elf.ELFCLASS64,
		ByteOrder:    order,
		Symbols:      make(map[string]uint64),
		RevSymbols:   make(map[uint64]string),
		SectionNames: make(map[string]uint64),
		all:          data,
	}
	if len(data) > 0 {
		im.Sections = []Section{{
			Name:  "raw",
			Start: base,
			End:   base + uint64(len(data)) - 1,
			Exec:  true,
			off:   0,
			size:  uint64(len(data)),
		}}
		im.SectionNames["raw"] = base
	}
	return im
}

// Close unmaps the file. Raw images are a no-op.
func (im *Image) Close() error {
	var err1, err2 error
	if im.f != nil {
		err1 = syscall.Munmap(im.all)
		im.all = nil
		err2 = im.f.Close()
		im.f = nil
	}
	if im.file != nil {
		err3 := im.file.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.file = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// SectionAt returns the section covering va.
func (im *Image) SectionAt(va uint64) (*Section, bool) {
	for i := range im.Sections {
		s := &im.Sections[i]
		if va >= s.Start && va <= s.End {
			return s, true
		}
	}
	return nil, false
}

// CheckAddr reports whether va lies inside the image and whether the
// covering section is executable.
func (im *Image) CheckAddr(va uint64) (exists, exec bool) {
	s, ok := im.SectionAt(va)
	if !ok {
		return false, false
	}
	return true, s.Exec
}

// StreamRead returns up to n bytes starting at va, truncated at the end
// of the covering section or of its file backing. nil when va is
// unmapped.
func (im *Image) StreamRead(va uint64, n int) []byte {
	s, ok := im.SectionAt(va)
	if !ok || n <= 0 {
		return nil
	}
	rel := va - s.Start
	if rel >= s.size {
		return nil
	}
	avail := s.size - rel
	if uint64(n) < avail {
		avail = uint64(n)
	}
	lo := s.off + rel
	hi := lo + avail
	if hi > uint64(len(im.all)) {
		if lo >= uint64(len(im.all)) {
			return nil
		}
		hi = uint64(len(im.all))
	}
	return im.all[lo:hi]
}

// IsAddress reports whether the value resolves inside the image,
// returning the covering section's name and whether it is a data (non
// executable) section.
func (im *Image) IsAddress(w uint64) (section string, isData bool, ok bool) {
	s, found := im.SectionAt(w)
	if !found {
		return "", false, false
	}
	return s.Name, !s.Exec, true
}

// loadSymbols merges static and dynamic symbol tables into the
// name/address maps. Later entries do not displace earlier ones so the
// static table wins over dynamic duplicates.
func (im *Image) loadSymbols() {
	add := func(name string, addr uint64) {
		if name == "" || addr == 0 {
			return
		}
		if _, seen := im.Symbols[name]; seen {
			return
		}
		im.Symbols[name] = addr
		if _, seen := im.RevSymbols[addr]; !seen {
			im.RevSymbols[addr] = name
		}
	}

	if syms, err := im.file.Symbols(); err == nil {
		for _, sym := range syms {
			add(sym.Name, sym.Value)
		}
	}
	if dyns, err := im.file.DynamicSymbols(); err == nil {
		for _, sym := range dyns {
			add(sym.Name, sym.Value)
		}
	}
}

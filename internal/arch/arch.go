// Package arch abstracts decoding and classifying machine instructions
// for the architectures cfgrec understands. Each architecture is one
// fixed capability object selected at session construction; nothing is
// re-dispatched per instruction.
package arch

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Instruction is a single decoded instruction. Instances are immutable
// once produced by an Arch and are owned by the disassembly cache,
// keyed by Addr.
type Instruction struct {
	Addr  uint64
	Size  int
	Text  string // formatted disassembly
	Bytes []byte // raw encoding
	Raw   any    // architecture-specific decoded form, owned by the Arch
}

// End returns the address of the next sequential instruction.
func (i *Instruction) End() uint64 {
	return i.Addr + uint64(i.Size)
}

// DecodeFunc resolves an address to a decoded instruction, or nil when
// the address does not decode. The CFG builder passes its cache-backed
// lookup here so delay-slot architectures can fetch the successor.
type DecodeFunc func(addr uint64) *Instruction

// Arch classifies decoded instructions for one architecture.
//
// The branch/jump target is assumed to be the last operand on every
// supported architecture; a future variant that breaks this must
// implement Target accordingly.
type Arch interface {
	// Name is the GOARCH-style name of the variant.
	Name() string

	// WordSize is the address width in bytes.
	WordSize() int

	// ByteOrder is the default byte order for data reads when the
	// image itself does not dictate one.
	ByteOrder() binary.ByteOrder

	// Decode decodes a single instruction at addr from the front of
	// buf. It fails when buf is empty or starts with an invalid
	// encoding.
	Decode(buf []byte, addr uint64) (*Instruction, error)

	IsReturn(inst *Instruction) bool
	IsUncondJump(inst *Instruction) bool
	IsCondJump(inst *Instruction) bool
	IsCall(inst *Instruction) bool

	// Target extracts the statically known transfer target from the
	// instruction's last operand. ok is false for register or memory
	// indirect targets.
	Target(inst *Instruction) (target uint64, ok bool)

	// PrefetchSuccessor returns the delay-slot instruction that
	// executes before a branch takes effect, decoded through decode.
	// Architectures without delayed branches return nil.
	PrefetchSuccessor(inst *Instruction, decode DecodeFunc) *Instruction
}

// ErrUnsupported reports an architecture/mode combination with no
// classifier variant.
var ErrUnsupported = fmt.Errorf("unsupported architecture")

// Lookup selects the variant for an ELF machine type.
func Lookup(machine elf.Machine, class elf.Class) (Arch, error) {
	switch machine {
	case elf.EM_X86_64:
		return AMD64, nil
	case elf.EM_386:
		return I386, nil
	case elf.EM_AARCH64:
		return ARM64, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnsupported, machine, class)
}

// ByName selects a variant by its GOARCH-style name.
func ByName(name string) (Arch, error) {
	switch name {
	case "amd64":
		return AMD64, nil
	case "386":
		return I386, nil
	case "arm64":
		return ARM64, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

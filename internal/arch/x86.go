package arch

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// AMD64 and I386 share one classifier; only the decode mode differs.
var (
	AMD64 Arch = &x86Arch{name: "amd64", bits: 64}
	I386  Arch = &x86Arch{name: "386", bits: 32}
)

type x86Arch struct {
	name string
	bits int
}

func (a *x86Arch) Name() string                { return a.name }
func (a *x86Arch) WordSize() int               { return a.bits / 8 }
func (a *x86Arch) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (a *x86Arch) Decode(buf []byte, addr uint64) (*Instruction, error) {
	inst, err := x86asm.Decode(buf, a.bits)
	if err != nil {
		return nil, fmt.Errorf("decode at %#x: %w", addr, err)
	}
	if inst.Len == 0 || inst.Op == 0 {
		return nil, fmt.Errorf("decode at %#x: empty instruction", addr)
	}
	return &Instruction{
		Addr:  addr,
		Size:  inst.Len,
		Text:  x86asm.GNUSyntax(inst, addr, nil),
		Bytes: buf[:inst.Len],
		Raw:   inst,
	}, nil
}

func (a *x86Arch) inst(i *Instruction) (x86asm.Inst, bool) {
	raw, ok := i.Raw.(x86asm.Inst)
	return raw, ok
}

func (a *x86Arch) IsReturn(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	switch raw.Op {
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return true
	}
	return false
}

func (a *x86Arch) IsUncondJump(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	return raw.Op == x86asm.JMP || raw.Op == x86asm.LJMP
}

func (a *x86Arch) IsCondJump(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	switch raw.Op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE,
		x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP,
		x86asm.JS, x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE, x86asm.XBEGIN:
		return true
	}
	return false
}

func (a *x86Arch) IsCall(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	return raw.Op == x86asm.CALL || raw.Op == x86asm.LCALL
}

func (a *x86Arch) Target(i *Instruction) (uint64, bool) {
	raw, ok := a.inst(i)
	if !ok {
		return 0, false
	}
	var last x86asm.Arg
	for _, arg := range raw.Args {
		if arg == nil {
			break
		}
		last = arg
	}
	switch t := last.(type) {
	case x86asm.Rel:
		// Rel is relative to the end of the instruction.
		return uint64(int64(i.Addr) + int64(raw.Len) + int64(t)), true
	case x86asm.Imm:
		return uint64(t), true
	}
	return 0, false
}

func (a *x86Arch) PrefetchSuccessor(*Instruction, DecodeFunc) *Instruction {
	return nil
}

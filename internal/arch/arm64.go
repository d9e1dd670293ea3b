package arch

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

// ARM64 classifies AArch64 instructions.
var ARM64 Arch = &arm64Arch{}

type arm64Arch struct{}

func (a *arm64Arch) Name() string                { return "arm64" }
func (a *arm64Arch) WordSize() int               { return 8 }
func (a *arm64Arch) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (a *arm64Arch) Decode(buf []byte, addr uint64) (*Instruction, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("decode at %#x: short buffer", addr)
	}
	inst, err := arm64asm.Decode(buf[:4])
	if err != nil || inst.Op == 0 {
		return nil, fmt.Errorf("decode at %#x: invalid encoding", addr)
	}
	return &Instruction{
		Addr:  addr,
		Size:  4,
		Text:  arm64asm.GNUSyntax(inst),
		Bytes: buf[:4],
		Raw:   inst,
	}, nil
}

func (a *arm64Arch) inst(i *Instruction) (arm64asm.Inst, bool) {
	raw, ok := i.Raw.(arm64asm.Inst)
	return raw, ok
}

func (a *arm64Arch) IsReturn(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	return raw.Op == arm64asm.RET || raw.Op == arm64asm.ERET
}

func (a *arm64Arch) IsUncondJump(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	switch raw.Op {
	case arm64asm.B:
		return !hasCond(raw)
	case arm64asm.BR:
		return true
	}
	return false
}

func (a *arm64Arch) IsCondJump(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	switch raw.Op {
	case arm64asm.B:
		return hasCond(raw)
	case arm64asm.CBZ, arm64asm.CBNZ, arm64asm.TBZ, arm64asm.TBNZ:
		return true
	}
	return false
}

func (a *arm64Arch) IsCall(i *Instruction) bool {
	raw, ok := a.inst(i)
	if !ok {
		return false
	}
	return raw.Op == arm64asm.BL || raw.Op == arm64asm.BLR
}

func (a *arm64Arch) Target(i *Instruction) (uint64, bool) {
	raw, ok := a.inst(i)
	if !ok {
		return 0, false
	}
	var last arm64asm.Arg
	for _, arg := range raw.Args {
		if arg == nil {
			break
		}
		last = arg
	}
	if rel, ok := last.(arm64asm.PCRel); ok {
		// PCRel is relative to the instruction's own address.
		return uint64(int64(i.Addr) + int64(rel)), true
	}
	return 0, false
}

func (a *arm64Arch) PrefetchSuccessor(*Instruction, DecodeFunc) *Instruction {
	return nil
}

func hasCond(raw arm64asm.Inst) bool {
	for _, arg := range raw.Args {
		if arg == nil {
			break
		}
		if _, ok := arg.(arm64asm.Cond); ok {
			return true
		}
	}
	return false
}

package arch

import (
	"debug/elf"
	"testing"
)

func TestAMD64Decode(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		addr uint64
		size int
	}{
		{"ret", []byte{0xc3}, 0x1000, 1},
		{"nop", []byte{0x90}, 0x1000, 1},
		{"jmp rel8", []byte{0xeb, 0x05}, 0x1000, 2},
		{"call rel32", []byte{0xe8, 0x04, 0x00, 0x00, 0x00}, 0x2000, 5},
		{"mov eax imm", []byte{0xb8, 0x01, 0x00, 0x00, 0x00}, 0x1000, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := AMD64.Decode(tt.buf, tt.addr)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if inst.Addr != tt.addr {
				t.Errorf("Addr = %#x, want %#x", inst.Addr, tt.addr)
			}
			if inst.Size != tt.size {
				t.Errorf("Size = %d, want %d", inst.Size, tt.size)
			}
			if inst.Text == "" {
				t.Error("empty Text")
			}
			if inst.End() != tt.addr+uint64(tt.size) {
				t.Errorf("End = %#x, want %#x", inst.End(), tt.addr+uint64(tt.size))
			}
		})
	}
}

func TestAMD64DecodeInvalid(t *testing.T) {
	if _, err := AMD64.Decode([]byte{0x66}, 0x1000); err == nil {
		t.Error("expected error for truncated encoding")
	}
	if _, err := AMD64.Decode(nil, 0x1000); err == nil {
		t.Error("expected error for empty buffer")
	}
}

func TestAMD64Classify(t *testing.T) {
	tests := []struct {
		name                    string
		buf                     []byte
		ret, uncond, cond, call bool
	}{
		{"ret", []byte{0xc3}, true, false, false, false},
		{"jmp rel8", []byte{0xeb, 0x05}, false, true, false, false},
		{"jne rel8", []byte{0x75, 0xfe}, false, false, true, false},
		{"je rel32", []byte{0x0f, 0x84, 0x10, 0x00, 0x00, 0x00}, false, false, true, false},
		{"call rel32", []byte{0xe8, 0x04, 0x00, 0x00, 0x00}, false, false, false, true},
		{"jmp indirect rax", []byte{0xff, 0xe0}, false, true, false, false},
		{"nop", []byte{0x90}, false, false, false, false},
		{"mov eax imm", []byte{0xb8, 0x01, 0x00, 0x00, 0x00}, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := AMD64.Decode(tt.buf, 0x1000)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := AMD64.IsReturn(inst); got != tt.ret {
				t.Errorf("IsReturn = %v, want %v", got, tt.ret)
			}
			if got := AMD64.IsUncondJump(inst); got != tt.uncond {
				t.Errorf("IsUncondJump = %v, want %v", got, tt.uncond)
			}
			if got := AMD64.IsCondJump(inst); got != tt.cond {
				t.Errorf("IsCondJump = %v, want %v", got, tt.cond)
			}
			if got := AMD64.IsCall(inst); got != tt.call {
				t.Errorf("IsCall = %v, want %v", got, tt.call)
			}
		})
	}
}

func TestAMD64Target(t *testing.T) {
	tests := []struct {
		name   string
		buf    []byte
		addr   uint64
		target uint64
		ok     bool
	}{
		// Relative offsets count from the end of the instruction.
		{"jmp rel8 forward", []byte{0xeb, 0x05}, 0x1000, 0x1007, true},
		{"jne rel8 backward", []byte{0x75, 0xfe}, 0x1000, 0x1000, true},
		{"call rel32", []byte{0xe8, 0x04, 0x00, 0x00, 0x00}, 0x2000, 0x2009, true},
		{"jmp rel32", []byte{0xe9, 0x00, 0x01, 0x00, 0x00}, 0x1000, 0x1105, true},
		{"jmp indirect rax", []byte{0xff, 0xe0}, 0x1000, 0, false},
		{"ret", []byte{0xc3}, 0x1000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := AMD64.Decode(tt.buf, tt.addr)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			target, ok := AMD64.Target(inst)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && target != tt.target {
				t.Errorf("target = %#x, want %#x", target, tt.target)
			}
		})
	}
}

func TestI386Decode(t *testing.T) {
	// mov eax, imm32 decodes the same in 32-bit mode.
	inst, err := I386.Decode([]byte{0xb8, 0x01, 0x00, 0x00, 0x00}, 0x8048000)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if inst.Size != 5 {
		t.Errorf("Size = %d, want 5", inst.Size)
	}
	if I386.WordSize() != 4 {
		t.Errorf("WordSize = %d, want 4", I386.WordSize())
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		machine elf.Machine
		class   elf.Class
		want    string
		wantErr bool
	}{
		{elf.EM_X86_64, elf.ELFCLASS64, "amd64", false},
		{elf.EM_386, elf.ELFCLASS32, "386", false},
		{elf.EM_AARCH64, elf.ELFCLASS64, "arm64", false},
		{elf.EM_MIPS, elf.ELFCLASS32, "", true},
	}
	for _, tt := range tests {
		a, err := Lookup(tt.machine, tt.class)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Lookup(%v) succeeded, want error", tt.machine)
			}
			continue
		}
		if err != nil {
			t.Errorf("Lookup(%v): %v", tt.machine, err)
			continue
		}
		if a.Name() != tt.want {
			t.Errorf("Lookup(%v).Name = %q, want %q", tt.machine, a.Name(), tt.want)
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"amd64", "386", "arm64"} {
		a, err := ByName(name)
		if err != nil {
			t.Errorf("ByName(%q): %v", name, err)
			continue
		}
		if a.Name() != name {
			t.Errorf("ByName(%q).Name = %q", name, a.Name())
		}
	}
	if _, err := ByName("riscv64"); err == nil {
		t.Error("ByName(riscv64) succeeded, want error")
	}
}

package render

import (
	"bytes"
	"debug/elf"
	"strings"
	"testing"

	"cfgrec/internal/disasm"
	"cfgrec/internal/elfx"
)

func newSession(t *testing.T, code []byte, base uint64) *disasm.Disassembler {
	t.Helper()
	t.Setenv("CFGREC_NO_COLOR", "1")
	img := elfx.NewRaw(code, base, elf.EM_X86_64, false)
	d, err := disasm.New(img)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDumpAsm(t *testing.T) {
	// mov eax,1; nop; ret
	d := newSession(t, []byte{0xb8, 0x01, 0x00, 0x00, 0x00, 0x90, 0xc3}, 0x1000)

	var buf bytes.Buffer
	if err := DumpAsm(&buf, d, 0x1000, 10); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// Section header plus three instructions.
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "raw") || !strings.Contains(lines[0], "[ 0x1000 - 0x1006 - 7 ]") {
		t.Errorf("bad section header: %q", lines[0])
	}
	for _, want := range []string{"0x1000", "0x1005", "0x1006", "ret"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDumpAsmLineLimit(t *testing.T) {
	d := newSession(t, []byte{0x90, 0x90, 0x90, 0x90, 0xc3}, 0x1000)

	var buf bytes.Buffer
	if err := DumpAsm(&buf, d, 0x1000, 2); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 { // header + 2
		t.Errorf("got %d lines, want 3", len(lines))
	}
}

func TestDumpAsmBadByte(t *testing.T) {
	// ret, then a lone prefix byte that cannot decode.
	d := newSession(t, []byte{0xc3, 0x66}, 0x1000)

	var buf bytes.Buffer
	if err := DumpAsm(&buf, d, 0x1000, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(bad)") {
		t.Errorf("missing (bad) marker:\n%s", buf.String())
	}
}

func TestDumpAsmRejectsUnmapped(t *testing.T) {
	d := newSession(t, []byte{0xc3}, 0x1000)
	if err := DumpAsm(&bytes.Buffer{}, d, 0x9000, 10); err == nil {
		t.Error("expected error for unmapped entry")
	}
}

func TestDumpAsmComments(t *testing.T) {
	// jmp *rax at 0x1000, padding, then two rets the table points at.
	code := make([]byte, 0x30)
	copy(code, []byte{0xff, 0xe0})
	code[0x10] = 0xc3
	code[0x11] = 0xc3
	// table at 0x1020: cases 0,1 -> 0x1010, case 2 -> 0x1011
	copy(code[0x20:], []byte{
		0x10, 0x10, 0x00, 0x00,
		0x10, 0x10, 0x00, 0x00,
		0x11, 0x10, 0x00, 0x00,
	})
	d := newSession(t, code, 0x1000)
	if _, err := d.RegisterJumpTable(0x1000, 0x1020, 4, 3); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := DumpAsm(&buf, d, 0x1000, 32); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "; switch statement jmptable_0x1020") {
		t.Errorf("missing inline switch comment:\n%s", out)
	}
	if !strings.Contains(out, "; case 0, 1  jmptable_0x1020") {
		t.Errorf("missing merged case comment:\n%s", out)
	}
	if !strings.Contains(out, "; case 2  jmptable_0x1020") {
		t.Errorf("missing single case comment:\n%s", out)
	}
	if !strings.Contains(out, "jmptable_0x1020:") {
		t.Errorf("missing table symbol label:\n%s", out)
	}
}

func TestDumpData(t *testing.T) {
	// First word points back into the section, second is a plain value.
	d := newSession(t, []byte{
		0x04, 0x20, 0x00, 0x00,
		0xff, 0x00, 0x00, 0x00,
	}, 0x2000)
	d.AddSymbol(0x2004, "blob")

	var buf bytes.Buffer
	if err := DumpData(&buf, d, 0x2000, 2, 4); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "0x2004") || !strings.Contains(out, "(raw)") {
		t.Errorf("missing pointer annotation:\n%s", out)
	}
	if !strings.Contains(out, "blob") {
		t.Errorf("missing symbol annotations:\n%s", out)
	}
	if !strings.Contains(out, "0xff") {
		t.Errorf("missing word value:\n%s", out)
	}
}

func TestDumpDataASCII(t *testing.T) {
	data := append([]byte("hello\x00"), 0x7f, 0x00)
	d := newSession(t, data, 0x3000)

	var buf bytes.Buffer
	if err := DumpDataASCII(&buf, d, 0x3000, 10); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, `"hello", 0`) {
		t.Errorf("missing string row:\n%s", out)
	}
	if !strings.Contains(out, "0x7f") {
		t.Errorf("missing raw byte row:\n%s", out)
	}
}

func TestPrintCalls(t *testing.T) {
	// call +4; ret; ret
	d := newSession(t, []byte{0xe8, 0x01, 0x00, 0x00, 0x00, 0xc3, 0xc3}, 0x1000)

	var buf bytes.Buffer
	if err := PrintCalls(&buf, d, 0x1000); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "call") {
		t.Errorf("missing call instruction:\n%s", out)
	}
	if strings.Contains(out, "ret") {
		t.Errorf("non-call instruction listed:\n%s", out)
	}
}

func TestPrintSymbols(t *testing.T) {
	t.Setenv("CFGREC_NO_COLOR", "1")
	img := elfx.NewRaw(make([]byte, 16), 0x1000, elf.EM_X86_64, false)
	img.Symbols["alpha"] = 0x1000
	img.RevSymbols[0x1000] = "alpha"
	img.Symbols["beta"] = 0x1008
	img.RevSymbols[0x1008] = "beta"

	var buf bytes.Buffer
	PrintSymbols(&buf, img, "", true)
	out := buf.String()
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "beta") {
		t.Errorf("missing symbols:\n%s", out)
	}
	if !strings.Contains(out, "(raw)") {
		t.Errorf("missing section annotation:\n%s", out)
	}

	// Addresses sort the output.
	if strings.Index(out, "alpha") > strings.Index(out, "beta") {
		t.Errorf("symbols out of order:\n%s", out)
	}

	buf.Reset()
	PrintSymbols(&buf, img, "BET", true)
	out = buf.String()
	if strings.Contains(out, "alpha") || !strings.Contains(out, "beta") {
		t.Errorf("filter failed:\n%s", out)
	}
}

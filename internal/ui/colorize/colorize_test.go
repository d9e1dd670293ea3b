package colorize

import (
	"strings"
	"testing"
)

func TestEnabled(t *testing.T) {
	t.Setenv("CFGREC_NO_COLOR", "")
	if !Enabled() {
		t.Error("Enabled() = false with no env override")
	}
	t.Setenv("CFGREC_NO_COLOR", "1")
	if Enabled() {
		t.Error("Enabled() = true with CFGREC_NO_COLOR set")
	}
}

func TestLinePassthroughWhenDisabled(t *testing.T) {
	t.Setenv("CFGREC_NO_COLOR", "1")
	in := "0x1000        mov  eax, 1"
	if got := Line(in); got != in {
		t.Errorf("Line() = %q, want passthrough", got)
	}
}

func TestLineColorsAddressColumn(t *testing.T) {
	t.Setenv("CFGREC_NO_COLOR", "")
	out := Line("1000 ret")
	if !strings.Contains(out, "\033[38;2;79;79;79m1000") {
		t.Errorf("address column not gray: %q", out)
	}
	out = Line("0x1000 ret")
	if !strings.Contains(out, "\033[38;2;79;79;79m0x1000") {
		t.Errorf("prefixed address column not gray: %q", out)
	}
}

func TestLineCommentRow(t *testing.T) {
	t.Setenv("CFGREC_NO_COLOR", "")
	out := Line("; case 0  jmptable_0x1000")
	if !strings.HasPrefix(out, "\033[38;2;235;194;237m") {
		t.Errorf("comment row not highlighted: %q", out)
	}
}

func TestListingDisabled(t *testing.T) {
	t.Setenv("CFGREC_NO_COLOR", "1")
	in := "ret\nnop\n"
	got, err := Listing(in)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("Listing() = %q, want passthrough", got)
	}
}

func TestIsHex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"1000", true},
		{"deadBEEF", true},
		{"", false},
		{"0x1000", false},
		{"ret", false},
	}
	for _, tt := range tests {
		if got := isHex(tt.in); got != tt.want {
			t.Errorf("isHex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Package colorize applies terminal syntax highlighting to assembly
// listings using chroma, with a custom disassembly style.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Enabled reports whether color output is active. CFGREC_NO_COLOR
// disables it regardless of terminal state.
func Enabled() bool {
	return os.Getenv("CFGREC_NO_COLOR") == ""
}

// getAssemblyLexer returns an assembly lexer in order of preference.
func getAssemblyLexer() chroma.Lexer {
	candidates := []string{"gas", "nasm", "armasm"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func getDisasmStyle() *chroma.Style {
	candidates := []string{"disasm-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Listing highlights a whole assembly listing.
func Listing(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := formatters.Get("terminal16m").Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// Line highlights one listing line of the form
// "address  mnemonic operands   ; comment", rendering the address
// column in gray and the rest through the lexer.
func Line(line string) string {
	if !Enabled() {
		return line
	}

	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, ";") {
		return fmt.Sprintf("\033[38;2;235;194;237m%s\033[0m", line)
	}

	parts := strings.SplitN(line, " ", 2)
	if len(parts) < 2 || !isHex(strings.TrimPrefix(parts[0], "0x")) {
		return colorizeText(line)
	}
	addr := fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", parts[0])
	return fmt.Sprintf("%s %s", addr, colorizeText(parts[1]))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}

func colorizeText(line string) string {
	lexer := getAssemblyLexer()
	if lexer == nil {
		return line
	}
	iterator, err := lexer.Tokenise(nil, line)
	if err != nil {
		return line
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return line
	}
	return buf.String()
}

// Package cmd wires the command line front end around the recovery
// core.
package cmd

import (
	"context"
	"debug/elf"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"cfgrec/internal/arch"
	"cfgrec/internal/cfgrec/log"
	"cfgrec/internal/disasm"
	"cfgrec/internal/elfx"
	"cfgrec/internal/logging"
	"cfgrec/internal/render"
)

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().StringP("entry", "x", "", "Entry point: symbol, 0x address, or section name (default main)")
	rootCmd.Flags().IntP("lines", "l", 30, "Number of listing lines")
	rootCmd.Flags().String("arch", "", "Treat the file as a raw image for this architecture (amd64, 386, arm64)")
	rootCmd.Flags().String("raw-base", "0", "Load address for raw images")
	rootCmd.Flags().Bool("big-endian", false, "Raw image is big endian")
	rootCmd.Flags().Bool("calls", false, "List call instructions in the entry's section")
	rootCmd.Flags().Bool("symbols", false, "Dump the symbol table and exit")
	rootCmd.Flags().String("sym-filter", "", "Only print symbols containing this substring")
	rootCmd.Flags().Bool("data", false, "Dump words instead of instructions")
	rootCmd.Flags().Int("word-size", 0, "Word size for --data (default: pointer size)")
	rootCmd.Flags().Bool("ascii", false, "Dump printable strings instead of instructions")
	rootCmd.Flags().StringArray("jumptable", nil, "Jump table as inst:table:wordsize:count (repeatable)")
	rootCmd.Flags().String("dot", "", "Write the recovered control flow graph to this DOT file")
	rootCmd.Flags().Bool("no-color", false, "Disable colored output")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
}

var rootCmd = &cobra.Command{
	Use:   "cfgrec [file]",
	Short: "Control flow graph recovery for binaries",
	Long: `Cfgrec disassembles a binary lazily and recovers per-function control
flow graphs, including jump tables the user declares by hand.`,
	Example: `
# Disassemble main
cfgrec /path/to/binary

# Disassemble a symbol and write its graph
cfgrec -x my_func --dot my_func.dot /path/to/binary

# Raw firmware image loaded at 0x8000
cfgrec --arch arm64 --raw-base 0x8000 -x 0x8000 firmware.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup("", debug)

		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			os.Setenv("CFGREC_NO_COLOR", "1")
		}

		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		return run(cmd, args[0])
	},
}

func run(cmd *cobra.Command, path string) error {
	img, variant, err := openImage(cmd, path)
	if err != nil {
		return err
	}
	defer img.Close()

	logger := logging.NewLogger()
	defer logger.Close()

	opts := []disasm.Option{disasm.WithLogger(logger.Logger)}
	if variant != nil {
		opts = append(opts, disasm.WithArch(variant))
	}
	d, err := disasm.New(img, opts...)
	if err != nil {
		return err
	}

	if symbols, _ := cmd.Flags().GetBool("symbols"); symbols {
		filter, _ := cmd.Flags().GetString("sym-filter")
		render.PrintSymbols(os.Stdout, img, filter, true)
		return nil
	}

	specs, _ := cmd.Flags().GetStringArray("jumptable")
	for _, spec := range specs {
		if err := registerJumpTable(d, spec); err != nil {
			return err
		}
	}

	entrySpec, _ := cmd.Flags().GetString("entry")
	entry, err := d.ResolveEntry(entrySpec)
	if err != nil {
		return err
	}

	lines, _ := cmd.Flags().GetInt("lines")

	switch {
	case flagBool(cmd, "calls"):
		return render.PrintCalls(os.Stdout, d, entry)
	case flagBool(cmd, "ascii"):
		return render.DumpDataASCII(os.Stdout, d, entry, lines)
	case flagBool(cmd, "data"):
		wordSize, _ := cmd.Flags().GetInt("word-size")
		if wordSize == 0 {
			wordSize = d.Arch().WordSize()
		}
		return render.DumpData(os.Stdout, d, entry, lines, wordSize)
	}

	if err := render.DumpAsm(os.Stdout, d, entry, lines); err != nil {
		return err
	}

	dotFile, _ := cmd.Flags().GetString("dot")
	if dotFile != "" {
		g, err := d.BuildCFG(entry)
		if err != nil {
			return err
		}
		name := entrySpec
		if name == "" || strings.HasPrefix(name, "0x") {
			if sym, ok := img.RevSymbols[entry]; ok {
				name = sym
			} else {
				name = fmt.Sprintf("0x%x", entry)
			}
		}
		dot := render.DOT(g, d.Arch(), img, name)
		if err := os.WriteFile(dotFile, []byte(dot), 0o644); err != nil {
			return fmt.Errorf("write dot: %w", err)
		}
	}
	return nil
}

func flagBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

// openImage opens path as an ELF binary, or as a raw image when
// --arch is set. The returned variant is non-nil only in raw mode.
func openImage(cmd *cobra.Command, path string) (*elfx.Image, arch.Arch, error) {
	archName, _ := cmd.Flags().GetString("arch")
	if archName == "" {
		img, err := elfx.Open(path)
		return img, nil, err
	}

	variant, err := arch.ByName(archName)
	if err != nil {
		return nil, nil, err
	}

	baseStr, _ := cmd.Flags().GetString("raw-base")
	base, err := parseAddr(baseStr)
	if err != nil {
		return nil, nil, fmt.Errorf("bad --raw-base %q: %w", baseStr, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	bigEndian, _ := cmd.Flags().GetBool("big-endian")
	return elfx.NewRaw(data, base, rawMachine(archName), bigEndian), variant, nil
}

func rawMachine(name string) elf.Machine {
	switch name {
	case "amd64":
		return elf.EM_X86_64
	case "386":
		return elf.EM_386
	case "arm64":
		return elf.EM_AARCH64
	}
	return elf.EM_NONE
}

// registerJumpTable parses one inst:table:wordsize:count flag value
// and installs the table.
func registerJumpTable(d *disasm.Disassembler, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return fmt.Errorf("bad --jumptable %q: want inst:table:wordsize:count", spec)
	}
	instAddr, err := parseAddr(parts[0])
	if err != nil {
		return fmt.Errorf("bad --jumptable inst %q: %w", parts[0], err)
	}
	tableAddr, err := parseAddr(parts[1])
	if err != nil {
		return fmt.Errorf("bad --jumptable table %q: %w", parts[1], err)
	}
	wordSize, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("bad --jumptable wordsize %q: %w", parts[2], err)
	}
	count, err := strconv.Atoi(parts[3])
	if err != nil {
		return fmt.Errorf("bad --jumptable count %q: %w", parts[3], err)
	}
	_, err = d.RegisterJumpTable(instAddr, tableAddr, wordSize, count)
	return err
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

func Execute() {
	// Bypass fang's markdown rendering when output is being piped
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

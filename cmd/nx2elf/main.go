// Command nx2elf converts Nintendo Switch NSO/NRO/raw-MOD executable
// containers into standard 64-bit AArch64 ELF shared objects, inferring
// section boundaries the containers themselves don't declare (spec.md).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/container"
	"github.com/xyproto/nx2elf/internal/diag"
	"github.com/xyproto/nx2elf/internal/dump"
	"github.com/xyproto/nx2elf/internal/elfout"
	"github.com/xyproto/nx2elf/internal/nsowriter"
)

const usageText = "Usage: nx2elf <file or directory> [--export-elf <path>] [--export-uncompressed <path>] [--verbose]\n"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fset := flag.NewFlagSet("nx2elf", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	elfPath := fset.String("export-elf", "", "write the inferred ELF here (a directory, when the input is a directory)")
	uncompressedPath := fset.String("export-uncompressed", "", "write an uncompressed NSO here (a directory, when the input is a directory)")
	verbose := fset.Bool("verbose", false, "dump header, dynamic, relocation and symbol detail")

	if err := fset.Parse(args); err != nil || fset.NArg() != 1 {
		fmt.Fprint(os.Stderr, usageText)
		return 1
	}
	diag.Verbose = *verbose

	inputPath := fset.Arg(0)
	info, err := os.Stat(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nx2elf: %v\n", err)
		return 1
	}

	if info.IsDir() {
		convertDir(inputPath, *elfPath, *uncompressedPath)
		return 0
	}

	if err := convertOne(inputPath, *elfPath, *uncompressedPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inputPath, err)
		return 1
	}
	return 0
}

// convertDir applies convertOne to every non-directory child of dir, one
// level deep, isolating per-file failures (spec.md §6). elfOut/uncompressedOut,
// if set, are treated as output directories rather than literal file paths —
// the original nx2elf.cpp passes a single literal path through directory
// mode, silently overwriting it on every file; deriving a per-file name
// instead is the one deliberate behavioral improvement in this port.
func convertDir(dir, elfOut, uncompressedOut string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nx2elf: %v\n", err)
		return
	}
	if elfOut != "" {
		os.MkdirAll(elfOut, 0o755)
	}
	if uncompressedOut != "" {
		os.MkdirAll(uncompressedOut, 0o755)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		child := filepath.Join(dir, e.Name())
		if err := convertOne(child, derivedPath(elfOut, e.Name(), ".elf"), derivedPath(uncompressedOut, e.Name(), ".nso")); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", child, err)
		}
	}
}

func derivedPath(outDir, name, ext string) string {
	if outDir == "" {
		return ""
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(outDir, stem+ext)
}

func convertOne(inputPath, elfOut, uncompressedOut string) error {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	d := diag.NewCollector()
	defer d.Report(os.Stderr)
	l, err := container.Load(raw, d)
	if err != nil {
		return err
	}

	fmt.Printf("%s:\n", inputPath)
	dump.Header(os.Stdout, l)
	if diag.Verbose {
		r := bin.New(l.Image)
		dump.Dynamic(os.Stdout, r, l.Dyn)
		dump.Relocations(os.Stdout, r, l.Dyn)
		dump.Symbols(os.Stdout, r, l, l.Dyn, uint64(l.Dynsym.Size))
	}

	if elfOut != "" {
		if err := writeAtomic(elfOut, func(w io.Writer) error {
			return elfout.Write(w, l, d)
		}); err != nil {
			return fmt.Errorf("export-elf: %w", err)
		}
	}

	if uncompressedOut != "" {
		if l.FileType != container.Nso {
			return fmt.Errorf("export-uncompressed: only applicable to NSO input, got %s", l.FileType)
		}
		if len(raw) < 256 {
			return fmt.Errorf("export-uncompressed: input header truncated")
		}
		if err := writeAtomic(uncompressedOut, func(w io.Writer) error {
			return nsowriter.WriteUncompressed(w, raw[:256], l)
		}); err != nil {
			return fmt.Errorf("export-uncompressed: %w", err)
		}
	}

	return nil
}

// writeAtomic opens path with O_CREAT|O_TRUNC via unix.Open, runs fn
// against the resulting file, and fsyncs before close — the granularity
// of write durability this batch converter promises (spec.md §5).
func writeAtomic(path string, fn func(w io.Writer) error) error {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_WRONLY|unix.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

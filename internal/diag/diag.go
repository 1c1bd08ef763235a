// Package diag collects conversion diagnostics and defines the fatal
// error kinds from spec.md §7. It is the conversion-pipeline analogue of
// the teacher's ErrorCollector in errors.go, repurposed from compiler
// syntax/semantic errors to per-stage conversion warnings.
package diag

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// Verbose gates diagnostic dumps of dynamic tags, relocations and symbols
// (SPEC_FULL.md §2); the header dump is printed regardless. It is the package's only mutable state, set
// once from CLI flags before any file is processed.
var Verbose bool

// Fatal error kinds (spec.md §7). Checked with errors.Is; wrapped with
// %w at each layer so the originating stage stays visible in the message.
var (
	ErrBadMagic                 = errors.New("bad magic")
	ErrTruncatedHeader           = errors.New("truncated header")
	ErrSizeMismatch              = errors.New("size mismatch")
	ErrDecompressFailed          = errors.New("decompress failed")
	ErrUnsupportedContainerShape = errors.New("unsupported container shape")
)

// Stage identifies which pipeline component raised a diagnostic.
type Stage string

const (
	StageLoader   Stage = "loader"
	StageDynamic  Stage = "dynamic"
	StageInfer    Stage = "infer"
	StageModsynth Stage = "modsynth"
	StageEmit     Stage = "emit"
)

// Level mirrors the teacher's ErrorLevel, narrowed to the two severities
// the conversion pipeline actually produces: a soft InferenceFailed (a
// section is skipped, conversion continues) and a hard abort.
type Level int

const (
	LevelWarning Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "warning"
}

// Diagnostic is a single non-fatal message produced while converting a file.
type Diagnostic struct {
	Level   Level
	Stage   Stage
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: [%s] %s", d.Level, d.Stage, d.Message)
}

// Collector accumulates diagnostics for a single input file's conversion,
// then reports them in order once the file is done (spec.md §7: "soft
// inference failures print to the diagnostic channel and continue").
type Collector struct {
	diags []Diagnostic
}

func NewCollector() *Collector {
	return &Collector{}
}

// Warn records a soft InferenceFailed condition: the named section is
// skipped, conversion of the file is not aborted.
func (c *Collector) Warn(stage Stage, format string, args ...any) {
	c.diags = append(c.diags, Diagnostic{Level: LevelWarning, Stage: stage, Message: fmt.Sprintf(format, args...)})
}

func (c *Collector) Error(stage Stage, format string, args ...any) {
	c.diags = append(c.diags, Diagnostic{Level: LevelError, Stage: stage, Message: fmt.Sprintf(format, args...)})
}

func (c *Collector) Len() int { return len(c.diags) }

// Report writes every collected diagnostic to w, one per line.
func (c *Collector) Report(w io.Writer) {
	for _, d := range c.diags {
		fmt.Fprintln(w, d.String())
	}
}

// HumanBytes formats a byte count for the header dump, e.g. "1.2 MB".
// Never used on a path that affects emitted bytes — purely ambient logging.
func HumanBytes(n uint64) string {
	return humanize.Bytes(n)
}

package util

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// TabbedStringBuilder builds tab-aligned tables on top of a strings.Builder, which never errors, so callers
// don't have to handle write errors.
type TabbedStringBuilder struct {
	sb     *strings.Builder
	writer *tabwriter.Writer
}

// NewTabbedStringBuilder creates a new TabbedStringBuilder. All parameters are equivalent to those defined in tabwriter.NewWriter
func NewTabbedStringBuilder(minwidth, tabwidth, padding int, padchar byte, flags uint) *TabbedStringBuilder {
	sb := &strings.Builder{}
	return &TabbedStringBuilder{
		sb:     sb,
		writer: tabwriter.NewWriter(sb, minwidth, tabwidth, padding, padchar, flags),
	}
}

// Writef formats according to a format specifier and writes to the underlying writer
func (t *TabbedStringBuilder) Writef(format string, a ...any) {
	_, _ = fmt.Fprintf(t.writer, format, a...)
}

// Row writes cells as a single tab separated, newline terminated line.
func (t *TabbedStringBuilder) Row(cells ...any) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = fmt.Sprint(c)
	}
	_, _ = fmt.Fprintln(t.writer, strings.Join(parts, "\t"))
}

// String flushes the underlying writer and returns the accumulated string.
func (t *TabbedStringBuilder) String() string {
	_ = t.writer.Flush()
	return t.sb.String()
}

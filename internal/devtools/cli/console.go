package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"golang.org/x/term"
)

const (
	ansiReset   = "\033[0m"
	ansiBold    = "\033[1m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiCyan    = "\033[36m"
	ansiMagenta = "\033[35m"
)

// console writes human output. Results go to out, everything decorative
// or diagnostic goes to errOut, so `$(devtools token issue alice)` captures
// just the token.
type console struct {
	out    io.Writer
	errOut io.Writer
	color  bool
}

func newConsole(out, errOut io.Writer) *console {
	return &console{out: out, errOut: errOut, color: wantColor(errOut)}
}

// wantColor is true for a real terminal unless NO_COLOR is set.
func wantColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *console) paint(style, s string) string {
	if !c.color {
		return s
	}
	return style + s + ansiReset
}

// Result prints a line to stdout.
func (c *console) Result(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) Info(format string, args ...any) {
	fmt.Fprintln(c.errOut, c.paint(ansiCyan, fmt.Sprintf(format, args...)))
}

func (c *console) Success(format string, args ...any) {
	fmt.Fprintln(c.errOut, c.paint(ansiGreen, "ok: "+fmt.Sprintf(format, args...)))
}

func (c *console) Warn(format string, args ...any) {
	fmt.Fprintln(c.errOut, c.paint(ansiYellow, "warning: "+fmt.Sprintf(format, args...)))
}

func (c *console) Error(format string, args ...any) {
	fmt.Fprintln(c.errOut, c.paint(ansiRed, "error: "+fmt.Sprintf(format, args...)))
}

// Heading prints a bold title line with an underline.
func (c *console) Heading(title string) {
	fmt.Fprintln(c.errOut, c.paint(ansiBold+ansiMagenta, title))
	fmt.Fprintln(c.errOut, strings.Repeat("-", len(title)))
}

// Table prints aligned rows to w. The first row is the header. Colour is
// decided for w itself, not for errOut.
func (c *console) Table(w io.Writer, rows [][]string) {
	writeTable(w, rows, wantColor(w))
}

// writeTable aligns the plain text first and styles the finished header
// line afterwards, so escape codes never count toward column widths.
func writeTable(w io.Writer, rows [][]string, color bool) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()

	out := buf.String()
	if color && out != "" {
		header, rest, _ := strings.Cut(out, "\n")
		out = ansiBold + header + ansiReset + "\n" + rest
	}
	_, _ = io.WriteString(w, out)
}

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll

// Copy puts s on the clipboard. Failure is only ever a warning.
func (c *console) Copy(s string) {
	if clipboard.Unsupported {
		c.Warn("could not copy to clipboard: no clipboard utility found")
		return
	}
	if err := copyToClipboard(s); err != nil {
		c.Warn("could not copy to clipboard: %v", err)
		return
	}
	c.Success("token copied to clipboard")
}

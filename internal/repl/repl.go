// Package repl drives the interactive line-oriented command loop: read
// a line, dispatch it, redraw the grid, print a status line, repeat
// until "q" or EOF.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"sheet/internal/dispatch"
	"sheet/internal/sheet"
)

// Options configures the loop; VimMode is accepted but unimplemented
// here — the REPL only needs to know the flag was recognised, not act
// on it.
type Options struct {
	VimMode bool
	// Interactive selects the initial redraw-after-command setting:
	// a real terminal gets the grid dump, a pipe/batch caller doesn't,
	// until a disable_output/enable_output command overrides it.
	Interactive bool
}

// Start runs the command loop over in, writing prompts, the grid
// redraw (when enabled), and the status line to out, until "q" or EOF.
func Start(s *sheet.Sheet, opts Options, in io.Reader, out io.Writer) {
	d := dispatch.New(s)
	d.OutputEnabled = opts.Interactive
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "sheet REPL | type 'q' to quit")
	if opts.VimMode {
		fmt.Fprintln(out, "(vim overlay requested; falling back to plain command mode)")
	}

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		start := time.Now()
		outcome := d.Dispatch(line)
		elapsed := time.Since(start)

		if d.OutputEnabled {
			drawGrid(out, d)
		}
		printStatusLine(out, outcome, elapsed)

		if outcome.Quit {
			break
		}
	}
}

// drawGrid renders the visible window as a plain text grid. There is
// no ANSI highlighting or cursor positioning here; this is the minimal
// redraw a headless caller (or a test) can assert against.
func drawGrid(out io.Writer, d *dispatch.Dispatcher) {
	b := d.Sheet.Bounds()
	endRow := d.ViewRow + d.DispRows
	if endRow > b.Rows {
		endRow = b.Rows
	}
	endCol := d.ViewCol + d.DispCols
	if endCol > b.Cols {
		endCol = b.Cols
	}

	for row := d.ViewRow; row < endRow; row++ {
		for col := d.ViewCol; col < endCol; col++ {
			v := d.Sheet.Store.GetRowCol(row, col)
			if v.IsError {
				fmt.Fprintf(out, "%8s", "ERR")
			} else {
				fmt.Fprintf(out, "%8d", v.Int)
			}
		}
		fmt.Fprintln(out)
	}
}

// printStatusLine reports elapsed command time, resident memory
// (best-effort, via runtime.MemStats rather than an OS-specific query),
// and the last status.
func printStatusLine(out io.Writer, o dispatch.Outcome, elapsed time.Duration) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fmt.Fprintf(out, "[%s] mem=%s status=%s",
		elapsed.Round(time.Microsecond), humanize.Bytes(m.Sys), o.Status)
	if o.Message != "" {
		fmt.Fprintf(out, " %s", o.Message)
	}
	fmt.Fprintln(out)
}

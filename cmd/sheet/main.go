// cmd/sheet/main.go
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"

	"sheet/internal/ref"
	"sheet/internal/repl"
	"sheet/internal/sheet"
)

const version = "1.0.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}
	if args[0] == "--help" || args[0] == "-h" {
		showUsage()
		return
	}
	if args[0] == "--version" || args[0] == "-v" {
		fmt.Println("sheet", version)
		return
	}

	vimMode := false
	var positional []string
	for _, a := range args {
		if a == "--vim" {
			vimMode = true
			continue
		}
		positional = append(positional, a)
	}

	if len(positional) != 2 {
		showUsage()
		os.Exit(1)
	}

	rows, err1 := strconv.Atoi(positional[0])
	cols, err2 := strconv.Atoi(positional[1])
	if err1 != nil || err2 != nil || rows <= 0 || cols <= 0 || rows > ref.MaxRows || cols > ref.MaxCols {
		fmt.Fprintf(os.Stderr, "invalid dimensions: rows must be 1..%d, cols 1..%d\n", ref.MaxRows, ref.MaxCols)
		os.Exit(1)
	}

	s := sheet.New(rows, cols)

	// Redraw only makes sense talking to a real terminal; piped/batch
	// input still runs every command, it just skips the grid dump
	// between them (disable_output/enable_output can still override
	// this from within a session).
	interactive := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	repl.Start(s, repl.Options{VimMode: vimMode, Interactive: interactive}, os.Stdin, os.Stdout)
}

func showUsage() {
	fmt.Println(`sheet <rows> <cols> [--vim]

  rows, cols   grid dimensions (rows 1..999, cols 1..18278)
  --vim        start with the modal editor overlay (unimplemented collaborator)

Interactive commands once started:
  REF=EXPR               assign a literal or formula
  w a s d                move the viewport by 10
  q                       quit
  disable_output          suppress the grid redraw after each command
  enable_output           resume the grid redraw
  scroll_to REF           reposition the viewport
  display N               set visible rows/cols (1..15)
  lock_cell REF|RANGE     make a rectangle read-only
  name RANGE NAME         register a named range
  history REF             roll a cell back to its previous value
  formula REF              print the reconstructed expression
  visualize REF            print dependency listing (+ PNG if "dot" is available)
  high_dep REF             print the parent/child key sets
  last_edit                scroll to the most recently edited cell`)
}

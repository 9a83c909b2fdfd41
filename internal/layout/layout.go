// Package layout converts a character drawing of track into the
// X,Y,Symbol cell table consumed by the controller's window layout loader.
package layout

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode"
)

// Header is the first line of every layout table.
const Header = "# X,Y,Symbol"

// Cell is one drawn character. X counts runes from the start of the line
// and Y counts lines, both from zero.
type Cell struct {
	X      int
	Y      int
	Symbol rune
}

func (c Cell) String() string {
	return fmt.Sprintf("%d,%d,%c", c.X, c.Y, c.Symbol)
}

// Parse reads a drawing and returns a cell for every non-whitespace rune,
// in reading order. Whitespace still advances the column.
func Parse(r io.Reader) ([]Cell, error) {
	var cells []Cell
	br := bufio.NewReader(r)
	for y := 0; ; y++ {
		line, err := br.ReadString('\n')
		x := 0
		for _, ch := range line {
			if !unicode.IsSpace(ch) {
				cells = append(cells, Cell{X: x, Y: y, Symbol: ch})
			}
			x++
		}
		if errors.Is(err, io.EOF) {
			return cells, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", y, err)
		}
	}
}

// WriteTable writes the header followed by one x,y,symbol line per cell.
func WriteTable(w io.Writer, cells []Cell) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, Header); err != nil {
		return err
	}
	for _, c := range cells {
		if _, err := fmt.Fprintln(bw, c.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Convert parses r and writes its table to w.
func Convert(r io.Reader, w io.Writer) (int, error) {
	cells, err := Parse(r)
	if err != nil {
		return 0, err
	}
	return len(cells), WriteTable(w, cells)
}

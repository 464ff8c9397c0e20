// Package window places the foreground window on a cell range of a grid laid
// over its monitor's work area.
package window

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DefaultGap is the spacing in pixels kept around a placed window.
const DefaultGap = 2

var (
	ErrInvalidPosition    = errors.New("invalid grid position")
	ErrNoForegroundWindow = errors.New("no foreground window")
	ErrUnsupported        = errors.New("window placement is not supported on this platform")
)

// Grid divides a work area into Columns x Rows equal cells.
type Grid struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// Position is a cell range on a grid. End coordinates are exclusive.
type Position struct {
	Grid   Grid `json:"grid"`
	StartX int  `json:"startX"`
	StartY int  `json:"startY"`
	EndX   int  `json:"endX"`
	EndY   int  `json:"endY"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)@%dx%d", p.StartX, p.StartY, p.EndX, p.EndY, p.Grid.Columns, p.Grid.Rows)
}

// Validate reports whether p covers at least one cell inside its grid.
func (p Position) Validate() error {
	if p.Grid.Columns <= 0 || p.Grid.Rows <= 0 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidPosition, p.Grid.Columns, p.Grid.Rows)
	}
	if p.StartX < 0 || p.StartY < 0 || p.EndX > p.Grid.Columns || p.EndY > p.Grid.Rows {
		return fmt.Errorf("%w: %s is outside the grid", ErrInvalidPosition, p)
	}
	if p.StartX >= p.EndX || p.StartY >= p.EndY {
		return fmt.Errorf("%w: %s is empty", ErrInvalidPosition, p)
	}
	return nil
}

var grid10 = Grid{Columns: 10, Rows: 10}

// Named placements on a 10x10 grid.
var (
	LeftTop     = Position{Grid: grid10, StartX: 0, StartY: 0, EndX: 5, EndY: 5}
	RightTop    = Position{Grid: grid10, StartX: 5, StartY: 0, EndX: 10, EndY: 5}
	LeftBottom  = Position{Grid: grid10, StartX: 0, StartY: 5, EndX: 5, EndY: 10}
	RightBottom = Position{Grid: grid10, StartX: 5, StartY: 5, EndX: 10, EndY: 10}
	LeftHalf    = Position{Grid: grid10, StartX: 0, StartY: 0, EndX: 5, EndY: 10}
	RightHalf   = Position{Grid: grid10, StartX: 5, StartY: 0, EndX: 10, EndY: 10}
	Center      = Position{Grid: grid10, StartX: 2, StartY: 0, EndX: 8, EndY: 10}
	CenterWide  = Position{Grid: grid10, StartX: 1, StartY: 0, EndX: 9, EndY: 10}
	Full        = Position{Grid: grid10, StartX: 0, StartY: 0, EndX: 10, EndY: 10}
)

var presets = map[string]Position{
	"left-top":     LeftTop,
	"right-top":    RightTop,
	"left-bottom":  LeftBottom,
	"right-bottom": RightBottom,
	"left-half":    LeftHalf,
	"right-half":   RightHalf,
	"center":       Center,
	"center-wide":  CenterWide,
	"full":         Full,
}

// Preset returns the named placement, e.g. "left-half".
func Preset(name string) (Position, bool) {
	pos, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return pos, ok
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParsePosition accepts a preset name or "startX,startY,endX,endY" with an
// optional "@COLUMNSxROWS" suffix (10x10 when omitted).
func ParsePosition(raw string) (Position, error) {
	raw = strings.TrimSpace(raw)
	if pos, ok := Preset(raw); ok {
		return pos, nil
	}

	coords, gridPart, hasGrid := strings.Cut(raw, "@")
	pos := Position{Grid: grid10}
	if hasGrid {
		cols, rows, ok := strings.Cut(strings.ToLower(gridPart), "x")
		if !ok {
			return Position{}, fmt.Errorf("%w: grid %q must look like 10x10", ErrInvalidPosition, gridPart)
		}
		var err error
		if pos.Grid.Columns, err = strconv.Atoi(strings.TrimSpace(cols)); err != nil {
			return Position{}, fmt.Errorf("%w: columns %q", ErrInvalidPosition, cols)
		}
		if pos.Grid.Rows, err = strconv.Atoi(strings.TrimSpace(rows)); err != nil {
			return Position{}, fmt.Errorf("%w: rows %q", ErrInvalidPosition, rows)
		}
	}

	parts := strings.Split(coords, ",")
	if len(parts) != 4 {
		return Position{}, fmt.Errorf("%w: %q is neither a preset nor startX,startY,endX,endY", ErrInvalidPosition, raw)
	}
	values := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Position{}, fmt.Errorf("%w: coordinate %q", ErrInvalidPosition, part)
		}
		values[i] = v
	}
	pos.StartX, pos.StartY, pos.EndX, pos.EndY = values[0], values[1], values[2], values[3]
	if err := pos.Validate(); err != nil {
		return Position{}, err
	}
	return pos, nil
}

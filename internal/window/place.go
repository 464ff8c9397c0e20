package window

// Rect is a screen rectangle in pixels. Right and Bottom are exclusive.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Insets are the invisible resize borders between a window's outer rectangle
// and its visible frame.
type Insets struct {
	Left, Top, Right, Bottom int
}

// BorderInsets derives the invisible borders from the outer window rectangle
// and the visible frame reported by the compositor.
func BorderInsets(outer, visible Rect) Insets {
	return Insets{
		Left:   visible.Left - outer.Left,
		Top:    visible.Top - outer.Top,
		Right:  outer.Right - visible.Right,
		Bottom: outer.Bottom - visible.Bottom,
	}
}

// Place returns the outer window rectangle that makes the visible frame cover
// pos on work, inset by gap on every side.
func Place(work Rect, pos Position, gap int, borders Insets) Rect {
	width, height := work.Width(), work.Height()
	cols, rows := pos.Grid.Columns, pos.Grid.Rows

	x := work.Left + width*pos.StartX/cols + gap
	y := work.Top + height*pos.StartY/rows + gap
	w := width*(pos.EndX-pos.StartX)/cols - 2*gap
	h := height*(pos.EndY-pos.StartY)/rows - 2*gap

	x -= borders.Left
	y -= borders.Top
	w += borders.Left + borders.Right
	h += borders.Top + borders.Bottom
	return Rect{Left: x, Top: y, Right: x + w, Bottom: y + h}
}

// Positioner moves the foreground window.
type Positioner interface {
	Move(pos Position, gap int) error
}

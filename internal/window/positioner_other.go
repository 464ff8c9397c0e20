//go:build !windows

package window

type unsupportedPositioner struct{}

// NewPositioner returns a Positioner that validates pos and then reports
// ErrUnsupported.
func NewPositioner() Positioner {
	return unsupportedPositioner{}
}

func (unsupportedPositioner) Move(pos Position, _ int) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	return ErrUnsupported
}

package hardware

import "go.uber.org/multierr"

// TeeDisplay mirrors every operation to all displays. The first display is
// authoritative for SetCursor bounds; the rest are written best effort and
// their errors are aggregated.
func TeeDisplay(displays ...Display) Display {
	return teeDisplay(displays)
}

type teeDisplay []Display

func (t teeDisplay) Write(text string) error {
	var err error
	for _, d := range t {
		err = multierr.Append(err, d.Write(text))
	}
	return err
}

func (t teeDisplay) Clear() error {
	var err error
	for _, d := range t {
		err = multierr.Append(err, d.Clear())
	}
	return err
}

func (t teeDisplay) SetCursor(row, col int) error {
	if len(t) == 0 {
		return nil
	}
	if err := t[0].SetCursor(row, col); err != nil {
		return err
	}
	var err error
	for _, d := range t[1:] {
		err = multierr.Append(err, d.SetCursor(row, col))
	}
	return err
}

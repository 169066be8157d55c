package period

import "errors"

var (
	ErrUnknownCadence = errors.New("unknown cadence")
	ErrUnknownWeekday = errors.New("unknown weekday")
	ErrInvalidKey     = errors.New("invalid period key")
)

package repository

import "errors"

// ErrInvalidLimit is returned when a list or leaderboard limit is not positive.
var ErrInvalidLimit = errors.New("invalid limit")

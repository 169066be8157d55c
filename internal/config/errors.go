package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrLoadConfig wraps file, .env and decoding failures in Load.
	ErrLoadConfig = errors.New("load configuration")
)

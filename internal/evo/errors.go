package evo

import "errors"

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAlreadyRunning    = errors.New("evolution already running")
	ErrNotRunning        = errors.New("evolution not running")
	ErrEvaluationFailure = errors.New("fitness evaluation failed")
)

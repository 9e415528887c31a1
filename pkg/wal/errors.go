package wal

import "errors"

var (
	ErrClosed       = errors.New("wal: engine closed")
	ErrCorrupt      = errors.New("wal: corrupt entry")
	ErrInvalidMagic = errors.New("wal: invalid magic")
	ErrInvalidOp    = errors.New("wal: invalid operation")
)

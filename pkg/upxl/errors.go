package upxl

import "errors"

var (
	// ErrSourceClosed indicates the byte source has no more bytes.
	ErrSourceClosed = errors.New("source closed")
	// ErrBusy indicates a transfer is already in flight.
	ErrBusy = errors.New("output busy")
)

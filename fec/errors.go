package fec

import "errors"

// Errors returned by the polar engine. Operations wrap them with detail, so
// callers should compare with errors.Is.
var (
	// ErrConfiguration reports invalid N, K, list width, rate matching
	// parameters or a malformed frozen-bit table.
	ErrConfiguration = errors.New("polar: invalid configuration")

	// ErrLengthMismatch reports a soft-value or bit buffer whose length does
	// not match N, N_pct or K.
	ErrLengthMismatch = errors.New("polar: length mismatch")

	// ErrUnimplemented reports a call on a zero value or otherwise unconfigured
	// instance.
	ErrUnimplemented = errors.New("polar: operation not implemented")

	// ErrAllocation reports a construction method or implementation name that
	// no factory recognizes.
	ErrAllocation = errors.New("polar: unknown implementation")
)

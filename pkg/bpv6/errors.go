// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"errors"
	"fmt"
	"io"

	"github.com/dtn7/dtn6-go/pkg/blob"
	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

var (
	// ErrMalformedEncoding indicates invalid bytes, e.g., an SDNV overflow or a
	// dictionary offset out of range. The current parse must be aborted.
	ErrMalformedEncoding = errors.New("malformed bundle encoding")

	// ErrIncompleteData indicates a stream ending within a bundle. More data
	// might complete it.
	ErrIncompleteData = errors.New("incomplete bundle data")

	// ErrVersionMismatch indicates a bundle with a version other than 6.
	ErrVersionMismatch = errors.New("bundle protocol version mismatch")

	// ErrResourceContention indicates a payload store which could not be locked.
	ErrResourceContention = blob.ErrResourceContention

	// ErrRejected is returned if a Validator refused a bundle while parsing.
	ErrRejected = errors.New("bundle rejected by validator")
)

// wrapReadError maps errors from the underlying reader or the SDNV codec to
// this package's error taxonomy.
func wrapReadError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, sdnv.ErrTruncated):
		return fmt.Errorf("%w: reading %s: %v", ErrIncompleteData, what, err)
	case errors.Is(err, sdnv.ErrOverflow):
		return fmt.Errorf("%w: reading %s: %v", ErrMalformedEncoding, what, err)
	default:
		return fmt.Errorf("reading %s failed: %w", what, err)
	}
}

// malformed creates an ErrMalformedEncoding with a description.
func malformed(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedEncoding, fmt.Sprintf(format, a...))
}

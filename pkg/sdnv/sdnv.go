// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sdnv implements Self-Delimiting Numeric Values as used by the
// Bundle Protocol version 6, RFC 5050, section 4.1.
//
// An SDNV splits an unsigned integer into 7-bit groups, most significant group
// first. Each byte except the last one has its high bit set. Encoded values are
// always of minimal length. At most MaxLength bytes are accepted while
// decoding, as this is the maximum length of a 64-bit value.
package sdnv

import (
	"errors"
	"io"
	"math"
)

// MaxLength is the maximum byte length of an SDNV encoded uint64.
const MaxLength = 10

var (
	// ErrOverflow is returned if the decoded value does not fit into 64 bits.
	ErrOverflow = errors.New("sdnv: value overflows 64 bits")

	// ErrTruncated is returned if the input ended before the terminating byte.
	ErrTruncated = errors.New("sdnv: truncated value")

	// ErrShortBuffer is returned by Encode for a too small destination.
	ErrShortBuffer = errors.New("sdnv: buffer too short")
)

// Len returns the encoded length of v in bytes.
func Len(v uint64) (n int) {
	n = 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return
}

// Encode writes v into buf and returns the amount of written bytes.
func Encode(v uint64, buf []byte) (int, error) {
	n := Len(v)
	if len(buf) < n {
		return 0, ErrShortBuffer
	}

	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	buf[n-1] &= 0x7f

	return n, nil
}

// Append appends the encoding of v to dst.
func Append(dst []byte, v uint64) []byte {
	var buf [MaxLength]byte
	n, _ := Encode(v, buf[:])
	return append(dst, buf[:n]...)
}

// Decode reads an SDNV from the start of buf, returning the value and the
// amount of consumed bytes.
func Decode(buf []byte) (v uint64, n int, err error) {
	for n < len(buf) {
		if n == MaxLength || v > math.MaxUint64>>7 {
			return 0, 0, ErrOverflow
		}

		b := buf[n]
		n++
		v = v<<7 | uint64(b&0x7f)

		if b&0x80 == 0 {
			return v, n, nil
		}
	}

	if n == MaxLength {
		return 0, 0, ErrOverflow
	}
	return 0, 0, ErrTruncated
}

// Write writes v's encoding to w.
func Write(w io.Writer, v uint64) (int, error) {
	var buf [MaxLength]byte
	n, _ := Encode(v, buf[:])
	return w.Write(buf[:n])
}

// Read an SDNV from r.
//
// If r is empty before the first byte, io.EOF is returned. If r ends within the
// value, ErrTruncated is returned.
func Read(r io.ByteReader) (v uint64, err error) {
	for n := 0; ; n++ {
		b, readErr := r.ReadByte()
		if readErr == io.EOF {
			if n == 0 {
				return 0, io.EOF
			}
			return 0, ErrTruncated
		} else if readErr != nil {
			return 0, readErr
		}

		if n == MaxLength || v > math.MaxUint64>>7 {
			return 0, ErrOverflow
		}
		v = v<<7 | uint64(b&0x7f)

		if b&0x80 == 0 {
			return v, nil
		}
	}
}

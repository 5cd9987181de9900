// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// StreamBlock numbers the bundles of a bundle stream, allowing in-order delivery.
type StreamBlock uint64

// BlockTypeCode must return a constant integer, indicating the block type code.
func (sb *StreamBlock) BlockTypeCode() uint8 {
	return ExtBlockTypeStreamBlock
}

// BlockTypeName must return a constant string, this block's name.
func (sb *StreamBlock) BlockTypeName() string {
	return "Stream Block"
}

// NewStreamBlock creates a new StreamBlock for a sequence number.
func NewStreamBlock(seq uint64) *StreamBlock {
	sb := StreamBlock(seq)
	return &sb
}

// SequenceNumber of this bundle within its stream.
func (sb *StreamBlock) SequenceNumber() uint64 {
	return uint64(*sb)
}

// MarshalBinary writes the sequence number as an SDNV.
func (sb *StreamBlock) MarshalBinary() ([]byte, error) {
	return sdnv.Append(nil, uint64(*sb)), nil
}

// UnmarshalBinary reads the sequence number from an SDNV.
func (sb *StreamBlock) UnmarshalBinary(data []byte) error {
	v, n, err := sdnv.Decode(data)
	if err != nil {
		return malformed("stream block: %v", err)
	} else if n != len(data) {
		return malformed("stream block has %d trailing bytes", len(data)-n)
	}

	*sb = StreamBlock(v)
	return nil
}

func (sb *StreamBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(sb.SequenceNumber())
}

// CheckValid returns an array of errors for incorrect data.
func (sb *StreamBlock) CheckValid() error {
	return nil
}

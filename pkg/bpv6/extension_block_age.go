// SPDX-FileCopyrightText: 2019, 2020, 2022 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// AgeBlock carries a bundle's age in seconds for nodes without a synchronized clock.
type AgeBlock uint64

// BlockTypeCode must return a constant integer, indicating the block type code.
func (ab *AgeBlock) BlockTypeCode() uint8 {
	return ExtBlockTypeAgeBlock
}

// BlockTypeName must return a constant string, this block's name.
func (ab *AgeBlock) BlockTypeName() string {
	return "Age Block"
}

// NewAgeBlock creates a new AgeBlock for the given seconds.
func NewAgeBlock(seconds uint64) *AgeBlock {
	ab := AgeBlock(seconds)
	return &ab
}

// Age returns the age in seconds.
func (ab *AgeBlock) Age() uint64 {
	return uint64(*ab)
}

// Increment with an offset and return the new age in seconds.
func (ab *AgeBlock) Increment(offset time.Duration) uint64 {
	*ab += AgeBlock(offset / time.Second)
	return uint64(*ab)
}

// MarshalBinary writes the age as an SDNV.
func (ab *AgeBlock) MarshalBinary() ([]byte, error) {
	return sdnv.Append(nil, uint64(*ab)), nil
}

// UnmarshalBinary reads the age from an SDNV.
func (ab *AgeBlock) UnmarshalBinary(data []byte) error {
	v, n, err := sdnv.Decode(data)
	if err != nil {
		return malformed("age block: %v", err)
	} else if n != len(data) {
		return malformed("age block has %d trailing bytes", len(data)-n)
	}

	*ab = AgeBlock(v)
	return nil
}

// MarshalJSON writes a JSON representation for an AgeBlock, e.g., "23 s".
func (ab *AgeBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%d s", ab.Age()))
}

// CheckValid returns an array of errors for incorrect data.
func (ab *AgeBlock) CheckValid() error {
	return nil
}

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"fmt"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// KeyBlock distributes a public key, e.g., to verify security blocks of the
// given type. The key's owner is the first entry of the EID list.
type KeyBlock struct {
	Key []byte

	// SecurityBlockType is the security block type this key is meant for.
	SecurityBlockType uint8

	// SendableTimes limits how often this block is forwarded.
	SendableTimes uint64

	// Refresh requests the receiver to replace a known key.
	Refresh bool
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (kb *KeyBlock) BlockTypeCode() uint8 {
	return ExtBlockTypeKeyBlock
}

// BlockTypeName must return a constant string, this block's name.
func (kb *KeyBlock) BlockTypeName() string {
	return "Key Block"
}

// Target returns the key's owner from a CanonicalBlock holding a KeyBlock.
func (kb *KeyBlock) Target(cb *CanonicalBlock) (EndpointID, error) {
	if cb.Value != kb {
		return EndpointID{}, fmt.Errorf("KeyBlock's pointer differs, %p != %p", cb.Value, kb)
	} else if len(cb.EIDs) == 0 {
		return EndpointID{}, fmt.Errorf("KeyBlock has no target")
	}
	return cb.EIDs[0], nil
}

// MarshalBinary writes the key, the security block type, the sendable times and
// the refresh flag.
func (kb *KeyBlock) MarshalBinary() ([]byte, error) {
	buf := appendBundleString(nil, kb.Key)
	buf = sdnv.Append(buf, uint64(kb.SecurityBlockType))
	buf = sdnv.Append(buf, kb.SendableTimes)

	var refresh uint64
	if kb.Refresh {
		refresh = 1
	}
	return sdnv.Append(buf, refresh), nil
}

// UnmarshalBinary reads a KeyBlock.
func (kb *KeyBlock) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	var tmp KeyBlock
	if key, err := readBundleString(r); err != nil {
		return malformed("key block key: %v", err)
	} else {
		tmp.Key = key
	}

	if sbType, err := sdnv.Read(r); err != nil {
		return malformed("key block security block type: %v", err)
	} else if sbType > 0xFF {
		return malformed("key block security block type %d exceeds a byte", sbType)
	} else {
		tmp.SecurityBlockType = uint8(sbType)
	}

	if times, err := sdnv.Read(r); err != nil {
		return malformed("key block sendable times: %v", err)
	} else {
		tmp.SendableTimes = times
	}

	if refresh, err := sdnv.Read(r); err != nil {
		return malformed("key block refresh: %v", err)
	} else {
		tmp.Refresh = refresh != 0
	}

	*kb = tmp
	return nil
}

// CheckValid returns an array of errors for incorrect data.
func (kb *KeyBlock) CheckValid() error {
	if len(kb.Key) == 0 {
		return fmt.Errorf("KeyBlock: empty key")
	}
	return nil
}

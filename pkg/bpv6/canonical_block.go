// SPDX-FileCopyrightText: 2018, 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// CanonicalBlock represents a non-primary bundle block as defined in RFC 5050,
// section 4.5.2. It holds the processing flags, the optional EID references
// and the type-specific ExtensionBlock.
//
// A Bundle identifies its CanonicalBlocks by their pointers. The LastBlock flag
// is maintained by the Bundle's block list operations.
type CanonicalBlock struct {
	BlockControlFlags BlockControlFlags
	EIDs              []EndpointID
	Value             ExtensionBlock
}

// NewCanonicalBlock based on some control flags and an Extension Block.
func NewCanonicalBlock(bcf BlockControlFlags, value ExtensionBlock) *CanonicalBlock {
	return &CanonicalBlock{
		BlockControlFlags: bcf &^ LastBlock,
		Value:             value,
	}
}

// TypeCode returns the block type code.
func (cb *CanonicalBlock) TypeCode() uint8 {
	return cb.Value.BlockTypeCode()
}

// AddEID appends an EndpointID reference and sets the ContainsEIDs flag.
func (cb *CanonicalBlock) AddEID(eid EndpointID) {
	cb.EIDs = append(cb.EIDs, eid)
	cb.BlockControlFlags |= ContainsEIDs
}

// SetEIDs replaces the EndpointID references. The ContainsEIDs flag is set for
// a non-empty list and cleared otherwise.
func (cb *CanonicalBlock) SetEIDs(eids []EndpointID) {
	if len(eids) == 0 {
		cb.EIDs = nil
		cb.BlockControlFlags &^= ContainsEIDs
	} else {
		cb.EIDs = eids
		cb.BlockControlFlags |= ContainsEIDs
	}
}

// IsLastBlock checks the LastBlock flag.
func (cb *CanonicalBlock) IsLastBlock() bool {
	return cb.BlockControlFlags.Has(LastBlock)
}

// Clone creates a deep copy of this CanonicalBlock, suitable to be added to
// another Bundle.
func (cb *CanonicalBlock) Clone() (*CanonicalBlock, error) {
	value, err := cloneExtensionBlock(cb.Value)
	if err != nil {
		return nil, err
	}

	return &CanonicalBlock{
		BlockControlFlags: cb.BlockControlFlags,
		EIDs:              append([]EndpointID(nil), cb.EIDs...),
		Value:             value,
	}, nil
}

// cloneExtensionBlock copies an ExtensionBlock through its binary representation.
func cloneExtensionBlock(eb ExtensionBlock) (ExtensionBlock, error) {
	data, err := eb.MarshalBinary()
	if err != nil {
		return nil, err
	}
	data = append([]byte(nil), data...)

	if geb, ok := eb.(*GenericExtensionBlock); ok {
		return NewGenericExtensionBlock(data, geb.typeCode), nil
	}

	clone := reflect.New(reflect.TypeOf(eb).Elem()).Interface().(ExtensionBlock)
	if err := clone.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return clone, nil
}

// MarshalJSON writes a JSON object for this Canonical Block.
func (cb CanonicalBlock) MarshalJSON() ([]byte, error) {
	var dataField interface{}

	if _, ok := cb.Value.(json.Marshaler); ok {
		dataField = cb.Value
	} else if data, err := cb.Value.MarshalBinary(); err != nil {
		return nil, err
	} else {
		dataField = data
	}

	return json.Marshal(&struct {
		BlockTypeCode uint8             `json:"blockTypeCode"`
		BlockType     string            `json:"blockType"`
		ControlFlags  BlockControlFlags `json:"blockControlFlags"`
		EIDs          []EndpointID      `json:"eids,omitempty"`
		Data          interface{}       `json:"data"`
	}{
		BlockType:     cb.Value.BlockTypeName(),
		BlockTypeCode: cb.Value.BlockTypeCode(),
		ControlFlags:  cb.BlockControlFlags,
		EIDs:          cb.EIDs,
		Data:          dataField,
	})
}

// CheckValid returns an array of errors for incorrect data.
func (cb CanonicalBlock) CheckValid() (errs error) {
	if bcfErr := cb.BlockControlFlags.CheckValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}

	if cb.Value == nil {
		return multierror.Append(errs, fmt.Errorf("CanonicalBlock has no value"))
	}

	if cb.Value.BlockTypeCode() == 0 {
		errs = multierror.Append(errs, fmt.Errorf("CanonicalBlock has the reserved block type code 0"))
	}

	if extErr := cb.Value.CheckValid(); extErr != nil {
		errs = multierror.Append(errs, extErr)
	}

	if cb.BlockControlFlags.Has(ContainsEIDs) && len(cb.EIDs) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("CanonicalBlock claims to contain EIDs, but has none"))
	} else if !cb.BlockControlFlags.Has(ContainsEIDs) && len(cb.EIDs) > 0 {
		errs = multierror.Append(errs, fmt.Errorf("CanonicalBlock has EIDs without the ContainsEIDs flag"))
	}

	return
}

func (cb CanonicalBlock) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "block type code: %d, ", cb.Value.BlockTypeCode())
	_, _ = fmt.Fprintf(&b, "block processing control flags: %b, ", cb.BlockControlFlags)
	if len(cb.EIDs) > 0 {
		_, _ = fmt.Fprintf(&b, "eids: %v, ", cb.EIDs)
	}
	_, _ = fmt.Fprintf(&b, "data: %v", cb.Value)

	return b.String()
}

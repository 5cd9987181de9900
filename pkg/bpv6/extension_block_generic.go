// SPDX-FileCopyrightText: 2019, 2020, 2022 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

// GenericExtensionBlock is a dummy ExtensionBlock to cover for unknown or
// unregistered ExtensionBlocks. Its raw body is kept for forwarding.
type GenericExtensionBlock struct {
	data     []byte
	typeCode uint8
}

// NewGenericExtensionBlock creates a new GenericExtensionBlock from some payload and a block type code.
func NewGenericExtensionBlock(data []byte, typeCode uint8) *GenericExtensionBlock {
	return &GenericExtensionBlock{
		data:     data,
		typeCode: typeCode,
	}
}

// Data returns the raw body.
func (geb *GenericExtensionBlock) Data() []byte {
	return geb.data
}

// MarshalBinary writes a binary representation of this block.
func (geb *GenericExtensionBlock) MarshalBinary() ([]byte, error) {
	return geb.data, nil
}

// UnmarshalBinary reads a binary representation of a generic block.
func (geb *GenericExtensionBlock) UnmarshalBinary(data []byte) error {
	geb.data = data
	return nil
}

// CheckValid returns an array of errors for incorrect data.
func (geb *GenericExtensionBlock) CheckValid() error {
	// We have zero knowledge about this block.
	return nil
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (geb *GenericExtensionBlock) BlockTypeCode() uint8 {
	return geb.typeCode
}

// BlockTypeName must return a constant string, this block's name.
func (geb *GenericExtensionBlock) BlockTypeName() string {
	return "N/A"
}

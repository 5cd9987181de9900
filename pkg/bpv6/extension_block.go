// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Block type codes of the supported blocks.
const (
	ExtBlockTypePayloadBlock                uint8 = 1
	ExtBlockTypeBundleAuthenticationBlock   uint8 = 2
	ExtBlockTypePayloadIntegrityBlock       uint8 = 3
	ExtBlockTypePayloadConfidentialityBlock uint8 = 4
	ExtBlockTypeExtensionSecurityBlock      uint8 = 9
	ExtBlockTypeAgeBlock                    uint8 = 10
	ExtBlockTypeKeyBlock                    uint8 = 200
	ExtBlockTypeCompressedPayloadBlock      uint8 = 202
	ExtBlockTypeStreamBlock                 uint8 = 242
)

// ExtensionBlock is the type-specific part of a CanonicalBlock, e.g., the
// Payload Block or some Extension Block. Its body is created and parsed by the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler methods.
type ExtensionBlock interface {
	Valid
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	// BlockTypeCode must return a constant integer, indicating the block type code.
	BlockTypeCode() uint8

	// BlockTypeName must return a constant string, this block's name.
	BlockTypeName() string
}

// ExtensionBlockManager keeps a book on various types of ExtensionBlocks that
// can be changed at runtime. Thus, new ExtensionBlocks can be created based on
// their block type code.
//
// Lookups and (un)registrations are guarded by a read-write lock. However,
// changing the registered types while bundles are being parsed results in
// those bundles being parsed with either the old or the new set.
type ExtensionBlockManager struct {
	mutex sync.RWMutex
	data  map[uint8]reflect.Type
}

// NewExtensionBlockManager creates an empty ExtensionBlockManager.
func NewExtensionBlockManager() *ExtensionBlockManager {
	return &ExtensionBlockManager{data: make(map[uint8]reflect.Type)}
}

// Register a new ExtensionBlock type through an exemplary instance.
//
// GenericExtensionBlocks and administrative records cannot be registered.
func (ebm *ExtensionBlockManager) Register(eb ExtensionBlock) error {
	switch eb.(type) {
	case *GenericExtensionBlock:
		return fmt.Errorf("GenericExtensionBlock cannot be registered")
	case AdministrativeRecord:
		return fmt.Errorf("administrative records are identified by the administrative record flag")
	}

	extType := reflect.TypeOf(eb)
	if extType.Kind() != reflect.Ptr {
		return fmt.Errorf("ExtensionBlock %s must be registered by a pointer", extType)
	}
	extType = extType.Elem()

	extCode := eb.BlockTypeCode()
	if extCode == 0 {
		return fmt.Errorf("block type code 0 is reserved")
	}

	ebm.mutex.Lock()
	defer ebm.mutex.Unlock()

	if otherType, exists := ebm.data[extCode]; exists {
		return fmt.Errorf("block type code %d is already registered for %s", extCode, otherType.Name())
	}

	ebm.data[extCode] = extType
	return nil
}

// Unregister an ExtensionBlock type through an exemplary instance.
func (ebm *ExtensionBlockManager) Unregister(eb ExtensionBlock) {
	ebm.mutex.Lock()
	defer ebm.mutex.Unlock()

	delete(ebm.data, eb.BlockTypeCode())
}

// IsKnown returns true if the ExtensionBlock for this block type code is known.
func (ebm *ExtensionBlockManager) IsKnown(typeCode uint8) bool {
	ebm.mutex.RLock()
	defer ebm.mutex.RUnlock()

	_, known := ebm.data[typeCode]
	return known
}

// KnownTypes returns all registered block type codes in ascending order.
func (ebm *ExtensionBlockManager) KnownTypes() (codes []uint8) {
	ebm.mutex.RLock()
	for code := range ebm.data {
		codes = append(codes, code)
	}
	ebm.mutex.RUnlock()

	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return
}

// createBlock returns an empty instance of the ExtensionBlock for the requested
// block type code. For unknown type codes, a GenericExtensionBlock is returned.
func (ebm *ExtensionBlockManager) createBlock(typeCode uint8) ExtensionBlock {
	ebm.mutex.RLock()
	extType, exists := ebm.data[typeCode]
	ebm.mutex.RUnlock()

	if !exists {
		return NewGenericExtensionBlock(nil, typeCode)
	}
	return reflect.New(extType).Interface().(ExtensionBlock)
}

// WriteBlock returns an ExtensionBlock's body.
func (ebm *ExtensionBlockManager) WriteBlock(eb ExtensionBlock) ([]byte, error) {
	return eb.MarshalBinary()
}

// ReadBlock creates the ExtensionBlock for a type code and its body. Unknown
// block type codes result in a GenericExtensionBlock.
func (ebm *ExtensionBlockManager) ReadBlock(typeCode uint8, data []byte) (ExtensionBlock, error) {
	eb := ebm.createBlock(typeCode)
	if err := eb.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return eb, nil
}

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"reflect"
	"testing"
)

func TestExtensionBlockManager(t *testing.T) {
	ebm := NewExtensionBlockManager()

	payloadBlock := NewPayloadBlock(nil)
	if err := ebm.Register(payloadBlock); err != nil {
		t.Fatal(err)
	}
	if err := ebm.Register(payloadBlock); err == nil {
		t.Fatal("Registering the PayloadBlock twice succeeded")
	}
	if err := ebm.Register(NewGenericExtensionBlock(nil, 192)); err == nil {
		t.Fatal("Registering a GenericExtensionBlock succeeded")
	}
	if err := ebm.Register(&StatusReport{}); err == nil {
		t.Fatal("Registering an administrative record succeeded")
	}

	if !ebm.IsKnown(ExtBlockTypePayloadBlock) {
		t.Fatal("PayloadBlock is unknown")
	}
	if ebm.IsKnown(ExtBlockTypeAgeBlock) {
		t.Fatal("AgeBlock is known")
	}

	if eb, err := ebm.ReadBlock(ExtBlockTypePayloadBlock, []byte("hello")); err != nil {
		t.Fatal(err)
	} else if pb, ok := eb.(*PayloadBlock); !ok {
		t.Fatalf("Expected a PayloadBlock, got %T", eb)
	} else if string(pb.Data()) != "hello" {
		t.Fatalf("Unexpected payload %q", pb.Data())
	}

	if eb, err := ebm.ReadBlock(ExtBlockTypeAgeBlock, []byte{0x17}); err != nil {
		t.Fatal(err)
	} else if geb, ok := eb.(*GenericExtensionBlock); !ok {
		t.Fatalf("Expected a GenericExtensionBlock, got %T", eb)
	} else if geb.BlockTypeCode() != ExtBlockTypeAgeBlock || !bytes.Equal(geb.Data(), []byte{0x17}) {
		t.Fatalf("Unexpected generic block %v", geb)
	}

	ebm.Unregister(payloadBlock)
	if ebm.IsKnown(ExtBlockTypePayloadBlock) {
		t.Fatal("PayloadBlock is still known")
	}
	if err := ebm.Register(payloadBlock); err != nil {
		t.Fatalf("Registering after unregistering failed: %v", err)
	}
}

func TestExtensionBlockManagerKnownTypes(t *testing.T) {
	expected := []uint8{
		ExtBlockTypePayloadBlock,
		ExtBlockTypeBundleAuthenticationBlock,
		ExtBlockTypePayloadIntegrityBlock,
		ExtBlockTypePayloadConfidentialityBlock,
		ExtBlockTypeExtensionSecurityBlock,
		ExtBlockTypeAgeBlock,
		ExtBlockTypeKeyBlock,
		ExtBlockTypeCompressedPayloadBlock,
		ExtBlockTypeStreamBlock,
	}

	if known := NewCodecContext().Manager.KnownTypes(); !reflect.DeepEqual(known, expected) {
		t.Fatalf("Expected %v, got %v", expected, known)
	}
}

func TestExtensionBlockManagerReadErrors(t *testing.T) {
	ebm := NewCodecContext().Manager

	tests := []struct {
		typeCode uint8
		data     []byte
	}{
		{ExtBlockTypeAgeBlock, []byte{0x81}},
		{ExtBlockTypeAgeBlock, []byte{0x01, 0x02}},
		{ExtBlockTypeStreamBlock, []byte{}},
		{ExtBlockTypeCompressedPayloadBlock, []byte{0x01}},
		{ExtBlockTypeBundleAuthenticationBlock, []byte{0x01, 0x02}},
	}

	for _, test := range tests {
		if _, err := ebm.ReadBlock(test.typeCode, test.data); err == nil {
			t.Fatalf("Reading %x as block type %d succeeded", test.data, test.typeCode)
		}
	}
}

func TestExtensionBlocksBinary(t *testing.T) {
	tests := []ExtensionBlock{
		NewAgeBlock(0),
		NewAgeBlock(1 << 40),
		NewStreamBlock(23),
		&KeyBlock{Key: []byte{0x30, 0x82}, SecurityBlockType: ExtBlockTypePayloadIntegrityBlock, SendableTimes: 3, Refresh: true},
		&CompressedPayloadBlock{Algorithm: CompressionLZMA, OriginalSize: 1 << 20},
	}

	ebm := NewCodecContext().Manager
	for _, eb := range tests {
		data, err := eb.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}

		eb2, err := ebm.ReadBlock(eb.BlockTypeCode(), data)
		if err != nil {
			t.Fatal(err)
		} else if !reflect.DeepEqual(eb, eb2) {
			t.Fatalf("Expected %v, got %v", eb, eb2)
		}
	}
}

func TestKeyBlockTarget(t *testing.T) {
	kb := &KeyBlock{Key: []byte("key"), SecurityBlockType: ExtBlockTypePayloadIntegrityBlock}
	cb := NewCanonicalBlock(0, kb)

	if _, err := kb.Target(cb); err == nil {
		t.Fatal("KeyBlock without EIDs has a target")
	}

	owner := MustNewEndpointID("dtn://owner/")
	cb.AddEID(owner)
	if target, err := kb.Target(cb); err != nil {
		t.Fatal(err)
	} else if target != owner {
		t.Fatalf("Expected %v, got %v", owner, target)
	}

	if _, err := (&KeyBlock{}).Target(cb); err == nil {
		t.Fatal("Foreign KeyBlock has a target")
	}
}

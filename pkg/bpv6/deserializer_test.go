// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestParseHelloBundle(t *testing.T) {
	b, err := Builder().
		Source("dtn://a/app1").
		Destination("dtn://b/app2").
		Lifetime(3600).
		PayloadBlock([]byte("hello")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	b2, err := ParseBundle(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(b, b2) {
		t.Fatalf("Parsed bundle differs:\n%v\n%v", b, b2)
	}
	if pb, err := b2.PayloadBlock(); err != nil {
		t.Fatal(err)
	} else if payload := pb.Value.(*PayloadBlock).Data(); string(payload) != "hello" {
		t.Fatalf("Unexpected payload %q", payload)
	}
	if b2.PrimaryBlock.Lifetime != 3600 {
		t.Fatalf("Unexpected lifetime %d", b2.PrimaryBlock.Lifetime)
	}
}

func TestParseEmptyStream(t *testing.T) {
	if _, err := ParseBundle(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
}

func TestParseTruncated(t *testing.T) {
	b := MustNewBundle(testPrimaryBlock(),
		NewCanonicalBlock(0, NewAgeBlock(300)),
		NewCanonicalBlock(0, NewPayloadBlock([]byte("hello world"))))

	for _, cbhe := range []bool{true, false} {
		ctx := NewCodecContext()
		ctx.CBHE = cbhe

		data, err := ctx.MarshalBundle(&b)
		if err != nil {
			t.Fatal(err)
		}

		for i := 1; i < len(data); i++ {
			if _, err := ctx.UnmarshalBundle(data[:i]); !errors.Is(err, ErrIncompleteData) {
				t.Fatalf("Prefix of %d/%d bytes: expected incomplete data, got %v", i, len(data), err)
			}
		}
	}
}

func TestParseMalformed(t *testing.T) {
	b := ipnBundle()
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		pos    int
		value  byte
		target error
	}{
		{"version", 0, 0x07, ErrVersionMismatch},
		{"primary block length", 2, 0x12, ErrMalformedEncoding},
		{"block type code zero", 20, 0x00, ErrMalformedEncoding},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			corrupted := append([]byte(nil), data...)
			corrupted[test.pos] = test.value

			if _, err := ParseBundle(bytes.NewReader(corrupted)); !errors.Is(err, test.target) {
				t.Fatalf("Expected %v, got %v", test.target, err)
			}
		})
	}
}

func TestParseDictionaryOutOfRange(t *testing.T) {
	ctx := NewCodecContext()
	ctx.CBHE = false

	b := MustNewBundle(testPrimaryBlock(), NewCanonicalBlock(0, NewPayloadBlock([]byte("hello"))))
	data, err := ctx.MarshalBundle(&b)
	if err != nil {
		t.Fatal(err)
	}

	// The destination's SSP offset is the fifth byte: version, flags, block
	// length, scheme offset.
	data[4] = 0x7F

	if _, err := ctx.UnmarshalBundle(data); !errors.Is(err, ErrMalformedEncoding) {
		t.Fatalf("Expected malformed error, got %v", err)
	}
}

func TestParseAdministrativeRecords(t *testing.T) {
	subject := ipnBundle()
	subject.PrimaryBlock.BundleControlFlags |= IsFragment
	subject.PrimaryBlock.FragmentOffset = 100
	subject.PrimaryBlock.AppDataLength = 1000

	recordTime := time.Date(2024, 5, 1, 12, 0, 0, 5000, time.UTC)

	tests := []struct {
		name   string
		record AdministrativeRecord
	}{
		{"status report", NewStatusReport(&subject, ReceivedBundle|DeliveredBundle, LifetimeExpired, recordTime)},
		{"custody signal", NewCustodySignal(&subject, true, CustodyNoInformation, recordTime)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pb := NewPrimaryBlock(AdministrativeRecordPayload, MustNewEndpointID("ipn:1.0"), MustNewEndpointID("ipn:2.0"), 3600)
			b, err := NewBundle(pb, NewCanonicalBlock(0, test.record))
			if err != nil {
				t.Fatal(err)
			}

			data, err := b.MarshalBinary()
			if err != nil {
				t.Fatal(err)
			}

			b2, err := ParseBundle(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(b, b2) {
				t.Fatalf("Parsed bundle differs:\n%v\n%v", b, b2)
			}

			ar, err := b2.AdministrativeRecord()
			if err != nil {
				t.Fatal(err)
			}
			if ar.RecordTypeCode() != test.record.RecordTypeCode() {
				t.Fatalf("Expected record type %d, got %d", test.record.RecordTypeCode(), ar.RecordTypeCode())
			}
			if _, err := b2.PayloadBlock(); err == nil {
				t.Fatal("Administrative record is returned as PayloadBlock")
			}
		})
	}
}

func TestParseStatusReportDispatch(t *testing.T) {
	subject := ipnBundle()
	sr := NewStatusReport(&subject, ForwardedBundle, NoKnownRouteToDestination, time.Unix(1000000000, 0))

	body, err := sr.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	} else if body[0] != 0x10 {
		t.Fatalf("Unexpected record header %x", body[0])
	}

	// The administrative record is announced as an ordinary payload.
	pb := NewPrimaryBlock(AdministrativeRecordPayload, MustNewEndpointID("ipn:1.0"), MustNewEndpointID("ipn:2.0"), 3600)
	raw := MustNewBundle(pb, NewCanonicalBlock(0, NewPayloadBlock(body)))

	data, err := raw.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	b, err := ParseBundle(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	ar, err := b.AdministrativeRecord()
	if err != nil {
		t.Fatal(err)
	}
	if sr2, ok := ar.(*StatusReport); !ok {
		t.Fatalf("Expected a StatusReport, got %T", ar)
	} else if !reflect.DeepEqual(sr, sr2) {
		t.Fatalf("StatusReport differs:\n%v\n%v", sr, sr2)
	} else if !sr2.Subject.Matches(&subject) {
		t.Fatal("StatusReport does not match its subject")
	}
}

func TestParseUnknownAdministrativeRecord(t *testing.T) {
	pb := NewPrimaryBlock(AdministrativeRecordPayload, MustNewEndpointID("ipn:1.0"), MustNewEndpointID("ipn:2.0"), 3600)
	raw := MustNewBundle(pb,
		NewCanonicalBlock(0, NewPayloadBlock([]byte{0x30, 0x00, 0x01})),
		NewCanonicalBlock(0, NewAgeBlock(42)))

	data, err := raw.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	b, err := ParseBundle(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if b.Len() != 1 {
		t.Fatalf("Expected only the age block, got %d blocks", b.Len())
	}
	if cb, err := b.ExtensionBlock(ExtBlockTypeAgeBlock); err != nil {
		t.Fatal(err)
	} else if !cb.IsLastBlock() {
		t.Fatal("Age block lost its LastBlock flag")
	}
	if _, err := b.AdministrativeRecord(); err == nil {
		t.Fatal("Unknown administrative record was kept")
	}
}

func TestParseGenericExtensionBlock(t *testing.T) {
	b := MustNewBundle(testPrimaryBlock(),
		NewCanonicalBlock(DiscardBlock, NewAgeBlock(23)),
		NewCanonicalBlock(0, NewPayloadBlock([]byte("hello"))))

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	ctx := &CodecContext{
		Manager:   NewExtensionBlockManager(),
		Validator: AcceptValidator{},
	}
	if err := ctx.Manager.Register(NewPayloadBlock(nil)); err != nil {
		t.Fatal(err)
	}

	b2, err := ctx.UnmarshalBundle(data)
	if err != nil {
		t.Fatal(err)
	}

	cb, err := b2.ExtensionBlock(ExtBlockTypeAgeBlock)
	if err != nil {
		t.Fatal(err)
	}
	geb, ok := cb.Value.(*GenericExtensionBlock)
	if !ok {
		t.Fatalf("Expected GenericExtensionBlock, got %T", cb.Value)
	}
	if !bytes.Equal(geb.Data(), []byte{23}) {
		t.Fatalf("Unexpected body %x", geb.Data())
	}
	if cb.BlockControlFlags != DiscardBlock {
		t.Fatalf("Unexpected flags %v", cb.BlockControlFlags)
	}

	data2, err := ctx.MarshalBundle(&b2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatalf("Forwarded bundle differs:\n%x\n%x", data, data2)
	}
}

// sizeValidator rejects bundles based on their primary block or block sizes.
type sizeValidator struct {
	AcceptValidator

	maxBlockSize uint64
	rejectAdmin  bool
	rejectBundle bool
	blocks       int
}

func (sv *sizeValidator) ValidatePrimary(pb *PrimaryBlock) error {
	if sv.rejectAdmin && pb.IsAdministrativeRecord() {
		return fmt.Errorf("administrative records are not accepted")
	}
	return nil
}

func (sv *sizeValidator) ValidateBlock(_ *PrimaryBlock, cb *CanonicalBlock, size uint64) error {
	sv.blocks++
	if size > sv.maxBlockSize {
		return fmt.Errorf("block of type %d exceeds %d bytes", cb.TypeCode(), sv.maxBlockSize)
	}
	return nil
}

func (sv *sizeValidator) ValidateBundle(_ *Bundle) error {
	if sv.rejectBundle {
		return fmt.Errorf("bundles are not accepted")
	}
	return nil
}

func TestParseValidator(t *testing.T) {
	b := MustNewBundle(testPrimaryBlock(),
		NewCanonicalBlock(0, NewAgeBlock(23)),
		NewCanonicalBlock(0, NewPayloadBlock([]byte("hello world"))))

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		validator *sizeValidator
		rejected  bool
		blocks    int
	}{
		{"accept", &sizeValidator{maxBlockSize: 100}, false, 2},
		{"block too large", &sizeValidator{maxBlockSize: 5}, true, 2},
		{"first block too large", &sizeValidator{maxBlockSize: 0}, true, 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := NewCodecContext()
			ctx.Validator = test.validator

			_, err := ctx.UnmarshalBundle(data)
			if rejected := errors.Is(err, ErrRejected); rejected != test.rejected {
				t.Fatalf("Expected rejected = %t, got %v", test.rejected, err)
			}
			if test.validator.blocks != test.blocks {
				t.Fatalf("Expected %d validated blocks, got %d", test.blocks, test.validator.blocks)
			}
		})
	}
}

func TestParseValidatorPrimary(t *testing.T) {
	pb := NewPrimaryBlock(AdministrativeRecordPayload, MustNewEndpointID("ipn:1.0"), MustNewEndpointID("ipn:2.0"), 3600)
	subject := ipnBundle()
	b := MustNewBundle(pb, NewCanonicalBlock(0, NewCustodySignal(&subject, false, CustodyDepletedStorage, time.Now())))

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	sv := &sizeValidator{maxBlockSize: 1024, rejectAdmin: true}
	ctx := NewCodecContext()
	ctx.Validator = sv

	if _, err := ctx.UnmarshalBundle(data); !errors.Is(err, ErrRejected) {
		t.Fatalf("Expected rejection, got %v", err)
	}
	if sv.blocks != 0 {
		t.Fatalf("%d blocks were validated after rejecting the primary block", sv.blocks)
	}
}

func TestParseBlobThreshold(t *testing.T) {
	payload := bytes.Repeat([]byte("dtn"), 100)
	b := MustNewBundle(testPrimaryBlock(), NewCanonicalBlock(0, NewPayloadBlock(payload)))

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		threshold int64
		isFile    bool
	}{
		{0, false},
		{int64(len(payload)), false},
		{int64(len(payload)) - 1, true},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("%d", test.threshold), func(t *testing.T) {
			ctx := NewCodecContext()
			ctx.BlobThreshold = test.threshold
			ctx.BlobDir = t.TempDir()

			b2, err := ctx.UnmarshalBundle(data)
			if err != nil {
				t.Fatal(err)
			}

			cb, err := b2.PayloadBlock()
			if err != nil {
				t.Fatal(err)
			}
			pb := cb.Value.(*PayloadBlock)

			if isFile := pb.Store() != nil && pb.Store().IsFile(); isFile != test.isFile {
				t.Fatalf("Expected file store = %t", test.isFile)
			}
			if pb.Store() != nil {
				defer func() { _ = pb.Store().Close() }()
			}

			if !bytes.Equal(pb.Data(), payload) {
				t.Fatal("Payload differs")
			}
			if pb.Len() != uint64(len(payload)) {
				t.Fatalf("Payload length %d differs from %d", pb.Len(), len(payload))
			}

			data2, err := ctx.MarshalBundle(&b2)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(data, data2) {
				t.Fatal("Serialized bundle differs")
			}
		})
	}
}

func TestParseBlobCleanup(t *testing.T) {
	payload := bytes.Repeat([]byte("dtn"), 100)
	b := MustNewBundle(testPrimaryBlock(),
		NewCanonicalBlock(0, NewPayloadBlock(payload)),
		NewCanonicalBlock(0, NewAgeBlock(23)))

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		data      []byte
		validator Validator
		err       error
	}{
		{"truncated behind payload", data[:len(data)-1], nil, ErrIncompleteData},
		{"rejected payload", data, &sizeValidator{maxBlockSize: 100}, ErrRejected},
		{"rejected bundle", data, &sizeValidator{maxBlockSize: 1024, rejectBundle: true}, ErrRejected},
		{"parsed and closed", data, nil, nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := NewCodecContext()
			ctx.BlobThreshold = 4
			ctx.BlobDir = t.TempDir()
			if test.validator != nil {
				ctx.Validator = test.validator
			}

			b2, err := ctx.UnmarshalBundle(test.data)
			if test.err == nil {
				if err != nil {
					t.Fatal(err)
				}
				if files, _ := os.ReadDir(ctx.BlobDir); len(files) != 1 {
					t.Fatalf("Expected one blob file, got %d", len(files))
				}
				if err := b2.Close(); err != nil {
					t.Fatal(err)
				}
			} else if !errors.Is(err, test.err) {
				t.Fatalf("Expected %v, got %v", test.err, err)
			}

			if files, err := os.ReadDir(ctx.BlobDir); err != nil {
				t.Fatal(err)
			} else if len(files) != 0 {
				t.Fatalf("Blob directory still holds %d files", len(files))
			}
		})
	}
}

func TestParseKeepsBlockFlags(t *testing.T) {
	b := MustNewBundle(testPrimaryBlock(),
		NewCanonicalBlock(ForwardedWithoutProcessed|DiscardBlock, NewStreamBlock(5)),
		NewCanonicalBlock(ReplicateBlock, NewPayloadBlock([]byte("hello"))))

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	b2, err := ParseBundle(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	for i, cb := range b2.Blocks() {
		if expected := b.Blocks()[i].BlockControlFlags; cb.BlockControlFlags != expected {
			t.Fatalf("Block %d: expected flags %b, got %b", i, expected, cb.BlockControlFlags)
		}
	}
}

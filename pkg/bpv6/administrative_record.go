// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"io"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// Administrative record type codes, stored within the high nibble of an
// administrative record's first byte.
const (
	AdminRecordTypeStatusReport  uint8 = 1
	AdminRecordTypeCustodySignal uint8 = 2

	// adminRecordFragment indicates a subject bundle which is a fragment.
	adminRecordFragment uint8 = 0x01
)

// AdministrativeRecord is the payload of a bundle flagged as an administrative
// record, RFC 5050, section 6.1. On the wire it is a payload block; the record
// type is encoded within the body's first byte.
type AdministrativeRecord interface {
	ExtensionBlock

	// RecordTypeCode returns the administrative record type code.
	RecordTypeCode() uint8
}

// adminRecordType extracts the record type code from a body's first byte.
func adminRecordType(data []byte) (uint8, bool) {
	if len(data) == 0 {
		return 0, false
	}
	return data[0] >> 4, true
}

// newAdministrativeRecord creates an empty AdministrativeRecord for a record
// type code or nil, if unknown.
func newAdministrativeRecord(typeCode uint8) AdministrativeRecord {
	switch typeCode {
	case AdminRecordTypeStatusReport:
		return &StatusReport{}
	case AdminRecordTypeCustodySignal:
		return &CustodySignal{}
	default:
		return nil
	}
}

// SubjectBundle describes the bundle an administrative record refers to.
type SubjectBundle struct {
	IsFragment     bool       `json:"isFragment"`
	FragmentOffset uint64     `json:"fragmentOffset,omitempty"`
	FragmentLength uint64     `json:"fragmentLength,omitempty"`
	Timestamp      DtnTime    `json:"creationTimestamp"`
	SequenceNumber uint64     `json:"sequenceNumber"`
	Source         EndpointID `json:"source"`
}

// newSubjectBundle describes a Bundle. The fragment length is the payload's length.
func newSubjectBundle(b *Bundle) SubjectBundle {
	sb := SubjectBundle{
		IsFragment:     b.PrimaryBlock.HasFragmentation(),
		Timestamp:      b.PrimaryBlock.CreationTimestamp,
		SequenceNumber: b.PrimaryBlock.SequenceNumber,
		Source:         b.PrimaryBlock.SourceNode,
	}

	if sb.IsFragment {
		sb.FragmentOffset = b.PrimaryBlock.FragmentOffset
		if pb, err := b.PayloadBlock(); err == nil {
			sb.FragmentLength = pb.Value.(*PayloadBlock).Len()
		}
	}

	return sb
}

// Matches checks if this SubjectBundle describes the given Bundle.
func (sb SubjectBundle) Matches(b *Bundle) bool {
	if sb.Timestamp != b.PrimaryBlock.CreationTimestamp ||
		sb.SequenceNumber != b.PrimaryBlock.SequenceNumber ||
		sb.Source != b.PrimaryBlock.SourceNode ||
		sb.IsFragment != b.PrimaryBlock.HasFragmentation() {
		return false
	}

	return !sb.IsFragment || sb.FragmentOffset == b.PrimaryBlock.FragmentOffset
}

// headerByte returns the record's first byte.
func (sb SubjectBundle) headerByte(recordType uint8) byte {
	h := recordType << 4
	if sb.IsFragment {
		h |= adminRecordFragment
	}
	return h
}

func (sb SubjectBundle) appendFragment(buf []byte) []byte {
	if sb.IsFragment {
		buf = sdnv.Append(buf, sb.FragmentOffset)
		buf = sdnv.Append(buf, sb.FragmentLength)
	}
	return buf
}

func (sb SubjectBundle) appendIdentity(buf []byte) []byte {
	buf = sdnv.Append(buf, uint64(sb.Timestamp))
	buf = sdnv.Append(buf, sb.SequenceNumber)
	return appendBundleString(buf, []byte(sb.Source.String()))
}

func (sb *SubjectBundle) readFragment(r *bytes.Reader) (err error) {
	if !sb.IsFragment {
		return nil
	}

	if sb.FragmentOffset, err = sdnv.Read(r); err != nil {
		return
	}
	sb.FragmentLength, err = sdnv.Read(r)
	return
}

func (sb *SubjectBundle) readIdentity(r *bytes.Reader) error {
	if ts, err := sdnv.Read(r); err != nil {
		return err
	} else {
		sb.Timestamp = DtnTime(ts)
	}

	if seq, err := sdnv.Read(r); err != nil {
		return err
	} else {
		sb.SequenceNumber = seq
	}

	if src, err := readBundleString(r); err != nil {
		return err
	} else if eid, err := NewEndpointID(string(src)); err != nil {
		return err
	} else {
		sb.Source = eid
	}

	return nil
}

// appendBundleString appends an SDNV length followed by the data.
func appendBundleString(buf, data []byte) []byte {
	buf = sdnv.Append(buf, uint64(len(data)))
	return append(buf, data...)
}

// readBundleString reads an SDNV length followed by the data.
func readBundleString(r *bytes.Reader) ([]byte, error) {
	l, err := sdnv.Read(r)
	if err != nil {
		return nil, err
	} else if l > uint64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}

	data := make([]byte, l)
	_, err = io.ReadFull(r, data)
	return data, err
}

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CustodySignalReason is the reason code of a custody signal, RFC 5050, section 6.1.2.
type CustodySignalReason uint8

const (
	CustodyNoInformation              CustodySignalReason = 0
	CustodyRedundantReception         CustodySignalReason = 3
	CustodyDepletedStorage            CustodySignalReason = 4
	CustodyDestEndpointUnintelligible CustodySignalReason = 5
	CustodyNoKnownRouteToDestination  CustodySignalReason = 6
	CustodyNoTimelyContact            CustodySignalReason = 7
	CustodyBlockUnintelligible        CustodySignalReason = 8

	custodySucceeded uint8 = 0x80
)

// CustodySignal reports the acceptance or refusal of custody.
type CustodySignal struct {
	Succeeded bool
	Reason    CustodySignalReason
	Time      RecordTime
	Subject   SubjectBundle
}

// NewCustodySignal creates a CustodySignal for a Bundle.
func NewCustodySignal(b *Bundle, succeeded bool, reason CustodySignalReason, t time.Time) *CustodySignal {
	cs := &CustodySignal{
		Succeeded: succeeded,
		Reason:    reason,
		Time:      NewRecordTime(t),
	}
	cs.SetMatch(b)

	return cs
}

// BlockTypeCode returns the payload block type code.
func (*CustodySignal) BlockTypeCode() uint8 {
	return ExtBlockTypePayloadBlock
}

// BlockTypeName must return a constant string, this block's name.
func (*CustodySignal) BlockTypeName() string {
	return "Custody Signal"
}

// RecordTypeCode returns the administrative record type code.
func (*CustodySignal) RecordTypeCode() uint8 {
	return AdminRecordTypeCustodySignal
}

// SetMatch sets the subject bundle to the given Bundle.
func (cs *CustodySignal) SetMatch(b *Bundle) {
	cs.Subject = newSubjectBundle(b)
}

// Match checks if this CustodySignal refers to the given Bundle.
func (cs *CustodySignal) Match(b *Bundle) bool {
	return cs.Subject.Matches(b)
}

// MarshalBinary writes the administrative record.
func (cs *CustodySignal) MarshalBinary() ([]byte, error) {
	status := uint8(cs.Reason) & 0x7F
	if cs.Succeeded {
		status |= custodySucceeded
	}

	buf := []byte{cs.Subject.headerByte(AdminRecordTypeCustodySignal), status}
	buf = cs.Subject.appendFragment(buf)
	buf = cs.Time.appendTo(buf)
	return cs.Subject.appendIdentity(buf), nil
}

// UnmarshalBinary reads the administrative record.
func (cs *CustodySignal) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return malformed("custody signal of %d bytes is too short", len(data))
	} else if recordType, _ := adminRecordType(data); recordType != AdminRecordTypeCustodySignal {
		return malformed("administrative record type %d is no custody signal", recordType)
	}

	var tmp CustodySignal
	tmp.Subject.IsFragment = data[0]&adminRecordFragment != 0
	tmp.Succeeded = data[1]&custodySucceeded != 0
	tmp.Reason = CustodySignalReason(data[1] &^ custodySucceeded)

	r := bytes.NewReader(data[2:])

	if err := tmp.Subject.readFragment(r); err != nil {
		return malformed("custody signal fragment: %v", err)
	}
	if err := tmp.Time.readFrom(r); err != nil {
		return malformed("custody signal time: %v", err)
	}
	if err := tmp.Subject.readIdentity(r); err != nil {
		return malformed("custody signal subject: %v", err)
	}

	*cs = tmp
	return nil
}

// CheckValid returns an array of errors for incorrect data.
func (cs *CustodySignal) CheckValid() error {
	if uint8(cs.Reason)&custodySucceeded != 0 {
		return fmt.Errorf("CustodySignal: reason %d exceeds seven bits", cs.Reason)
	}
	return nil
}

// MarshalJSON creates a JSON object for this CustodySignal.
func (cs *CustodySignal) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Succeeded bool          `json:"succeeded"`
		Reason    uint8         `json:"reason"`
		Time      time.Time     `json:"time"`
		Subject   SubjectBundle `json:"subject"`
	}{
		Succeeded: cs.Succeeded,
		Reason:    uint8(cs.Reason),
		Time:      cs.Time.Time(),
		Subject:   cs.Subject,
	})
}

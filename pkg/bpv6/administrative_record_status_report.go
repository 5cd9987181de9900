// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StatusInformation flags of a bundle status report, RFC 5050, section 6.1.1.
type StatusInformation uint8

const (
	ReceivedBundle        StatusInformation = 0x01
	CustodyAcceptedBundle StatusInformation = 0x02
	ForwardedBundle       StatusInformation = 0x04
	DeliveredBundle       StatusInformation = 0x08
	DeletedBundle         StatusInformation = 0x10

	statusInformationMask StatusInformation = 0x1F
)

// statusInformationCount is the amount of StatusInformation flags, each having a time.
const statusInformationCount = 5

// Has returns true if a given flag or mask of flags is set.
func (si StatusInformation) Has(flag StatusInformation) bool {
	return (si & flag) != 0
}

func (si StatusInformation) String() string {
	var fields []string
	for i, name := range []string{"received", "custody accepted", "forwarded", "delivered", "deleted"} {
		if si.Has(StatusInformation(1 << i)) {
			fields = append(fields, name)
		}
	}
	return strings.Join(fields, ",")
}

// StatusReportReason is the reason code of a bundle status report.
type StatusReportReason uint8

const (
	NoInformation                      StatusReportReason = 0
	LifetimeExpired                    StatusReportReason = 1
	ForwardedOverUnidirectionalLink    StatusReportReason = 2
	TransmissionCanceled               StatusReportReason = 3
	DepletedStorage                    StatusReportReason = 4
	DestEndpointUnintelligible         StatusReportReason = 5
	NoKnownRouteToDestination          StatusReportReason = 6
	NoTimelyContactWithNextNodeOnRoute StatusReportReason = 7
	BlockUnintelligible                StatusReportReason = 8
)

func (srr StatusReportReason) String() string {
	switch srr {
	case NoInformation:
		return "No additional information"
	case LifetimeExpired:
		return "Lifetime expired"
	case ForwardedOverUnidirectionalLink:
		return "Forwarded over unidirectional link"
	case TransmissionCanceled:
		return "Transmission canceled"
	case DepletedStorage:
		return "Depleted storage"
	case DestEndpointUnintelligible:
		return "Destination endpoint ID unintelligible"
	case NoKnownRouteToDestination:
		return "No known route to destination from here"
	case NoTimelyContactWithNextNodeOnRoute:
		return "No timely contact with next node on route"
	case BlockUnintelligible:
		return "Block unintelligible"
	default:
		return fmt.Sprintf("unknown reason %d", uint8(srr))
	}
}

// StatusReport is the bundle status report, RFC 5050, section 6.1.1. A time
// is only present if the according status information flag is set.
type StatusReport struct {
	Status  StatusInformation
	Reason  StatusReportReason
	Times   [statusInformationCount]RecordTime
	Subject SubjectBundle
}

// NewStatusReport creates a StatusReport for a Bundle. The time of each status
// information flag is set to the given time.
func NewStatusReport(b *Bundle, status StatusInformation, reason StatusReportReason, t time.Time) *StatusReport {
	sr := &StatusReport{
		Status:  status & statusInformationMask,
		Reason:  reason,
		Subject: newSubjectBundle(b),
	}

	for i := range sr.Times {
		if sr.Status.Has(StatusInformation(1 << i)) {
			sr.Times[i] = NewRecordTime(t)
		}
	}

	return sr
}

// BlockTypeCode returns the payload block type code.
func (*StatusReport) BlockTypeCode() uint8 {
	return ExtBlockTypePayloadBlock
}

// BlockTypeName must return a constant string, this block's name.
func (*StatusReport) BlockTypeName() string {
	return "Status Report"
}

// RecordTypeCode returns the administrative record type code.
func (*StatusReport) RecordTypeCode() uint8 {
	return AdminRecordTypeStatusReport
}

// StatusTime returns the time of a single status information flag.
func (sr *StatusReport) StatusTime(flag StatusInformation) (RecordTime, bool) {
	for i := range sr.Times {
		if flag == StatusInformation(1<<i) && sr.Status.Has(flag) {
			return sr.Times[i], true
		}
	}
	return RecordTime{}, false
}

// MarshalBinary writes the administrative record.
func (sr *StatusReport) MarshalBinary() ([]byte, error) {
	buf := []byte{sr.Subject.headerByte(AdminRecordTypeStatusReport), byte(sr.Status), byte(sr.Reason)}
	buf = sr.Subject.appendFragment(buf)

	for i := range sr.Times {
		if sr.Status.Has(StatusInformation(1 << i)) {
			buf = sr.Times[i].appendTo(buf)
		}
	}

	return sr.Subject.appendIdentity(buf), nil
}

// UnmarshalBinary reads the administrative record.
func (sr *StatusReport) UnmarshalBinary(data []byte) error {
	if len(data) < 3 {
		return malformed("status report of %d bytes is too short", len(data))
	} else if recordType, _ := adminRecordType(data); recordType != AdminRecordTypeStatusReport {
		return malformed("administrative record type %d is no status report", recordType)
	}

	var tmp StatusReport
	tmp.Subject.IsFragment = data[0]&adminRecordFragment != 0
	tmp.Status = StatusInformation(data[1])
	tmp.Reason = StatusReportReason(data[2])

	r := bytes.NewReader(data[3:])

	if err := tmp.Subject.readFragment(r); err != nil {
		return malformed("status report fragment: %v", err)
	}

	for i := range tmp.Times {
		if tmp.Status.Has(StatusInformation(1 << i)) {
			if err := tmp.Times[i].readFrom(r); err != nil {
				return malformed("status report time: %v", err)
			}
		}
	}

	if err := tmp.Subject.readIdentity(r); err != nil {
		return malformed("status report subject: %v", err)
	}

	*sr = tmp
	return nil
}

// CheckValid returns an array of errors for incorrect data.
func (sr *StatusReport) CheckValid() error {
	if sr.Status&^statusInformationMask != 0 {
		return fmt.Errorf("StatusReport: status information %x contains reserved bits", uint8(sr.Status))
	}
	return nil
}

// MarshalJSON creates a JSON object for this StatusReport.
func (sr *StatusReport) MarshalJSON() ([]byte, error) {
	times := make(map[string]time.Time)
	for i, name := range []string{"received", "custodyAccepted", "forwarded", "delivered", "deleted"} {
		if sr.Status.Has(StatusInformation(1 << i)) {
			times[name] = sr.Times[i].Time()
		}
	}

	return json.Marshal(&struct {
		Status  string        `json:"status"`
		Reason  string        `json:"reason"`
		Times   interface{}   `json:"times"`
		Subject SubjectBundle `json:"subject"`
	}{
		Status:  sr.Status.String(),
		Reason:  sr.Reason.String(),
		Times:   times,
		Subject: sr.Subject,
	})
}

func (sr *StatusReport) String() string {
	return fmt.Sprintf("StatusReport(%v, %v, %v-%d-%d)",
		sr.Status, sr.Reason, sr.Subject.Source, sr.Subject.Timestamp, sr.Subject.SequenceNumber)
}

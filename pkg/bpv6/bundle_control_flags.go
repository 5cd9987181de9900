// SPDX-FileCopyrightText: 2018, 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BundleControlFlags are the Bundle Processing Control Flags of a primary block
// as specified in RFC 5050, section 4.2, extended by some custom bits.
type BundleControlFlags uint64

const (
	// IsFragment: bundle is a fragment.
	IsFragment BundleControlFlags = 1 << 0

	// AdministrativeRecordPayload: application data unit is an administrative record.
	AdministrativeRecordPayload BundleControlFlags = 1 << 1

	// MustNotFragmented: bundle must not be fragmented.
	MustNotFragmented BundleControlFlags = 1 << 2

	// CustodyRequested: custody transfer is requested.
	CustodyRequested BundleControlFlags = 1 << 3

	// DestinationIsSingleton: destination endpoint is a singleton.
	DestinationIsSingleton BundleControlFlags = 1 << 4

	// AppAckRequested: acknowledgement by application is requested.
	AppAckRequested BundleControlFlags = 1 << 5

	// StatusRequestReception: request reporting of bundle reception.
	StatusRequestReception BundleControlFlags = 1 << 14

	// StatusRequestCustodyAcceptance: request reporting of custody acceptance.
	StatusRequestCustodyAcceptance BundleControlFlags = 1 << 15

	// StatusRequestForward: request reporting of bundle forwarding.
	StatusRequestForward BundleControlFlags = 1 << 16

	// StatusRequestDelivery: request reporting of bundle delivery.
	StatusRequestDelivery BundleControlFlags = 1 << 17

	// StatusRequestDeletion: request reporting of bundle deletion.
	StatusRequestDeletion BundleControlFlags = 1 << 18

	// DtnSecRequestSign: the bundle should be signed by the security layer.
	DtnSecRequestSign BundleControlFlags = 1 << 26

	// DtnSecRequestEncrypt: the bundle should be encrypted by the security layer.
	DtnSecRequestEncrypt BundleControlFlags = 1 << 27

	// DtnSecStatusVerified: a signature of this bundle was verified.
	DtnSecStatusVerified BundleControlFlags = 1 << 28

	// DtnSecStatusConfidential: this bundle was decrypted.
	DtnSecStatusConfidential BundleControlFlags = 1 << 29

	// DtnSecStatusAuthenticated: this bundle's BAB was verified.
	DtnSecStatusAuthenticated BundleControlFlags = 1 << 30

	// RequestCompression: the payload should be compressed.
	RequestCompression BundleControlFlags = 1 << 31

	priorityShift = 7
	priorityMask  BundleControlFlags = 0x3 << priorityShift

	classOfServiceShift = 9
	classOfServiceMask  BundleControlFlags = 0x1F << classOfServiceShift

	// mutableCanonicalMask keeps the flags which are not altered in transit.
	mutableCanonicalMask BundleControlFlags = 0x07C1BE

	bndlCFReservedFields BundleControlFlags = 1<<6 | 0x7F<<19 | ^BundleControlFlags(0xFFFFFFFF)
)

// Priority of a bundle, encoded in the bundle processing control flags.
type Priority uint8

const (
	PriorityBulk      Priority = 0
	PriorityNormal    Priority = 1
	PriorityExpedited Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityBulk:
		return "bulk"
	case PriorityNormal:
		return "normal"
	case PriorityExpedited:
		return "expedited"
	default:
		return fmt.Sprintf("reserved(%d)", uint8(p))
	}
}

// Has returns true if a given flag or mask of flags is set.
func (bcf BundleControlFlags) Has(flag BundleControlFlags) bool {
	return (bcf & flag) != 0
}

// Priority returns the encoded Priority.
func (bcf BundleControlFlags) Priority() Priority {
	return Priority((bcf & priorityMask) >> priorityShift)
}

// WithPriority returns these flags with a replaced Priority.
func (bcf BundleControlFlags) WithPriority(p Priority) BundleControlFlags {
	return bcf&^priorityMask | (BundleControlFlags(p)<<priorityShift)&priorityMask
}

// ClassOfService returns the five class of service bits.
func (bcf BundleControlFlags) ClassOfService() uint8 {
	return uint8((bcf & classOfServiceMask) >> classOfServiceShift)
}

// CheckValid returns an error for incorrect data.
func (bcf BundleControlFlags) CheckValid() error {
	if bcf.Has(bndlCFReservedFields) {
		return fmt.Errorf("BundleControlFlags: Given flag %x contains reserved bits", uint64(bcf))
	}

	if bcf.Priority() > PriorityExpedited {
		return fmt.Errorf("BundleControlFlags: Priority bits are set to reserved value %d", bcf.Priority())
	}

	if bcf.Has(AdministrativeRecordPayload) && bcf.Has(StatusRequestReception|StatusRequestCustodyAcceptance|
		StatusRequestForward|StatusRequestDelivery|StatusRequestDeletion) {
		return fmt.Errorf("BundleControlFlags: Administrative record with status report request")
	}

	return nil
}

func (bcf BundleControlFlags) String() string {
	var fields []string

	checks := []struct {
		field BundleControlFlags
		text  string
	}{
		{IsFragment, "IS_FRAGMENT"},
		{AdministrativeRecordPayload, "ADMINISTRATIVE_RECORD"},
		{MustNotFragmented, "MUST_NOT_FRAGMENTED"},
		{CustodyRequested, "CUSTODY_REQUESTED"},
		{DestinationIsSingleton, "DESTINATION_IS_SINGLETON"},
		{AppAckRequested, "APP_ACK_REQUESTED"},
		{StatusRequestReception, "REQUESTED_RECEPTION_STATUS_REPORT"},
		{StatusRequestCustodyAcceptance, "REQUESTED_CUSTODY_ACCEPTANCE_STATUS_REPORT"},
		{StatusRequestForward, "REQUESTED_FORWARD_STATUS_REPORT"},
		{StatusRequestDelivery, "REQUESTED_DELIVERY_STATUS_REPORT"},
		{StatusRequestDeletion, "REQUESTED_DELETION_STATUS_REPORT"},
		{DtnSecRequestSign, "DTNSEC_REQUEST_SIGN"},
		{DtnSecRequestEncrypt, "DTNSEC_REQUEST_ENCRYPT"},
		{DtnSecStatusVerified, "DTNSEC_STATUS_VERIFIED"},
		{DtnSecStatusConfidential, "DTNSEC_STATUS_CONFIDENTIAL"},
		{DtnSecStatusAuthenticated, "DTNSEC_STATUS_AUTHENTICATED"},
		{RequestCompression, "REQUEST_COMPRESSION"},
	}

	for _, check := range checks {
		if bcf.Has(check.field) {
			fields = append(fields, check.text)
		}
	}

	if p := bcf.Priority(); p != PriorityBulk {
		fields = append(fields, "PRIORITY_"+strings.ToUpper(p.String()))
	}

	return strings.Join(fields, ",")
}

// MarshalJSON creates a JSON array of control flags.
func (bcf BundleControlFlags) MarshalJSON() ([]byte, error) {
	flags := []string{}
	if s := bcf.String(); s != "" {
		flags = strings.Split(s, ",")
	}
	return json.Marshal(flags)
}

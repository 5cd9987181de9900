// SPDX-FileCopyrightText: 2018, 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	dtnVersion uint8 = 0x06

	// DefaultLifetime of a new bundle in seconds.
	DefaultLifetime uint64 = 3600
)

// sequenceCounter provides process-wide creation timestamp sequence numbers.
var sequenceCounter atomic.Uint64

// PrimaryBlock is a representation of the primary bundle block as defined in
// RFC 5050, section 4.5.1.
type PrimaryBlock struct {
	BundleControlFlags BundleControlFlags
	Destination        EndpointID
	SourceNode         EndpointID
	ReportTo           EndpointID
	Custodian          EndpointID
	CreationTimestamp  DtnTime
	SequenceNumber     uint64
	Lifetime           uint64
	FragmentOffset     uint64
	AppDataLength      uint64
}

// NewPrimaryBlock creates a new primary block with the given parameters. The
// report-to and custodian endpoints are "dtn:none". A fresh creation timestamp
// and sequence number are assigned. The lifetime is passed in seconds.
func NewPrimaryBlock(bundleControlFlags BundleControlFlags, destination, sourceNode EndpointID, lifetime uint64) PrimaryBlock {
	pb := PrimaryBlock{
		BundleControlFlags: bundleControlFlags,
		Destination:        destination,
		SourceNode:         sourceNode,
		ReportTo:           DtnNone(),
		Custodian:          DtnNone(),
		Lifetime:           lifetime,
	}
	pb.Relabel()

	return pb
}

// HasFragmentation returns true if the bundle processing control flags
// indicates a fragmented bundle. In this case the FragmentOffset and
// AppDataLength fields become relevant.
func (pb PrimaryBlock) HasFragmentation() bool {
	return pb.BundleControlFlags.Has(IsFragment)
}

// IsAdministrativeRecord checks the administrative record flag.
func (pb PrimaryBlock) IsAdministrativeRecord() bool {
	return pb.BundleControlFlags.Has(AdministrativeRecordPayload)
}

// Relabel assigns the current time as creation timestamp and the next
// process-wide sequence number.
func (pb *PrimaryBlock) Relabel() {
	pb.CreationTimestamp = DtnTimeNow()
	pb.SequenceNumber = sequenceCounter.Add(1) - 1
}

// ExpirationTime returns the point in time when this bundle's lifetime ends.
func (pb PrimaryBlock) ExpirationTime() time.Time {
	return pb.CreationTimestamp.Time().Add(time.Duration(pb.Lifetime) * time.Second)
}

// IsLifetimeExceeded checks if this bundle is expired at the given time.
func (pb PrimaryBlock) IsLifetimeExceeded(now time.Time) bool {
	return now.After(pb.ExpirationTime())
}

// CheckValid returns an error for incorrect data.
func (pb PrimaryBlock) CheckValid() (errs error) {
	if bcfErr := pb.BundleControlFlags.CheckValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}

	for _, ep := range []struct {
		name string
		eid  EndpointID
	}{
		{"destination", pb.Destination},
		{"source", pb.SourceNode},
		{"report-to", pb.ReportTo},
		{"custodian", pb.Custodian},
	} {
		if ep.eid.Scheme == "" {
			errs = multierror.Append(errs, fmt.Errorf("PrimaryBlock: %s endpoint has no scheme", ep.name))
		}
	}

	if pb.SourceNode.IsNone() && pb.BundleControlFlags.Has(
		MustNotFragmented|CustodyRequested|StatusRequestReception|StatusRequestCustodyAcceptance|
			StatusRequestForward|StatusRequestDelivery|StatusRequestDeletion) {
		errs = multierror.Append(errs,
			fmt.Errorf("PrimaryBlock: anonymous source must not request custody, status reports or prohibit fragmentation"))
	}

	return
}

// MarshalJSON writes a JSON object representing this PrimaryBlock.
func (pb PrimaryBlock) MarshalJSON() ([]byte, error) {
	type fragmentation struct {
		Offset        uint64 `json:"offset"`
		AppDataLength uint64 `json:"appDataLength"`
	}

	var frag *fragmentation
	if pb.HasFragmentation() {
		frag = &fragmentation{pb.FragmentOffset, pb.AppDataLength}
	}

	return json.Marshal(&struct {
		ControlFlags   BundleControlFlags `json:"bundleControlFlags"`
		Destination    EndpointID         `json:"destination"`
		Source         EndpointID         `json:"source"`
		ReportTo       EndpointID         `json:"reportTo"`
		Custodian      EndpointID         `json:"custodian"`
		Timestamp      DtnTime            `json:"creationTimestamp"`
		SequenceNumber uint64             `json:"sequenceNumber"`
		Lifetime       uint64             `json:"lifetime"`
		Fragmentation  *fragmentation     `json:"fragmentation,omitempty"`
	}{
		ControlFlags:   pb.BundleControlFlags,
		Destination:    pb.Destination,
		Source:         pb.SourceNode,
		ReportTo:       pb.ReportTo,
		Custodian:      pb.Custodian,
		Timestamp:      pb.CreationTimestamp,
		SequenceNumber: pb.SequenceNumber,
		Lifetime:       pb.Lifetime,
		Fragmentation:  frag,
	})
}

func (pb PrimaryBlock) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "version: %d, ", dtnVersion)
	_, _ = fmt.Fprintf(&b, "bundle processing control flags: %b, ", pb.BundleControlFlags)
	_, _ = fmt.Fprintf(&b, "destination: %v, ", pb.Destination)
	_, _ = fmt.Fprintf(&b, "source node: %v, ", pb.SourceNode)
	_, _ = fmt.Fprintf(&b, "report to: %v, ", pb.ReportTo)
	_, _ = fmt.Fprintf(&b, "custodian: %v, ", pb.Custodian)
	_, _ = fmt.Fprintf(&b, "creation timestamp: %v/%d, ", pb.CreationTimestamp, pb.SequenceNumber)
	_, _ = fmt.Fprintf(&b, "lifetime: %d", pb.Lifetime)

	if pb.HasFragmentation() {
		_, _ = fmt.Fprintf(&b, ", fragment offset: %d, ", pb.FragmentOffset)
		_, _ = fmt.Fprintf(&b, "application data length: %d", pb.AppDataLength)
	}

	return b.String()
}

// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"fmt"
	"time"
)

// BundleBuilder is a fluent interface to create Bundles. The first error stops
// all further steps and is returned by Build.
type BundleBuilder struct {
	err error

	primary    PrimaryBlock
	canonicals []*CanonicalBlock
	relabel    bool
}

// Builder creates a new BundleBuilder. Without setting a creation timestamp,
// the current time and a fresh sequence number are used.
func Builder() *BundleBuilder {
	return &BundleBuilder{
		primary: PrimaryBlock{
			ReportTo:  DtnNone(),
			Custodian: DtnNone(),
			Lifetime:  DefaultLifetime,
		},
		relabel: true,
	}
}

// Error returns the first error.
func (bldr *BundleBuilder) Error() error {
	return bldr.err
}

// Build creates the Bundle and checks its validity.
func (bldr *BundleBuilder) Build() (bndl Bundle, err error) {
	if bldr.err != nil {
		err = bldr.err
		return
	}

	// Source and Destination are necessary
	if bldr.primary.SourceNode == (EndpointID{}) || bldr.primary.Destination == (EndpointID{}) {
		err = fmt.Errorf("both Source and Destination must be set")
		return
	}

	if bldr.relabel {
		bldr.primary.Relabel()
	}

	return NewBundle(bldr.primary, bldr.canonicals...)
}

// bldrParseEndpoint returns an EndpointID for a given EndpointID or a string,
// representing an endpoint identifier as an URI.
func bldrParseEndpoint(eid interface{}) (e EndpointID, err error) {
	switch eid := eid.(type) {
	case EndpointID:
		e = eid
	case string:
		e, err = NewEndpointID(eid)
	default:
		err = fmt.Errorf("%T is neither an EndpointID nor a string", eid)
	}
	return
}

// bldrParseSeconds returns seconds for a given amount of seconds, a
// time.Duration or a duration string, which will be parsed.
func bldrParseSeconds(duration interface{}) (sec uint64, err error) {
	var dur time.Duration

	switch duration := duration.(type) {
	case uint64:
		return duration, nil
	case int:
		if duration < 0 {
			return 0, fmt.Errorf("duration %d < 0", duration)
		}
		return uint64(duration), nil
	case time.Duration:
		dur = duration
	case string:
		if dur, err = time.ParseDuration(duration); err != nil {
			return
		}
	default:
		err = fmt.Errorf("%T is neither a number nor a duration", duration)
		return
	}

	if dur <= 0 {
		err = fmt.Errorf("duration %v <= 0", dur)
		return
	}
	sec = uint64(dur / time.Second)
	return
}

func (bldr *BundleBuilder) endpoint(field *EndpointID, eid interface{}) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}

	if e, err := bldrParseEndpoint(eid); err != nil {
		bldr.err = err
	} else {
		*field = e
	}
	return bldr
}

// PrimaryBlock related methods

func (bldr *BundleBuilder) Destination(eid interface{}) *BundleBuilder {
	return bldr.endpoint(&bldr.primary.Destination, eid)
}

func (bldr *BundleBuilder) Source(eid interface{}) *BundleBuilder {
	return bldr.endpoint(&bldr.primary.SourceNode, eid)
}

func (bldr *BundleBuilder) ReportTo(eid interface{}) *BundleBuilder {
	return bldr.endpoint(&bldr.primary.ReportTo, eid)
}

func (bldr *BundleBuilder) Custodian(eid interface{}) *BundleBuilder {
	return bldr.endpoint(&bldr.primary.Custodian, eid)
}

// CreationTimestamp sets a fixed creation timestamp and sequence number.
func (bldr *BundleBuilder) CreationTimestamp(t DtnTime, seq uint64) *BundleBuilder {
	if bldr.err == nil {
		bldr.primary.CreationTimestamp = t
		bldr.primary.SequenceNumber = seq
		bldr.relabel = false
	}
	return bldr
}

// CreationTimestampNow assigns the current time and a fresh sequence number.
func (bldr *BundleBuilder) CreationTimestampNow() *BundleBuilder {
	if bldr.err == nil {
		bldr.relabel = true
	}
	return bldr
}

// Lifetime in seconds, as a time.Duration or a duration string.
func (bldr *BundleBuilder) Lifetime(duration interface{}) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}

	if sec, err := bldrParseSeconds(duration); err != nil {
		bldr.err = err
	} else {
		bldr.primary.Lifetime = sec
	}
	return bldr
}

func (bldr *BundleBuilder) BundleCtrlFlags(bcf BundleControlFlags) *BundleBuilder {
	if bldr.err == nil {
		bldr.primary.BundleControlFlags = bcf
	}
	return bldr
}

// CanonicalBlock related methods

// Canonical adds an ExtensionBlock with optional BlockControlFlags.
func (bldr *BundleBuilder) Canonical(value ExtensionBlock, flags ...BlockControlFlags) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}

	var bcf BlockControlFlags
	for _, f := range flags {
		bcf |= f
	}

	bldr.canonicals = append(bldr.canonicals, NewCanonicalBlock(bcf, value))
	return bldr
}

// PayloadBlock: Data[, BlockControlFlags]
func (bldr *BundleBuilder) PayloadBlock(data []byte, flags ...BlockControlFlags) *BundleBuilder {
	return bldr.Canonical(NewPayloadBlock(data), flags...)
}

// AgeBlock: Age[, BlockControlFlags]
// Age <- { seconds as uint64 or int, time.Duration, duration as string }
func (bldr *BundleBuilder) AgeBlock(age interface{}, flags ...BlockControlFlags) *BundleBuilder {
	if bldr.err != nil {
		return bldr
	}

	sec, err := bldrParseSeconds(age)
	if err != nil {
		bldr.err = err
		return bldr
	}
	return bldr.Canonical(NewAgeBlock(sec), flags...)
}

// StreamBlock: SequenceNumber[, BlockControlFlags]
func (bldr *BundleBuilder) StreamBlock(seq uint64, flags ...BlockControlFlags) *BundleBuilder {
	return bldr.Canonical(NewStreamBlock(seq), flags...)
}

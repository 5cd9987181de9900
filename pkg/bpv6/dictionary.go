// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"fmt"
	"strings"
)

// Dictionary is the byte array of RFC 5050, section 4.5, holding each scheme
// name and SSP of a bundle's EndpointIDs exactly once as NUL-terminated strings.
// EndpointIDs are referenced by a pair of byte offsets into it.
//
// A Dictionary is only valid within one serialization pass.
type Dictionary struct {
	buf     []byte
	offsets map[string]uint64
}

// NewDictionary creates an empty Dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{offsets: make(map[string]uint64)}
}

// NewDictionaryFromBytes creates a Dictionary from its wire representation.
func NewDictionaryFromBytes(data []byte) *Dictionary {
	d := NewDictionary()
	d.buf = data

	start := 0
	for i, c := range data {
		if c != 0x00 {
			continue
		}

		s := string(data[start:i])
		if _, exists := d.offsets[s]; !exists {
			d.offsets[s] = uint64(start)
		}
		start = i + 1
	}

	return d
}

// newDictionaryForBundle collects every EndpointID of a Bundle in the order of
// destination, source, report-to, custodian and each block's EID list.
func newDictionaryForBundle(b *Bundle) *Dictionary {
	d := NewDictionary()
	for _, eid := range bundleEndpoints(b) {
		d.Add(eid)
	}
	return d
}

// bundleEndpoints lists every EndpointID of a Bundle in dictionary order.
func bundleEndpoints(b *Bundle) []EndpointID {
	pb := &b.PrimaryBlock
	eids := []EndpointID{pb.Destination, pb.SourceNode, pb.ReportTo, pb.Custodian}

	for _, cb := range b.blocks {
		if cb.BlockControlFlags.Has(ContainsEIDs) {
			eids = append(eids, cb.EIDs...)
		}
	}
	return eids
}

func (d *Dictionary) addString(s string) uint64 {
	if off, exists := d.offsets[s]; exists {
		return off
	}

	off := uint64(len(d.buf))
	d.buf = append(d.buf, s...)
	d.buf = append(d.buf, 0x00)
	d.offsets[s] = off
	return off
}

// Add an EndpointID's scheme and SSP, if not already present, and return their offsets.
func (d *Dictionary) Add(eid EndpointID) (schemeOff, sspOff uint64) {
	schemeOff = d.addString(eid.Scheme)
	sspOff = d.addString(eid.SSP)
	return
}

// Ref returns the offsets of a previously added EndpointID.
func (d *Dictionary) Ref(eid EndpointID) (schemeOff, sspOff uint64, err error) {
	if strings.IndexByte(eid.Scheme, 0x00) >= 0 || strings.IndexByte(eid.SSP, 0x00) >= 0 {
		err = fmt.Errorf("endpoint %q contains a NUL byte", eid.String())
		return
	}

	var ok bool
	if schemeOff, ok = d.offsets[eid.Scheme]; !ok {
		err = fmt.Errorf("scheme of %v is not part of the dictionary", eid)
		return
	}
	if sspOff, ok = d.offsets[eid.SSP]; !ok {
		err = fmt.Errorf("SSP of %v is not part of the dictionary", eid)
	}
	return
}

// stringAt returns the NUL-terminated string starting at off.
func (d *Dictionary) stringAt(off uint64) (string, error) {
	if off >= uint64(len(d.buf)) {
		return "", malformed("dictionary offset %d exceeds length %d", off, len(d.buf))
	}
	if off > 0 && d.buf[off-1] != 0x00 {
		return "", malformed("dictionary offset %d is not on a string boundary", off)
	}

	end := bytes.IndexByte(d.buf[off:], 0x00)
	if end < 0 {
		return "", malformed("dictionary string at offset %d is not terminated", off)
	}
	return string(d.buf[off : off+uint64(end)]), nil
}

// Get reconstructs an EndpointID from its offsets.
func (d *Dictionary) Get(schemeOff, sspOff uint64) (eid EndpointID, err error) {
	if eid.Scheme, err = d.stringAt(schemeOff); err != nil {
		return
	}
	eid.SSP, err = d.stringAt(sspOff)
	return
}

// Bytes returns the wire representation.
func (d *Dictionary) Bytes() []byte {
	return d.buf
}

// Len returns the length of the wire representation in bytes.
func (d *Dictionary) Len() int {
	return len(d.buf)
}

// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"fmt"
	"strings"
)

// BundleID identifies a bundle by its source node, creation timestamp and
// sequence number. For fragments, the fragment offset is part of the identity.
//
// BundleIDs are comparable and might be used as map keys.
type BundleID struct {
	SourceNode     EndpointID
	Timestamp      DtnTime
	SequenceNumber uint64

	IsFragment     bool
	FragmentOffset uint64
}

func (bid BundleID) String() string {
	var bldr strings.Builder

	_, _ = fmt.Fprintf(&bldr, "%v-%d-%d", bid.SourceNode, bid.Timestamp, bid.SequenceNumber)

	if bid.IsFragment {
		_, _ = fmt.Fprintf(&bldr, "-%d", bid.FragmentOffset)
	}

	return bldr.String()
}

// Less orders BundleIDs by source, timestamp, sequence number and fragment offset.
func (bid BundleID) Less(other BundleID) bool {
	if bid.SourceNode != other.SourceNode {
		return bid.SourceNode.Less(other.SourceNode)
	}
	if bid.Timestamp != other.Timestamp {
		return bid.Timestamp < other.Timestamp
	}
	if bid.SequenceNumber != other.SequenceNumber {
		return bid.SequenceNumber < other.SequenceNumber
	}
	if bid.IsFragment != other.IsFragment {
		return !bid.IsFragment
	}
	return bid.FragmentOffset < other.FragmentOffset
}

// Scrub creates a BundleID without fragmentation details, identifying the
// original bundle of a fragment.
func (bid BundleID) Scrub() BundleID {
	return BundleID{
		SourceNode:     bid.SourceNode,
		Timestamp:      bid.Timestamp,
		SequenceNumber: bid.SequenceNumber,
	}
}

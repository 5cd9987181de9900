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

// BlockControlFlags are the Block Processing Control Flags as specified in
// RFC 5050, section 4.3.
type BlockControlFlags uint64

const (
	// ReplicateBlock: this block must be replicated in every fragment.
	ReplicateBlock BlockControlFlags = 1 << 0

	// StatusReportBlock: transmit a status report if this block can't be processed.
	StatusReportBlock BlockControlFlags = 1 << 1

	// DeleteBundle: delete the bundle if this block can't be processed.
	DeleteBundle BlockControlFlags = 1 << 2

	// LastBlock: this is the bundle's last block.
	LastBlock BlockControlFlags = 1 << 3

	// DiscardBlock: discard this block if it can't be processed.
	DiscardBlock BlockControlFlags = 1 << 4

	// ForwardedWithoutProcessed: block was forwarded without being processed.
	ForwardedWithoutProcessed BlockControlFlags = 1 << 5

	// ContainsEIDs: block contains an EID-reference field.
	ContainsEIDs BlockControlFlags = 1 << 6

	// blockMutableCanonicalMask drops the LastBlock flag.
	blockMutableCanonicalMask BlockControlFlags = 0x77

	blckCFReservedFields BlockControlFlags = ^BlockControlFlags(0x7F)
)

// Has returns true if a given flag or mask of flags is set.
func (bcf BlockControlFlags) Has(flag BlockControlFlags) bool {
	return (bcf & flag) != 0
}

// CheckValid returns an error for incorrect data.
func (bcf BlockControlFlags) CheckValid() error {
	if bcf.Has(blckCFReservedFields) {
		return fmt.Errorf("BlockControlFlags: Given flag %x contains reserved bits", uint64(bcf))
	}

	return nil
}

func (bcf BlockControlFlags) String() string {
	var fields []string

	checks := []struct {
		field BlockControlFlags
		text  string
	}{
		{ReplicateBlock, "REPLICATE_BLOCK"},
		{StatusReportBlock, "REQUEST_STATUS_REPORT"},
		{DeleteBundle, "DELETE_BUNDLE"},
		{LastBlock, "LAST_BLOCK"},
		{DiscardBlock, "DISCARD_BLOCK"},
		{ForwardedWithoutProcessed, "FORWARDED_WITHOUT_PROCESSED"},
		{ContainsEIDs, "CONTAINS_EIDS"},
	}

	for _, check := range checks {
		if bcf.Has(check.field) {
			fields = append(fields, check.text)
		}
	}

	return strings.Join(fields, ",")
}

// MarshalJSON creates a JSON array of control flags.
func (bcf BlockControlFlags) MarshalJSON() ([]byte, error) {
	flags := []string{}
	if s := bcf.String(); s != "" {
		flags = strings.Split(s, ",")
	}
	return json.Marshal(flags)
}

// SPDX-FileCopyrightText: 2020 Matthias Axel Kröll
// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// CiphersuiteFlags of a security block, RFC 6257, section 2.2.
type CiphersuiteFlags uint64

const (
	// SecurityResultPresent: the block contains a security result.
	SecurityResultPresent CiphersuiteFlags = 1 << 0

	// CorrelatorPresent: the block contains a correlator.
	CorrelatorPresent CiphersuiteFlags = 1 << 1

	// ParamsPresent: the block contains ciphersuite parameters.
	ParamsPresent CiphersuiteFlags = 1 << 2

	// SecurityDestinationPresent: the block's EID list contains a security destination.
	SecurityDestinationPresent CiphersuiteFlags = 1 << 3

	// SecuritySourcePresent: the block's EID list contains a security source.
	SecuritySourcePresent CiphersuiteFlags = 1 << 4

	ciphersuiteFlagsReservedFields CiphersuiteFlags = ^CiphersuiteFlags(0x1F)
)

// Has returns true if a given flag or mask of flags is set.
func (csf CiphersuiteFlags) Has(flag CiphersuiteFlags) bool {
	return (csf & flag) != 0
}

// CiphersuiteID identifies a security block's ciphersuite.
type CiphersuiteID uint64

const (
	CiphersuiteBABHMAC         CiphersuiteID = 1
	CiphersuitePIBRSASHA256    CiphersuiteID = 2
	CiphersuitePCBRSAAES128    CiphersuiteID = 3
	CiphersuiteESBRSAAES128Ext CiphersuiteID = 4
)

// TLVType is the type of a ciphersuite parameter or security result item.
type TLVType uint8

const (
	TLVInitVector             TLVType = 1
	TLVKeyInformation         TLVType = 3
	TLVFragmentRange          TLVType = 4
	TLVIntegritySignature     TLVType = 5
	TLVSalt                   TLVType = 7
	TLVPCBIntegrityCheckValue TLVType = 8
	TLVEncapsulatedBlock      TLVType = 10
	TLVEncapsulatedBlockType  TLVType = 11
)

// TLV is a type-length-value item; the length is SDNV encoded.
type TLV struct {
	Type  TLVType `json:"type"`
	Value []byte  `json:"value"`
}

// TLVList is a sequence of TLV items, the format of ciphersuite parameters and
// security results.
type TLVList []TLV

// Get returns the value of the first item of the requested type.
func (l TLVList) Get(t TLVType) ([]byte, bool) {
	for _, tlv := range l {
		if tlv.Type == t {
			return tlv.Value, true
		}
	}
	return nil, false
}

// Set replaces the first item of the requested type or appends a new one.
func (l *TLVList) Set(t TLVType, value []byte) {
	for i := range *l {
		if (*l)[i].Type == t {
			(*l)[i].Value = value
			return
		}
	}
	*l = append(*l, TLV{Type: t, Value: value})
}

// MarshalBinary writes each item as a type byte, SDNV length and value.
func (l TLVList) MarshalBinary() ([]byte, error) {
	var buf []byte
	for _, tlv := range l {
		buf = append(buf, byte(tlv.Type))
		buf = sdnv.Append(buf, uint64(len(tlv.Value)))
		buf = append(buf, tlv.Value...)
	}
	return buf, nil
}

// UnmarshalBinary reads a sequence of TLV items.
func (l *TLVList) UnmarshalBinary(data []byte) error {
	var list TLVList
	for len(data) > 0 {
		t := TLVType(data[0])

		length, n, err := sdnv.Decode(data[1:])
		if err != nil {
			return malformed("TLV length: %v", err)
		}
		data = data[1+n:]

		if length > uint64(len(data)) {
			return malformed("TLV value of length %d exceeds %d bytes", length, len(data))
		}
		list = append(list, TLV{Type: t, Value: data[:length]})
		data = data[length:]
	}

	*l = list
	return nil
}

// encodedLen returns the length of MarshalBinary's output.
func (l TLVList) encodedLen() (n uint64) {
	for _, tlv := range l {
		n += 1 + uint64(sdnv.Len(uint64(len(tlv.Value)))) + uint64(len(tlv.Value))
	}
	return
}

// SecurityBlock is the common part of all Bundle Security Protocol blocks,
// RFC 6257, section 2.2. It is embedded within the specific blocks, e.g., the
// BundleAuthenticationBlock.
//
// The security source and destination are stored within the CanonicalBlock's
// EID list, see CanonicalBlock.SecuritySource.
type SecurityBlock struct {
	CiphersuiteID    CiphersuiteID
	CiphersuiteFlags CiphersuiteFlags
	Correlator       uint64
	Params           TLVList
	Result           TLVList
}

// securityBlock is implemented by all blocks embedding a SecurityBlock.
type securityBlock interface {
	ExtensionBlock
	Security() *SecurityBlock
}

// Security returns the SecurityBlock itself.
func (sb *SecurityBlock) Security() *SecurityBlock {
	return sb
}

// SetCorrelator sets the correlator and the CorrelatorPresent flag.
func (sb *SecurityBlock) SetCorrelator(correlator uint64) {
	sb.Correlator = correlator
	sb.CiphersuiteFlags |= CorrelatorPresent
}

// HasCorrelator checks for a specific correlator.
func (sb *SecurityBlock) HasCorrelator(correlator uint64) bool {
	return sb.CiphersuiteFlags.Has(CorrelatorPresent) && sb.Correlator == correlator
}

// SetParams sets the ciphersuite parameters and the ParamsPresent flag.
func (sb *SecurityBlock) SetParams(params TLVList) {
	sb.Params = params
	sb.CiphersuiteFlags |= ParamsPresent
}

// SetResult sets the security result and the SecurityResultPresent flag.
func (sb *SecurityBlock) SetResult(result TLVList) {
	sb.Result = result
	sb.CiphersuiteFlags |= SecurityResultPresent
}

// writeBody writes the body. For an ignored result, only the result's length is
// written. The mutable canonical form uses fixed eight byte integers.
func (sb *SecurityBlock) writeBody(w io.Writer, mutable, ignoreResult bool) error {
	var buf []byte

	writeNumber := func(v uint64) {
		if mutable {
			buf = binary.BigEndian.AppendUint64(buf, v)
		} else {
			buf = sdnv.Append(buf, v)
		}
	}

	writeNumber(uint64(sb.CiphersuiteID))
	writeNumber(uint64(sb.CiphersuiteFlags))

	if sb.CiphersuiteFlags.Has(CorrelatorPresent) {
		writeNumber(sb.Correlator)
	}

	if sb.CiphersuiteFlags.Has(ParamsPresent) {
		params, _ := sb.Params.MarshalBinary()
		writeNumber(uint64(len(params)))
		buf = append(buf, params...)
	}

	if sb.CiphersuiteFlags.Has(SecurityResultPresent) {
		result, _ := sb.Result.MarshalBinary()
		writeNumber(uint64(len(result)))
		if !ignoreResult {
			buf = append(buf, result...)
		}
	}

	_, err := w.Write(buf)
	return err
}

// bodyLen returns the length of the complete body in the default form or, if
// mutable, in the mutable canonical form.
func (sb *SecurityBlock) bodyLen(mutable bool) uint64 {
	numLen := func(v uint64) uint64 {
		if mutable {
			return 8
		}
		return uint64(sdnv.Len(v))
	}

	n := numLen(uint64(sb.CiphersuiteID)) + numLen(uint64(sb.CiphersuiteFlags))

	if sb.CiphersuiteFlags.Has(CorrelatorPresent) {
		n += numLen(sb.Correlator)
	}
	if sb.CiphersuiteFlags.Has(ParamsPresent) {
		l := sb.Params.encodedLen()
		n += numLen(l) + l
	}
	if sb.CiphersuiteFlags.Has(SecurityResultPresent) {
		l := sb.Result.encodedLen()
		n += numLen(l) + l
	}

	return n
}

// MarshalBinary writes the default body.
func (sb *SecurityBlock) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := sb.writeBody(&buf, false, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary reads the default body.
func (sb *SecurityBlock) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	readNumber := func(field string) (uint64, error) {
		v, err := sdnv.Read(r)
		if err != nil {
			return 0, malformed("security block %s: %v", field, err)
		}
		return v, nil
	}

	readList := func(field string) (TLVList, error) {
		l, err := readNumber(field + " length")
		if err != nil {
			return nil, err
		} else if l > uint64(r.Len()) {
			return nil, malformed("security block %s of length %d exceeds %d bytes", field, l, r.Len())
		}

		raw := make([]byte, l)
		_, _ = io.ReadFull(r, raw)

		var list TLVList
		err = list.UnmarshalBinary(raw)
		return list, err
	}

	var tmp SecurityBlock

	if id, err := readNumber("ciphersuite id"); err != nil {
		return err
	} else {
		tmp.CiphersuiteID = CiphersuiteID(id)
	}

	if flags, err := readNumber("ciphersuite flags"); err != nil {
		return err
	} else {
		tmp.CiphersuiteFlags = CiphersuiteFlags(flags)
	}

	if tmp.CiphersuiteFlags.Has(CorrelatorPresent) {
		if corr, err := readNumber("correlator"); err != nil {
			return err
		} else {
			tmp.Correlator = corr
		}
	}

	if tmp.CiphersuiteFlags.Has(ParamsPresent) {
		if params, err := readList("ciphersuite parameters"); err != nil {
			return err
		} else {
			tmp.Params = params
		}
	}

	if tmp.CiphersuiteFlags.Has(SecurityResultPresent) {
		if result, err := readList("security result"); err != nil {
			return err
		} else {
			tmp.Result = result
		}
	}

	if r.Len() != 0 {
		return malformed("security block has %d trailing bytes", r.Len())
	}

	*sb = tmp
	return nil
}

// CheckValid returns an array of errors for incorrect data.
func (sb *SecurityBlock) CheckValid() (errs error) {
	if sb.CiphersuiteFlags.Has(ciphersuiteFlagsReservedFields) {
		errs = multierror.Append(errs, fmt.Errorf("SecurityBlock: ciphersuite flags %x contain reserved bits", uint64(sb.CiphersuiteFlags)))
	}

	if !sb.CiphersuiteFlags.Has(ParamsPresent) && len(sb.Params) > 0 {
		errs = multierror.Append(errs, fmt.Errorf("SecurityBlock: parameters without the ParamsPresent flag"))
	}

	if !sb.CiphersuiteFlags.Has(SecurityResultPresent) && len(sb.Result) > 0 {
		errs = multierror.Append(errs, fmt.Errorf("SecurityBlock: result without the SecurityResultPresent flag"))
	}

	return
}

// MarshalJSON creates a JSON object of this SecurityBlock.
func (sb *SecurityBlock) MarshalJSON() ([]byte, error) {
	var correlator *uint64
	if sb.CiphersuiteFlags.Has(CorrelatorPresent) {
		correlator = &sb.Correlator
	}

	return json.Marshal(&struct {
		CiphersuiteID    CiphersuiteID `json:"ciphersuiteId"`
		CiphersuiteFlags uint64        `json:"ciphersuiteFlags"`
		Correlator       *uint64       `json:"correlator,omitempty"`
		Params           TLVList       `json:"params,omitempty"`
		Result           TLVList       `json:"result,omitempty"`
	}{
		CiphersuiteID:    sb.CiphersuiteID,
		CiphersuiteFlags: uint64(sb.CiphersuiteFlags),
		Correlator:       correlator,
		Params:           sb.Params,
		Result:           sb.Result,
	})
}

// BundleAuthenticationBlock (BAB) protects a bundle hop by hop, RFC 6257, section 2.3.
type BundleAuthenticationBlock struct {
	SecurityBlock
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (*BundleAuthenticationBlock) BlockTypeCode() uint8 {
	return ExtBlockTypeBundleAuthenticationBlock
}

// BlockTypeName must return a constant string, this block's name.
func (*BundleAuthenticationBlock) BlockTypeName() string {
	return "Bundle Authentication Block"
}

// PayloadIntegrityBlock (PIB) signs the payload end to end, RFC 6257, section 2.4.
type PayloadIntegrityBlock struct {
	SecurityBlock
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (*PayloadIntegrityBlock) BlockTypeCode() uint8 {
	return ExtBlockTypePayloadIntegrityBlock
}

// BlockTypeName must return a constant string, this block's name.
func (*PayloadIntegrityBlock) BlockTypeName() string {
	return "Payload Integrity Block"
}

// PayloadConfidentialityBlock (PCB) encrypts the payload, RFC 6257, section 2.5.
type PayloadConfidentialityBlock struct {
	SecurityBlock
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (*PayloadConfidentialityBlock) BlockTypeCode() uint8 {
	return ExtBlockTypePayloadConfidentialityBlock
}

// BlockTypeName must return a constant string, this block's name.
func (*PayloadConfidentialityBlock) BlockTypeName() string {
	return "Payload Confidentiality Block"
}

// ExtensionSecurityBlock (ESB) encapsulates other extension blocks, RFC 6257, section 2.6.
type ExtensionSecurityBlock struct {
	SecurityBlock
}

// BlockTypeCode must return a constant integer, indicating the block type code.
func (*ExtensionSecurityBlock) BlockTypeCode() uint8 {
	return ExtBlockTypeExtensionSecurityBlock
}

// BlockTypeName must return a constant string, this block's name.
func (*ExtensionSecurityBlock) BlockTypeName() string {
	return "Extension Security Block"
}

// security returns the SecurityBlock of a CanonicalBlock's value.
func (cb *CanonicalBlock) security() (*SecurityBlock, bool) {
	if sb, ok := cb.Value.(securityBlock); ok {
		return sb.Security(), true
	}
	return nil, false
}

// SecuritySource returns the security source of a security block, the first
// entry of the EID list.
func (cb *CanonicalBlock) SecuritySource() (EndpointID, bool) {
	sb, ok := cb.security()
	if !ok || !sb.CiphersuiteFlags.Has(SecuritySourcePresent) || len(cb.EIDs) < 1 {
		return EndpointID{}, false
	}
	return cb.EIDs[0], true
}

// SecurityDestination returns the security destination of a security block,
// following the security source within the EID list.
func (cb *CanonicalBlock) SecurityDestination() (EndpointID, bool) {
	sb, ok := cb.security()
	if !ok || !sb.CiphersuiteFlags.Has(SecurityDestinationPresent) {
		return EndpointID{}, false
	}

	idx := 0
	if sb.CiphersuiteFlags.Has(SecuritySourcePresent) {
		idx = 1
	}
	if len(cb.EIDs) <= idx {
		return EndpointID{}, false
	}
	return cb.EIDs[idx], true
}

// SetSecurityEndpoints stores the node EIDs of a security source and
// destination within the EID list. Nil values are omitted.
func (cb *CanonicalBlock) SetSecurityEndpoints(src, dst *EndpointID) error {
	sb, ok := cb.security()
	if !ok {
		return fmt.Errorf("block type %d is no security block", cb.TypeCode())
	}

	var eids []EndpointID
	sb.CiphersuiteFlags &^= SecuritySourcePresent | SecurityDestinationPresent

	if src != nil {
		eids = append(eids, src.NodeEID())
		sb.CiphersuiteFlags |= SecuritySourcePresent
	}
	if dst != nil {
		eids = append(eids, dst.NodeEID())
		sb.CiphersuiteFlags |= SecurityDestinationPresent
	}

	cb.SetEIDs(eids)
	return nil
}

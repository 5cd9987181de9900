// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dtn7/dtn6-go/pkg/sdnv"
)

// Canonicalization selects one of the serialization forms of a Bundle.
type Canonicalization int

const (
	// DefaultForm is the interoperable wire form of RFC 5050, optionally using
	// the Compressed Bundle Header Encoding.
	DefaultForm Canonicalization = iota

	// StrictForm is the input of a Bundle Authentication Block's MAC.
	StrictForm

	// MutableForm is the input of Payload Integrity and Confidentiality Blocks,
	// RFC 6257, section 3.4.
	MutableForm
)

func (c Canonicalization) String() string {
	switch c {
	case DefaultForm:
		return "default"
	case StrictForm:
		return "strict"
	case MutableForm:
		return "mutable"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// StrictOptions configures the strict canonical form.
type StrictOptions struct {
	// Ignore marks a security block under computation. Each security block of
	// the same type is written with its security result's length only.
	Ignore *CanonicalBlock

	// Correlator limits the serialized blocks to a window if WithCorrelator is
	// set. The window starts behind the first BAB or PIB carrying this
	// correlator and ends in front of the next block carrying it.
	Correlator     uint64
	WithCorrelator bool

	// IncludeEnd adds the window's closing block.
	IncludeEnd bool
}

// mutableHeaderFixedLen is the length of the timestamp, sequence number and
// lifetime fields within the mutable canonical primary block.
const mutableHeaderFixedLen = 3 * 8

// serializer writes one Bundle in one Canonicalization. Each instance is only
// used for a single pass.
type serializer struct {
	w    io.Writer
	ctx  *CodecContext
	form Canonicalization

	dict *Dictionary
	cbhe bool

	// ignore is the security block under computation for the mutable form.
	ignore *CanonicalBlock

	strict StrictOptions
}

func newSerializer(w io.Writer, ctx *CodecContext, form Canonicalization) *serializer {
	return &serializer{
		w:    w,
		ctx:  ctx,
		form: form,
	}
}

// isCompressable checks if all EndpointIDs of a Bundle might be expressed by
// the Compressed Bundle Header Encoding.
func isCompressable(b *Bundle) bool {
	for _, eid := range bundleEndpoints(b) {
		if !eid.IsCompressable() {
			return false
		}
	}
	return true
}

// appendNumber appends an SDNV or, for the mutable form, a fixed eight byte
// big endian integer.
func (s *serializer) appendNumber(buf []byte, v uint64) []byte {
	if s.form == MutableForm {
		return binary.BigEndian.AppendUint64(buf, v)
	}
	return sdnv.Append(buf, v)
}

// appendEID appends an EndpointID's representation: a (node, service) pair
// for CBHE, the dictionary offsets, or, for the mutable form, the string
// prefixed by its four byte length.
func (s *serializer) appendEID(buf []byte, eid EndpointID) ([]byte, error) {
	switch {
	case s.form == MutableForm:
		str := eid.String()
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(str)))
		return append(buf, str...), nil

	case s.cbhe:
		node, service, ok := eid.CompressedRef()
		if !ok {
			return nil, fmt.Errorf("endpoint %v is not compressible", eid)
		}
		buf = sdnv.Append(buf, node)
		return sdnv.Append(buf, service), nil

	default:
		schemeOff, sspOff, err := s.dict.Ref(eid)
		if err != nil {
			return nil, err
		}
		buf = sdnv.Append(buf, schemeOff)
		return sdnv.Append(buf, sspOff), nil
	}
}

func (s *serializer) write(buf []byte) error {
	_, err := s.w.Write(buf)
	return err
}

// writeBundle serializes the Bundle's primary block followed by the blocks
// selected by the Canonicalization.
func (s *serializer) writeBundle(b *Bundle) error {
	switch s.form {
	case DefaultForm:
		s.cbhe = s.ctx.CBHE && isCompressable(b)
		if !s.cbhe {
			s.dict = newDictionaryForBundle(b)
		}
	case StrictForm:
		s.dict = newDictionaryForBundle(b)
	}

	if s.form == MutableForm {
		if err := s.writeMutablePrimary(&b.PrimaryBlock); err != nil {
			return fmt.Errorf("writing primary block failed: %w", err)
		}
	} else if err := s.writePrimary(&b.PrimaryBlock); err != nil {
		return fmt.Errorf("writing primary block failed: %w", err)
	}

	blocks := s.selectBlocks(b.blocks)
	for i, cb := range blocks {
		var err error
		if s.form == MutableForm {
			err = s.writeMutableBlock(cb)
		} else {
			err = s.writeBlock(cb, i == len(blocks)-1)
		}

		if err != nil {
			return fmt.Errorf("writing block %d (type %d) failed: %w", i, cb.TypeCode(), err)
		}
	}

	return nil
}

// writePrimary writes the primary block of the default and the strict form.
func (s *serializer) writePrimary(pb *PrimaryBlock) error {
	var body []byte
	var err error

	for _, eid := range []EndpointID{pb.Destination, pb.SourceNode, pb.ReportTo, pb.Custodian} {
		if body, err = s.appendEID(body, eid); err != nil {
			return err
		}
	}

	body = sdnv.Append(body, uint64(pb.CreationTimestamp))
	body = sdnv.Append(body, pb.SequenceNumber)
	body = sdnv.Append(body, pb.Lifetime)

	if s.cbhe {
		body = sdnv.Append(body, 0)
	} else {
		body = sdnv.Append(body, uint64(s.dict.Len()))
		body = append(body, s.dict.Bytes()...)
	}

	if pb.HasFragmentation() {
		body = sdnv.Append(body, pb.FragmentOffset)
		body = sdnv.Append(body, pb.AppDataLength)
	}

	buf := []byte{dtnVersion}
	buf = sdnv.Append(buf, uint64(pb.BundleControlFlags))
	buf = sdnv.Append(buf, uint64(len(body)))
	buf = append(buf, body...)

	return s.write(buf)
}

// writeMutablePrimary writes the primary block of the mutable canonical form.
// The custodian and fragmentation fields are not covered.
func (s *serializer) writeMutablePrimary(pb *PrimaryBlock) error {
	eids := []string{pb.Destination.String(), pb.SourceNode.String(), pb.ReportTo.String()}

	headerLen := uint64(mutableHeaderFixedLen)
	for _, eid := range eids {
		headerLen += 4 + uint64(len(eid))
	}

	buf := []byte{dtnVersion}
	buf = binary.BigEndian.AppendUint64(buf, uint64(pb.BundleControlFlags&mutableCanonicalMask))
	buf = binary.BigEndian.AppendUint64(buf, headerLen)

	for _, eid := range eids {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(eid)))
		buf = append(buf, eid...)
	}

	buf = binary.BigEndian.AppendUint64(buf, uint64(pb.CreationTimestamp))
	buf = binary.BigEndian.AppendUint64(buf, pb.SequenceNumber)
	buf = binary.BigEndian.AppendUint64(buf, pb.Lifetime)

	return s.write(buf)
}

// selectBlocks returns the blocks to be written.
func (s *serializer) selectBlocks(blocks []*CanonicalBlock) []*CanonicalBlock {
	switch s.form {
	case StrictForm:
		return s.strictWindow(blocks)
	case MutableForm:
		return s.mutableBlocks(blocks)
	default:
		return blocks
	}
}

// isCorrelated checks if a block is a BAB or PIB carrying the correlator.
func isCorrelated(cb *CanonicalBlock, correlator uint64) bool {
	switch cb.TypeCode() {
	case ExtBlockTypeBundleAuthenticationBlock, ExtBlockTypePayloadIntegrityBlock:
	default:
		return false
	}

	sb, ok := cb.security()
	return ok && sb.HasCorrelator(correlator)
}

// strictWindow limits the blocks to the correlator's window. Without a window
// start, no block is selected. Without a window end, the window reaches the
// end of the list.
func (s *serializer) strictWindow(blocks []*CanonicalBlock) []*CanonicalBlock {
	if !s.strict.WithCorrelator {
		return blocks
	}

	start := -1
	for i, cb := range blocks {
		if isCorrelated(cb, s.strict.Correlator) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	window := blocks[start+1:]
	for i, cb := range window {
		if isCorrelated(cb, s.strict.Correlator) {
			if s.strict.IncludeEnd {
				return window[:i+1]
			}
			return window[:i]
		}
	}
	return window
}

// isMutableCovered checks if a block is part of the mutable canonical form:
// the payload, PIBs and PCBs. Administrative records are excluded.
func isMutableCovered(cb *CanonicalBlock) bool {
	if _, isAdmin := cb.Value.(AdministrativeRecord); isAdmin {
		return false
	}

	switch cb.TypeCode() {
	case ExtBlockTypePayloadBlock, ExtBlockTypePayloadIntegrityBlock, ExtBlockTypePayloadConfidentialityBlock:
		return true
	default:
		return false
	}
}

// mutableBlocks selects the covered blocks, starting at the ignored block, if
// one is given.
func (s *serializer) mutableBlocks(blocks []*CanonicalBlock) (selected []*CanonicalBlock) {
	skipping := s.ignore != nil
	for _, cb := range blocks {
		if skipping {
			if cb != s.ignore {
				continue
			}
			skipping = false
		}

		if isMutableCovered(cb) {
			selected = append(selected, cb)
		}
	}
	return
}

// ignoresResult checks if the strict form writes only the length of this
// block's security result.
func (s *serializer) ignoresResult(cb *CanonicalBlock) bool {
	switch s.form {
	case StrictForm:
		return s.strict.Ignore != nil && cb.TypeCode() == s.strict.Ignore.TypeCode()
	case MutableForm:
		return s.ignore != nil && cb == s.ignore
	default:
		return false
	}
}

// writeBlockBody writes a block's body length followed by the body. A security
// block's announced length always covers its complete result.
func (s *serializer) writeBlockBody(head []byte, cb *CanonicalBlock) error {
	mutable := s.form == MutableForm

	if sb, ok := cb.security(); ok {
		head = s.appendNumber(head, sb.bodyLen(mutable))
		if err := s.write(head); err != nil {
			return err
		}
		return sb.writeBody(s.w, mutable, s.ignoresResult(cb))
	}

	if bs, ok := cb.Value.(bodyStreamer); ok {
		head = s.appendNumber(head, bs.bodyLen())
		if err := s.write(head); err != nil {
			return err
		}
		return bs.writeBody(s.w)
	}

	body, err := s.ctx.Manager.WriteBlock(cb.Value)
	if err != nil {
		return err
	}

	head = s.appendNumber(head, uint64(len(body)))
	return s.write(append(head, body...))
}

// writeBlock writes a block of the default or the strict form. The default
// form sets the LastBlock flag by position; the strict form keeps the stored
// flags.
func (s *serializer) writeBlock(cb *CanonicalBlock, isLast bool) error {
	flags := cb.BlockControlFlags
	if s.form == DefaultForm {
		if isLast {
			flags |= LastBlock
		} else {
			flags &^= LastBlock
		}
	}

	head := []byte{cb.TypeCode()}
	head = sdnv.Append(head, uint64(flags))

	if flags.Has(ContainsEIDs) {
		head = sdnv.Append(head, uint64(len(cb.EIDs)))

		var err error
		for _, eid := range cb.EIDs {
			if head, err = s.appendEID(head, eid); err != nil {
				return err
			}
		}
	}

	return s.writeBlockBody(head, cb)
}

// writeMutableBlock writes a block of the mutable canonical form. EIDs are
// written without a preceding count.
func (s *serializer) writeMutableBlock(cb *CanonicalBlock) error {
	head := []byte{cb.TypeCode()}
	head = binary.BigEndian.AppendUint64(head, uint64(cb.BlockControlFlags&blockMutableCanonicalMask))

	if cb.BlockControlFlags.Has(ContainsEIDs) {
		var err error
		for _, eid := range cb.EIDs {
			if head, err = s.appendEID(head, eid); err != nil {
				return err
			}
		}
	}

	return s.writeBlockBody(head, cb)
}

// marshalForm serializes a Bundle into a byte slice.
func marshalForm(write func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"crypto/hmac"
	"crypto/sha1"
	"errors"
	"fmt"
)

// ErrVerificationFailed is returned if no security block of a Bundle verifies.
var ErrVerificationFailed = errors.New("security block verification failed")

// babOptions selects the strict canonical window of a BAB pair, closed by the
// BAB carrying the result.
func babOptions(closing *CanonicalBlock, correlator uint64) StrictOptions {
	return StrictOptions{
		Ignore:         closing,
		Correlator:     correlator,
		WithCorrelator: true,
		IncludeEnd:     true,
	}
}

// babMAC calculates the HMAC-SHA1 over a Bundle's strict canonical form.
func babMAC(b *Bundle, key []byte, closing *CanonicalBlock, correlator uint64) ([]byte, error) {
	data, err := DefaultCodecContext().MarshalStrictCanonical(b, babOptions(closing, correlator))
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// SignBAB protects a Bundle hop by hop with a pair of Bundle Authentication
// Blocks using the BAB-HMAC ciphersuite, RFC 6257, section 4.1. The opening BAB
// is inserted as the first block, the closing BAB carrying the MAC is appended.
func SignBAB(b *Bundle, key []byte, correlator uint64) error {
	opening := &BundleAuthenticationBlock{}
	opening.CiphersuiteID = CiphersuiteBABHMAC
	opening.SetCorrelator(correlator)

	closing := &BundleAuthenticationBlock{}
	closing.CiphersuiteID = CiphersuiteBABHMAC
	closing.SetCorrelator(correlator)
	// The placeholder announces the final length of the result.
	closing.SetResult(TLVList{{Type: TLVIntegritySignature, Value: make([]byte, sha1.Size)}})

	b.InsertBlock(NewCanonicalBlock(0, opening))
	closingCb := b.AppendBlock(NewCanonicalBlock(0, closing))

	mac, err := babMAC(b, key, closingCb, correlator)
	if err != nil {
		return fmt.Errorf("calculating BAB MAC failed: %w", err)
	}

	closing.Result.Set(TLVIntegritySignature, mac)
	return nil
}

// VerifyBAB checks if any closing Bundle Authentication Block of the BAB-HMAC
// ciphersuite carries a valid MAC for the given key.
func VerifyBAB(b *Bundle, key []byte) error {
	cbs, err := b.ExtensionBlocks(ExtBlockTypeBundleAuthenticationBlock)
	if err != nil {
		return err
	}

	for _, cb := range cbs {
		sb, ok := cb.security()
		if !ok || sb.CiphersuiteID != CiphersuiteBABHMAC || !sb.CiphersuiteFlags.Has(CorrelatorPresent) {
			continue
		}

		received, ok := sb.Result.Get(TLVIntegritySignature)
		if !ok {
			continue
		}

		expected, err := babMAC(b, key, cb, sb.Correlator)
		if err != nil {
			return err
		}

		if hmac.Equal(received, expected) {
			return nil
		}
	}

	return ErrVerificationFailed
}

// StripBAB removes all Bundle Authentication Blocks, e.g., after a successful
// verification, and returns their amount.
func StripBAB(b *Bundle) (n int) {
	cbs, _ := b.ExtensionBlocks(ExtBlockTypeBundleAuthenticationBlock)
	for _, cb := range cbs {
		if b.RemoveBlock(cb) {
			n++
		}
	}
	return
}

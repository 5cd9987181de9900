// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// pibDigest hashes a Bundle's mutable canonical form, starting at the PIB.
func pibDigest(b *Bundle, pib *CanonicalBlock) ([]byte, error) {
	data, err := DefaultCodecContext().MarshalMutableCanonical(b, pib)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	return digest[:], nil
}

// SignPIB signs a Bundle's payload end to end with a Payload Integrity Block of
// the PIB-RSA-SHA256 ciphersuite, RFC 6257, section 4.2. The PIB is inserted
// in front of the payload block. An optional security destination is stored
// as a node EndpointID.
func SignPIB(b *Bundle, signer crypto.Signer, dst *EndpointID) error {
	pub, ok := signer.Public().(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("PIB-RSA-SHA256 requires an RSA key, not %T", signer.Public())
	}

	payload, err := b.PayloadBlock()
	if err != nil {
		return err
	}

	pib := &PayloadIntegrityBlock{}
	pib.CiphersuiteID = CiphersuitePIBRSASHA256
	// The placeholder announces the final length of the result.
	pib.SetResult(TLVList{{Type: TLVIntegritySignature, Value: make([]byte, pub.Size())}})

	cb := NewCanonicalBlock(ReplicateBlock, pib)
	if dst != nil {
		if err := cb.SetSecurityEndpoints(nil, dst); err != nil {
			return err
		}
	}

	if err := b.InsertBlockBefore(payload, cb); err != nil {
		return err
	}

	digest, err := pibDigest(b, cb)
	if err != nil {
		b.RemoveBlock(cb)
		return fmt.Errorf("calculating PIB digest failed: %w", err)
	}

	signature, err := signer.Sign(rand.Reader, digest, crypto.SHA256)
	if err != nil {
		b.RemoveBlock(cb)
		return fmt.Errorf("signing PIB digest failed: %w", err)
	}

	pib.Result.Set(TLVIntegritySignature, signature)
	return nil
}

// VerifyPIB checks if any Payload Integrity Block of the PIB-RSA-SHA256
// ciphersuite carries a valid signature for the given public key.
func VerifyPIB(b *Bundle, pub *rsa.PublicKey) error {
	cbs, err := b.ExtensionBlocks(ExtBlockTypePayloadIntegrityBlock)
	if err != nil {
		return err
	}

	for _, cb := range cbs {
		sb, ok := cb.security()
		if !ok || sb.CiphersuiteID != CiphersuitePIBRSASHA256 {
			continue
		}

		signature, ok := sb.Result.Get(TLVIntegritySignature)
		if !ok {
			continue
		}

		digest, err := pibDigest(b, cb)
		if err != nil {
			return err
		}

		if rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, signature) == nil {
			return nil
		}
	}

	return ErrVerificationFailed
}

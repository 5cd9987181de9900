// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

func readPEM(filename string) (*pem.Block, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s contains no PEM block", filename)
	}
	return block, nil
}

// loadRSAPrivateKey reads a PKCS #1 or PKCS #8 encoded RSA private key.
func loadRSAPrivateKey(filename string) (*rsa.PrivateKey, error) {
	block, err := readPEM(filename)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key of %s failed: %w", filename, err)
	}
	if rsaKey, ok := key.(*rsa.PrivateKey); ok {
		return rsaKey, nil
	}
	return nil, fmt.Errorf("%s holds a %T instead of an RSA key", filename, key)
}

// loadRSAPublicKey reads a PKIX or PKCS #1 encoded RSA public key.
func loadRSAPublicKey(filename string) (*rsa.PublicKey, error) {
	block, err := readPEM(filename)
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key of %s failed: %w", filename, err)
	}
	if rsaKey, ok := key.(*rsa.PublicKey); ok {
		return rsaKey, nil
	}
	return nil, fmt.Errorf("%s holds a %T instead of an RSA key", filename, key)
}

// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bpv6 provides a library for interaction with Bundles as defined in
// the Bundle Protocol Version 6, RFC 5050. This includes Bundle creation,
// modification, serialization and deserialization.
//
// The easiest way to create new Bundles is to use the BundleBuilder.
//
//	bundle, err := bpv6.Builder().
//	  Source("dtn://src/app").
//	  Destination("dtn://dest/app").
//	  CreationTimestampNow().
//	  Lifetime(time.Hour).
//	  PayloadBlock([]byte("hello world!")).
//	  Build()
//
// A Bundle might be written in three forms. The default wire form uses a
// dictionary for all EndpointIDs or, if possible, the Compressed Bundle Header
// Encoding of RFC 6260. The strict and the mutable canonical forms are the
// inputs of the Bundle Security Protocol's ciphersuites, RFC 6257.
//
//	// An existing Bundle b1 is serialized. The new bundle b2 is created
//	// from this. A common bytes.Buffer will be used.
//	buff := new(bytes.Buffer)
//	err1 := b1.WriteBundle(buff)
//	b2, err2 := bpv6.ParseBundle(buff)
//
// Block types are registered within a CodecContext's ExtensionBlockManager.
// Unknown block types are kept as GenericExtensionBlocks.
package bpv6

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

// execute runs dtn-tool with the given stdin and arguments, returning its stdout.
func execute(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer

	cmd := newRootCmd()
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

func readBundleFile(t *testing.T, filename string) bpv6.Bundle {
	t.Helper()

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()

	b, err := bpv6.ParseBundle(f)
	require.NoError(t, err)
	return b
}

func payloadOf(t *testing.T, b *bpv6.Bundle) []byte {
	t.Helper()

	cb, err := b.PayloadBlock()
	require.NoError(t, err)
	return cb.Value.(*bpv6.PayloadBlock).Data()
}

func TestCreateShow(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "payload")
	output := filepath.Join(dir, "bundle")
	require.NoError(t, os.WriteFile(input, []byte("hello world"), 0o600))

	_, err := execute(t, nil, "create", "dtn://a/app1", "ipn:2.3", input, output)
	require.NoError(t, err)

	b := readBundleFile(t, output)
	require.Equal(t, "dtn://a/app1", b.PrimaryBlock.SourceNode.String())
	require.Equal(t, "ipn:2.3", b.PrimaryBlock.Destination.String())
	require.Equal(t, uint64(24*60*60), b.PrimaryBlock.Lifetime)
	require.True(t, b.HasExtensionBlock(bpv6.ExtBlockTypeAgeBlock))
	require.Equal(t, []byte("hello world"), payloadOf(t, &b))

	stdout, err := execute(t, nil, "show", output)
	require.NoError(t, err)

	var shown map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &shown))
	require.Contains(t, shown, "primaryBlock")
	require.Len(t, shown["canonicalBlocks"], b.Len())
}

func TestCreateStdio(t *testing.T) {
	stdout, err := execute(t, []byte("from stdin"), "create", "ipn:1.1", "ipn:2.2", "-", "-")
	require.NoError(t, err)

	b, err := bpv6.ParseBundle(strings.NewReader(stdout))
	require.NoError(t, err)
	require.Equal(t, []byte("from stdin"), payloadOf(t, &b))

	// Passing the bundle through show's stdin.
	shown, err := execute(t, []byte(stdout), "show", "-")
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(shown)))
}

func TestCreateDefaultName(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(wd)) }()

	_, err = execute(t, []byte("payload"), "create", "ipn:1.1", "ipn:2.2", "-")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	b := readBundleFile(t, filepath.Join(dir, entries[0].Name()))
	require.Equal(t, hex.EncodeToString([]byte(b.ID().String())), entries[0].Name())
}

func TestCreateConfigDefaults(t *testing.T) {
	config := writeConfig(t, "[bundle]\nlifetime = \"90s\"\nreport-to = \"dtn://reports/\"\ncustody = true\n")

	stdout, err := execute(t, []byte("payload"), "--config", config, "create", "dtn://a/", "dtn://b/", "-", "-")
	require.NoError(t, err)

	b, err := bpv6.ParseBundle(strings.NewReader(stdout))
	require.NoError(t, err)
	require.Equal(t, uint64(90), b.PrimaryBlock.Lifetime)
	require.Equal(t, "dtn://reports/", b.PrimaryBlock.ReportTo.String())
	require.True(t, b.PrimaryBlock.BundleControlFlags.Has(bpv6.CustodyRequested))
}

func TestCreateCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("compressible "), 64)

	for _, algo := range []string{"zlib", "lzma", "zstd"} {
		t.Run(algo, func(t *testing.T) {
			stdout, err := execute(t, payload, "create", "--compress", algo, "ipn:1.1", "ipn:2.2", "-", "-")
			require.NoError(t, err)

			b, err := bpv6.ParseBundle(strings.NewReader(stdout))
			require.NoError(t, err)
			require.True(t, b.HasExtensionBlock(bpv6.ExtBlockTypeCompressedPayloadBlock))
			require.Less(t, len(payloadOf(t, &b)), len(payload))

			require.NoError(t, bpv6.Extract(&b))
			require.Equal(t, payload, payloadOf(t, &b))

			_, err = execute(t, []byte(stdout), "show", "--extract", "-")
			require.NoError(t, err)
		})
	}

	_, err := execute(t, payload, "create", "--compress", "rar", "ipn:1.1", "ipn:2.2", "-", "-")
	require.Error(t, err)
}

func TestCreateBAB(t *testing.T) {
	config := writeConfig(t, "[security]\nbab-key = \"0123456789abcdef\"\n")
	otherConfig := writeConfig(t, "[security]\nbab-key = \"fedcba9876543210\"\n")

	_, err := execute(t, []byte("payload"), "create", "--bab", "ipn:1.1", "ipn:2.2", "-", "-")
	require.Error(t, err, "BAB without a configured key")

	stdout, err := execute(t, []byte("payload"), "--config", config,
		"create", "--bab", "--bab-correlator", "7", "ipn:1.1", "ipn:2.2", "-", "-")
	require.NoError(t, err)

	b, err := bpv6.ParseBundle(strings.NewReader(stdout))
	require.NoError(t, err)
	babs, err := b.ExtensionBlocks(bpv6.ExtBlockTypeBundleAuthenticationBlock)
	require.NoError(t, err)
	require.Len(t, babs, 2)

	_, err = execute(t, []byte(stdout), "--config", config, "show", "--verify-bab", "-")
	require.NoError(t, err)

	_, err = execute(t, []byte(stdout), "--config", otherConfig, "show", "--verify-bab", "-")
	require.ErrorIs(t, err, bpv6.ErrVerificationFailed)
}

func writeRSAKeys(t *testing.T) (private, public string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	dir := t.TempDir()
	private = filepath.Join(dir, "key.pem")
	public = filepath.Join(dir, "pub.pem")

	require.NoError(t, os.WriteFile(private, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), 0o600))
	require.NoError(t, os.WriteFile(public, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix}), 0o600))
	return
}

func TestCreatePIB(t *testing.T) {
	private, public := writeRSAKeys(t)
	_, otherPublic := writeRSAKeys(t)

	stdout, err := execute(t, []byte("signed payload"),
		"create", "--pib-key", private, "--pib-destination", "ipn:2.2", "ipn:1.1", "ipn:2.2", "-", "-")
	require.NoError(t, err)

	b, err := bpv6.ParseBundle(strings.NewReader(stdout))
	require.NoError(t, err)

	cb, err := b.ExtensionBlock(bpv6.ExtBlockTypePayloadIntegrityBlock)
	require.NoError(t, err)
	dst, ok := cb.SecurityDestination()
	require.True(t, ok)
	require.Equal(t, "ipn:2.0", dst.String())

	_, err = execute(t, []byte(stdout), "show", "--verify-pib", public, "-")
	require.NoError(t, err)

	_, err = execute(t, []byte(stdout), "show", "--verify-pib", otherPublic, "-")
	require.ErrorIs(t, err, bpv6.ErrVerificationFailed)

	_, err = execute(t, []byte("payload"), "create", "--pib-key", public, "ipn:1.1", "ipn:2.2", "-", "-")
	require.Error(t, err, "signing with a public key file")
}

func TestCanonical(t *testing.T) {
	config := writeConfig(t, "[security]\nbab-key = \"0123456789abcdef\"\n")

	bundleData, err := execute(t, []byte("payload"), "--config", config,
		"create", "--bab", "--bab-correlator", "3", "dtn://a/", "dtn://b/", "-", "-")
	require.NoError(t, err)

	b, err := bpv6.ParseBundle(strings.NewReader(bundleData))
	require.NoError(t, err)
	ctx := bpv6.NewCodecContext()
	blocks := b.Blocks()

	strict, err := ctx.MarshalStrictCanonical(&b, bpv6.StrictOptions{})
	require.NoError(t, err)
	window, err := ctx.MarshalStrictCanonical(&b, bpv6.StrictOptions{
		Ignore:         blocks[len(blocks)-1],
		Correlator:     3,
		WithCorrelator: true,
		IncludeEnd:     true,
	})
	require.NoError(t, err)
	mutable, err := ctx.MarshalMutableCanonical(&b, nil)
	require.NoError(t, err)

	tests := []struct {
		args     []string
		expected []byte
	}{
		{[]string{"canonical", "strict", "-"}, strict},
		{[]string{"canonical", "--correlator", "3", "strict", "-"}, window},
		{[]string{"canonical", "mutable", "-"}, mutable},
	}

	for _, test := range tests {
		stdout, err := execute(t, []byte(bundleData), test.args...)
		require.NoError(t, err)
		require.Equal(t, hex.EncodeToString(test.expected), strings.TrimSpace(stdout))
	}

	_, err = execute(t, []byte(bundleData), "canonical", "--correlator", "4", "strict", "-")
	require.Error(t, err)

	_, err = execute(t, []byte(bundleData), "canonical", "lenient", "-")
	require.Error(t, err)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name  string
		stdin []byte
		args  []string
	}{
		{"create without arguments", nil, []string{"create"}},
		{"create invalid source", []byte("x"), []string{"create", "nope", "dtn://b/", "-", "-"}},
		{"create missing input", nil, []string{"create", "dtn://a/", "dtn://b/", "/nonexistent/payload", "-"}},
		{"show missing file", nil, []string{"show", "/nonexistent/bundle"}},
		{"show garbage", []byte{0x07, 0x00}, []string{"show", "-"}},
		{"show empty", nil, []string{"show", "-"}},
		{"missing config", nil, []string{"--config", "/nonexistent/dtn-tool.toml", "show", "-"}},
		{"unknown command", nil, []string{"frobnicate"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := execute(t, test.stdin, test.args...)
			require.Error(t, err)
		})
	}
}

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn6-go/pkg/blob"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	filename := filepath.Join(t.TempDir(), "dtn-tool.toml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o600))
	return filename
}

func TestParseConfigDefault(t *testing.T) {
	conf, err := parseConfig("")
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), conf)

	ctx, err := conf.codecContext()
	require.NoError(t, err)
	require.True(t, ctx.CBHE)
	require.Equal(t, blob.DefaultLockTimeout, ctx.LockTimeout)

	key, err := conf.babKey()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestParseConfig(t *testing.T) {
	filename := writeConfig(t, `
[logging]
level = "debug"
report-caller = true
format = "json"

[codec]
cbhe = false
blob-threshold = 4096
blob-dir = "/tmp/blobs"
lock-timeout = "250ms"

[bundle]
lifetime = "1h"
report-to = "dtn://reports/"
custody = true

[security]
bab-key = "00ff10"

[inspector]
listen = "[::1]:9000"
`)

	conf, err := parseConfig(filename)
	require.NoError(t, err)

	require.Equal(t, logConf{Level: "debug", ReportCaller: true, Format: "json"}, conf.Logging)
	require.Equal(t, bundleConf{Lifetime: "1h", ReportTo: "dtn://reports/", Custody: true}, conf.Bundle)
	require.Equal(t, "[::1]:9000", conf.Inspector.Listen)

	ctx, err := conf.codecContext()
	require.NoError(t, err)
	require.False(t, ctx.CBHE)
	require.Equal(t, int64(4096), ctx.BlobThreshold)
	require.Equal(t, "/tmp/blobs", ctx.BlobDir)
	require.Equal(t, 250*time.Millisecond, ctx.LockTimeout)

	key, err := conf.babKey()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff, 0x10}, key)
}

func TestParseConfigPartial(t *testing.T) {
	conf, err := parseConfig(writeConfig(t, "[bundle]\ncustody = true\n"))
	require.NoError(t, err)

	require.True(t, conf.Bundle.Custody)
	require.Equal(t, "24h", conf.Bundle.Lifetime)
	require.True(t, conf.Codec.CBHE)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := parseConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = parseConfig(writeConfig(t, "[codec\n"))
	require.Error(t, err)

	tests := []struct {
		name    string
		content string
	}{
		{"invalid lock timeout", "[codec]\nlock-timeout = \"soon\"\n"},
		{"negative lock timeout", "[codec]\nlock-timeout = \"-1s\"\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conf, err := parseConfig(writeConfig(t, test.content))
			require.NoError(t, err)

			_, err = conf.codecContext()
			require.Error(t, err)
		})
	}

	conf, err := parseConfig(writeConfig(t, "[security]\nbab-key = \"xyz\"\n"))
	require.NoError(t, err)
	_, err = conf.babKey()
	require.Error(t, err)
}

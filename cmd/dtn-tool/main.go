// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// dtn-tool creates, inspects and canonicalizes RFC 5050 bundles.
package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

// tool is the shared state of all commands, populated before each command runs.
type tool struct {
	configFile string

	conf tomlConfig
	ctx  *bpv6.CodecContext
}

// setup loads the configuration, configures the logger and the CodecContext.
func (t *tool) setup(_ *cobra.Command, _ []string) (err error) {
	if t.conf, err = parseConfig(t.configFile); err != nil {
		return
	}

	t.conf.setupLogging()

	t.ctx, err = t.conf.codecContext()
	return
}

// readBundle parses a bundle from a file or, for "-", from the command's stdin.
func (t *tool) readBundle(cmd *cobra.Command, input string) (b bpv6.Bundle, err error) {
	var f io.ReadCloser
	if input == "-" {
		f = io.NopCloser(cmd.InOrStdin())
	} else if f, err = os.Open(input); err != nil {
		return b, fmt.Errorf("opening %s failed: %w", input, err)
	}

	if b, err = t.ctx.ParseBundle(f); err != nil {
		_ = f.Close()
		return b, fmt.Errorf("parsing bundle from %s failed: %w", input, err)
	}
	if err = f.Close(); err != nil {
		releaseBundle(&b)
	}
	return
}

// releaseBundle removes blob files of a parsed bundle.
func releaseBundle(b *bpv6.Bundle) {
	if err := b.Close(); err != nil {
		log.WithError(err).WithField("bundle", b.ID()).Warn("Releasing bundle errored")
	}
}

func newRootCmd() *cobra.Command {
	t := &tool{}

	rootCmd := &cobra.Command{
		Use:               "dtn-tool",
		Short:             "Bundle Protocol version 6 tool",
		Long:              "Create, inspect and canonicalize RFC 5050 bundles.",
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: t.setup,
	}
	rootCmd.PersistentFlags().StringVarP(&t.configFile, "config", "c", "", "path to a TOML configuration file")

	rootCmd.AddCommand(
		t.createCmd(),
		t.showCmd(),
		t.canonicalCmd(),
		t.watchCmd(),
		t.serveCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("dtn-tool errored")
		os.Exit(1)
	}
}

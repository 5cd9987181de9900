// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

// createOpts are the optional steps applied to a freshly built bundle.
type createOpts struct {
	compress       string
	pibKey         string
	pibDestination string
	bab            bool
	babCorrelator  uint64
}

func (t *tool) createCmd() *cobra.Command {
	var opts createOpts

	cmd := &cobra.Command{
		Use:   "create sender receiver -|filename [bundle-name]",
		Short: "Create a new bundle",
		Long: `Creates a new bundle, addressed from sender to receiver, with the stdin (-) or
the given file as payload. The bundle is saved as bundle-name, "-" for stdout, or
under its hex encoded bundle ID.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[2])
			if err != nil {
				return err
			}

			b, err := t.createBundle(args[0], args[1], data, opts)
			if err != nil {
				return err
			}

			outName := hex.EncodeToString([]byte(b.ID().String()))
			if len(args) == 4 {
				outName = args[3]
			}
			return t.writeBundle(cmd, &b, outName)
		},
	}

	cmd.Flags().StringVar(&opts.compress, "compress", "", "compress the payload: zlib, lzma or zstd")
	cmd.Flags().StringVar(&opts.pibKey, "pib-key", "", "PEM encoded RSA private key to sign the payload with")
	cmd.Flags().StringVar(&opts.pibDestination, "pib-destination", "", "security destination of the Payload Integrity Block")
	cmd.Flags().BoolVar(&opts.bab, "bab", false, "add a Bundle Authentication Block pair, keyed by security.bab-key")
	cmd.Flags().Uint64Var(&opts.babCorrelator, "bab-correlator", 1, "correlator of the Bundle Authentication Blocks")

	return cmd
}

// readInput reads a file or, for "-", the command's stdin.
func readInput(cmd *cobra.Command, input string) ([]byte, error) {
	if input == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("reading input errored: %w", err)
	}
	return data, nil
}

// createBundle builds a bundle with the configured defaults and applies the
// compression and security options in this order.
func (t *tool) createBundle(sender, receiver string, data []byte, opts createOpts) (b bpv6.Bundle, err error) {
	bldr := bpv6.Builder().
		Source(sender).
		Destination(receiver).
		CreationTimestampNow().
		Lifetime(t.conf.Bundle.Lifetime).
		AgeBlock(uint64(0)).
		PayloadBlock(data)

	if t.conf.Bundle.ReportTo != "" {
		bldr.ReportTo(t.conf.Bundle.ReportTo)
	}
	if t.conf.Bundle.Custody {
		bldr.BundleCtrlFlags(bpv6.CustodyRequested)
	}

	if b, err = bldr.Build(); err != nil {
		return b, fmt.Errorf("building bundle errored: %w", err)
	}

	if opts.compress != "" {
		algo, algoErr := bpv6.ParseCompressionAlgorithm(opts.compress)
		if algoErr != nil {
			return b, algoErr
		} else if err = bpv6.Compress(&b, algo); err != nil {
			return b, fmt.Errorf("compressing payload errored: %w", err)
		}
	}

	if opts.pibKey != "" {
		if err = t.signPIB(&b, opts.pibKey, opts.pibDestination); err != nil {
			return b, err
		}
	}

	if opts.bab {
		key, keyErr := t.conf.babKey()
		if keyErr != nil {
			return b, keyErr
		} else if key == nil {
			return b, fmt.Errorf("security.bab-key is empty")
		}

		if err = bpv6.SignBAB(&b, key, opts.babCorrelator); err != nil {
			return b, fmt.Errorf("signing BAB errored: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"bundle": b.ID(),
		"blocks": b.Len(),
	}).Debug("Created bundle")

	return b, nil
}

func (t *tool) signPIB(b *bpv6.Bundle, keyFile, destination string) error {
	key, err := loadRSAPrivateKey(keyFile)
	if err != nil {
		return err
	}

	var dst *bpv6.EndpointID
	if destination != "" {
		eid, eidErr := bpv6.NewEndpointID(destination)
		if eidErr != nil {
			return eidErr
		}
		dst = &eid
	}

	if err := bpv6.SignPIB(b, key, dst); err != nil {
		return fmt.Errorf("signing PIB errored: %w", err)
	}
	return nil
}

// writeBundle writes a bundle's default wire form into a file or, for "-", to
// the command's stdout.
func (t *tool) writeBundle(cmd *cobra.Command, b *bpv6.Bundle, outName string) error {
	if outName == "-" {
		return t.ctx.WriteBundle(cmd.OutOrStdout(), b)
	}

	f, err := os.Create(outName)
	if err != nil {
		return fmt.Errorf("creating file errored: %w", err)
	}

	if err = t.ctx.WriteBundle(f, b); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing bundle errored: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing file errored: %w", err)
	}

	log.WithFields(log.Fields{
		"bundle": b.ID(),
		"file":   outName,
	}).Info("Saved bundle")
	return nil
}

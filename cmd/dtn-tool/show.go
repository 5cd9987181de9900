// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

func (t *tool) showCmd() *cobra.Command {
	var (
		extract   bool
		verifyBAB bool
		pibKey    string
	)

	cmd := &cobra.Command{
		Use:   "show -|filename",
		Short: "Print a bundle as JSON",
		Long:  "Prints a human-readable version of the given bundle, read from stdin (-) or a file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := t.readBundle(cmd, args[0])
			if err != nil {
				return err
			}
			defer releaseBundle(&b)

			if verifyBAB {
				if err := t.verifyBAB(&b); err != nil {
					return err
				}
			}
			if pibKey != "" {
				if err := verifyPIB(&b, pibKey); err != nil {
					return err
				}
			}

			if extract && b.HasExtensionBlock(bpv6.ExtBlockTypeCompressedPayloadBlock) {
				if err := bpv6.Extract(&b); err != nil {
					return fmt.Errorf("extracting payload errored: %w", err)
				}
			}

			bMsg, err := json.MarshalIndent(b, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON errored: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bMsg))
			return err
		},
	}

	cmd.Flags().BoolVar(&extract, "extract", false, "decompress a compressed payload before printing")
	cmd.Flags().BoolVar(&verifyBAB, "verify-bab", false, "verify the Bundle Authentication Blocks with security.bab-key")
	cmd.Flags().StringVar(&pibKey, "verify-pib", "", "PEM encoded RSA public key to verify the Payload Integrity Block")

	return cmd
}

func (t *tool) verifyBAB(b *bpv6.Bundle) error {
	key, err := t.conf.babKey()
	if err != nil {
		return err
	} else if key == nil {
		return fmt.Errorf("security.bab-key is empty")
	}

	if err := bpv6.VerifyBAB(b, key); err != nil {
		return fmt.Errorf("bundle %v: %w", b.ID(), err)
	}

	log.WithField("bundle", b.ID()).Info("Bundle Authentication Block verified")
	return nil
}

func verifyPIB(b *bpv6.Bundle, keyFile string) error {
	pub, err := loadRSAPublicKey(keyFile)
	if err != nil {
		return err
	}

	if err := bpv6.VerifyPIB(b, pub); err != nil {
		return fmt.Errorf("bundle %v: %w", b.ID(), err)
	}

	log.WithField("bundle", b.ID()).Info("Payload Integrity Block verified")
	return nil
}

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

// correlatedBlocks returns all security blocks carrying the correlator.
func correlatedBlocks(b *bpv6.Bundle, correlator uint64) (cbs []*bpv6.CanonicalBlock) {
	for _, cb := range b.Blocks() {
		sb, ok := cb.Value.(interface{ Security() *bpv6.SecurityBlock })
		if ok && sb.Security().HasCorrelator(correlator) {
			cbs = append(cbs, cb)
		}
	}
	return
}

// canonicalForm serializes a bundle in its strict or mutable canonical form.
//
// For the strict form, a correlator limits the output to the window of the
// correlated security blocks, ignoring the result of the closing one. The
// mutable form ignores the bundle's first Payload Integrity Block, if any.
func canonicalForm(ctx *bpv6.CodecContext, b *bpv6.Bundle, form string, correlator *uint64) ([]byte, error) {
	switch form {
	case "strict":
		var opts bpv6.StrictOptions
		if correlator != nil {
			cbs := correlatedBlocks(b, *correlator)
			if len(cbs) == 0 {
				return nil, fmt.Errorf("no security block carries correlator %d", *correlator)
			}

			opts = bpv6.StrictOptions{
				Ignore:         cbs[len(cbs)-1],
				Correlator:     *correlator,
				WithCorrelator: true,
				IncludeEnd:     true,
			}
		}
		return ctx.MarshalStrictCanonical(b, opts)

	case "mutable":
		var ignore *bpv6.CanonicalBlock
		if cb, err := b.ExtensionBlock(bpv6.ExtBlockTypePayloadIntegrityBlock); err == nil {
			ignore = cb
		}
		return ctx.MarshalMutableCanonical(b, ignore)

	default:
		return nil, fmt.Errorf("unknown canonical form %q, use strict or mutable", form)
	}
}

func (t *tool) canonicalCmd() *cobra.Command {
	var correlator uint64

	cmd := &cobra.Command{
		Use:   "canonical strict|mutable -|filename",
		Short: "Print a canonical form of a bundle",
		Long: `Prints the hex encoded strict or mutable canonical form of a bundle, being the
input of Bundle Authentication Blocks or Payload Integrity Blocks.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := t.readBundle(cmd, args[1])
			if err != nil {
				return err
			}
			defer releaseBundle(&b)

			var corr *uint64
			if cmd.Flags().Changed("correlator") {
				corr = &correlator
			}

			data, err := canonicalForm(t.ctx, &b, args[0], corr)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
			return err
		},
	}

	cmd.Flags().Uint64Var(&correlator, "correlator", 0, "limit the strict form to this correlator's window")

	return cmd
}

// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

// watchRetries limits parsing attempts of a new file, which might still be written.
const watchRetries = 5

// bundleWatcher parses every bundle file created within a directory. Parsed
// bundles are optionally re-serialized into an output directory.
type bundleWatcher struct {
	directory string
	outDir    string
	ctx       *bpv6.CodecContext

	knownFiles sync.Map
	watcher    *fsnotify.Watcher

	// parsed receives each successfully parsed bundle, if set.
	parsed chan<- bpv6.Bundle
}

func newBundleWatcher(ctx *bpv6.CodecContext, directory, outDir string) (bw *bundleWatcher, err error) {
	bw = &bundleWatcher{
		directory: directory,
		outDir:    outDir,
		ctx:       ctx,
	}

	if bw.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("starting file watcher errored: %w", err)
	}
	if err = bw.watcher.Add(directory); err != nil {
		_ = bw.watcher.Close()
		return nil, fmt.Errorf("adding directory to file watcher errored: %w", err)
	}
	return bw, nil
}

// cleanFilepath creates an absolute path to compare files by.
func (bw *bundleWatcher) cleanFilepath(f string) string {
	if abs, err := filepath.Abs(f); err == nil {
		return abs
	}
	return filepath.Clean(f)
}

// run handles fsnotify events until the context is done or the watcher fails.
func (bw *bundleWatcher) run(ctx context.Context) error {
	defer func() { _ = bw.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping bundle watcher")
			return nil

		case e, ok := <-bw.watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify's Event channel was closed")
			}

			if _, ok := bw.knownFiles.Load(bw.cleanFilepath(e.Name)); ok {
				log.WithField("file", e.Name).Debug("Skipping file; already known")
				continue
			}

			if e.Op&fsnotify.Create == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			bw.readNewFile(ctx, e.Name)

		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify's Errors channel was closed")
			}
			return fmt.Errorf("fsnotify errored: %w", err)
		}
	}
}

func (bw *bundleWatcher) parseFile(name string) (b bpv6.Bundle, err error) {
	f, err := os.Open(name)
	if err != nil {
		return
	}

	b, err = bw.ctx.ParseBundle(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return
}

// readNewFile parses a new file, retrying with an exponential backoff.
func (bw *bundleWatcher) readNewFile(ctx context.Context, name string) {
	for i := 0; i < watchRetries; i++ {
		b, err := bw.parseFile(name)
		if err == nil {
			bw.knownFiles.Store(bw.cleanFilepath(name), struct{}{})
			bw.handleBundle(name, b)
			return
		}

		log.WithError(err).WithField("file", name).Warn("Parsing bundle errored, retrying..")

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond):
		}
	}

	log.WithField("file", name).Error("Failed to process file, giving up.")
}

func (bw *bundleWatcher) handleBundle(name string, b bpv6.Bundle) {
	logger := log.WithFields(log.Fields{
		"file":   name,
		"bundle": b.ID(),
		"blocks": b.Len(),
	})

	if pb, err := b.PayloadBlock(); err == nil {
		logger = logger.WithField("payload", pb.Value.(*bpv6.PayloadBlock).Len())
	}
	logger.Info("Parsed bundle")

	if bw.outDir != "" && !bw.saveBundle(logger, &b) {
		releaseBundle(&b)
		return
	}

	// A bundle passed on is released by its receiver.
	if bw.parsed != nil {
		bw.parsed <- b
		return
	}
	releaseBundle(&b)
}

func (bw *bundleWatcher) saveBundle(logger *log.Entry, b *bpv6.Bundle) bool {
	filePath := filepath.Join(bw.outDir, hex.EncodeToString([]byte(b.ID().String())))
	bw.knownFiles.Store(bw.cleanFilepath(filePath), struct{}{})

	if f, err := os.Create(filePath); err != nil {
		logger.WithError(err).Error("Creating file errored")
		return false
	} else if err := bw.ctx.WriteBundle(f, b); err != nil {
		_ = f.Close()
		logger.WithError(err).Error("Writing bundle errored")
		return false
	} else if err := f.Close(); err != nil {
		logger.WithError(err).Error("Closing file errored")
		return false
	}

	logger.WithField("output", filePath).Info("Saved parsed bundle")
	return true
}

func (t *tool) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch directory [output-directory]",
		Short: "Parse bundle files dropped into a directory",
		Long: `Watches a directory and parses each new bundle file. If an output directory is
given, each parsed bundle is written there, named by its hex encoded bundle ID.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ""
			if len(args) == 2 {
				outDir = args[1]
			}

			bw, err := newBundleWatcher(t.ctx, args[0], outDir)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			log.WithField("directory", args[0]).Info("Watching for bundles")
			return bw.run(ctx)
		},
	}
}

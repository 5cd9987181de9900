// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn6-go/pkg/bpv6"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging   logConf
	Codec     codecConf
	Bundle    bundleConf
	Security  securityConf
	Inspector inspectorConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// codecConf describes the CodecContext.
type codecConf struct {
	CBHE          bool   `toml:"cbhe"`
	BlobThreshold int64  `toml:"blob-threshold"`
	BlobDir       string `toml:"blob-dir"`
	LockTimeout   string `toml:"lock-timeout"`
}

// bundleConf holds defaults for created bundles.
type bundleConf struct {
	Lifetime string
	ReportTo string `toml:"report-to"`
	Custody  bool
}

type securityConf struct {
	BABKey string `toml:"bab-key"`
}

// inspectorConf describes the HTTP inspector of "serve".
type inspectorConf struct {
	Listen string
}

func defaultConfig() tomlConfig {
	return tomlConfig{
		Logging:   logConf{Level: "info", Format: "text"},
		Codec:     codecConf{CBHE: true},
		Bundle:    bundleConf{Lifetime: "24h"},
		Inspector: inspectorConf{Listen: "localhost:8080"},
	}
}

// parseConfig reads the TOML configuration. An empty filename results in the
// default configuration.
func parseConfig(filename string) (conf tomlConfig, err error) {
	conf = defaultConfig()
	if filename == "" {
		return
	}

	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		err = fmt.Errorf("failed to load config file %s: %w", filename, err)
	}
	return
}

// setupLogging configures logrus based on the Logging-configuration block.
func (conf tomlConfig) setupLogging() {
	if conf.Logging.Level != "" {
		if lvl, err := log.ParseLevel(conf.Logging.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Logging.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.Logging.ReportCaller)

	switch conf.Logging.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.WithField("format", conf.Logging.Format).Warn("Unknown logging format")
	}
}

// codecContext creates a CodecContext from the Codec-configuration block.
func (conf tomlConfig) codecContext() (*bpv6.CodecContext, error) {
	ctx := bpv6.NewCodecContext()
	ctx.CBHE = conf.Codec.CBHE
	ctx.BlobThreshold = conf.Codec.BlobThreshold
	ctx.BlobDir = conf.Codec.BlobDir

	if conf.Codec.LockTimeout != "" {
		timeout, err := time.ParseDuration(conf.Codec.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("codec.lock-timeout: %w", err)
		} else if timeout <= 0 {
			return nil, fmt.Errorf("codec.lock-timeout must be positive, not %v", timeout)
		}
		ctx.LockTimeout = timeout
	}

	return ctx, nil
}

// babKey decodes the hex encoded HMAC key. A missing key results in nil.
func (conf tomlConfig) babKey() ([]byte, error) {
	if conf.Security.BABKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(conf.Security.BABKey)
	if err != nil {
		return nil, fmt.Errorf("security.bab-key: %w", err)
	}
	return key, nil
}

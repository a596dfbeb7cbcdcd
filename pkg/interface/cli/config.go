package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/WangYihang/crcns-mirror/pkg/infrastructure/manifest"
)

// Options holds the flags shared by every command
type Options struct {
	WorkDir     string `short:"w" long:"workdir" description:"Working directory holding the data/ mirror tree" default:"."`
	ConfigFile  string `short:"c" long:"config" description:"YAML file overriding the repository profile"`
	EnvFile     string `long:"env-file" description:"dotenv file providing CRCNS_USERNAME and CRCNS_PASSWORD" default:".env"`
	LogLevel    string `long:"log-level" description:"Log level" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`
	LogFile     string `long:"log-file" description:"Write logs to this file instead of stderr"`
	MetricsAddr string `long:"metrics-addr" description:"Serve Prometheus metrics on this address, e.g. :2112"`
	JoinMode    string `long:"join-mode" description:"How checksums are matched to listed files" choice:"by-name" choice:"positional" default:"by-name"`
}

// Validate validates the options
func (o *Options) Validate() error {
	if strings.TrimSpace(o.WorkDir) == "" {
		return fmt.Errorf("working directory must not be empty")
	}
	switch manifest.JoinMode(o.JoinMode) {
	case manifest.JoinByName, manifest.JoinPositional:
	default:
		return fmt.Errorf("unknown join mode %q", o.JoinMode)
	}
	return nil
}

// Level maps LogLevel onto slog
func (o *Options) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

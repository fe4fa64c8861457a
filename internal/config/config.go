// Package config loads the seaccess configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/gregLibert/secure-element/pkg/tlv"
)

// Config holds the reader and applet settings of the CLI.
type Config struct {
	// Reader is the PC/SC reader name. Empty selects the first reader.
	Reader string `yaml:"reader"`
	// AraAID is the AID of the access rule applet.
	AraAID string `yaml:"ara_aid"`
	// WeaverAID is the AID of the Weaver applet instance.
	WeaverAID string `yaml:"weaver_aid"`
	// MaxChunk caps Le while paging access rules.
	MaxChunk int `yaml:"max_chunk"`
	// LogLevel is one of TRACE, DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level"`
}

const (
	defaultAraAID    = "A00000015141434C00"
	defaultWeaverAID = "A0000004765756100101"
	defaultMaxChunk  = 240
	maxChunkLimit    = 254
	minAIDLength     = 5
	maxAIDLength     = 16
)

// LevelTrace sits below slog.LevelDebug and logs every APDU.
const LevelTrace = slog.Level(-8)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		AraAID:    defaultAraAID,
		WeaverAID: defaultWeaverAID,
		MaxChunk:  defaultMaxChunk,
		LogLevel:  "INFO",
	}
}

// Load reads a YAML file over the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to open configuration file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f, yaml.Strict())
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("unable to parse configuration file: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks every field.
func (c Config) Validate() error {
	if _, err := parseAID("ara_aid", c.AraAID); err != nil {
		return err
	}
	if _, err := parseAID("weaver_aid", c.WeaverAID); err != nil {
		return err
	}
	if c.MaxChunk < 1 || c.MaxChunk > maxChunkLimit {
		return fmt.Errorf("max_chunk %d out of range 1..%d", c.MaxChunk, maxChunkLimit)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// AraAIDBytes returns the decoded ARA AID. Call Validate first.
func (c Config) AraAIDBytes() []byte {
	aid, _ := parseAID("ara_aid", c.AraAID)
	return aid
}

// WeaverAIDBytes returns the decoded Weaver AID. Call Validate first.
func (c Config) WeaverAIDBytes() []byte {
	aid, _ := parseAID("weaver_aid", c.WeaverAID)
	return aid
}

// Level returns the slog level of LogLevel, INFO when invalid.
func (c Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func parseAID(field, s string) ([]byte, error) {
	aid, err := tlv.ParseHex(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if len(aid) < minAIDLength || len(aid) > maxAIDLength {
		return nil, fmt.Errorf("%s: AID of %d bytes, want %d..%d", field, len(aid), minAIDLength, maxAIDLength)
	}
	return aid, nil
}

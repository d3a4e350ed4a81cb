// Package config loads and validates the TOML configuration file that
// describes the agent's sources and wiring parameters.
// Adapted from original_source/src/config.rs (and config/{global_config,
// source_config,config_error}.rs) in the Rust implementation this spec was
// distilled from; the teacher repo's own config is out of the retrieved
// pack, so field names and validation rules follow the original directly.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"
)

// DefaultPath is the literal config file name the process loads from its
// working directory unless the -config flag names another path.
const DefaultPath = "log-agent.config"

// SendType enumerates the recognized transport strategies. Only "HTTP" is
// accepted today; see internal/transport.Sender for the extension point.
type SendType string

// SendTypeHTTP is the only SendType value the loader accepts.
const SendTypeHTTP SendType = "HTTP"

// Global is the immutable process-wide configuration.
type Global struct {
	AgentName     string   `toml:"agent_name"`
	EndPoint      string   `toml:"end_point"`
	SendType      SendType `toml:"send_type"`
	MaxSendTask   int      `toml:"max_send_task"`
	RetryCount    int      `toml:"retry_count"`
	RetryDelayMs  int      `toml:"retry_delay_ms"`
	ChannelBound  int      `toml:"channel_bound"`
	IntervalSecs  int      `toml:"interval_secs"`
	MaxBatchSize  int      `toml:"max_batch_size"`
}

// Source is the immutable per-source configuration.
type Source struct {
	Name    string `toml:"name"`
	LogPath string `toml:"log_path"`
	DelayMs int    `toml:"delay_ms"`
}

// Config is the fully loaded, validated configuration: one Global plus the
// ordered list of Sources.
type Config struct {
	Global  Global
	Sources []Source
}

const (
	defaultMaxSendTask  = 5
	defaultRetryCount   = 3
	defaultRetryDelayMs = 100
	defaultChannelBound = 1024
	defaultIntervalSecs = 5
	defaultMaxBatchSize = 100
	defaultSourceDelay  = 500
)

// rawGlobal mirrors Global but decodes each defaultable field as a pointer,
// so a field the document omits is nil and a field explicitly set to zero
// (e.g. `retry_count = 0`) is distinguishable from it — a plain zero-value
// check on Global itself can't tell those two cases apart.
type rawGlobal struct {
	AgentName    string    `toml:"agent_name"`
	EndPoint     string    `toml:"end_point"`
	SendType     SendType  `toml:"send_type"`
	MaxSendTask  *int      `toml:"max_send_task"`
	RetryCount   *int      `toml:"retry_count"`
	RetryDelayMs *int      `toml:"retry_delay_ms"`
	ChannelBound *int      `toml:"channel_bound"`
	IntervalSecs *int      `toml:"interval_secs"`
	MaxBatchSize *int      `toml:"max_batch_size"`
}

// rawSource mirrors Source with DelayMs as a pointer, for the same reason.
type rawSource struct {
	Name    string `toml:"name"`
	LogPath string `toml:"log_path"`
	DelayMs *int   `toml:"delay_ms"`
}

// file is the raw shape decoded straight off the TOML document, before
// defaults are applied and the result is validated.
type file struct {
	Global  rawGlobal   `toml:"global"`
	Sources []rawSource `toml:"sources"`
}

// Load reads, decodes and validates the config file at path. An error
// returned from here is always fatal at startup, per §7.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Kind: CannotRead, Cause: err}
	}

	var f file
	if _, err := toml.Decode(string(raw), &f); err != nil {
		return nil, &LoadError{Kind: CannotParse, Cause: err}
	}

	cfg := resolveDefaults(f)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

// resolveDefaults fills in every field the document left unset with its
// default, leaving an explicitly-set value (including an explicit zero)
// untouched for validate to accept or reject.
func resolveDefaults(f file) *Config {
	g := Global{
		AgentName:    f.Global.AgentName,
		EndPoint:     f.Global.EndPoint,
		SendType:     f.Global.SendType,
		MaxSendTask:  intOr(f.Global.MaxSendTask, defaultMaxSendTask),
		RetryCount:   intOr(f.Global.RetryCount, defaultRetryCount),
		RetryDelayMs: intOr(f.Global.RetryDelayMs, defaultRetryDelayMs),
		ChannelBound: intOr(f.Global.ChannelBound, defaultChannelBound),
		IntervalSecs: intOr(f.Global.IntervalSecs, defaultIntervalSecs),
		MaxBatchSize: intOr(f.Global.MaxBatchSize, defaultMaxBatchSize),
	}

	sources := make([]Source, len(f.Sources))
	for i, s := range f.Sources {
		sources[i] = Source{
			Name:    s.Name,
			LogPath: s.LogPath,
			DelayMs: intOr(s.DelayMs, defaultSourceDelay),
		}
	}

	return &Config{Global: g, Sources: sources}
}

// LoadErrorKind enumerates the fatal-at-startup config error kinds from §7.
type LoadErrorKind int

const (
	CannotRead LoadErrorKind = iota
	CannotParse
	InvalidEndpoint
	UnsupportedSendType
	SendTaskUnderOne
	RetryCountUnderOne
	ChannelBoundUnderOne
	DuplicateSourceName
	DuplicateLogPath
)

// LoadError is returned by Load for any fatal configuration problem.
type LoadError struct {
	Kind  LoadErrorKind
	Cause error
	Value string
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case CannotRead:
		return fmt.Sprintf("cannot read config file: %v", e.Cause)
	case CannotParse:
		return fmt.Sprintf("cannot parse config file as TOML: %v", e.Cause)
	case InvalidEndpoint:
		return fmt.Sprintf("invalid endpoint %q: must be an absolute http or https URL", e.Value)
	case UnsupportedSendType:
		return fmt.Sprintf("unsupported send_type %q: only %q is accepted", e.Value, SendTypeHTTP)
	case SendTaskUnderOne:
		return "max_send_task must be >= 1"
	case RetryCountUnderOne:
		return "retry_count must be >= 1"
	case ChannelBoundUnderOne:
		return "channel_bound must be >= 1"
	case DuplicateSourceName:
		return fmt.Sprintf("duplicate source name: %q", e.Value)
	case DuplicateLogPath:
		return fmt.Sprintf("duplicate log path: %q", e.Value)
	default:
		return "invalid configuration"
	}
}

func (e *LoadError) Unwrap() error { return e.Cause }

func validate(cfg *Config) error {
	if cfg.Global.SendType != SendTypeHTTP {
		return &LoadError{Kind: UnsupportedSendType, Value: string(cfg.Global.SendType)}
	}

	u, err := url.Parse(cfg.Global.EndPoint)
	if err != nil || !govalidator.IsRequestURL(cfg.Global.EndPoint) {
		return &LoadError{Kind: InvalidEndpoint, Value: cfg.Global.EndPoint, Cause: errors.Wrap(err, "parsing endpoint")}
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return &LoadError{Kind: InvalidEndpoint, Value: cfg.Global.EndPoint}
	}

	if cfg.Global.MaxSendTask < 1 {
		return &LoadError{Kind: SendTaskUnderOne}
	}
	if cfg.Global.RetryCount < 1 {
		return &LoadError{Kind: RetryCountUnderOne}
	}
	if cfg.Global.ChannelBound < 1 {
		return &LoadError{Kind: ChannelBoundUnderOne}
	}

	seenNames := make(map[string]struct{}, len(cfg.Sources))
	seenPaths := make(map[string]struct{}, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if _, ok := seenNames[s.Name]; ok {
			return &LoadError{Kind: DuplicateSourceName, Value: s.Name}
		}
		seenNames[s.Name] = struct{}{}

		if _, ok := seenPaths[s.LogPath]; ok {
			return &LoadError{Kind: DuplicateLogPath, Value: s.LogPath}
		}
		seenPaths[s.LogPath] = struct{}{}
	}

	return nil
}

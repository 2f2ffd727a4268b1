package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config keys use the same spelling in YAML files as on the command line.
type Config struct {
	Port            string        `yaml:"port"`
	Topology        string        `yaml:"topology"`
	LogLevel        string        `yaml:"log-level"`
	LogFormat       string        `yaml:"log-format"`
	OfferTTL        time.Duration `yaml:"offer-ttl"`
	StrictPayloads  bool          `yaml:"strict-payloads"`
	ParseSDP        bool          `yaml:"parse-sdp"`
	Nack            bool          `yaml:"nack"`
	AllowedOrigins  []string      `yaml:"allowed-origins"`
	MaxMessageBytes int64         `yaml:"max-message-bytes"`
	PingInterval    time.Duration `yaml:"ping-interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
}

func Default() Config {
	return Config{
		Port:            "8080",
		Topology:        string(domain.TopologyRoom),
		LogLevel:        "info",
		LogFormat:       LogFormatConsole,
		AllowedOrigins:  []string{"*"},
		MaxMessageBytes: 64 * 1024,
		PingInterval:    54 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// key binds a setting to its flag and environment variable.
type key struct {
	flag  string
	env   string
	usage string
}

var keys = []key{
	{"port", "PORT", "listen port"},
	{"topology", "DUET_TOPOLOGY", "relay topology: room or broadcast"},
	{"log-level", "DUET_LOG_LEVEL", "trace, debug, info, warn or error"},
	{"log-format", "DUET_LOG_FORMAT", "console or json"},
	{"offer-ttl", "DUET_OFFER_TTL", "expire cached offers after this long (0 keeps them until answered)"},
	{"strict-payloads", "DUET_STRICT_PAYLOADS", "reject offers, answers and candidates that are not valid WebRTC objects"},
	{"parse-sdp", "DUET_PARSE_SDP", "with strict-payloads, also parse the SDP body"},
	{"nack", "DUET_NACK", "send an error message back for dropped messages"},
	{"allowed-origins", "DUET_ALLOWED_ORIGINS", "comma separated websocket origins, * for any"},
	{"max-message-bytes", "DUET_MAX_MESSAGE_BYTES", "largest accepted websocket message"},
	{"ping-interval", "DUET_PING_INTERVAL", "websocket keepalive ping interval"},
	{"shutdown-timeout", "DUET_SHUTDOWN_TIMEOUT", "graceful shutdown deadline"},
}

const envConfigFile = "DUET_CONFIG"

// Load layers defaults, an optional YAML file, the environment and finally
// command line flags. Returns pflag.ErrHelp when -h was given.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("duet-server", pflag.ContinueOnError)
	configFile := fs.String("config", "", "YAML config file (env "+envConfigFile+")")
	for _, k := range keys {
		def, _ := cfg.get(k.flag)
		if def == "true" || def == "false" {
			fs.Bool(k.flag, def == "true", k.usage+" (env "+k.env+")")
			continue
		}
		fs.String(k.flag, def, k.usage+" (env "+k.env+")")
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	path := *configFile
	if path == "" {
		path = getenv(envConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	for _, k := range keys {
		if v := getenv(k.env); v != "" {
			if err := cfg.set(k.flag, v); err != nil {
				return Config{}, fmt.Errorf("env %s: %w", k.env, err)
			}
		}
	}

	var flagErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || flagErr != nil {
			return
		}
		if err := cfg.set(f.Name, f.Value.String()); err != nil {
			flagErr = fmt.Errorf("flag --%s: %w", f.Name, err)
		}
	})
	if flagErr != nil {
		return Config{}, flagErr
	}

	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	// unknown keys, including underscore spellings, are errors
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) set(name, value string) error {
	var err error
	switch name {
	case "port":
		c.Port = value
	case "topology":
		c.Topology = value
	case "log-level":
		c.LogLevel = value
	case "log-format":
		c.LogFormat = value
	case "offer-ttl":
		c.OfferTTL, err = time.ParseDuration(value)
	case "strict-payloads":
		c.StrictPayloads, err = strconv.ParseBool(value)
	case "parse-sdp":
		c.ParseSDP, err = strconv.ParseBool(value)
	case "nack":
		c.Nack, err = strconv.ParseBool(value)
	case "allowed-origins":
		c.AllowedOrigins = splitList(value)
	case "max-message-bytes":
		c.MaxMessageBytes, err = strconv.ParseInt(value, 10, 64)
	case "ping-interval":
		c.PingInterval, err = time.ParseDuration(value)
	case "shutdown-timeout":
		c.ShutdownTimeout, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
	return err
}

func (c *Config) get(name string) (string, bool) {
	switch name {
	case "port":
		return c.Port, true
	case "topology":
		return c.Topology, true
	case "log-level":
		return c.LogLevel, true
	case "log-format":
		return c.LogFormat, true
	case "offer-ttl":
		return c.OfferTTL.String(), true
	case "strict-payloads":
		return strconv.FormatBool(c.StrictPayloads), true
	case "parse-sdp":
		return strconv.FormatBool(c.ParseSDP), true
	case "nack":
		return strconv.FormatBool(c.Nack), true
	case "allowed-origins":
		return strings.Join(c.AllowedOrigins, ","), true
	case "max-message-bytes":
		return strconv.FormatInt(c.MaxMessageBytes, 10), true
	case "ping-interval":
		return c.PingInterval.String(), true
	case "shutdown-timeout":
		return c.ShutdownTimeout.String(), true
	}
	return "", false
}

func (c Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if _, err := domain.ParseTopology(c.Topology); err != nil {
		errs = append(errs, err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("log format %q (want %s or %s)", c.LogFormat, LogFormatConsole, LogFormatJSON))
	}
	if c.OfferTTL < 0 {
		errs = append(errs, errors.New("offer ttl must not be negative"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max message bytes must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("ping interval must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("at least one allowed origin is required"))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for http.Server.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) TopologyValue() domain.Topology {
	t, _ := domain.ParseTopology(c.Topology)
	return t
}

func (c Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
